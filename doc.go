// Package coredb wires bun into an application: ForRootAsync connects a
// database from a configuration factory and hands out the transaction runner
// and generic repositories built on that connection.
package coredb
