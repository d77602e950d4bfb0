// Package repository provides a generic bun repository. Every call takes
// Options, whose Tx field lets several calls share one transaction.
package repository
