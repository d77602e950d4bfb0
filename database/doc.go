// Package database connects bun to MySQL, PostgreSQL or SQLite and provides
// the pieces built on that connection: a transaction runner, driver error
// translation into apperror codes, query hooks, model registration and a
// goose based migration manager.
package database
