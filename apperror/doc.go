// Package apperror defines the closed set of database error codes, their
// HTTP status classes and default messages, and the Error type built from them.
package apperror
