// Package migration discovers SQL migration files spread over several
// packages and stages them into a single goose readable filesystem.
//
// Files follow <root>/<package>/migrations/<YYYYMMDDHHMMSS>-<description>.sql
// and are merged across packages by timestamp.
package migration
