// Package driver abstracts the snapshot database's SQL dialect, so
// internal/store can run against either the embedded sqlite file named in
// spec section 6's persisted layout or an operator-supplied Postgres
// instance, behind one database/sql handle.
package driver

import "database/sql"

// Driver opens a *sql.DB and exposes the handful of dialect-specific
// pragmas/settings each backend needs.
type Driver interface {
	// Name identifies the dialect: "sqlite" or "postgres".
	Name() string
	// Open returns a ready-to-use *sql.DB, with pragmas/settings applied.
	Open(dsn string) (*sql.DB, error)
	// Placeholder returns the positional-parameter placeholder for
	// argument index n (1-based), since sqlite uses "?" and postgres
	// uses "$1", "$2", ...
	Placeholder(n int) string
}
