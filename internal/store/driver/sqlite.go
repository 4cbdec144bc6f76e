package driver

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDriver opens the embedded, pure-Go modernc.org/sqlite driver with
// the pragmas the teacher lineage sets: WAL journaling, foreign keys on,
// and a busy timeout so concurrent pipeline goroutines don't spuriously
// fail on SQLITE_BUSY.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite" }

func (SQLiteDriver) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // single-writer embedded db, per spec section 4.6

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return db, nil
}

func (SQLiteDriver) Placeholder(int) string { return "?" }
