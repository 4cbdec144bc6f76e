package driver

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresDriver opens Postgres through jackc/pgx's database/sql adapter.
// An operator chooses this dialect by setting OTHALA_POSTGRES_DSN instead
// of (or in addition to) OTHALA_SQLITE_PATH; internal/cli picks Postgres
// whenever a DSN is configured, since it is the backend that
// supports multiple daemon processes pointed at one snapshot (still a
// single logical writer per spec section 5, just not tied to one host's
// filesystem).
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (PostgresDriver) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
