// Package store implements the durable snapshot half of spec section 4.6:
// a single-writer embedded database holding the current view of every
// task, paired with the append-only journal (internal/journal) through one
// transactional apply(event) -> snapshot' primitive.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/store/driver"
	"github.com/othala/othala/internal/task"
)

// Store is the snapshot database plus the journal it stays consistent
// with. Store is a single-writer: callers serialize writes themselves (the
// scheduler's tick is already single-threaded per spec section 5).
type Store struct {
	db     *sql.DB
	drv    driver.Driver
	j      *journal.Journal
}

// Open opens (creating if necessary) the snapshot database at dsn using
// drv, runs pending migrations, and attaches j as the paired journal. It
// then performs the boot-time reconciliation named in spec section 4.6:
// compare the snapshot's bookkeeping "last_applied_event_id" against the
// journal tail, replaying any events the snapshot is missing.
func Open(ctx context.Context, drv driver.Driver, dsn string, j *journal.Journal) (*Store, error) {
	db, err := drv.Open(dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, drv: drv, j: j}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.reconcile(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// TaskEvents returns taskID's full journal history, oldest first, for
// deep-recovery-context assembly (spec section 4.4).
func (s *Store) TaskEvents(taskID string) ([]journal.Event, error) {
	return s.j.EventsForTask(taskID)
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := versionFromName(name)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		sqlBytes, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx for %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(sqlBytes), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (version, name, applied_at) VALUES (?, ?, ?)`, version, name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func versionFromName(name string) (int, error) {
	idx := strings.IndexByte(name, '_')
	if idx < 0 {
		return 0, fmt.Errorf("migration filename %q has no version prefix", name)
	}
	return strconv.Atoi(name[:idx])
}

// reconcile compares the snapshot's last-applied event id against the
// journal tail; any events after it are replayed through applySnapshotOnly
// so the snapshot catches up after a crash between journal append and
// snapshot commit.
func (s *Store) reconcile(ctx context.Context) error {
	lastApplied, _ := s.bookkeeping(ctx, "last_applied_event_id")

	tail, ok, err := s.j.Tail()
	if err != nil {
		return fmt.Errorf("read journal tail: %w", err)
	}
	if !ok || tail.ID == lastApplied {
		return nil
	}

	segments, err := s.j.AllSegments()
	if err != nil {
		return err
	}
	replaying := lastApplied == ""
	for _, day := range segments {
		events, err := s.j.ReadSegment(day)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if !replaying {
				if ev.ID == lastApplied {
					replaying = true
				}
				continue
			}
			if err := s.applySnapshotOnly(ctx, ev); err != nil {
				return fmt.Errorf("replay event %s: %w", ev.ID, err)
			}
		}
	}
	return s.setBookkeeping(ctx, "last_applied_event_id", tail.ID)
}

func (s *Store) bookkeeping(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bookkeeping WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *Store) setBookkeeping(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bookkeeping (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Apply is the single transactional primitive spec section 4.6 names:
// "apply(event) -> snapshot'". It appends ev to the journal first, then
// mutates the task row in the snapshot and records ev.ID as the new
// last-applied marker. Journal-before-snapshot is the ordering source of
// replay determinism (law L1); this function must never be reordered.
func (s *Store) Apply(ctx context.Context, ev journal.Event, mutate func(*task.Task) error) (*task.Task, error) {
	if err := s.j.Append(ev); err != nil {
		return nil, fmt.Errorf("append journal event: %w", err)
	}

	t, err := s.LoadTask(ctx, ev.TaskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("apply event %s: task %s not found in snapshot", ev.ID, ev.TaskID)
	}
	if err := mutate(t); err != nil {
		return nil, fmt.Errorf("apply mutation for event %s: %w", ev.ID, err)
	}
	t.Touch(ev.Ts)

	if err := s.saveTaskTx(ctx, t); err != nil {
		return nil, err
	}
	if err := s.setBookkeeping(ctx, "last_applied_event_id", ev.ID); err != nil {
		return nil, fmt.Errorf("record last applied event: %w", err)
	}
	return t, nil
}

// applySnapshotOnly re-applies a previously journaled event to the
// snapshot without re-appending it, used only during boot reconciliation.
// Because classification and transition decisions are themselves pure
// (law L2), the event's payload already carries the resulting state; this
// simply replays that recorded state onto the row.
func (s *Store) applySnapshotOnly(ctx context.Context, ev journal.Event) error {
	if ev.Kind != journal.KindStateTransition {
		return nil
	}
	var payload struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode replayed event payload: %w", err)
	}
	t, err := s.LoadTask(ctx, ev.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil // task row predates this snapshot entirely; nothing to reconcile
	}
	t.State = task.State(payload.To)
	t.Touch(ev.Ts)
	return s.saveTaskTx(ctx, t)
}
