package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/othala/othala/internal/task"
)

const taskColumns = `id, repo_id, title, state, role, preferred_model, branch, worktree_path,
	depends_on, parent_task, retry_count, last_failure_reason, last_failure_class,
	recovery_rounds, paused_from_state, not_before, created_at, updated_at`

// CreateTask inserts t's row, or overwrites the existing row with the same
// id (the scheduler also uses it to persist dispatch metadata). Callers
// creating a task are expected to have
// already validated t (internal/task.Validate) and journaled a creation
// event; CreateTask itself does not journal, since task creation is driven
// by the CLI/API layer rather than a state-machine transition.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	return s.saveTaskTx(ctx, t)
}

func (s *Store) saveTaskTx(ctx context.Context, t *task.Task) error {
	depIDs := make([]string, 0, len(t.DependsOn))
	for id := range t.DependsOn {
		depIDs = append(depIDs, id)
	}
	depsJSON, err := json.Marshal(depIDs)
	if err != nil {
		return fmt.Errorf("marshal depends_on for task %s: %w", t.ID, err)
	}

	var notBefore string
	if !t.NotBefore.IsZero() {
		notBefore = t.NotBefore.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			repo_id=excluded.repo_id, title=excluded.title, state=excluded.state,
			role=excluded.role, preferred_model=excluded.preferred_model,
			branch=excluded.branch, worktree_path=excluded.worktree_path,
			depends_on=excluded.depends_on, parent_task=excluded.parent_task,
			retry_count=excluded.retry_count, last_failure_reason=excluded.last_failure_reason,
			last_failure_class=excluded.last_failure_class, recovery_rounds=excluded.recovery_rounds,
			paused_from_state=excluded.paused_from_state, not_before=excluded.not_before,
			updated_at=excluded.updated_at`,
		t.ID, t.RepoID, t.Title, string(t.State), string(t.Role), t.PreferredModel,
		t.Branch, t.WorktreePath, string(depsJSON), t.ParentTask,
		t.RetryCount, t.LastFailureReason, string(t.LastFailureClass),
		t.RecoveryRounds, string(t.PausedFromState), notBefore,
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// LoadTask returns the task row for id, or (nil, nil) if no such task
// exists.
func (s *Store) LoadTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return t, nil
}

// LoadAllTasks returns every task row, for the scheduler tick and the
// list-tasks CLI command.
func (s *Store) LoadAllTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load all tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTask removes a task row entirely, used by the delete CLI command
// after the task has been cancelled into STOPPED.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                                   task.Task
		state, role, lastClass, pausedFrom  string
		depsJSON                            string
		notBefore                           string
		createdAt, updatedAt                string
	)
	err := row.Scan(
		&t.ID, &t.RepoID, &t.Title, &state, &role, &t.PreferredModel,
		&t.Branch, &t.WorktreePath, &depsJSON, &t.ParentTask,
		&t.RetryCount, &t.LastFailureReason, &lastClass,
		&t.RecoveryRounds, &pausedFrom, &notBefore, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = task.State(state)
	t.Role = task.Role(role)
	t.LastFailureClass = task.FailureClass(lastClass)
	t.PausedFromState = task.State(pausedFrom)

	if notBefore != "" {
		if t.NotBefore, err = time.Parse(time.RFC3339Nano, notBefore); err != nil {
			return nil, fmt.Errorf("parse not_before: %w", err)
		}
	}

	var depIDs []string
	if err := json.Unmarshal([]byte(depsJSON), &depIDs); err != nil {
		return nil, fmt.Errorf("unmarshal depends_on: %w", err)
	}
	t.DependsOn = make(map[string]struct{}, len(depIDs))
	for _, id := range depIDs {
		t.DependsOn[id] = struct{}{}
	}

	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}
