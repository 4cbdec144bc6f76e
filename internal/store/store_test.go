package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/store/driver"
	"github.com/othala/othala/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	s, err := Open(context.Background(), driver.SQLiteDriver{}, filepath.Join(dir, "state.sqlite"), j)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndLoadTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC()
	tsk := task.New("org/repo", "add retry jitter", now)
	require.NoError(t, s.CreateTask(ctx, tsk))

	loaded, err := s.LoadTask(ctx, tsk.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, tsk.Title, loaded.Title)
	require.Equal(t, task.StateChatting, loaded.State)
}

func TestLoadMissingTaskReturnsNil(t *testing.T) {
	s := openTestStore(t)
	loaded, err := s.LoadTask(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestApplyJournalsBeforeSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC()
	tsk := task.New("org/repo", "demo", now)
	require.NoError(t, s.CreateTask(ctx, tsk))

	ev, err := journal.NewEvent(tsk.ID, now.Add(time.Second), journal.KindStateTransition,
		map[string]string{"from": "CHATTING", "to": "READY"})
	require.NoError(t, err)

	updated, err := s.Apply(ctx, ev, func(tt *task.Task) error {
		tt.State = task.StateReady
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, task.StateReady, updated.State)

	reloaded, err := s.LoadTask(ctx, tsk.ID)
	require.NoError(t, err)
	require.Equal(t, task.StateReady, reloaded.State)
}

func TestLoadAllTasksOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC()
	first := task.New("org/repo", "first", base)
	second := task.New("org/repo", "second", base.Add(time.Minute))
	require.NoError(t, s.CreateTask(ctx, second))
	require.NoError(t, s.CreateTask(ctx, first))

	all, err := s.LoadAllTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, first.ID, all[0].ID)
	require.Equal(t, second.ID, all[1].ID)
}
