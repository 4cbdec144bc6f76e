package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/othala/othala/internal/git"
	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/othalaerr"
	"github.com/othala/othala/internal/statemachine"
	"github.com/othala/othala/internal/supervisor"
	"github.com/othala/othala/internal/task"
)

// cancelGrace is how long KillHeartbeatProcess waits after SIGTERM before
// force-killing a task's live subprocess.
const cancelGrace = 5 * time.Second

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "cancel and purge a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			id := args[0]
			t, err := app.Store.LoadTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			if t == nil {
				return othalaerr.ErrNotFound("task", id)
			}

			if !t.State.Terminal() {
				if t.State == task.StateChatting {
					logDir := filepath.Join(app.Root, "logs")
					if err := supervisor.KillHeartbeatProcess(logDir, id, cancelGrace); err != nil {
						app.Log.Warn("kill live supervisor failed", "task", id, "err", err)
					}
				}
				if t.WorktreePath != "" {
					if repo, ok := app.Config.Repos[t.RepoID]; ok {
						if err := git.NewRunner(repo.Dir).RemoveWorktree(cmd.Context(), t.WorktreePath); err != nil {
							app.Log.Warn("release worktree failed", "task", id, "err", err)
						}
					}
				}

				now := time.Now().UTC()
				ev, err := journal.NewEvent(id, now, journal.KindStateTransition,
					map[string]string{"from": string(t.State), "trigger": string(statemachine.TriggerCancel), "to": string(task.StateStopped)})
				if err != nil {
					return err
				}
				if _, err := app.Store.Apply(cmd.Context(), ev, func(tt *task.Task) error {
					_, err := statemachine.Apply(tt, statemachine.TriggerCancel)
					return err
				}); err != nil {
					return fmt.Errorf("cancel task: %w", err)
				}
			}

			if err := app.Store.DeleteTask(cmd.Context(), id); err != nil {
				return fmt.Errorf("purge task: %w", err)
			}
			return nil
		},
	}
	return cmd
}
