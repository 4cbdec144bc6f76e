package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/othala/othala/internal/config"
	"github.com/othala/othala/internal/git"
	"github.com/othala/othala/internal/hosting"
	_ "github.com/othala/othala/internal/hosting/github"
	_ "github.com/othala/othala/internal/hosting/gitlab"
	"github.com/othala/othala/internal/lock"
	"github.com/othala/othala/internal/pipeline"
	"github.com/othala/othala/internal/scheduler"
	"github.com/othala/othala/internal/supervisor"
	"github.com/othala/othala/internal/task"
)

func newDaemonCmd() *cobra.Command {
	var (
		once           bool
		exitOnIdle     bool
		timeoutSeconds int
		skipContextGen bool
		skipQA         bool
		verifyCommand  string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "run ticks until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = skipContextGen // out of core scope (spec section 1); flag accepted for CLI parity only

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			guard := lock.New(app.Root)
			if err := guard.Acquire(); err != nil {
				return err
			}
			defer guard.Release()

			runners := map[string]*git.Runner{}
			hosts := map[string]hosting.Provider{}
			for id, repo := range app.Config.Repos {
				runners[id] = git.NewRunner(repo.Dir)
				kind := repo.HostingKind
				if kind == "" {
					kind = "github"
				}
				h, err := hosting.New(kind)
				if err != nil {
					app.Log.Warn("hosting provider unavailable, submit/detect_merge will fail for this repo", "repo", id, "err", err)
					continue
				}
				hosts[id] = h
			}

			if verifyCommand != "" {
				for id, repo := range app.Config.Repos {
					repo.Verify.Quick = verifyCommand
					app.Config.Repos[id] = repo
				}
			}

			pipe := pipeline.New(app.Config, runners, hosts, app.Store.LoadTask)
			sup := supervisor.New()

			dispatch := defaultDispatch
			if skipQA {
				dispatch = skipQADispatch
			}
			sched := scheduler.New(app.Config, app.Store, sup, pipe, app.Root, app.Log, dispatch, nil)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if timeoutSeconds > 0 {
				var timeoutCancel context.CancelFunc
				ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
				defer timeoutCancel()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				summary, err := sched.Tick(ctx)
				if err != nil {
					return fmt.Errorf("tick failed: %w", err)
				}
				app.Log.Info("tick complete", "admitted", summary.Admitted, "spawned", summary.Spawned,
					"reaped", summary.Reaped, "pipelined", summary.Pipelined, "seeded", summary.Seeded)

				if once {
					return nil
				}
				idle := summary.Spawned == 0 && summary.Reaped == 0 && summary.Pipelined == 0 && summary.Seeded == 0
				if exitOnIdle && idle {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(2 * time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	cmd.Flags().BoolVar(&exitOnIdle, "exit-on-idle", false, "exit once a tick performs no work")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "stop after this many seconds")
	cmd.Flags().BoolVar(&skipContextGen, "skip-context-gen", false, "accepted for CLI parity with the collaborator context-generator pipeline; no-op here")
	cmd.Flags().BoolVar(&skipQA, "skip-qa", false, "skip dispatching the qa role")
	cmd.Flags().StringVar(&verifyCommand, "verify-command", "", "override the configured quick verify command")
	return cmd
}

// defaultDispatch implements the role/model selection of spec section 4.3:
// pick the task's current role (or implementer by default), and its
// preferred model if enabled, degrading to the first enabled model
// otherwise.
func defaultDispatch(t *task.Task, cfg *config.Config) (task.Role, string, []string) {
	role := t.Role
	if role == "" {
		role = task.RoleImplementer
	}

	model := t.PreferredModel
	enabled := false
	for _, m := range cfg.Org.ModelsEnabled {
		if m == model {
			enabled = true
			break
		}
	}
	if !enabled {
		if len(cfg.Org.ModelsEnabled) > 0 {
			model = cfg.Org.ModelsEnabled[0]
		} else {
			model = "default"
		}
	}

	argv := []string{"othala-coder", "--role", string(role), "--model", model}
	return role, model, argv
}

// skipQADispatch wraps defaultDispatch for the --skip-qa flag: any task
// assigned the qa role is downgraded to implementer before dispatch, so
// no qa-role agent is ever spawned for the life of this daemon process.
func skipQADispatch(t *task.Task, cfg *config.Config) (task.Role, string, []string) {
	if t.Role == task.RoleQA {
		downgraded := *t
		downgraded.Role = task.RoleImplementer
		return defaultDispatch(&downgraded, cfg)
	}
	return defaultDispatch(t, cfg)
}
