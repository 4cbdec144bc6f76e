package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/othala/othala/internal/config"
	"github.com/othala/othala/internal/pipeline"
	"github.com/othala/othala/internal/statemachine"
	"github.com/othala/othala/internal/store"
	"github.com/othala/othala/internal/supervisor"
	"github.com/othala/othala/internal/task"
)

// SeedFunc is the out-of-core-scope hook named in spec section 4.2's Seed
// phase: "policy-driven; out of core scope but core must expose the
// hook." It is called once per repo with zero CHATTING tasks and may
// return a new task to admit, or nil.
type SeedFunc func(ctx context.Context, repoID string) (*task.Task, error)

// DispatchFunc maps a task to the (role, model, argv) triple the
// supervisor should spawn, applying the fallback rule of spec section 4.3:
// "If the primary cannot be reached, degrade to a configured safe default
// and log a warning — never block the pipeline on a dispatch failure."
type DispatchFunc func(t *task.Task, cfg *config.Config) (role task.Role, model string, argv []string)

// Scheduler runs the serial daemon tick of spec section 4.2.
type Scheduler struct {
	cfg   *config.Config
	store *store.Store
	sup   *supervisor.Supervisor
	pipe  *pipeline.Pipeline
	caps  *caps
	root  string
	log   *slog.Logger

	dispatch DispatchFunc
	seed     SeedFunc
}

// New constructs a Scheduler. root is the state directory (spec section 6
// persisted layout), used for per-task log file paths.
func New(cfg *config.Config, st *store.Store, sup *supervisor.Supervisor, pipe *pipeline.Pipeline, root string, log *slog.Logger, dispatch DispatchFunc, seed SeedFunc) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    st,
		sup:      sup,
		pipe:     pipe,
		caps:     newCaps(cfg.Org.PerRepoConcurrency, cfg.Org.PerModelConcurrency),
		root:     root,
		log:      log,
		dispatch: dispatch,
		seed:     seed,
	}
}

// TickSummary reports what one tick did, for the daemon CLI's logging and
// for tests asserting tick idempotence (law L3).
type TickSummary struct {
	Admitted  int
	Spawned   int
	Reaped    int
	Pipelined int
	Recovered int
	Seeded    int
}

// Tick runs the 6 deterministic phases of spec section 4.2 once.
func (s *Scheduler) Tick(ctx context.Context) (TickSummary, error) {
	now := time.Now().UTC()
	var summary TickSummary

	tasks, err := s.store.LoadAllTasks(ctx)
	if err != nil {
		return summary, fmt.Errorf("tick: load tasks: %w", err)
	}
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	// Phase 1: Admission.
	summary.Admitted = s.admit(ctx, tasks, byID, now)

	// Phase 2: Dispatch.
	n, err := s.dispatchPhase(ctx, tasks, now)
	if err != nil {
		s.log.Error("dispatch phase error", "err", err)
	}
	summary.Spawned = n

	// Phase 3: Reap.
	summary.Reaped = s.reapPhase(ctx, tasks, now)

	// Phase 4: Pipeline.
	summary.Pipelined = s.pipelinePhase(ctx, tasks, byID, now)

	// Phase 5: Recovery.
	summary.Recovered = s.recoveryPhase(ctx, tasks, now)

	// Phase 6: Seed.
	summary.Seeded = s.seedPhase(ctx, tasks, now)

	return summary, nil
}

// admit counts READY tasks with a non-empty depends_on whose dependencies
// are all MERGED in the current snapshot. It gates nothing itself:
// dispatchPhase holds CHATTING tasks back until their depends_on are all
// MERGED, and pipelinePhase applies the same check before submission.
func (s *Scheduler) admit(ctx context.Context, tasks []*task.Task, byID map[string]*task.Task, now time.Time) int {
	count := 0
	for _, t := range tasks {
		if t.State != task.StateReady || len(t.DependsOn) == 0 {
			continue
		}
		if s.allDepsMerged(t, byID) {
			count++
		}
	}
	return count
}

func (s *Scheduler) allDepsMerged(t *task.Task, byID map[string]*task.Task) bool {
	for dep := range t.DependsOn {
		depTask, ok := byID[dep]
		if !ok || depTask.State != task.StateMerged {
			return false
		}
	}
	return true
}

// ordered returns task ids in stable creation-time order (spec section 5
// Fairness), filtered to pred.
func ordered(tasks []*task.Task, pred func(*task.Task) bool) []string {
	times := make(map[string]time.Time)
	for _, t := range tasks {
		if pred(t) {
			times[t.ID] = t.CreatedAt
		}
	}
	return newReadyQueue(times).popAll()
}

func (s *Scheduler) logPath(taskID string) string {
	return filepath.Join(s.root, "logs", taskID+".log")
}

func (s *Scheduler) promptPath(taskID string) string {
	return filepath.Join(s.root, "prompts", taskID+".txt")
}
