package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/othala/othala/internal/classifier"
	"github.com/othala/othala/internal/config"
	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/statemachine"
	"github.com/othala/othala/internal/supervisor"
	"github.com/othala/othala/internal/task"
	"github.com/othala/othala/internal/util"
)

// dispatchPhase spawns a supervisor for every CHATTING task with none
// live yet and all depends_on MERGED, in creation-time order, subject to
// per-repo/per-model caps.
func (s *Scheduler) dispatchPhase(ctx context.Context, tasks []*task.Task, now time.Time) (int, error) {
	byID := indexByID(tasks)
	ids := ordered(tasks, func(t *task.Task) bool {
		return t.State == task.StateChatting && !s.sup.IsLive(t.ID) && !now.Before(t.NotBefore) && s.allDepsMerged(t, byID)
	})

	spawned := 0
	for _, id := range ids {
		t := byID[id]

		role, model, argv := s.dispatch(t, s.cfg)
		if !s.caps.tryAcquire(t.RepoID, model) {
			continue // deferred to a later tick
		}

		if err := s.pipe.Init(ctx, t); err != nil {
			s.caps.release(t.RepoID, model)
			s.log.Warn("pipeline init failed, deferring dispatch", "task", t.ID, "err", err)
			continue
		}

		promptFile, err := s.buildPromptFile(ctx, t, role)
		if err != nil {
			s.log.Warn("build prompt file failed, dispatching without it", "task", t.ID, "err", err)
		}

		spec := supervisor.Spec{
			TaskID:       t.ID,
			Argv:         argv,
			WorktreePath: t.WorktreePath,
			PromptFile:   promptFile,
			LogPath:      s.logPath(t.ID),
			WallClock:    30 * time.Minute,
			IdleTimeout:  5 * time.Minute,
		}
		if t.LastFailureClass == task.ClassTimeout {
			spec.WallClock *= 2
			spec.IdleTimeout *= 2
		}
		if err := s.sup.Spawn(spec); err != nil {
			s.caps.release(t.RepoID, model)
			s.log.Warn("spawn failed", "task", t.ID, "err", err)
			continue
		}

		t.Role = role
		t.PreferredModel = model
		if err := s.store.CreateTask(ctx, t); err != nil {
			s.log.Error("persist dispatch metadata failed", "task", t.ID, "err", err)
		}
		s.appendEvent(ctx, t.ID, now, journal.KindSpawn, map[string]any{"role": role, "model": model})
		spawned++
		// Cap is held until reapPhase reaps this task, so it bounds
		// concurrently running agents, not just the instant of spawn.
	}
	return spawned, nil
}

// reapPhase polls every task with a live supervisor for completion and
// applies the corresponding transition.
func (s *Scheduler) reapPhase(ctx context.Context, tasks []*task.Task, now time.Time) int {
	reaped := 0
	for _, t := range tasks {
		if t.State != task.StateChatting || !s.sup.IsLive(t.ID) {
			continue
		}
		report, ok := s.sup.Reap(t.ID)
		if !ok {
			continue
		}
		reaped++
		s.caps.release(t.RepoID, t.PreferredModel)

		exitPayload := map[string]any{
			"exit_code": report.ExitCode, "signal": report.Signal, "timed_out": report.TimedOut,
			"log_trailer": report.LogTrailer,
		}
		if stat, err := s.pipe.Diffstat(ctx, t); err != nil {
			s.log.Warn("diffstat failed", "task", t.ID, "err", err)
		} else {
			exitPayload["files_changed"] = stat.FilesChanged
			exitPayload["insertions"] = stat.Insertions
			exitPayload["deletions"] = stat.Deletions
		}
		s.appendEvent(ctx, t.ID, now, journal.KindExit, exitPayload)

		if report.TimedOut {
			s.handleClassified(ctx, t, task.ClassTimeout, now, "wall-clock or idle timeout exceeded")
			continue
		}
		if report.Signal == supervisor.SignalNeedsHuman {
			s.transition(ctx, t, statemachine.TriggerAgentBlocked, now, "agent signalled needs_human")
			continue
		}
		if report.Signal == supervisor.SignalPatchReady {
			result, err := s.pipe.Verify(ctx, t, "quick")
			if err != nil {
				s.log.Error("verify failed to run", "task", t.ID, "err", err)
				continue
			}
			s.appendEvent(ctx, t.ID, now, journal.KindVerifyOutcome, map[string]any{"pass": result.Pass, "reason": result.Reason})
			if result.Pass {
				s.transition(ctx, t, statemachine.TriggerAgentDonePass, now, "")
				continue
			}
			class := classifier.Classify(classifier.ExitTuple{
				ExitCode: report.ExitCode, SignalToken: string(report.Signal),
				LogTrailer: report.LogTrailer, VerifyOutput: result.Output,
			})
			s.handleClassified(ctx, t, class, now, result.Reason)
			continue
		}

		class := classifier.Classify(classifier.ExitTuple{
			ExitCode: report.ExitCode, SignalToken: string(report.Signal), LogTrailer: report.LogTrailer,
		})
		s.handleClassified(ctx, t, class, now, "agent exited without a recognized signal token")
	}
	return reaped
}

// handleClassified applies the classifier's decision (spec section 4.4) to
// a just-reaped failure, moving the task to retry-in-place, a recovery
// role, or a terminal/escalated state as appropriate.
func (s *Scheduler) handleClassified(ctx context.Context, t *task.Task, class task.FailureClass, now time.Time, reason string) {
	s.appendEvent(ctx, t.ID, now, journal.KindClassification, map[string]any{"class": class, "reason": reason})

	action := classifier.Decide(class, t.RetryCount, t.RecoveryRounds, s.cfg.Org.MaxAttempts, s.cfg.Org.MaxRecovery)
	switch action {
	case classifier.ActionStop:
		t.LastFailureClass = class
		t.LastFailureReason = reason
		s.transition(ctx, t, statemachine.TriggerAttemptsExhausted, now, reason)
	case classifier.ActionEscalateHuman:
		t.LastFailureClass = class
		t.LastFailureReason = reason
		s.transition(ctx, t, statemachine.TriggerAgentBlocked, now, reason)
		s.appendEvent(ctx, t.ID, now, journal.KindEscalation, map[string]any{"class": class, "reason": reason})
	case classifier.ActionDeepRecovery:
		t.Role = task.RoleRecovery
		t.RecoveryRounds++
		t.LastFailureClass = class
		t.LastFailureReason = reason
		s.transition(ctx, t, statemachine.TriggerExitLogicRetryable, now, reason)
	default: // ActionRetrySameRole, ActionRespawnSame, ActionEnvReprobe, ActionRetryDoubled
		t.RetryCount++
		t.LastFailureClass = class
		t.LastFailureReason = reason
		t.NotBefore = now.Add(config.DefaultBackoff.Delay(t.RetryCount))
		s.transition(ctx, t, statemachine.TriggerExitTransient, now, reason)
	}
}

// pipelinePhase drives READY/SUBMITTING/RESTACKING/AWAITING_MERGE tasks
// through their pipeline checks.
func (s *Scheduler) pipelinePhase(ctx context.Context, tasks []*task.Task, byID map[string]*task.Task, now time.Time) int {
	count := 0
	for _, t := range tasks {
		switch t.State {
		case task.StateReady:
			if len(t.DependsOn) > 0 && !s.allDepsMerged(t, byID) {
				continue
			}
			repo := s.cfg.Repos[t.RepoID]
			if !repo.EffectiveAutoSubmit(s.cfg.Org) {
				continue
			}
			count++
			s.transition(ctx, t, statemachine.TriggerAutoSubmit, now, "")

		case task.StateSubmitting:
			count++
			outcome := s.pipe.Submit(ctx, t)
			s.appendEvent(ctx, t.ID, now, journal.KindSubmitOutcome, map[string]any{"ok": outcome.OK, "reason": outcome.Reason})
			switch {
			case outcome.OK:
				s.transition(ctx, t, statemachine.TriggerSubmitOK, now, "")
			case !outcome.Retryable:
				t.LastFailureReason = outcome.Reason
				s.transition(ctx, t, statemachine.TriggerSubmitNonRetryable, now, outcome.Reason)
			default:
				s.transition(ctx, t, statemachine.TriggerSubmitRetryable, now, outcome.Reason)
			}

		case task.StateRestacking:
			count++
			parent := s.cfg.Repos[t.RepoID].BaseBranch
			if t.ParentTask != "" {
				if p, ok := byID[t.ParentTask]; ok {
					parent = p.Branch
				}
			}
			result, err := s.pipe.Restack(ctx, t, parent)
			if err != nil {
				s.log.Error("restack failed", "task", t.ID, "err", err)
				continue
			}
			switch result {
			case "ok":
				s.transition(ctx, t, statemachine.TriggerRestackOK, now, "")
			case "conflict":
				s.transition(ctx, t, statemachine.TriggerRestackConflict, now, "rebase conflict")
			}

		case task.StateAwaitingMerge:
			count++
			probe, err := s.pipe.DetectMerge(ctx, t)
			if err != nil {
				s.log.Error("detect_merge failed", "task", t.ID, "err", err)
				continue
			}
			s.appendEvent(ctx, t.ID, now, journal.KindMergeDetected, map[string]any{
				"merged": probe.Merged, "closed_no_merge": probe.ClosedNoMerge,
			})
			switch {
			case probe.Merged:
				s.transition(ctx, t, statemachine.TriggerMergeDetected, now, "")
			case probe.ClosedNoMerge:
				t.LastFailureClass = task.ClassClosed
				s.transition(ctx, t, statemachine.TriggerClosedWithoutMerge, now, "PR closed without merge")
			case probe.ParentMoved:
				s.transition(ctx, t, statemachine.TriggerParentMoved, now, "")
			}
		}
	}
	return count
}

// recoveryPhase is folded into handleClassified (called from reapPhase);
// it exists as a named tick phase per spec section 4.2 but has no
// additional per-tick work once a failure has already been routed.
func (s *Scheduler) recoveryPhase(ctx context.Context, tasks []*task.Task, now time.Time) int {
	return 0
}

// seedPhase calls the out-of-core seed hook for any repo with zero
// CHATTING tasks and (by the hook's own judgment) a backlog.
func (s *Scheduler) seedPhase(ctx context.Context, tasks []*task.Task, now time.Time) int {
	if s.seed == nil {
		return 0
	}
	chattingByRepo := map[string]bool{}
	for _, t := range tasks {
		if t.State == task.StateChatting {
			chattingByRepo[t.RepoID] = true
		}
	}
	seeded := 0
	for repoID := range s.cfg.Repos {
		if chattingByRepo[repoID] {
			continue
		}
		newTask, err := s.seed(ctx, repoID)
		if err != nil {
			s.log.Error("seed hook failed", "repo", repoID, "err", err)
			continue
		}
		if newTask == nil {
			continue
		}
		if err := s.store.CreateTask(ctx, newTask); err != nil {
			s.log.Error("persist seeded task failed", "repo", repoID, "err", err)
			continue
		}
		seeded++
	}
	return seeded
}

// transition applies a statemachine trigger and journals it before the
// snapshot write performed inside store.Apply, per the ordering law in
// spec section 9.
func (s *Scheduler) transition(ctx context.Context, t *task.Task, trigger statemachine.Trigger, now time.Time, reason string) {
	to := t.PausedFromState
	if trigger != statemachine.TriggerOperatorResume {
		var err error
		to, err = statemachine.Next(t.State, trigger)
		if err != nil {
			s.log.Error("invalid transition attempted", "task", t.ID, "trigger", trigger, "err", err)
			return
		}
	}

	ev, err := journal.NewEvent(t.ID, now, journal.KindStateTransition, map[string]any{
		"from": string(t.State), "trigger": string(trigger), "to": string(to), "reason": reason,
	})
	if err != nil {
		s.log.Error("build transition event failed", "task", t.ID, "err", err)
		return
	}

	if _, err := s.store.Apply(ctx, ev, func(tt *task.Task) error {
		// Apply loads its own copy of the task row; carry over the
		// bookkeeping fields the tick phases mutated on t before this
		// transition was decided, or they're silently lost on persist.
		tt.Role = t.Role
		tt.RetryCount = t.RetryCount
		tt.RecoveryRounds = t.RecoveryRounds
		tt.LastFailureClass = t.LastFailureClass
		tt.LastFailureReason = t.LastFailureReason
		tt.NotBefore = t.NotBefore
		_, applyErr := statemachine.Apply(tt, trigger)
		return applyErr
	}); err != nil {
		s.log.Error("apply transition failed", "task", t.ID, "trigger", trigger, "err", err)
	}
}

// appendEvent journals a non-transition event (spawn, exit, verify
// outcome, etc.) without mutating the task row.
func (s *Scheduler) appendEvent(ctx context.Context, taskID string, now time.Time, kind journal.Kind, payload any) {
	ev, err := journal.NewEvent(taskID, now, kind, payload)
	if err != nil {
		s.log.Error("build event failed", "task", taskID, "kind", kind, "err", err)
		return
	}
	if _, err := s.store.Apply(ctx, ev, func(*task.Task) error { return nil }); err != nil {
		s.log.Error("append event failed", "task", taskID, "kind", kind, "err", err)
	}
}

// buildPromptFile assembles and writes the per-spawn prompt context named
// in spec section 4.4: a full deep-recovery history for a recovery-role
// spawn, or the last compile trailer for a respawn-same-role compile
// retry. Returns an empty path (no error) when neither applies.
func (s *Scheduler) buildPromptFile(ctx context.Context, t *task.Task, role task.Role) (string, error) {
	switch {
	case role == task.RoleRecovery:
		events, err := s.store.TaskEvents(t.ID)
		if err != nil {
			return "", fmt.Errorf("load task history for recovery context: %w", err)
		}
		files, err := s.pipe.FilesTouched(ctx, t)
		if err != nil {
			s.log.Warn("files touched lookup failed, recovery context omits it", "task", t.ID, "err", err)
		}
		rc := classifier.BuildRecoveryContext(t.ID, t.Title, events, files)
		return s.writePromptFile(t.ID, rc.Render())

	case t.LastFailureClass == task.ClassCompile:
		trailer := s.lastTrailer(t)
		if trailer == "" {
			return "", nil
		}
		body := fmt.Sprintf("The previous attempt failed to compile. Last build/test output:\n\n%s\n", trailer)
		return s.writePromptFile(t.ID, body)
	}
	return "", nil
}

// lastTrailer returns the log trailer of t's most recent exit event, or
// "" if none is recorded.
func (s *Scheduler) lastTrailer(t *task.Task) string {
	events, err := s.store.TaskEvents(t.ID)
	if err != nil {
		return ""
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind != journal.KindExit {
			continue
		}
		var payload struct {
			LogTrailer string `json:"log_trailer"`
		}
		if err := json.Unmarshal(events[i].Payload, &payload); err != nil {
			return ""
		}
		return payload.LogTrailer
	}
	return ""
}

func (s *Scheduler) writePromptFile(taskID, body string) (string, error) {
	path := s.promptPath(taskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create prompt dir for %s: %w", taskID, err)
	}
	if err := util.AtomicWriteFileString(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write prompt file for %s: %w", taskID, err)
	}
	return path, nil
}

func indexByID(tasks []*task.Task) map[string]*task.Task {
	m := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}
