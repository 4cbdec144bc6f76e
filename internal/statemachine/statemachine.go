// Package statemachine implements the legal-transition table of spec
// section 4.1 as data, so the transition set itself is reviewable and
// testable independent of the scheduler that drives it.
package statemachine

import (
	"github.com/othala/othala/internal/othalaerr"
	"github.com/othala/othala/internal/task"
)

// Trigger names the caller's reason for attempting a transition. Callers
// (the scheduler's tick phases) are responsible for having already
// evaluated any guard condition before choosing a trigger: the table below
// is intentionally a pure lookup, not a place where IO or classification
// happens.
type Trigger string

const (
	TriggerAgentDonePass        Trigger = "agent_done_pass"        // agent signalled done, verify passed
	TriggerAgentBlocked         Trigger = "agent_blocked"           // agent signalled [needs_human]
	TriggerExitTransient        Trigger = "exit_transient"          // retry in the same role: classifier=transient/compile/env/timeout, retries remain
	TriggerExitLogicRetryable   Trigger = "exit_logic_retryable"    // classifier=logic/unknown, recovery rounds remain
	TriggerAttemptsExhausted    Trigger = "attempts_exhausted"      // retry_count or recovery_rounds ceiling hit
	TriggerAutoSubmit           Trigger = "auto_submit"             // auto_submit && all deps MERGED
	TriggerParentMoved          Trigger = "parent_moved"            // pipeline detected parent branch advanced
	TriggerSubmitOK             Trigger = "submit_ok"
	TriggerSubmitRetryable      Trigger = "submit_retryable"
	TriggerSubmitNonRetryable   Trigger = "submit_nonretryable" // auth / trunk_stale
	TriggerRestackOK            Trigger = "restack_ok"
	TriggerRestackConflict      Trigger = "restack_conflict"
	TriggerMergeDetected        Trigger = "merge_detected"
	TriggerClosedWithoutMerge   Trigger = "closed_without_merge"
	TriggerOperatorResume       Trigger = "operator_resume"
	TriggerCancel               Trigger = "cancel"
)

type edge struct {
	from    task.State
	trigger Trigger
}

// table maps (from, trigger) to the destination state. TriggerOperatorResume
// and TriggerCancel are handled specially in Apply: resume's destination
// depends on per-task data (PausedFromState), and cancel applies from any
// non-terminal state.
var table = map[edge]task.State{
	{task.StateChatting, TriggerAgentDonePass}:      task.StateReady,
	{task.StateChatting, TriggerAgentBlocked}:       task.StateNeedsHuman,
	{task.StateChatting, TriggerExitTransient}:       task.StateChatting,
	{task.StateChatting, TriggerExitLogicRetryable}: task.StateChatting,
	{task.StateChatting, TriggerAttemptsExhausted}:  task.StateStopped,

	{task.StateReady, TriggerAutoSubmit}:  task.StateSubmitting,
	{task.StateReady, TriggerParentMoved}: task.StateRestacking,

	{task.StateSubmitting, TriggerSubmitOK}:           task.StateAwaitingMerge,
	{task.StateSubmitting, TriggerSubmitRetryable}:    task.StateReady,
	{task.StateSubmitting, TriggerSubmitNonRetryable}: task.StateNeedsHuman,

	{task.StateRestacking, TriggerRestackOK}:       task.StateReady,
	{task.StateRestacking, TriggerRestackConflict}: task.StateNeedsHuman,

	{task.StateAwaitingMerge, TriggerMergeDetected}:      task.StateMerged,
	{task.StateAwaitingMerge, TriggerParentMoved}:        task.StateRestacking,
	{task.StateAwaitingMerge, TriggerClosedWithoutMerge}: task.StateStopped,
}

// Next returns the destination state for (from, trigger) without mutating
// anything, or an error if no such edge exists. Used by both Apply and by
// tests that want to assert the table's shape directly.
func Next(from task.State, trigger Trigger) (task.State, error) {
	switch trigger {
	case TriggerCancel:
		return task.StateStopped, nil
	}
	to, ok := table[edge{from, trigger}]
	if !ok {
		return "", othalaerr.ErrInvalidTransition(string(from), string(trigger))
	}
	return to, nil
}

// Apply validates and performs a transition on t in place, returning the
// prior state for the caller to journal. It does not touch the journal or
// store itself: callers must write the journal event for (from, trigger,
// to) before persisting the mutated task, per spec's "journal before
// snapshot" ordering (design note, section 9).
func Apply(t *task.Task, trigger Trigger) (from task.State, err error) {
	from = t.State
	if from.Terminal() && trigger != TriggerOperatorResume {
		return from, othalaerr.ErrInvalidTransition(string(from), string(trigger))
	}

	var to task.State
	switch trigger {
	case TriggerOperatorResume:
		if from != task.StateNeedsHuman {
			return from, othalaerr.ErrInvalidTransition(string(from), string(trigger))
		}
		to = t.PausedFromState
		if to == "" {
			to = task.StateChatting
		}
	case TriggerCancel:
		to = task.StateStopped
	default:
		to, err = Next(from, trigger)
		if err != nil {
			return from, err
		}
	}

	if trigger == TriggerAgentBlocked || trigger == TriggerRestackConflict ||
		trigger == TriggerSubmitNonRetryable {
		t.PausedFromState = from
	}

	t.State = to
	return from, nil
}
