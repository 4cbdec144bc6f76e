package statemachine

import (
	"testing"
	"time"

	"github.com/othala/othala/internal/task"
)

func TestHappyPath(t *testing.T) {
	tsk := task.New("R", "demo", time.Now().UTC())

	steps := []struct {
		trigger Trigger
		want    task.State
	}{
		{TriggerAgentDonePass, task.StateReady},
		{TriggerAutoSubmit, task.StateSubmitting},
		{TriggerSubmitOK, task.StateAwaitingMerge},
		{TriggerMergeDetected, task.StateMerged},
	}

	for _, step := range steps {
		from, err := Apply(tsk, step.trigger)
		if err != nil {
			t.Fatalf("Apply(%s) unexpected error: %v", step.trigger, err)
		}
		if tsk.State != step.want {
			t.Errorf("after trigger %s (from %s): got state %s, want %s", step.trigger, from, tsk.State, step.want)
		}
	}

	if !tsk.State.Terminal() {
		t.Errorf("expected MERGED to be terminal")
	}
}

func TestMergedIsAbsorbing(t *testing.T) {
	tsk := task.New("R", "demo", time.Now().UTC())
	tsk.State = task.StateMerged

	if _, err := Apply(tsk, TriggerAgentDonePass); err == nil {
		t.Errorf("expected error transitioning out of MERGED, got nil")
	}
}

func TestNeedsHumanResumesPriorState(t *testing.T) {
	tsk := task.New("R", "demo", time.Now().UTC())
	tsk.State = task.StateRestacking

	if _, err := Apply(tsk, TriggerRestackConflict); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tsk.State != task.StateNeedsHuman {
		t.Fatalf("expected NEEDS_HUMAN, got %s", tsk.State)
	}
	if tsk.PausedFromState != task.StateRestacking {
		t.Fatalf("expected paused_from_state RESTACKING, got %s", tsk.PausedFromState)
	}

	if _, err := Apply(tsk, TriggerOperatorResume); err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if tsk.State != task.StateRestacking {
		t.Fatalf("expected resume to RESTACKING, got %s", tsk.State)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	tsk := task.New("R", "demo", time.Now().UTC())
	if _, err := Apply(tsk, TriggerMergeDetected); err == nil {
		t.Errorf("expected error for CHATTING + merge_detected, got nil")
	}
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []task.State{task.StateChatting, task.StateReady, task.StateSubmitting, task.StateRestacking, task.StateAwaitingMerge} {
		tsk := task.New("R", "demo", time.Now().UTC())
		tsk.State = s
		if _, err := Apply(tsk, TriggerCancel); err != nil {
			t.Errorf("cancel from %s: unexpected error: %v", s, err)
		}
		if tsk.State != task.StateStopped {
			t.Errorf("cancel from %s: expected STOPPED, got %s", s, tsk.State)
		}
	}
}
