package task

import (
	"testing"
	"time"
)

func TestValidateRejectsEmptyID(t *testing.T) {
	tsk := New("repo", "title", time.Now().UTC())
	tsk.ID = ""
	if err := Validate(tsk, nil); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestValidateRejectsUnknownState(t *testing.T) {
	tsk := New("repo", "title", time.Now().UTC())
	tsk.State = "BOGUS"
	if err := Validate(tsk, nil); err == nil {
		t.Error("expected error for unrecognized state")
	}
}

func TestValidateAcceptsAcyclicDependency(t *testing.T) {
	now := time.Now().UTC()
	a := New("repo", "a", now)
	b := New("repo", "b", now)
	b.AddDependency(a.ID)

	known := map[string]*Task{a.ID: a}
	if err := Validate(b, known); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateRejectsDirectCycle(t *testing.T) {
	now := time.Now().UTC()
	a := New("repo", "a", now)
	b := New("repo", "b", now)
	a.AddDependency(b.ID)
	b.AddDependency(a.ID)

	known := map[string]*Task{b.ID: b}
	if err := Validate(a, known); err == nil {
		t.Error("expected cyclic dependency error")
	}
}

func TestValidateRejectsTransitiveCycle(t *testing.T) {
	now := time.Now().UTC()
	a := New("repo", "a", now)
	b := New("repo", "b", now)
	c := New("repo", "c", now)
	a.AddDependency(b.ID)
	b.AddDependency(c.ID)
	c.AddDependency(a.ID)

	known := map[string]*Task{b.ID: b, c.ID: c}
	if err := Validate(a, known); err == nil {
		t.Error("expected cyclic dependency error across 3 tasks")
	}
}

func TestRequiresBranchOnlyForCertainStates(t *testing.T) {
	cases := map[State]bool{
		StateChatting:     false,
		StateReady:        false,
		StateSubmitting:   true,
		StateAwaitingMerge: true,
		StateMerged:       true,
		StateStopped:      false,
	}
	for state, want := range cases {
		if got := state.RequiresBranch(); got != want {
			t.Errorf("State(%s).RequiresBranch() = %v, want %v", state, got, want)
		}
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	start := time.Now().UTC()
	tsk := New("repo", "title", start)

	earlier := start.Add(-time.Hour)
	tsk.Touch(earlier)
	if tsk.UpdatedAt != start {
		t.Errorf("Touch with an earlier time moved UpdatedAt backwards: %v", tsk.UpdatedAt)
	}

	later := start.Add(time.Hour)
	tsk.Touch(later)
	if tsk.UpdatedAt != later {
		t.Errorf("Touch with a later time did not advance UpdatedAt: %v", tsk.UpdatedAt)
	}
}
