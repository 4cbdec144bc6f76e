// Package task defines the central Task entity and its enums: identity,
// repo, state, role, dependencies, and retry/recovery counters.
package task

import (
	"time"

	"github.com/google/uuid"
)

// State is one of the 6 stable + 2 terminal task states.
type State string

const (
	StateChatting       State = "CHATTING"
	StateReady          State = "READY"
	StateSubmitting      State = "SUBMITTING"
	StateRestacking      State = "RESTACKING"
	StateAwaitingMerge   State = "AWAITING_MERGE"
	StateMerged          State = "MERGED"
	StateStopped         State = "STOPPED"
	StateNeedsHuman      State = "NEEDS_HUMAN"
)

// Valid reports whether s is one of the 8 recognized states (spec P1).
func (s State) Valid() bool {
	switch s {
	case StateChatting, StateReady, StateSubmitting, StateRestacking,
		StateAwaitingMerge, StateMerged, StateStopped, StateNeedsHuman:
		return true
	}
	return false
}

// Terminal reports whether s is one of the two absorbing states.
func (s State) Terminal() bool {
	return s == StateMerged || s == StateStopped
}

// Role is the intent assigned to a spawn.
type Role string

const (
	RoleGeneral     Role = "general"
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
	RoleQA          Role = "qa"
	RoleRecovery    Role = "recovery"
	RoleDocumentor  Role = "documentor"
	RoleExplorer    Role = "explorer"
)

// FailureClass is the classifier's closed taxonomy (spec section 4.4).
type FailureClass string

const (
	ClassTransient  FailureClass = "transient"
	ClassCompile    FailureClass = "compile"
	ClassLogic      FailureClass = "logic"
	ClassEnv        FailureClass = "env"
	ClassPermission FailureClass = "permission"
	ClassTrunkStale FailureClass = "trunk_stale"
	ClassTimeout    FailureClass = "timeout"
	ClassUnknown    FailureClass = "unknown"
	ClassClosed     FailureClass = "closed"
	ClassCancelled  FailureClass = "cancelled"
)

const (
	// DefaultMaxAttempts is the retry_count ceiling before a task is
	// forced to STOPPED.
	DefaultMaxAttempts = 5
	// DefaultMaxRecovery is the recovery_rounds ceiling before a task is
	// escalated to NEEDS_HUMAN.
	DefaultMaxRecovery = 2
)

// Task is the central entity: one unit of code-change work, tracked through
// the state machine in internal/statemachine.
type Task struct {
	ID     string
	RepoID string
	Title  string
	State  State
	Role   Role

	PreferredModel string

	Branch       string
	WorktreePath string

	DependsOn  map[string]struct{}
	ParentTask string

	RetryCount      int
	LastFailureReason string
	LastFailureClass  FailureClass
	RecoveryRounds    int

	// NotBefore gates dispatchPhase from respawning a retried task before
	// its classifier-assigned backoff delay has elapsed (spec section 4.4).
	// Zero value means no gate.
	NotBefore time.Time

	// PausedFromState records the state to resume into when an operator
	// clears NEEDS_HUMAN (spec section 4.1's "(state before pause)" target).
	PausedFromState State

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a task in its initial state. now is captured once by the
// caller so creation and the first journal event agree on an instant.
func New(repoID, title string, now time.Time) *Task {
	return &Task{
		ID:        uuid.NewString(),
		RepoID:    repoID,
		Title:     title,
		State:     StateChatting,
		Role:      RoleImplementer,
		DependsOn: make(map[string]struct{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddDependency adds t2's id to t's depends_on set.
func (t *Task) AddDependency(id string) {
	if t.DependsOn == nil {
		t.DependsOn = make(map[string]struct{})
	}
	t.DependsOn[id] = struct{}{}
}

// Touch bumps UpdatedAt monotonically; now must be >= the prior value.
func (t *Task) Touch(now time.Time) {
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
}

// RequiresBranch reports whether t's current state invariant requires a
// non-empty branch (spec invariant: state in {SUBMITTING, AWAITING_MERGE,
// MERGED} implies branch is non-empty).
func (s State) RequiresBranch() bool {
	switch s {
	case StateSubmitting, StateAwaitingMerge, StateMerged:
		return true
	}
	return false
}
