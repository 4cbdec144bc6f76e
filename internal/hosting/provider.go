// Package hosting abstracts the external stacked-branch / PR hosting tool
// behind one interface, so internal/pipeline never imports a vendor SDK
// directly. Grounded on the teacher lineage's hosting.Provider interface.
package hosting

import (
	"context"
	"time"
)

// PRStatus is the hosting-side lifecycle of a pull/merge request.
type PRStatus string

const (
	PRStatusOpen   PRStatus = "open"
	PRStatusMerged PRStatus = "merged"
	PRStatusClosed PRStatus = "closed"
)

// PRInfo is the hosting tool's view of one PR/MR.
type PRInfo struct {
	Number       int
	URL          string
	Status       PRStatus
	BaseBranch   string
	HeadBranch   string
	MergeSHA     string
	TrunkStale   bool
	UpdatedAt    time.Time
}

// SubmitRequest carries everything a provider needs to open or update a PR.
type SubmitRequest struct {
	RepoID     string
	Branch     string
	BaseBranch string
	Title      string
	Body       string
}

// Provider is implemented by each hosting backend (GitHub, GitLab, ...).
// All methods are expected to be slow and fallible, per spec section 4.5;
// callers apply their own backoff and never block a scheduler tick on one
// call.
type Provider interface {
	// Name identifies the provider, e.g. "github" or "gitlab".
	Name() string

	// EnsureTracked reports an error if branch is not known to the hosting
	// remote. It does not push; internal/pipeline pushes the branch before
	// calling it.
	EnsureTracked(ctx context.Context, repoID, branch string) error

	// Submit opens a PR/MR for branch against baseBranch, or returns the
	// existing one if already open.
	Submit(ctx context.Context, req SubmitRequest) (*PRInfo, error)

	// Find returns the current PRInfo for branch, or nil if none exists.
	Find(ctx context.Context, repoID, branch string) (*PRInfo, error)
}

// SubmitOutcome is the result of a submit in the retry/non-retry
// vocabulary of spec section 4.5: OK, "retryable(reason)", or
// "nonretryable(class)" with class one of auth, trunk_stale,
// untracked_branch, conflict.
type SubmitOutcome struct {
	OK            bool
	Retryable     bool
	NonRetryClass string // "auth" | "trunk_stale" | "untracked_branch" | "conflict"
	Reason        string
}
