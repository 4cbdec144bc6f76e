// Package pipeline implements the stateless facade of spec section 4.5:
// init, verify, submit, restack, and detect_merge, hiding the external git
// and stacked-branch/PR tooling behind five operations the scheduler calls
// with its own backoff.
package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/othala/othala/internal/config"
	"github.com/othala/othala/internal/git"
	"github.com/othala/othala/internal/hosting"
	"github.com/othala/othala/internal/task"
)

// VerifyResult is the outcome of running one verify tier.
type VerifyResult struct {
	Pass   bool
	Reason string
	Output string
}

// RestackResult is the outcome of restack(task).
type RestackResult string

const (
	RestackOK       RestackResult = "ok"
	RestackConflict RestackResult = "conflict"
	RestackNoop     RestackResult = "noop"
)

// MergeProbe is the outcome of detect_merge(task).
type MergeProbe struct {
	Merged       bool
	MergeSHA     string
	ClosedNoMerge bool
	ParentMoved  bool
}

// TaskLookup resolves a task id to its current row, used to resolve a
// stacked task's parent task id to the parent's branch name.
type TaskLookup func(ctx context.Context, id string) (*task.Task, error)

// Pipeline wires one git.Runner and one hosting.Provider per configured
// repo behind the five operations.
type Pipeline struct {
	cfg      *config.Config
	runners  map[string]*git.Runner
	hosts    map[string]hosting.Provider
	lookup   TaskLookup

	leaseMu sync.Mutex
	leases  map[string]*sync.Mutex // per-repo exclusive lease, spec section 5
}

// New constructs a Pipeline. runners and hosts are keyed by repo_id, built
// by the caller (cmd/othala) from the loaded config. lookup resolves a
// stacked task's parent_task id to its current row.
func New(cfg *config.Config, runners map[string]*git.Runner, hosts map[string]hosting.Provider, lookup TaskLookup) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		runners: runners,
		hosts:   hosts,
		lookup:  lookup,
		leases:  make(map[string]*sync.Mutex),
	}
}

// parentBranch resolves t's parent_task id to the parent's current branch
// name (spec sections 3 and 4.5: a stacked task's base is its parent's
// branch, not the parent's task id). Falls back to fallback if t has no
// parent, the lookup is unset, or the parent can't be resolved.
func (p *Pipeline) parentBranch(ctx context.Context, t *task.Task, fallback string) string {
	if t.ParentTask == "" || p.lookup == nil {
		return fallback
	}
	parent, err := p.lookup(ctx, t.ParentTask)
	if err != nil || parent == nil || parent.Branch == "" {
		return fallback
	}
	return parent.Branch
}

// leaseFor returns (creating if necessary) the exclusive lease for repoID,
// serializing concurrent pipeline calls against the stack tool's
// process-global state per spec section 5.
func (p *Pipeline) leaseFor(repoID string) *sync.Mutex {
	p.leaseMu.Lock()
	defer p.leaseMu.Unlock()
	l, ok := p.leases[repoID]
	if !ok {
		l = &sync.Mutex{}
		p.leases[repoID] = l
	}
	return l
}

func (p *Pipeline) runner(repoID string) (*git.Runner, error) {
	r, ok := p.runners[repoID]
	if !ok {
		return nil, fmt.Errorf("pipeline: no git runner configured for repo %s", repoID)
	}
	return r, nil
}

func (p *Pipeline) host(repoID string) (hosting.Provider, error) {
	h, ok := p.hosts[repoID]
	if !ok {
		return nil, fmt.Errorf("pipeline: no hosting provider configured for repo %s", repoID)
	}
	return h, nil
}

func (p *Pipeline) repoConfig(repoID string) (config.Repo, error) {
	r, ok := p.cfg.Repos[repoID]
	if !ok {
		return config.Repo{}, fmt.Errorf("pipeline: repo %s not configured", repoID)
	}
	return r, nil
}

// Init creates the task's worktree and branch, idempotently. Must be
// called before the task's first agent spawn.
func (p *Pipeline) Init(ctx context.Context, t *task.Task) error {
	lease := p.leaseFor(t.RepoID)
	lease.Lock()
	defer lease.Unlock()

	repo, err := p.repoConfig(t.RepoID)
	if err != nil {
		return err
	}
	runner, err := p.runner(t.RepoID)
	if err != nil {
		return err
	}

	if t.Branch == "" {
		t.Branch = git.BranchName(t.ID, t.Title)
	}
	if t.WorktreePath == "" {
		t.WorktreePath = git.WorktreePath(runner.RepoDir, t.Branch)
	}

	base := p.parentBranch(ctx, t, repo.BaseBranch)
	return runner.CreateWorktree(ctx, t.WorktreePath, t.Branch, base)
}

// Verify runs the configured command for tier ("quick" or "full") in the
// task's worktree. A missing verify spec is treated as a pass with a
// warning reason, per spec section 7's graceful-degradation rule.
func (p *Pipeline) Verify(ctx context.Context, t *task.Task, tier string) (VerifyResult, error) {
	repo, err := p.repoConfig(t.RepoID)
	if err != nil {
		return VerifyResult{}, err
	}

	var command string
	switch tier {
	case "quick":
		command = repo.Verify.Quick
	case "full":
		command = repo.Verify.Full
	case "e2e":
		command = repo.Verify.E2E
	default:
		return VerifyResult{}, fmt.Errorf("pipeline: unknown verify tier %q", tier)
	}
	if command == "" {
		return VerifyResult{Pass: true, Reason: "no verify command configured for tier " + tier}, nil
	}

	if tier == "full" && len(repo.FullVerifyGlobs) > 0 {
		base := p.parentBranch(ctx, t, repo.BaseBranch)
		files, err := ChangedFiles(ctx, t.WorktreePath, base)
		if err == nil && !MatchAny(repo.FullVerifyGlobs, files) {
			return VerifyResult{Pass: true, Reason: "no changed file matched full_verify_globs, skipping full tier"}, nil
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.WorktreePath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return VerifyResult{Pass: false, Reason: err.Error(), Output: string(out)}, nil
	}
	return VerifyResult{Pass: true, Output: string(out)}, nil
}

// Submit pushes the branch and opens (or finds) a PR/MR. After the push it
// checks that the branch is tracked by the hosting tool, checking exactly
// once more before giving up with untracked_branch.
func (p *Pipeline) Submit(ctx context.Context, t *task.Task) hosting.SubmitOutcome {
	lease := p.leaseFor(t.RepoID)
	lease.Lock()
	defer lease.Unlock()

	repo, err := p.repoConfig(t.RepoID)
	if err != nil {
		return hosting.SubmitOutcome{Retryable: false, NonRetryClass: "auth", Reason: err.Error()}
	}
	h, err := p.host(t.RepoID)
	if err != nil {
		return hosting.SubmitOutcome{Retryable: false, NonRetryClass: "auth", Reason: err.Error()}
	}

	push := exec.CommandContext(ctx, "git", "push", "--force-with-lease", "-u", "origin", t.Branch)
	push.Dir = t.WorktreePath
	if out, err := push.CombinedOutput(); err != nil {
		pushErr := fmt.Errorf("git push %s: %w: %s", t.Branch, err, strings.TrimSpace(string(out)))
		class, retryable := classifySubmitError(pushErr)
		return hosting.SubmitOutcome{Retryable: retryable, NonRetryClass: class, Reason: pushErr.Error()}
	}

	if err := h.EnsureTracked(ctx, t.RepoID, t.Branch); err != nil {
		// Pushed but not yet known to the hosting tool: check once more.
		if err2 := h.EnsureTracked(ctx, t.RepoID, t.Branch); err2 != nil {
			return hosting.SubmitOutcome{Retryable: false, NonRetryClass: "untracked_branch", Reason: err2.Error()}
		}
	}

	base := p.parentBranch(ctx, t, repo.BaseBranch)
	pr, err := h.Submit(ctx, hosting.SubmitRequest{
		RepoID:     t.RepoID,
		Branch:     t.Branch,
		BaseBranch: base,
		Title:      t.Title,
		Body:       fmt.Sprintf("othala task %s", t.ID),
	})
	if err != nil {
		class, retryable := classifySubmitError(err)
		return hosting.SubmitOutcome{Retryable: retryable, NonRetryClass: class, Reason: err.Error()}
	}
	return hosting.SubmitOutcome{OK: true, Reason: pr.URL}
}

func classifySubmitError(err error) (class string, retryable bool) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized"):
		return "auth", false
	case strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "ahead"):
		return "trunk_stale", false
	case strings.Contains(msg, "conflict"):
		return "conflict", false
	default:
		return "", true
	}
}

// FilesTouched lists the files t's branch has changed relative to its
// base (repo base branch, or parent branch for a stacked task), used to
// assemble deep-recovery context (spec section 4.4).
func (p *Pipeline) FilesTouched(ctx context.Context, t *task.Task) ([]string, error) {
	repo, err := p.repoConfig(t.RepoID)
	if err != nil {
		return nil, err
	}
	base := p.parentBranch(ctx, t, repo.BaseBranch)
	return ChangedFiles(ctx, t.WorktreePath, base)
}

// Diffstat reports t's branch diff statistics against its base, for the
// exit contract reported after reaping a supervisor (spec section 4.3).
func (p *Pipeline) Diffstat(ctx context.Context, t *task.Task) (git.DiffStat, error) {
	repo, err := p.repoConfig(t.RepoID)
	if err != nil {
		return git.DiffStat{}, err
	}
	runner, err := p.runner(t.RepoID)
	if err != nil {
		return git.DiffStat{}, err
	}
	base := p.parentBranch(ctx, t, repo.BaseBranch)
	return runner.Diffstat(ctx, t.WorktreePath, base)
}

// Restack rebases the task's branch onto its current parent.
func (p *Pipeline) Restack(ctx context.Context, t *task.Task, parentBranch string) (RestackResult, error) {
	lease := p.leaseFor(t.RepoID)
	lease.Lock()
	defer lease.Unlock()

	runner, err := p.runner(t.RepoID)
	if err != nil {
		return "", err
	}
	ok, err := runner.Restack(ctx, t.WorktreePath, parentBranch)
	if err != nil {
		return "", err
	}
	if !ok {
		return RestackConflict, nil
	}
	return RestackOK, nil
}

// DetectMerge probes the hosting tool for the task's PR state.
func (p *Pipeline) DetectMerge(ctx context.Context, t *task.Task) (MergeProbe, error) {
	h, err := p.host(t.RepoID)
	if err != nil {
		return MergeProbe{}, err
	}
	pr, err := h.Find(ctx, t.RepoID, t.Branch)
	if err != nil {
		return MergeProbe{}, err
	}
	if pr == nil {
		return MergeProbe{}, nil
	}
	switch pr.Status {
	case hosting.PRStatusMerged:
		return MergeProbe{Merged: true, MergeSHA: pr.MergeSHA}, nil
	case hosting.PRStatusClosed:
		return MergeProbe{ClosedNoMerge: true}, nil
	}
	return MergeProbe{ParentMoved: pr.TrunkStale}, nil
}
