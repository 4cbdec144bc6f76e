package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes git subcommands against a given repository checkout.
// A Runner is safe for concurrent use; worktree mutations on the same
// RepoDir are serialized by mu, matching the teacher lineage's single
// mutex around worktree creation (grounded on git_worktree.go).
type Runner struct {
	RepoDir string

	mu sync.Mutex
}

// NewRunner returns a Runner rooted at repoDir (the primary checkout, not
// a worktree).
func NewRunner(repoDir string) *Runner {
	return &Runner{RepoDir: repoDir}
}

func (r *Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, out.String())
	}
	return out.String(), nil
}

// CreateWorktree creates a worktree at path on branch, creating branch
// from base if it does not yet exist. Idempotent: if the worktree already
// exists and is on the right branch, it is left untouched (per spec
// section 4.5's init(task) idempotence requirement).
func (r *Runner) CreateWorktree(ctx context.Context, path, branch, base string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if cur, err := r.run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && strings.TrimSpace(cur) == branch {
			return nil
		}
	}

	if _, err := r.run(ctx, r.RepoDir, "worktree", "prune"); err != nil {
		return fmt.Errorf("prune stale worktrees: %w", err)
	}

	if _, err := r.run(ctx, r.RepoDir, "worktree", "add", path, branch); err == nil {
		return nil
	}

	// Branch does not exist yet: create it from base.
	if _, err := r.run(ctx, r.RepoDir, "worktree", "add", "-b", branch, path, base); err != nil {
		return fmt.Errorf("create worktree for branch %s: %w", branch, err)
	}
	return nil
}

// RemoveWorktree removes the worktree at path, releasing the directory.
// Called when a task reaches MERGED or terminal STOPPED (spec section 3
// invariant: branch/worktree released on terminal states).
func (r *Runner) RemoveWorktree(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.run(ctx, r.RepoDir, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("remove worktree %s: %w", path, err)
	}
	return nil
}

// Restack rebases branch (checked out at worktreePath) onto the current
// tip of parentBranch. Returns (ok=true, nil) on success, (false, nil) on
// a detected merge conflict (caller should abort and route to
// NEEDS_HUMAN), or a non-nil error for anything else.
func (r *Runner) Restack(ctx context.Context, worktreePath, parentBranch string) (ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.run(ctx, r.RepoDir, "fetch", "origin", parentBranch); err != nil {
		return false, fmt.Errorf("fetch parent branch %s: %w", parentBranch, err)
	}
	if _, err := r.run(ctx, worktreePath, "rebase", "origin/"+parentBranch); err != nil {
		if _, abortErr := r.run(ctx, worktreePath, "rebase", "--abort"); abortErr != nil {
			return false, fmt.Errorf("rebase failed and abort failed: %w", abortErr)
		}
		return false, nil
	}
	return true, nil
}

// DiffStat summarizes the worktree's changes relative to base.
type DiffStat struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// Diffstat computes the diff stat of branch against base for the exit
// contract reported by the supervisor (spec section 4.3).
func (r *Runner) Diffstat(ctx context.Context, worktreePath, base string) (DiffStat, error) {
	out, err := r.run(ctx, worktreePath, "diff", "--shortstat", base+"...HEAD")
	if err != nil {
		return DiffStat{}, fmt.Errorf("diff --shortstat: %w", err)
	}
	return parseShortstat(out), nil
}

func parseShortstat(out string) DiffStat {
	var stat DiffStat
	fields := strings.Split(strings.TrimSpace(out), ",")
	for _, f := range fields {
		f = strings.TrimSpace(f)
		switch {
		case strings.Contains(f, "file"):
			fmt.Sscanf(f, "%d", &stat.FilesChanged)
		case strings.Contains(f, "insertion"):
			fmt.Sscanf(f, "%d", &stat.Insertions)
		case strings.Contains(f, "deletion"):
			fmt.Sscanf(f, "%d", &stat.Deletions)
		}
	}
	return stat
}
