package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ChangedFiles lists files that differ between base and HEAD in the
// worktree at worktreePath.
func ChangedFiles(ctx context.Context, worktreePath, base string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", base+"...HEAD")
	cmd.Dir = worktreePath
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only: %w", err)
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// MatchAny reports whether any changed file matches one of the configured
// glob patterns. Verify uses it with a repo's full_verify_globs to skip the
// full tier when no matching file changed.
func MatchAny(patterns []string, files []string) bool {
	for _, f := range files {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, f); ok {
				return true
			}
		}
	}
	return false
}
