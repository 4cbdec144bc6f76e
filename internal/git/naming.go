// Package git implements branch naming and worktree plumbing for the
// pipeline facade (internal/pipeline): deterministic branch names from a
// task id plus title slug, and idempotent worktree creation.
package git

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const branchPrefix = "othala"

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s, replaces runs of non-alphanumeric characters with a
// single hyphen, and trims leading/trailing hyphens. Empty input yields
// "task".
func Slug(s string) string {
	lower := strings.ToLower(s)
	slug := slugInvalid.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "task"
	}
	const maxLen = 40
	if len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "-")
	}
	return slug
}

// BranchName returns the deterministic branch name for a task:
// othala/<id-prefix>-<title-slug>. The id prefix is the first 8 characters
// of the task id, which keeps names short while remaining unique in
// practice. Two tasks sharing both prefix and slug get the same name;
// nothing rejects that.
func BranchName(taskID, title string) string {
	prefix := taskID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s/%s-%s", branchPrefix, prefix, Slug(title))
}

// WorktreeDirName returns the directory name (not full path) used for a
// task's worktree, derived from its branch name with slashes flattened.
func WorktreeDirName(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// WorktreePath returns the full worktree path for a task under root's
// "worktrees" directory, per spec section 6's persisted layout.
func WorktreePath(root, branch string) string {
	return filepath.Join(root, "worktrees", WorktreeDirName(branch))
}

// ParseBranchName extracts the task id prefix and slug from an
// othala-managed branch name, returning ok=false for anything else
// (including branches created outside Othala).
func ParseBranchName(branch string) (idPrefix, slug string, ok bool) {
	rest, found := strings.CutPrefix(branch, branchPrefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
