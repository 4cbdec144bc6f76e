package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchNameIsDeterministic(t *testing.T) {
	b1 := BranchName("0123456789abcdef", "Fix the login redirect loop")
	b2 := BranchName("0123456789abcdef", "Fix the login redirect loop")
	assert.Equal(t, b1, b2)
	assert.Equal(t, "othala/01234567-fix-the-login-redirect-loop", b1)
}

func TestSlugHandlesPunctuationAndCase(t *testing.T) {
	assert.Equal(t, "fix-bug-123", Slug("Fix Bug #123!!"))
	assert.Equal(t, "task", Slug("****"))
}

func TestWorktreePathFlattensSlashes(t *testing.T) {
	branch := "othala/abcd1234-fix-thing"
	path := WorktreePath("/state", branch)
	assert.Equal(t, "/state/worktrees/othala-abcd1234-fix-thing", path)
}

func TestParseBranchNameRoundTrips(t *testing.T) {
	branch := BranchName("abcdef1234567890", "Add retry jitter")
	prefix, slug, ok := ParseBranchName(branch)
	require.True(t, ok)
	assert.Equal(t, "abcdef12", prefix)
	assert.Equal(t, "add-retry-jitter", slug)
}

func TestParseBranchNameRejectsForeignBranches(t *testing.T) {
	_, _, ok := ParseBranchName("feature/unrelated")
	assert.False(t, ok)
}
