package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestMatchAnyMatchesGlob(t *testing.T) {
	files := []string{"docs/readme.md", "internal/pipeline/pipeline.go"}
	if !MatchAny([]string{"**/*.go"}, files) {
		t.Error("expected a *.go file to match **/*.go")
	}
	if MatchAny([]string{"**/*.proto"}, files) {
		t.Error("expected no match against **/*.proto")
	}
}

func TestMatchAnyEmptyPatternsNeverMatches(t *testing.T) {
	if MatchAny(nil, []string{"a.go"}) {
		t.Error("expected no match with zero patterns")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func TestChangedFilesListsDiffAgainstBase(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "test")

	writeFileInDir(t, dir, "README.md", "hello\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "init")
	runGit(t, dir, "branch", "base")

	writeFileInDir(t, dir, "main.go", "package main\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "add go file")

	files, err := ChangedFiles(context.Background(), dir, "base")
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if len(files) != 1 || files[0] != "main.go" {
		t.Errorf("ChangedFiles = %v, want [main.go]", files)
	}
}

func writeFileInDir(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
