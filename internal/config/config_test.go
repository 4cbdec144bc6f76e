package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaultsWithNoFiles(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Org.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Org.MaxAttempts)
	}
	if cfg.Org.MaxRecovery != 2 {
		t.Errorf("MaxRecovery = %d, want 2", cfg.Org.MaxRecovery)
	}
	if len(cfg.Repos) != 0 {
		t.Errorf("Repos = %v, want empty", cfg.Repos)
	}
}

func TestLoadOrgConfig(t *testing.T) {
	dir := t.TempDir()
	orgPath := filepath.Join(dir, "org.yaml")
	writeFile(t, orgPath, "models_enabled: [sonnet, opus]\nmax_attempts: 3\nauto_submit: true\n")

	cfg, err := Load(orgPath, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Org.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Org.MaxAttempts)
	}
	if !cfg.Org.AutoSubmit {
		t.Error("AutoSubmit = false, want true")
	}
	if len(cfg.Org.ModelsEnabled) != 2 {
		t.Errorf("ModelsEnabled = %v, want 2 entries", cfg.Org.ModelsEnabled)
	}
}

func TestLoadRepoConfigRequiresID(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "repo.yaml")
	writeFile(t, repoPath, "base_branch: main\n")

	_, err := Load("", []string{repoPath})
	if err == nil {
		t.Fatal("expected error for repo config missing id")
	}
}

func TestLoadRepoConfigDefaultsStackingMode(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "repo.yaml")
	writeFile(t, repoPath, "id: acme/widgets\nbase_branch: main\n")

	cfg, err := Load("", []string{repoPath})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	repo, ok := cfg.Repos["acme/widgets"]
	if !ok {
		t.Fatal("repo acme/widgets not loaded")
	}
	if repo.StackingMode != StackingModeStack {
		t.Errorf("StackingMode = %q, want %q", repo.StackingMode, StackingModeStack)
	}
}

func TestRepoEffectiveAutoSubmitOverridesOrg(t *testing.T) {
	enabled := true
	repo := Repo{AutoSubmit: &enabled}
	org := Org{AutoSubmit: false}
	if !repo.EffectiveAutoSubmit(org) {
		t.Error("repo override should win over org default")
	}

	repo2 := Repo{}
	if repo2.EffectiveAutoSubmit(org) {
		t.Error("unset repo override should fall back to org default")
	}
}

func TestBackoffDelaySchedule(t *testing.T) {
	b := BackoffSchedule{Base: 5 * time.Second, Factor: 2, Cap: 5 * time.Minute}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{0, 5 * time.Second}, // clamps up to attempt 1
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	b := DefaultBackoff
	got := b.Delay(20)
	if got != b.Cap {
		t.Errorf("Delay(20) = %v, want cap %v", got, b.Cap)
	}
}
