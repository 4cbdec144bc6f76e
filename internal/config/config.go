// Package config loads the two read-only-at-boot configuration documents
// of spec section 3: org-level and per-repo. Grounded on the teacher
// lineage's yaml-backed config package, layered with viper for the
// environment-variable overrides spec section 6 names.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SyncStrategy names how a repo keeps stacked branches current.
type SyncStrategy string

const (
	StackingModeStack SyncStrategy = "stack"
	StackingModeMerge SyncStrategy = "merge"
)

// Org is the org-level configuration: models enabled, concurrency caps,
// review policy, and the blocked-ratio alert threshold.
type Org struct {
	ModelsEnabled              []string       `yaml:"models_enabled"`
	PerRoleConcurrency         map[string]int `yaml:"per_role_concurrency"`
	PerRepoConcurrency         map[string]int `yaml:"per_repo_concurrency"`
	PerModelConcurrency        map[string]int `yaml:"per_model_concurrency"`
	ReviewApprovalsRequired    int            `yaml:"review_approvals_required"`
	AutoSubmit                 bool           `yaml:"auto_submit"`
	BlockedRatioAlertThreshold float64        `yaml:"blocked_ratio_alert_threshold"`

	MaxAttempts int `yaml:"max_attempts"`
	MaxRecovery int `yaml:"max_recovery"`
}

// VerifyCommands names the configured tiers for pipeline.verify.
type VerifyCommands struct {
	Quick string `yaml:"quick"`
	Full  string `yaml:"full,omitempty"`
	E2E   string `yaml:"e2e,omitempty"`
}

// Repo is one configured repository.
type Repo struct {
	ID           string          `yaml:"id"`
	Dir          string          `yaml:"dir"`
	BaseBranch   string          `yaml:"base_branch"`
	Verify       VerifyCommands  `yaml:"verify"`
	StackingMode SyncStrategy    `yaml:"stacking_mode"`
	AutoSubmit   *bool           `yaml:"auto_submit,omitempty"`
	HostingKind  string          `yaml:"hosting"` // "github" | "gitlab"

	// FullVerifyGlobs, if set, restricts the "full" verify tier to runs
	// where at least one changed file matches one of these doublestar
	// patterns (e.g. ["**/*.go"]); a branch touching only docs or
	// generated assets skips the expensive tier and passes with a reason.
	FullVerifyGlobs []string `yaml:"full_verify_globs,omitempty"`
}

// EffectiveAutoSubmit resolves the repo-level override over the org
// default.
func (r Repo) EffectiveAutoSubmit(org Org) bool {
	if r.AutoSubmit != nil {
		return *r.AutoSubmit
	}
	return org.AutoSubmit
}

// Config is the fully loaded, immutable configuration for the life of the
// daemon process (spec section 9 design note: "live reload is explicitly a
// non-goal").
type Config struct {
	Org   Org
	Repos map[string]Repo

	SQLitePath    string
	EventLogRoot  string
	PostgresDSN   string
}

func defaultOrg() Org {
	return Org{
		MaxAttempts: 5,
		MaxRecovery: 2,
	}
}

// Load reads orgPath and repoPaths, applying OTHALA_* environment
// overrides via viper the way the teacher lineage layers env over yaml
// defaults.
func Load(orgPath string, repoPaths []string) (*Config, error) {
	org := defaultOrg()
	if orgPath != "" {
		data, err := os.ReadFile(orgPath)
		if err != nil {
			return nil, fmt.Errorf("read org config %s: %w", orgPath, err)
		}
		if err := yaml.Unmarshal(data, &org); err != nil {
			return nil, fmt.Errorf("parse org config %s: %w", orgPath, err)
		}
	}
	if org.MaxAttempts <= 0 {
		org.MaxAttempts = 5
	}
	if org.MaxRecovery <= 0 {
		org.MaxRecovery = 2
	}

	repos := make(map[string]Repo, len(repoPaths))
	for _, path := range repoPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read repo config %s: %w", path, err)
		}
		var r Repo
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse repo config %s: %w", path, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("repo config %s: missing id", path)
		}
		if r.StackingMode == "" {
			r.StackingMode = StackingModeStack
		}
		repos[r.ID] = r
	}

	v := viper.New()
	v.SetEnvPrefix("OTHALA")
	v.AutomaticEnv()
	v.SetDefault("sqlite_path", "state.sqlite")
	v.SetDefault("event_log_root", ".")

	return &Config{
		Org:          org,
		Repos:        repos,
		SQLitePath:   v.GetString("sqlite_path"),
		EventLogRoot: v.GetString("event_log_root"),
		PostgresDSN:  v.GetString("postgres_dsn"),
	}, nil
}

// BackoffSchedule describes the exponential backoff applied to transient
// and timeout classified failures (spec section 4.4).
type BackoffSchedule struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

// DefaultBackoff is the schedule named directly in spec section 4.4: base
// 5s, factor 2, cap 5 minutes.
var DefaultBackoff = BackoffSchedule{
	Base:   5 * time.Second,
	Factor: 2,
	Cap:    5 * time.Minute,
}

// Delay returns the backoff delay for the given retry attempt (1-indexed),
// capped at schedule.Cap.
func (b BackoffSchedule) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Factor)
		if d > b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}
