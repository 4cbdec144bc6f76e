// Package cli implements the command-line surface of spec section 6,
// grounded on the teacher lineage's cobra root command and
// OnInitialize/viper config-loading pattern.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/othala/othala/internal/config"
	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/store"
	"github.com/othala/othala/internal/store/driver"
)

// App carries the shared state every subcommand needs: the loaded config,
// an open store, the logger, and the state root directory.
type App struct {
	Root   string
	Config *config.Config
	Store  *store.Store
	Log    *slog.Logger
}

var (
	flagRoot      string
	flagOrgConfig string
	flagRepoConfigs []string
	flagJSON      bool
)

// NewRootCmd builds the cobra command tree for spec section 6's CLI
// surface.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "othala",
		Short: "Othala drives AI coder subprocesses through the life of a code-change task",
	}
	root.PersistentFlags().StringVar(&flagRoot, "root", ".", "state directory (sqlite, events, logs, worktrees)")
	root.PersistentFlags().StringVar(&flagOrgConfig, "org-config", "othala.org.yaml", "org-level config file")
	root.PersistentFlags().StringSliceVar(&flagRepoConfigs, "repo-config", nil, "per-repo config file (repeatable)")

	cobra.OnInitialize(initViper)

	root.AddCommand(newDaemonCmd())
	root.AddCommand(newCreateTaskCmd())
	root.AddCommand(newListTasksCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newReviewApproveCmd())
	root.AddCommand(newDeleteCmd())
	return root
}

// Execute runs the CLI. cmd/othala/main.go calls this directly.
func Execute() error {
	return NewRootCmd().Execute()
}

func initViper() {
	viper.SetEnvPrefix("OTHALA")
	viper.AutomaticEnv()
}

// newLogger selects a JSON handler for the daemon (machine-consumed) and
// a text handler for interactive terminal use, detected the same way the
// teacher lineage picks a render mode: go-isatty on stdout.
func newLogger() *slog.Logger {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}

// openApp loads config and opens the store, shared by every subcommand
// except the bare help invocation.
func openApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load(flagOrgConfig, flagRepoConfigs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.SQLitePath == "state.sqlite" {
		cfg.SQLitePath = flagRoot + "/state.sqlite"
	}
	if cfg.EventLogRoot == "." {
		cfg.EventLogRoot = flagRoot
	}

	j, err := journal.Open(cfg.EventLogRoot)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	var drv driver.Driver = driver.SQLiteDriver{}
	dsn := cfg.SQLitePath
	if cfg.PostgresDSN != "" {
		drv = driver.PostgresDriver{}
		dsn = cfg.PostgresDSN
	}

	st, err := store.Open(ctx, drv, dsn, j)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &App{Root: flagRoot, Config: cfg, Store: st, Log: newLogger()}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
