// Package main provides the bm CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matsen/bibmeta/internal/config"
	"github.com/matsen/bibmeta/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	// verbose switches to the development logger at debug level
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bm",
	Short: "Bibliographic metadata curator",
	Long: `bm curates batches of citation rows into a deduplicated graph of
bibliographic resources and responsible agents.

Each batch is matched against everything curated before it: rows that refer
to a known resource are rewritten with its canonical id, new resources get
freshly minted ids, and ambiguous identity evidence is quarantined as a
conflict instead of being merged.

All commands output JSON by default; use --human for tables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if present (ignore error if not found)
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log decisions at debug level to stderr")
	rootCmd.Version = Version
}

// mustFindRepository finds and validates the repository, exits on error.
// Returns the repository root path.
func mustFindRepository() string {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	repoRoot, err := config.ResolveRoot(cwd)
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		exitWithError(exitCodeFor(err), "%v", err)
	}
	return repoRoot
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig(repoRoot string) *config.Config {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStore opens the knowledge store, exits on error.
// The caller is responsible for calling Close() on the returned Store.
func mustOpenStore(repoRoot string) *storage.Store {
	store, err := storage.Open(config.StorePath(repoRoot))
	if err != nil {
		exitWithError(ExitError, "opening store: %v", err)
	}
	return store
}

// newLogger builds the process logger. The repository log_level wins over
// the global one; --verbose forces a development logger at debug level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	level := "info"
	if global, err := config.LoadGlobalConfig(); err == nil && global.LogLevel != "" {
		level = global.LogLevel
	}
	if cfg != nil && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// mustNewLogger builds the logger, exits on error.
func mustNewLogger(cfg *config.Config) *zap.Logger {
	logger, err := newLogger(cfg)
	if err != nil {
		exitWithError(ExitConfigError, "creating logger: %v", err)
	}
	return logger
}
