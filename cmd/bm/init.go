package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/bibmeta/internal/config"
	"github.com/matsen/bibmeta/internal/storage"
)

var (
	initPrefix    string
	initSeparator string
)

func init() {
	initCmd.Flags().StringVar(&initPrefix, "prefix", config.DefaultPrefix, "Prefix of every minted id (digits)")
	initCmd.Flags().StringVar(&initSeparator, "separator", "", "Identifier list separator (default whitespace)")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new bibmeta repository",
	Long: `Initialize a new bibmeta repository in the current directory.

Creates .bibmeta/ holding the config, the id counters and an empty
knowledge store.

Example:
  bm init --prefix 060`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	cfg := config.Default()
	cfg.Prefix = initPrefix
	cfg.Separator = initSeparator
	if err := initRepository(cwd, cfg); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("Initialized bibmeta repository in %s\n", config.BibmetaPath(cwd))
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: config.BibmetaPath(cwd)})
	}
	return nil
}

// initRepository creates the repository layout and an empty store.
func initRepository(root string, cfg *config.Config) error {
	if err := config.Init(root, cfg); err != nil {
		return err
	}
	store, err := storage.Open(config.StorePath(root))
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	return store.Close()
}
