package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibmeta/internal/conflict"
)

func init() {
	rootCmd.AddCommand(conflictsCmd)
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List quarantined conflict entities",
	Long: `List the conflict entities in the knowledge store.

A conflict is created when a row's identifiers point at more than one
existing entity. It keeps the identifiers but is never matched or merged.
Each conflict is re-checked against the store so the report shows which
entities its identifiers resolve to today.

Example:
  bm conflicts --human`,
	Args: cobra.NoArgs,
	RunE: runConflicts,
}

func runConflicts(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	store := mustOpenStore(repoRoot)
	defer store.Close()

	report, err := conflict.FromStore(cmd.Context(), store)
	if err != nil {
		exitWithError(ExitError, "listing conflicts: %v", err)
	}
	if err := conflict.Explain(cmd.Context(), store, &report); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		if len(report.Items) == 0 {
			fmt.Println("No conflicts")
			return nil
		}
		fmt.Println(conflictTable(report))
	} else {
		outputJSON(report)
	}
	return nil
}
