package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibmeta/internal/export"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/storage"
)

var (
	exportOut    string
	exportAppend bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to a .bib file instead of stdout")
	exportCmd.Flags().BoolVar(&exportAppend, "append", false, "Append to --out, skipping entries already in it (by DOI, then key)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export <rows.jsonl>",
	Short: "Export curated rows as BibTeX",
	Long: `Export the curated rows of a batch as BibTeX.

Entries are keyed by canonical id ("br0601"). With --append, rows whose DOI
or key is already present in the target file are skipped.

Example:
  bm export .bibmeta/output/<run id>/rows.jsonl -o refs.bib --append`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

// ExportResult is the response of the export command when writing a file.
type ExportResult struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
	Skipped int    `json:"skipped"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportAppend && exportOut == "" {
		exitWithError(ExitError, "--append requires --out")
	}

	rows, err := storage.ReadRows(args[0])
	if err != nil {
		exitWithError(ExitDataError, "reading rows: %v", err)
	}

	if exportOut == "" {
		fmt.Print(export.ToBibTeXList(rows))
		return nil
	}

	result, err := exportRows(rows, exportOut, exportAppend)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if humanOutput {
		fmt.Printf("Exported %d entries to %s (%d skipped)\n", result.Written, result.Path, result.Skipped)
	} else {
		outputJSON(result)
	}
	return nil
}

// exportRows writes rows to path, replacing it unless appendTo is set.
func exportRows(rows []reference.Row, path string, appendTo bool) (*ExportResult, error) {
	idx := export.NewBibTeXIndex()
	if appendTo {
		var err error
		if idx, err = export.ParseBibTeXFile(path); err != nil {
			return nil, err
		}
	}
	entries, skipped := export.Fresh(rows, idx)

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	content := strings.Join(parts, "\n")

	if appendTo {
		if len(entries) > 0 {
			if err := export.AppendToBibFile(path, content); err != nil {
				return nil, err
			}
		}
	} else if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("writing bib file: %w", err)
	}
	return &ExportResult{Path: path, Written: len(entries), Skipped: skipped}, nil
}
