package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/config"
	"github.com/matsen/bibmeta/internal/conflict"
	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/curator"
	"github.com/matsen/bibmeta/internal/importer"
	"github.com/matsen/bibmeta/internal/metrics"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/storage"
)

var (
	curateDryRun bool
	curateOut    string
)

func init() {
	curateCmd.Flags().BoolVar(&curateDryRun, "dry-run", false, "Curate without persisting or advancing counters")
	curateCmd.Flags().StringVar(&curateOut, "out", "", "Output directory (default .bibmeta/output)")
	rootCmd.AddCommand(curateCmd)
}

var curateCmd = &cobra.Command{
	Use:   "curate <file>",
	Short: "Curate a batch of citation rows",
	Long: `Curate a batch of citation rows against the knowledge store.

The batch is read from CSV (header row required), JSONL (one row object
per line) or a Paperpile JSON export. Curated rows, entities, conflicts and
the audit log are written to <out>/<run id>/.

With --dry-run the store is left untouched and ids are drawn from an
in-memory copy of the counters, so a later real run mints the same ids.

Usage:
  bm curate batch.csv
  bm curate batch.csv --dry-run --out /tmp/preview`,
	Args: cobra.ExactArgs(1),
	RunE: runCurate,
}

// CurateSummary is the response of the curate command.
type CurateSummary struct {
	RunID     string               `json:"run_id"`
	DryRun    bool                 `json:"dry_run"`
	Input     string               `json:"input"`
	RowsIn    int                  `json:"rows_in"`
	RowsOut   int                  `json:"rows_out"`
	Resources int                  `json:"resources"`
	Agents    int                  `json:"agents"`
	Conflicts int                  `json:"conflicts"`
	Minted    map[counter.Name]int `json:"minted"`
	Warnings  []string             `json:"warnings,omitempty"`
	OutputDir string               `json:"output_dir"`
}

// curateOptions are the inputs of one curate run.
type curateOptions struct {
	Input  string
	OutDir string
	DryRun bool
	Logger *zap.Logger
}

func runCurate(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)
	logger := mustNewLogger(cfg)
	defer logger.Sync()

	summary, res, err := curateBatch(cmd.Context(), repoRoot, cfg, curateOptions{
		Input:  args[0],
		OutDir: curateOut,
		DryRun: curateDryRun,
		Logger: logger,
	})
	if err != nil {
		logger.Error("batch failed", zap.Error(err))
		exitWithError(exitCodeFor(err), "%v", err)
	}

	if humanOutput {
		printCurateSummary(summary, conflict.FromResult(res))
	} else {
		outputJSON(summary)
	}
	return nil
}

// releaser is the part of counter.Lock a batch gives back.
type releaser interface {
	Release() error
}

func releaseLock(l releaser, logger *zap.Logger) {
	if err := l.Release(); err != nil {
		logger.Warn("batch lock not released", zap.Error(err))
	}
}

// curateBatch runs one batch end to end under the repository lock.
func curateBatch(ctx context.Context, repoRoot string, cfg *config.Config, opts curateOptions) (*CurateSummary, *curator.Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lock, err := counter.AcquireLock(config.LockPath(repoRoot))
	if err != nil {
		return nil, nil, err
	}
	defer releaseLock(lock, logger)

	rows, warnings, err := importer.Load(opts.Input)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		logger.Warn("input entry skipped", zap.Error(w))
	}

	store, err := storage.Open(config.StorePath(repoRoot))
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	files := counter.NewFiles(config.CountersPath(repoRoot))
	var alloc curator.Allocator = files
	if opts.DryRun {
		snapshot, err := counter.Snapshot(files)
		if err != nil {
			return nil, nil, err
		}
		alloc = snapshot
	}

	rec := metrics.New()
	c := curator.New(store, alloc, curator.Options{
		Prefix:    cfg.Prefix,
		Separator: cfg.Separator,
		Logger:    logger,
		Metrics:   rec,
	})
	res, err := c.Run(ctx, rows)
	if err != nil {
		return nil, nil, err
	}

	if !opts.DryRun {
		if err := store.Persist(ctx, res); err != nil {
			return nil, nil, err
		}
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = config.OutputPath(repoRoot)
	}
	dir, err := storage.WriteOutputs(outDir, res)
	if err != nil {
		return nil, nil, err
	}

	if err := rec.WriteTextfile(cfg.MetricsPath(repoRoot)); err != nil {
		logger.Warn("writing metrics failed", zap.Error(err))
	}

	summary := &CurateSummary{
		RunID:     res.RunID,
		DryRun:    opts.DryRun,
		Input:     opts.Input,
		RowsIn:    len(rows),
		RowsOut:   len(res.Rows),
		Resources: len(res.Entities[reference.KindBR]),
		Agents:    len(res.Entities[reference.KindRA]),
		Conflicts: len(res.Conflicts[reference.KindBR]) + len(res.Conflicts[reference.KindRA]),
		Minted:    res.Minted,
		OutputDir: dir,
	}
	for _, w := range warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
	}
	return summary, res, nil
}

func printCurateSummary(s *CurateSummary, report conflict.Report) {
	title := "Curated"
	if s.DryRun {
		title = "Curated (dry run)"
	}
	fmt.Printf("%s %s -> %s\n\n", title, s.Input, s.OutputDir)

	rows := [][]string{
		{"rows in", strconv.Itoa(s.RowsIn)},
		{"rows out", strconv.Itoa(s.RowsOut)},
		{"resources", strconv.Itoa(s.Resources)},
		{"agents", strconv.Itoa(s.Agents)},
		{"conflicts", strconv.Itoa(s.Conflicts)},
	}
	for _, name := range counter.Names {
		rows = append(rows, []string{"minted " + string(name), strconv.Itoa(s.Minted[name])})
	}
	fmt.Println(renderTable([]string{"Run " + s.RunID, "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	for _, w := range s.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if len(report.Items) > 0 {
		fmt.Println()
		fmt.Println(conflictTable(report))
	}
}
