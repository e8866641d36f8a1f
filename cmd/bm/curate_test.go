package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matsen/bibmeta/internal/config"
	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/importer"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
	"github.com/matsen/bibmeta/internal/storage"
)

const batchCSV = `id,title,author,pub_date,venue,volume,issue,page,type
doi:10.1/a,first paper,"Smith, John [orcid:0000-0001]; Doe, Jane",2020,Journal [issn:1111-2222],1,2,1-9,journal article
`

// newRepo initialises a repository and writes batchCSV into it.
func newRepo(t *testing.T) (root, batch string) {
	t.Helper()
	root = t.TempDir()
	if err := initRepository(root, config.Default()); err != nil {
		t.Fatalf("initRepository() error = %v", err)
	}
	batch = filepath.Join(root, "batch.csv")
	if err := os.WriteFile(batch, []byte(batchCSV), 0644); err != nil {
		t.Fatal(err)
	}
	return root, batch
}

func currentCounter(t *testing.T, root string, name counter.Name) int64 {
	t.Helper()
	v, err := counter.NewFiles(config.CountersPath(root)).Current(name)
	if err != nil {
		t.Fatalf("Current(%s) error = %v", name, err)
	}
	return v
}

func TestCurateBatch(t *testing.T) {
	root, batch := newRepo(t)
	cfg := config.Default()

	summary, res, err := curateBatch(context.Background(), root, cfg, curateOptions{Input: batch})
	if err != nil {
		t.Fatalf("curateBatch() error = %v", err)
	}
	if summary.RowsIn != 1 || summary.RowsOut != 1 || summary.Conflicts != 0 {
		t.Errorf("summary = %+v", summary)
	}
	// Article, journal, volume and issue.
	if summary.Minted[counter.BR] != 4 || summary.Resources != 4 || summary.Agents != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if got := currentCounter(t, root, counter.BR); got != 4 {
		t.Errorf("br counter = %d, want 4", got)
	}
	if want := filepath.Join(config.OutputPath(root), res.RunID); summary.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", summary.OutputDir, want)
	}
	rows, err := storage.ReadRows(filepath.Join(summary.OutputDir, storage.RowsFile))
	if err != nil || len(rows) != 1 || !strings.Contains(rows[0].ID, "meta:br/0601") {
		t.Errorf("output rows = %+v, %v", rows, err)
	}

	store, err := storage.Open(config.StorePath(root))
	if err != nil {
		t.Fatal(err)
	}
	n, err := store.Count(context.Background(), reference.KindBR)
	store.Close()
	if err != nil || n != 4 {
		t.Errorf("stored resources = %d, %v, want 4", n, err)
	}

	// The same batch again is fully resolved against the store.
	again, _, err := curateBatch(context.Background(), root, cfg, curateOptions{Input: batch})
	if err != nil {
		t.Fatalf("second curateBatch() error = %v", err)
	}
	for _, name := range counter.Names {
		if again.Minted[name] != 0 {
			t.Errorf("second run minted %d %s ids", again.Minted[name], name)
		}
	}
}

func TestCurateBatchDryRun(t *testing.T) {
	root, batch := newRepo(t)
	out := filepath.Join(t.TempDir(), "preview")

	dry, _, err := curateBatch(context.Background(), root, config.Default(), curateOptions{Input: batch, OutDir: out, DryRun: true})
	if err != nil {
		t.Fatalf("curateBatch() error = %v", err)
	}
	if !dry.DryRun || !strings.HasPrefix(dry.OutputDir, out) {
		t.Errorf("summary = %+v", dry)
	}
	for _, name := range counter.Names {
		if got := currentCounter(t, root, name); got != 0 {
			t.Errorf("dry run advanced %s to %d", name, got)
		}
	}

	store, err := storage.Open(config.StorePath(root))
	if err != nil {
		t.Fatal(err)
	}
	n, err := store.Count(context.Background(), reference.KindBR)
	store.Close()
	if err != nil || n != 0 {
		t.Errorf("dry run stored %d resources (%v)", n, err)
	}

	// A real run afterwards mints the ids the dry run previewed.
	live, _, err := curateBatch(context.Background(), root, config.Default(), curateOptions{Input: batch})
	if err != nil {
		t.Fatalf("curateBatch() error = %v", err)
	}
	if fmt.Sprint(live.Minted) != fmt.Sprint(dry.Minted) {
		t.Errorf("real run minted %v, dry run %v", live.Minted, dry.Minted)
	}
}

func TestCurateBatchPrefix(t *testing.T) {
	root, batch := newRepo(t)
	cfg := &config.Config{Prefix: "070"}

	_, res, err := curateBatch(context.Background(), root, cfg, curateOptions{Input: batch})
	if err != nil {
		t.Fatalf("curateBatch() error = %v", err)
	}
	if !strings.Contains(res.Rows[0].ID, "meta:br/0701") {
		t.Errorf("row id = %q, want a 070 id", res.Rows[0].ID)
	}
}

func TestCurateBatchLocked(t *testing.T) {
	root, batch := newRepo(t)

	lock, err := counter.AcquireLock(config.LockPath(root))
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, _, err = curateBatch(context.Background(), root, config.Default(), curateOptions{Input: batch})
	if !errors.Is(err, counter.ErrLocked) {
		t.Fatalf("curateBatch() error = %v, want ErrLocked", err)
	}
	if code := exitCodeFor(err); code != ExitLocked {
		t.Errorf("exit code = %d, want %d", code, ExitLocked)
	}
}

type failingLock struct{ err error }

func (l failingLock) Release() error { return l.err }

func TestReleaseLock(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		warns int
	}{
		{"released", nil, 0},
		{"release fails", errors.New("unlock: bad file descriptor"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			releaseLock(failingLock{err: tt.err}, zap.New(core))
			if got := logs.Len(); got != tt.warns {
				t.Fatalf("warnings = %d, want %d", got, tt.warns)
			}
			if tt.warns > 0 && logs.All()[0].ContextMap()["error"] != tt.err.Error() {
				t.Errorf("warning fields = %v", logs.All()[0].ContextMap())
			}
		})
	}

	// The lock taken by a batch is free again once the batch returns.
	root, batch := newRepo(t)
	if _, _, err := curateBatch(context.Background(), root, config.Default(), curateOptions{Input: batch}); err != nil {
		t.Fatalf("curateBatch() error = %v", err)
	}
	lock, err := counter.AcquireLock(config.LockPath(root))
	if err != nil {
		t.Fatalf("AcquireLock() after batch error = %v", err)
	}
	lock.Release()
}

func TestCurateBatchBadInput(t *testing.T) {
	root, _ := newRepo(t)
	bad := filepath.Join(root, "batch.csv")
	if err := os.WriteFile(bad, []byte("foo,bar\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := curateBatch(context.Background(), root, config.Default(), curateOptions{Input: bad})
	if code := exitCodeFor(err); code != ExitDataError {
		t.Errorf("exit code = %d (%v), want %d", code, err, ExitDataError)
	}
	if got := currentCounter(t, root, counter.BR); got != 0 {
		t.Errorf("br counter = %d after a failed batch", got)
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"locked", fmt.Errorf("wrapped: %w", counter.ErrLocked), ExitLocked},
		{"no repository", config.ErrNotRepository, ExitConfigError},
		{"corrupt counter", counter.ErrCorrupt, ExitDataError},
		{"no header", importer.ErrNoHeader, ExitDataError},
		{"unsupported format", importer.ErrUnsupportedFormat, ExitDataError},
		{"store unavailable", resolver.Unavailable("find", errors.New("closed")), ExitError},
		{"other", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    reference.Kind
		wantErr bool
	}{
		{"br", reference.KindBR, false},
		{"RA", reference.KindRA, false},
		{"id", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Name", "Count"}, [][]string{{"rows", "3"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"Name", "Count", "rows", "short"} {
		// Headers are upper-cased by the table style.
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("renderTable() missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("renderTable() with no headers should be empty")
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title here", 10, "a longe..."},
		{"Müller über alles", 8, "Mülle..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
