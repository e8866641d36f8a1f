package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Rows(3)
	r.Minted("br", 2)
	r.Minted("br", 0)
	r.Conflict("ra")
	r.Conflict("ra")
	r.Merge("br")
	r.Dropped("pub_date")
	r.RefusedReorder()

	if got := testutil.ToFloat64(r.rows); got != 3 {
		t.Errorf("rows = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.minted.WithLabelValues("br")); got != 2 {
		t.Errorf("minted{br} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.conflicts.WithLabelValues("ra")); got != 2 {
		t.Errorf("conflicts{ra} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.merges.WithLabelValues("br")); got != 1 {
		t.Errorf("merges{br} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.droppedValues.WithLabelValues("pub_date")); got != 1 {
		t.Errorf("dropped{pub_date} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.refusedReorders); got != 1 {
		t.Errorf("refused reorders = %v, want 1", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Rows(1)
	r.Minted("br", 1)
	r.Conflict("br")
	r.Merge("br")
	r.Dropped("page")
	r.RefusedReorder()
	r.Lookup("x", time.Millisecond, nil)
	r.Batch(time.Second)
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Errorf("WriteTextfile() on nil recorder error = %v", err)
	}
	if r.Registry() != nil {
		t.Error("Registry() on nil recorder is not nil")
	}
}

func TestInstrumentResolver(t *testing.T) {
	r := New()
	mem := resolver.NewMemory()
	res := InstrumentResolver(mem, r)

	ctx := context.Background()
	if _, err := res.FindVenueTree(ctx, "0601"); err != nil {
		t.Fatalf("FindVenueTree() error = %v", err)
	}
	if _, err := res.FindVenueTree(ctx, "0602"); err != nil {
		t.Fatalf("FindVenueTree() error = %v", err)
	}
	mem.Err = errors.New("down")
	if _, err := res.FindEntityByCanonicalID(ctx, reference.KindBR, "0601"); err == nil {
		t.Fatal("FindEntityByCanonicalID() error = nil, want failure")
	}

	if got := testutil.ToFloat64(r.lookups.WithLabelValues("venue_tree")); got != 2 {
		t.Errorf("lookups{venue_tree} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.lookupErrors.WithLabelValues("entity_by_canonical_id")); got != 1 {
		t.Errorf("errors{entity_by_canonical_id} = %v, want 1", got)
	}

	if InstrumentResolver(mem, nil) != resolver.Resolver(mem) {
		t.Error("InstrumentResolver(nil recorder) wrapped the resolver")
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Rows(7)
	path := filepath.Join(t.TempDir(), "bibmeta.prom")

	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "bibmeta_rows_total 7") {
		t.Errorf("textfile missing rows counter:\n%s", data)
	}
}
