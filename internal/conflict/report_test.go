package conflict

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/matsen/bibmeta/internal/curator"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
	"github.com/matsen/bibmeta/internal/storage"
)

var (
	doiA = identifier.ID{Scheme: identifier.SchemeDOI, Value: "10.1/a"}
	doiB = identifier.ID{Scheme: identifier.SchemeDOI, Value: "10.1/b"}
)

func TestFromResult(t *testing.T) {
	res := &curator.Result{
		RunID: "run-1",
		Conflicts: map[reference.Kind][]curator.Entity{
			reference.KindBR: {{
				ID:    "0605",
				Title: "Clash",
				IDs:   []identifier.ID{doiA, doiB, identifier.Meta(reference.KindBR, "0605")},
			}},
		},
		Audit: map[int]map[reference.Column]curator.AuditEntry{
			3: {reference.ColumnID: {Conflict: "br/0605"}},
			0: {reference.ColumnID: {Conflict: "br/0605"}, reference.ColumnTitle: {Status: curator.StatusProposed}},
			1: {reference.ColumnVenue: {Conflict: "br/0999"}},
		},
	}

	report := FromResult(res)
	if report.RunID != "run-1" || len(report.Items) != 1 {
		t.Fatalf("report = %+v", report)
	}
	item := report.Items[0]
	if item.Kind != reference.KindBR || item.ID != "0605" || item.RunID != "run-1" {
		t.Errorf("item = %+v", item)
	}
	if want := []string{"doi:10.1/a", "doi:10.1/b"}; !reflect.DeepEqual(item.Identifiers, want) {
		t.Errorf("Identifiers = %v, want %v", item.Identifiers, want)
	}
	wantRows := []RowRef{{Row: 0, Column: reference.ColumnID}, {Row: 3, Column: reference.ColumnID}}
	if !reflect.DeepEqual(item.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", item.Rows, wantRows)
	}
}

func TestFromResultEmpty(t *testing.T) {
	report := FromResult(&curator.Result{RunID: "r"})
	if len(report.Items) != 0 {
		t.Errorf("Items = %v, want none", report.Items)
	}
}

type fakeLister struct {
	records []storage.Record
	err     error
}

func (f fakeLister) Conflicts(context.Context) ([]storage.Record, error) {
	return f.records, f.err
}

func TestFromStore(t *testing.T) {
	l := fakeLister{records: []storage.Record{{
		Kind:     reference.KindRA,
		ID:       "0602",
		Title:    "Doe, J",
		Conflict: true,
		RunID:    "run-0",
		IDs: []resolver.Identifier{
			{LocalID: "0601", ID: identifier.ID{Scheme: identifier.SchemeORCID, Value: "0000-0001"}},
			{LocalID: "0602", ID: identifier.Meta(reference.KindRA, "0602")},
		},
	}}}

	report, err := FromStore(context.Background(), l)
	if err != nil {
		t.Fatalf("FromStore() error = %v", err)
	}
	if len(report.Items) != 1 {
		t.Fatalf("Items = %+v", report.Items)
	}
	item := report.Items[0]
	if item.RunID != "run-0" || !reflect.DeepEqual(item.Identifiers, []string{"orcid:0000-0001"}) {
		t.Errorf("item = %+v", item)
	}

	boom := errors.New("boom")
	if _, err := FromStore(context.Background(), fakeLister{err: boom}); !errors.Is(err, boom) {
		t.Errorf("FromStore() error = %v, want %v", err, boom)
	}
}

func TestExplain(t *testing.T) {
	mem := resolver.NewMemory()
	mem.AddEntity(reference.KindBR, resolver.Entity{ID: "0601", Title: "A", IDs: []resolver.Identifier{{LocalID: "1", ID: doiA}}})
	mem.AddEntity(reference.KindBR, resolver.Entity{ID: "0602", Title: "B", IDs: []resolver.Identifier{{LocalID: "2", ID: doiB}}})

	tests := []struct {
		name       string
		ids        []string
		candidates []string
		reason     string
	}{
		{"two entities", []string{"doi:10.1/a", "doi:10.1/b"}, []string{"0601", "0602"}, "resolve to 2 entities"},
		{"one entity", []string{"doi:10.1/a"}, []string{"0601"}, "now resolve to 0601 only"},
		{"none", []string{"doi:10.1/zzz"}, nil, "no longer resolve"},
		{"unparseable skipped", []string{"garbage", "doi:10.1/b"}, []string{"0602"}, "now resolve to 0602 only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &Report{Items: []Item{{Kind: reference.KindBR, ID: "0605", Identifiers: tt.ids}}}
			if err := Explain(context.Background(), mem, report); err != nil {
				t.Fatalf("Explain() error = %v", err)
			}
			var got []string
			for _, c := range report.Items[0].Candidates {
				got = append(got, c.ID)
			}
			if !reflect.DeepEqual(got, tt.candidates) {
				t.Errorf("candidates = %v, want %v", got, tt.candidates)
			}
			if !strings.Contains(report.Items[0].Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", report.Items[0].Reason, tt.reason)
			}
		})
	}
}

func TestExplainResolverFailure(t *testing.T) {
	mem := resolver.NewMemory()
	mem.Err = errors.New("offline")
	report := &Report{Items: []Item{{Kind: reference.KindBR, ID: "0605", Identifiers: []string{"doi:10.1/a"}}}}
	err := Explain(context.Background(), mem, report)
	if !resolver.IsUnavailable(err) {
		t.Errorf("Explain() error = %v, want unavailable", err)
	}
}
