package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/matsen/bibmeta/internal/curator"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
	"github.com/matsen/bibmeta/internal/storage"
)

// Lister lists stored conflict entities.
type Lister interface {
	Conflicts(ctx context.Context) ([]storage.Record, error)
}

// FromResult builds the report of a curated batch. Each item lists the
// audit log cells that point at it.
func FromResult(res *curator.Result) Report {
	refs := make(map[string][]RowRef)
	rows := make([]int, 0, len(res.Audit))
	for row := range res.Audit {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	for _, row := range rows {
		for _, col := range reference.Columns {
			entry, ok := res.Audit[row][col]
			if !ok || entry.Conflict == "" {
				continue
			}
			refs[entry.Conflict] = append(refs[entry.Conflict], RowRef{Row: row, Column: col})
		}
	}

	report := Report{RunID: res.RunID}
	for _, kind := range []reference.Kind{reference.KindBR, reference.KindRA} {
		for _, e := range res.Conflicts[kind] {
			report.Items = append(report.Items, Item{
				Kind:        kind,
				ID:          e.ID,
				Title:       e.Title,
				RunID:       res.RunID,
				Identifiers: render(e.ExternalIDs()),
				Rows:        refs[string(kind)+"/"+e.ID],
			})
		}
	}
	return report
}

// FromStore builds the report of every conflict in the store.
func FromStore(ctx context.Context, l Lister) (Report, error) {
	records, err := l.Conflicts(ctx)
	if err != nil {
		return Report{}, err
	}
	var report Report
	for _, r := range records {
		item := Item{Kind: r.Kind, ID: r.ID, Title: r.Title, RunID: r.RunID}
		for _, x := range r.IDs {
			if !x.ID.IsMeta() {
				item.Identifiers = append(item.Identifiers, x.ID.String())
			}
		}
		report.Items = append(report.Items, item)
	}
	return report, nil
}

// Explain looks every identifier of every item up in res and records the
// entities they resolve to, grouped by entity.
func Explain(ctx context.Context, res resolver.Resolver, report *Report) error {
	for i := range report.Items {
		item := &report.Items[i]
		byID := make(map[string]int)
		item.Candidates = nil
		for _, raw := range item.Identifiers {
			id, ok := identifier.Parse(raw)
			if !ok {
				continue
			}
			found, err := res.FindEntityByExternalID(ctx, item.Kind, id)
			if err != nil {
				return fmt.Errorf("explaining %s/%s: %w", item.Kind, item.ID, err)
			}
			for _, e := range found {
				j, ok := byID[e.ID]
				if !ok {
					j = len(item.Candidates)
					byID[e.ID] = j
					item.Candidates = append(item.Candidates, Candidate{ID: e.ID, Title: e.Title})
				}
				item.Candidates[j].MatchedBy = append(item.Candidates[j].MatchedBy, raw)
			}
		}
		item.Reason = reason(item.Candidates)
	}
	return nil
}

func reason(candidates []Candidate) string {
	switch len(candidates) {
	case 0:
		return "identifiers no longer resolve to a stored entity"
	case 1:
		return "identifiers now resolve to " + candidates[0].ID + " only"
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return fmt.Sprintf("identifiers resolve to %d entities: %s", len(candidates), strings.Join(ids, ", "))
}

func render(ids []identifier.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
