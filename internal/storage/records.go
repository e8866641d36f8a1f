package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// Record is the stored view of one entity.
type Record struct {
	Kind     reference.Kind        `json:"kind"`
	ID       string                `json:"id"`
	Title    string                `json:"title"`
	Conflict bool                  `json:"conflict"`
	RunID    string                `json:"run_id,omitempty"`
	IDs      []resolver.Identifier `json:"ids"`

	// Resource facts and contributors, for bibliographic resources only.
	Resource     *resolver.FullRecord                      `json:"resource,omitempty"`
	Contributors map[reference.Role][]resolver.Contributor `json:"contributors,omitempty"`
}

// Get returns the stored entity kind/id with everything known about it, or
// nil when it does not exist.
func (s *Store) Get(ctx context.Context, kind reference.Kind, id string) (*Record, error) {
	rec := &Record{Kind: kind}
	var runID *string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, conflict, run_id FROM entities WHERE kind = ? AND id = ?`, kind, id).
		Scan(&rec.ID, &rec.Title, &rec.Conflict, &runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting %s/%s: %w", kind, id, err)
	}
	if runID != nil {
		rec.RunID = *runID
	}
	if rec.IDs, err = s.entityIdentifiers(ctx, kind, id); err != nil {
		return nil, fmt.Errorf("getting identifiers of %s/%s: %w", kind, id, err)
	}
	if kind != reference.KindBR {
		return rec, nil
	}

	if rec.Resource, err = s.fullRecord(ctx, id); err != nil {
		return nil, fmt.Errorf("getting resource br/%s: %w", id, err)
	}
	for _, role := range reference.Roles {
		chain, err := s.FindOrderedContributors(ctx, id, role)
		if err != nil {
			return nil, err
		}
		if len(chain) == 0 {
			continue
		}
		if rec.Contributors == nil {
			rec.Contributors = make(map[reference.Role][]resolver.Contributor)
		}
		rec.Contributors[role] = chain
	}
	return rec, nil
}

// Conflicts lists the quarantined conflict entities of both kinds.
func (s *Store) Conflicts(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, title, COALESCE(run_id, '')
		FROM entities WHERE conflict = 1
		ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	var out []Record
	for rows.Next() {
		r := Record{Conflict: true}
		if err := rows.Scan(&r.Kind, &r.ID, &r.Title, &r.RunID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning conflict: %w", err)
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}

	for i := range out {
		if out[i].IDs, err = s.entityIdentifiers(ctx, out[i].Kind, out[i].ID); err != nil {
			return nil, fmt.Errorf("getting identifiers of %s/%s: %w", out[i].Kind, out[i].ID, err)
		}
	}
	return out, nil
}
