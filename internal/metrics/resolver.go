package metrics

import (
	"context"
	"time"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// instrumented times every call of the wrapped Resolver.
type instrumented struct {
	next resolver.Resolver
	rec  *Recorder
}

// InstrumentResolver returns a Resolver that records every lookup in rec.
// A nil rec returns next unchanged.
func InstrumentResolver(next resolver.Resolver, rec *Recorder) resolver.Resolver {
	if rec == nil {
		return next
	}
	return &instrumented{next: next, rec: rec}
}

func (i *instrumented) FindEntityByExternalID(ctx context.Context, kind reference.Kind, id identifier.ID) ([]resolver.Entity, error) {
	start := time.Now()
	out, err := i.next.FindEntityByExternalID(ctx, kind, id)
	i.rec.Lookup("entity_by_external_id", time.Since(start), err)
	return out, err
}

func (i *instrumented) FindEntityByCanonicalID(ctx context.Context, kind reference.Kind, id string) (*resolver.Entity, error) {
	start := time.Now()
	out, err := i.next.FindEntityByCanonicalID(ctx, kind, id)
	i.rec.Lookup("entity_by_canonical_id", time.Since(start), err)
	return out, err
}

func (i *instrumented) FindIdentifierID(ctx context.Context, kind reference.Kind, id identifier.ID) (string, error) {
	start := time.Now()
	out, err := i.next.FindIdentifierID(ctx, kind, id)
	i.rec.Lookup("identifier_id", time.Since(start), err)
	return out, err
}

func (i *instrumented) FindOrderedContributors(ctx context.Context, brID string, role reference.Role) ([]resolver.Contributor, error) {
	start := time.Now()
	out, err := i.next.FindOrderedContributors(ctx, brID, role)
	i.rec.Lookup("ordered_contributors", time.Since(start), err)
	return out, err
}

func (i *instrumented) FindVenueTree(ctx context.Context, brID string) (*resolver.VenueTree, error) {
	start := time.Now()
	out, err := i.next.FindVenueTree(ctx, brID)
	i.rec.Lookup("venue_tree", time.Since(start), err)
	return out, err
}

func (i *instrumented) FindPageRange(ctx context.Context, brID string) (*resolver.PageRange, error) {
	start := time.Now()
	out, err := i.next.FindPageRange(ctx, brID)
	i.rec.Lookup("page_range", time.Since(start), err)
	return out, err
}

func (i *instrumented) FindFullRecord(ctx context.Context, brID string) (*resolver.FullRecord, error) {
	start := time.Now()
	out, err := i.next.FindFullRecord(ctx, brID)
	i.rec.Lookup("full_record", time.Since(start), err)
	return out, err
}
