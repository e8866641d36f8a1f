package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// FindEntityByExternalID returns the stored entities holding id.
// Quarantined conflict entities are never returned.
func (s *Store) FindEntityByExternalID(ctx context.Context, kind reference.Kind, id identifier.ID) ([]resolver.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.title
		FROM identifiers i
		JOIN entity_identifiers ei ON ei.kind = i.kind AND ei.identifier_id = i.id
		JOIN entities e ON e.kind = ei.kind AND e.id = ei.entity_id
		WHERE i.kind = ? AND i.scheme = ? AND i.value = ? AND e.conflict = 0
		ORDER BY e.id`, kind, id.Scheme, id.Value)
	if err != nil {
		return nil, resolver.Unavailable("find entity by external id", err)
	}
	entities, err := scanEntities(rows)
	if err != nil {
		return nil, resolver.Unavailable("find entity by external id", err)
	}

	for i := range entities {
		ids, err := s.entityIdentifiers(ctx, kind, entities[i].ID)
		if err != nil {
			return nil, resolver.Unavailable("find entity by external id", err)
		}
		entities[i].IDs = ids
	}
	return entities, nil
}

// FindEntityByCanonicalID returns the stored entity kind/id, conflicts
// included, or nil.
func (s *Store) FindEntityByCanonicalID(ctx context.Context, kind reference.Kind, id string) (*resolver.Entity, error) {
	e, err := s.entity(ctx, kind, id)
	if err != nil {
		return nil, resolver.Unavailable("find entity by canonical id", err)
	}
	return e, nil
}

func (s *Store) entity(ctx context.Context, kind reference.Kind, id string) (*resolver.Entity, error) {
	var e resolver.Entity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title FROM entities WHERE kind = ? AND id = ?`, kind, id).Scan(&e.ID, &e.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.IDs, err = s.entityIdentifiers(ctx, kind, id); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindIdentifierID returns the identifier entity of id, or "".
func (s *Store) FindIdentifierID(ctx context.Context, kind reference.Kind, id identifier.ID) (string, error) {
	var local string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM identifiers WHERE kind = ? AND scheme = ? AND value = ?`,
		kind, id.Scheme, id.Value).Scan(&local)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", resolver.Unavailable("find identifier id", err)
	}
	return local, nil
}

// FindOrderedContributors follows the role chain of brID for role from its
// head. Roles cut off from the chain follow in id order.
func (s *Store) FindOrderedContributors(ctx context.Context, brID string, role reference.Role) ([]resolver.Contributor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.agent_id, r.next_id, COALESCE(e.title, '')
		FROM roles r
		LEFT JOIN entities e ON e.kind = 'ra' AND e.id = r.agent_id
		WHERE r.br_id = ? AND r.role = ?
		ORDER BY r.id`, brID, role)
	if err != nil {
		return nil, resolver.Unavailable("find ordered contributors", err)
	}

	type link struct {
		c    resolver.Contributor
		next string
	}
	var links []link
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.c.RoleID, &l.c.AgentID, &l.next, &l.c.AgentTitle); err != nil {
			rows.Close()
			return nil, resolver.Unavailable("find ordered contributors", err)
		}
		links = append(links, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, resolver.Unavailable("find ordered contributors", err)
	}

	byID := make(map[string]int, len(links))
	pointed := make(map[string]bool, len(links))
	for i, l := range links {
		byID[l.c.RoleID] = i
		if l.next != "" {
			pointed[l.next] = true
		}
	}

	var chain []resolver.Contributor
	used := make(map[int]bool, len(links))
	for i, l := range links {
		if pointed[l.c.RoleID] || used[i] {
			continue
		}
		for j, ok := i, true; ok && !used[j]; j, ok = byID[links[j].next] {
			used[j] = true
			chain = append(chain, links[j].c)
		}
	}
	for i, l := range links {
		if !used[i] {
			chain = append(chain, l.c)
		}
	}

	for i := range chain {
		ids, err := s.entityIdentifiers(ctx, reference.KindRA, chain[i].AgentID)
		if err != nil {
			return nil, resolver.Unavailable("find ordered contributors", err)
		}
		chain[i].IDs = ids
	}
	return chain, nil
}

// FindVenueTree returns the volumes and issues stored under a venue, or nil
// when the venue contains nothing.
func (s *Store) FindVenueTree(ctx context.Context, brID string) (*resolver.VenueTree, error) {
	children, err := s.children(ctx, brID)
	if err != nil {
		return nil, resolver.Unavailable("find venue tree", err)
	}
	if len(children) == 0 {
		return nil, nil
	}

	tree := resolver.NewVenueTree()
	for _, ch := range children {
		switch ch.typ {
		case reference.TypeJournalVolume:
			vol := resolver.VolumeRef{ID: ch.id, Issues: make(map[string]string)}
			issues, err := s.children(ctx, ch.id)
			if err != nil {
				return nil, resolver.Unavailable("find venue tree", err)
			}
			for _, is := range issues {
				if is.typ == reference.TypeJournalIssue {
					vol.Issues[is.label] = is.id
				}
			}
			tree.Volumes[ch.label] = vol
		case reference.TypeJournalIssue:
			tree.Issues[ch.label] = ch.id
		}
	}
	return tree, nil
}

type child struct {
	id, typ, label string
}

// children returns the labelled resources that are part of brID.
func (s *Store) children(ctx context.Context, brID string) ([]child, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT br_id, type, label FROM resources
		WHERE part_of = ? AND label != ''
		ORDER BY br_id`, brID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []child
	for rows.Next() {
		var c child
		if err := rows.Scan(&c.id, &c.typ, &c.label); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindPageRange returns the page embodiment of brID, or nil.
func (s *Store) FindPageRange(ctx context.Context, brID string) (*resolver.PageRange, error) {
	pr, err := s.pageRange(ctx, brID)
	if err != nil {
		return nil, resolver.Unavailable("find page range", err)
	}
	return pr, nil
}

func (s *Store) pageRange(ctx context.Context, brID string) (*resolver.PageRange, error) {
	var pr resolver.PageRange
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pages FROM embodiments WHERE br_id = ?`, brID).Scan(&pr.ID, &pr.Range)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// FindFullRecord rebuilds the row fields of brID by walking its containers
// up to the venue.
func (s *Store) FindFullRecord(ctx context.Context, brID string) (*resolver.FullRecord, error) {
	rec, err := s.fullRecord(ctx, brID)
	if err != nil {
		return nil, resolver.Unavailable("find full record", err)
	}
	return rec, nil
}

func (s *Store) fullRecord(ctx context.Context, brID string) (*resolver.FullRecord, error) {
	r, err := s.resource(ctx, brID)
	if err != nil || r == nil {
		return nil, err
	}
	rec := &resolver.FullRecord{Type: r.typ, PubDate: r.pubDate}
	if rec.Page, err = s.pageRange(ctx, brID); err != nil {
		return nil, err
	}

	switch r.typ {
	case reference.TypeJournalVolume:
		rec.Volume = r.label
	case reference.TypeJournalIssue:
		rec.Issue = r.label
	}

	seen := map[string]bool{brID: true}
	parent := r.partOf
	for parent != "" && !seen[parent] {
		seen[parent] = true
		p, err := s.resource(ctx, parent)
		if err != nil {
			return nil, err
		}
		switch {
		case p != nil && p.typ == reference.TypeJournalIssue && rec.Issue == "":
			rec.Issue = p.label
			parent = p.partOf
			continue
		case p != nil && p.typ == reference.TypeJournalVolume && rec.Volume == "":
			rec.Volume = p.label
			parent = p.partOf
			continue
		}
		venue, err := s.entity(ctx, reference.KindBR, parent)
		if err != nil {
			return nil, err
		}
		if venue != nil {
			rec.Venue = renderVenue(venue.Title, venue.IDs, reference.KindBR, venue.ID)
		}
		break
	}
	return rec, nil
}

type storedResource struct {
	typ, pubDate, partOf, label string
}

func (s *Store) resource(ctx context.Context, brID string) (*storedResource, error) {
	var r storedResource
	err := s.db.QueryRowContext(ctx,
		`SELECT type, pub_date, part_of, label FROM resources WHERE br_id = ?`, brID).
		Scan(&r.typ, &r.pubDate, &r.partOf, &r.label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// entityIdentifiers returns the identifiers linked to kind/id in the order
// they were stored.
func (s *Store) entityIdentifiers(ctx context.Context, kind reference.Kind, id string) ([]resolver.Identifier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.scheme, i.value
		FROM entity_identifiers ei
		JOIN identifiers i ON i.kind = ei.kind AND i.id = ei.identifier_id
		WHERE ei.kind = ? AND ei.entity_id = ?
		ORDER BY ei.rowid`, kind, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resolver.Identifier
	for rows.Next() {
		var x resolver.Identifier
		if err := rows.Scan(&x.LocalID, &x.ID.Scheme, &x.ID.Value); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanEntities reads id/title rows and closes them.
func scanEntities(rows *sql.Rows) ([]resolver.Entity, error) {
	defer rows.Close()
	var out []resolver.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(s scanner) (resolver.Entity, error) {
	var e resolver.Entity
	err := s.Scan(&e.ID, &e.Title)
	return e, err
}
