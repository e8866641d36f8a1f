package curator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/normalize"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// remoteLimit bounds how many distinct entities a remote lookup collects.
// Two are enough to know the evidence is ambiguous.
const remoteLimit = 2

// resolveEntity returns the token of the entity described by name and list,
// found in the batch, in the knowledge store, or minted. Ambiguous evidence
// yields a conflict token, logged against the row's column.
func (c *Curator) resolveEntity(ctx context.Context, rs *rowState, col reference.Column, name string, list identifier.List) (Token, error) {
	kind := reference.KindFor(col)
	t := c.entities(kind)
	person := col == reference.ColumnAuthor || col == reference.ColumnEditor
	ids := list.IDs

	if list.Explicit != "" {
		tok := persisted(list.Explicit)
		if t.has(tok) {
			c.settle(rs, col, t, tok, name, ids, person)
			return tok, nil
		}
		ent, err := c.res.FindEntityByCanonicalID(ctx, kind, list.Explicit)
		if err != nil {
			return Token{}, err
		}
		if ent != nil {
			tok = c.materialize(rs, col, t, *ent, name, person)
			c.settle(rs, col, t, tok, name, ids, person)
			return tok, nil
		}
		c.audit.info(rs.index, col, fmt.Sprintf("meta:%s/%s not found", kind, list.Explicit))
		c.log.Info("explicit reference not found, matching by identifiers",
			zap.Int("row", rs.index), zap.String("column", string(col)), zap.String("meta", list.Explicit))
	}

	if len(ids) == 0 {
		return t.mint(name), nil
	}

	persistedMatches, provisionalMatches := t.match(ids)
	var tok Token
	switch {
	case len(persistedMatches) > 1:
		return c.conflict(rs, col, name, ids), nil

	case len(persistedMatches) == 1:
		tok = persistedMatches[0]
		if extra := t.missing(tok, ids); len(extra) > 0 {
			found, err := c.findRemote(ctx, kind, extra)
			if err != nil {
				return Token{}, err
			}
			if len(found) > 1 || (len(found) == 1 && found[0].ID != tok.ID) {
				return c.conflict(rs, col, name, ids), nil
			}
		}

	case len(provisionalMatches) > 0:
		tok = provisionalMatches[0]
		for _, other := range provisionalMatches[1:] {
			t.merge(other, tok)
		}
		if rec := t.get(tok); rec.title == "" {
			rec.title = name
		}
		if extra := t.missing(tok, ids); len(extra) > 0 {
			found, err := c.findRemote(ctx, kind, extra)
			if err != nil {
				return Token{}, err
			}
			if len(found) > 1 {
				return c.conflict(rs, col, name, ids), nil
			}
			if len(found) == 1 {
				second, err := c.findRemote(ctx, kind, found[0].ExternalIDs())
				if err != nil {
					return Token{}, err
				}
				if len(second) > 1 {
					return c.conflict(rs, col, name, ids), nil
				}
				provisional := tok
				tok = c.materialize(rs, col, t, found[0], name, person)
				t.merge(provisional, tok)
				c.log.Debug("provisional entity upgraded",
					zap.String("kind", string(kind)), zap.Stringer("from", provisional), zap.Stringer("into", tok))
			}
		}

	default:
		found, err := c.findRemote(ctx, kind, ids)
		if err != nil {
			return Token{}, err
		}
		switch len(found) {
		case 0:
			tok = t.mint(name)
		case 1:
			second, err := c.findRemote(ctx, kind, found[0].ExternalIDs())
			if err != nil {
				return Token{}, err
			}
			if len(second) > 1 {
				return c.conflict(rs, col, name, ids), nil
			}
			tok = c.materialize(rs, col, t, found[0], name, person)
		default:
			return c.conflict(rs, col, name, ids), nil
		}
	}

	c.settle(rs, col, t, tok, name, ids, person)
	return tok, nil
}

// settle attaches ids to the winning record and fills in its title. A
// persisted venue or agent is marked as existing in its column; the id
// column is marked when the row is equalized.
func (c *Curator) settle(rs *rowState, col reference.Column, t *table, tok Token, name string, ids []identifier.ID, person bool) {
	for _, id := range ids {
		if owner, ok := t.attach(tok, id); !ok {
			c.audit.info(rs.index, col, fmt.Sprintf("%s already belongs to %s/%s", id, t.kind, owner))
			c.log.Info("identifier owned by another entity",
				zap.Int("row", rs.index), zap.String("column", string(col)),
				zap.Stringer("identifier", id), zap.Stringer("owner", owner), zap.Stringer("entity", tok))
		}
	}
	if tok.Persisted() && col != reference.ColumnID {
		c.audit.exists(rs.index, col)
	}
	rec := t.get(tok)
	if rec == nil {
		return
	}
	if rec.title == "" {
		rec.title = name
	}
	if person {
		rec.title = normalize.NameCheck(rec.title, name)
	}
}

// materialize registers a persisted entity from the knowledge store in the
// batch and returns its token.
func (c *Curator) materialize(rs *rowState, col reference.Column, t *table, ent resolver.Entity, name string, person bool) Token {
	tok := persisted(ent.ID)
	if !t.has(tok) {
		title := ent.Title
		if person {
			title = normalize.NameCheck(title, name)
		}
		t.add(tok, title)
	}
	for _, x := range ent.IDs {
		if x.ID.IsMeta() {
			continue
		}
		if x.LocalID != "" {
			c.idIndex[t.kind][x.ID] = x.LocalID
		}
		if owner, ok := t.attach(tok, x.ID); !ok && rs != nil {
			c.log.Warn("stored identifier owned by another entity",
				zap.Int("row", rs.index), zap.String("column", string(col)),
				zap.Stringer("identifier", x.ID), zap.Stringer("owner", owner), zap.Stringer("entity", tok))
		}
	}
	return tok
}

// findRemote looks ids up in the knowledge store and returns the distinct
// entities found, stopping once remoteLimit entities are known.
func (c *Curator) findRemote(ctx context.Context, kind reference.Kind, ids []identifier.ID) ([]resolver.Entity, error) {
	var found []resolver.Entity
	seen := make(map[string]bool)
	for _, id := range ids {
		if len(found) >= remoteLimit {
			break
		}
		if id.IsMeta() {
			continue
		}
		res, err := c.res.FindEntityByExternalID(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		for _, e := range res {
			if !seen[e.ID] {
				seen[e.ID] = true
				found = append(found, e)
			}
		}
	}
	return found, nil
}

// conflict quarantines ids in a new conflict record and logs it against the
// row. The returned token stands in for the row's entity.
func (c *Curator) conflict(rs *rowState, col reference.Column, name string, ids []identifier.ID) Token {
	kind := reference.KindFor(col)
	t := c.conflicts(kind)
	tok := t.mint(name)
	sources := make([]string, len(ids))
	for i, id := range ids {
		t.attach(tok, id)
		sources[i] = id.String()
	}
	c.audit.conflict(rs.index, col, kind, tok, sources)
	c.metrics.Conflict(string(kind))
	c.log.Warn("identity conflict",
		zap.Int("row", rs.index),
		zap.String("column", string(col)),
		zap.String("kind", string(kind)),
		zap.Stringer("conflict", tok),
		zap.Strings("identifiers", sources))
	return tok
}
