package curator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/normalize"
	"github.com/matsen/bibmeta/internal/reference"
)

// equalColumns are the fields made equal across rows about one resource.
var equalColumns = []reference.Column{
	reference.ColumnPubDate,
	reference.ColumnPage,
	reference.ColumnType,
	reference.ColumnVenue,
	reference.ColumnVolume,
	reference.ColumnIssue,
}

// curateRow resolves the row's own resource and normalises its fields.
func (c *Curator) curateRow(ctx context.Context, rs *rowState) error {
	r := &rs.row
	r.Title = normalize.CleanTitle(r.Title)

	if strings.TrimSpace(r.ID) != "" {
		list := c.parseIDs(rs, reference.ColumnID, r.ID, reference.KindBR)
		tok, err := c.resolveEntity(ctx, rs, reference.ColumnID, r.Title, list)
		if err != nil {
			return err
		}
		rs.br = tok
	} else {
		rs.br = c.br.mint(r.Title)
	}

	if rs.br.Persisted() {
		if err := c.equalize(ctx, rs, rs.br); err != nil {
			return err
		}
	}
	c.normalizeFields(rs)
	return nil
}

// parseIDs parses an identifier list and logs the tokens it dropped.
func (c *Curator) parseIDs(rs *rowState, col reference.Column, raw string, kind reference.Kind) identifier.List {
	list := identifier.ParseList(raw, c.opts.Separator, kind)
	if len(list.Dropped) > 0 {
		c.audit.dropped(rs.index, col, list.Dropped...)
		c.metrics.Dropped(string(col))
		c.log.Debug("identifiers dropped",
			zap.Int("row", rs.index), zap.String("column", string(col)), zap.Strings("dropped", list.Dropped))
	}
	return list
}

// normalizeFields cleans page, date and type, dropping what cannot be read.
func (c *Curator) normalizeFields(rs *rowState) {
	r := &rs.row
	if r.Page != "" {
		r.Page = normalize.CleanPage(r.Page)
	}
	if r.PubDate != "" {
		if d := normalize.ParseDate(r.PubDate); d != "" {
			r.PubDate = d
		} else {
			c.drop(rs, reference.ColumnPubDate, r.PubDate)
			r.PubDate = ""
		}
	}
	if r.Type != "" {
		if t := normalize.NormalizeType(r.Type); t != "" {
			r.Type = t
		} else {
			c.drop(rs, reference.ColumnType, r.Type)
			r.Type = ""
		}
	}
}

func (c *Curator) drop(rs *rowState, col reference.Column, original string) {
	c.audit.status(rs.index, col, StatusDropped)
	c.audit.dropped(rs.index, col, original)
	c.metrics.Dropped(string(col))
	c.log.Debug("invalid value dropped",
		zap.Int("row", rs.index), zap.String("column", string(col)), zap.String("value", original))
}

// equalize overwrites the row's descriptive fields with what the knowledge
// store holds for the persisted resource tok.
func (c *Curator) equalize(ctx context.Context, rs *rowState, tok Token) error {
	c.audit.status(rs.index, reference.ColumnID, StatusExists)
	known, err := c.res.FindFullRecord(ctx, tok.ID)
	if err != nil {
		return err
	}
	if known == nil {
		return nil
	}
	r := &rs.row

	if r.Venue != "" && !sameVenue(r.Venue, known.Venue) {
		c.audit.status(rs.index, reference.ColumnVenue, StatusProposed)
	}
	r.Venue = known.Venue
	for _, f := range []struct {
		col   reference.Column
		field *string
		known string
	}{
		{reference.ColumnVolume, &r.Volume, known.Volume},
		{reference.ColumnIssue, &r.Issue, known.Issue},
	} {
		if *f.field != "" && normalize.CleanLabel(*f.field) != f.known {
			c.audit.status(rs.index, f.col, StatusProposed)
		}
		*f.field = f.known
	}

	c.propose(rs, reference.ColumnPubDate, &r.PubDate, known.PubDate, normalize.ParseDate)
	c.propose(rs, reference.ColumnType, &r.Type, known.Type, normalize.NormalizeType)

	if known.Page != nil {
		if r.Page != "" && normalize.CleanPage(r.Page) != known.Page.Range {
			c.audit.status(rs.index, reference.ColumnPage, StatusProposed)
		}
		r.Page = known.Page.Range
		c.addPage(tok, persisted(known.Page.ID), known.Page.Range)
	} else if r.Page != "" {
		c.audit.status(rs.index, reference.ColumnPage, StatusProposed)
	}
	return nil
}

// propose replaces *field with a known value. A differing row value, or a
// row value where nothing is known, is logged as a proposal.
func (c *Curator) propose(rs *rowState, col reference.Column, field *string, known string, clean func(string) string) {
	if known != "" {
		if *field != "" && clean(*field) != known {
			c.audit.status(rs.index, col, StatusProposed)
		}
		*field = known
		return
	}
	if *field != "" {
		c.audit.status(rs.index, col, StatusProposed)
	}
}

func sameVenue(a, b string) bool {
	na, _, _ := normalize.SplitBracketed(a)
	nb, _, _ := normalize.SplitBracketed(b)
	return normalize.CleanTitle(na) == normalize.CleanTitle(nb)
}

// checkEquality makes rows about the same resource agree. Rows whose
// provisional resource turned out to be persisted first take the stored
// values; then every field still differing within a resource takes its
// first non-empty value.
func (c *Curator) checkEquality(ctx context.Context) error {
	groups := make(map[Token][]*rowState)
	var order []Token
	for _, rs := range c.rows {
		tok := c.br.find(rs.br)
		if !rs.br.Persisted() && tok.Persisted() {
			rs.br = tok
			if err := c.equalize(ctx, rs, tok); err != nil {
				return err
			}
			c.normalizeFields(rs)
		}
		if _, ok := groups[tok]; !ok {
			order = append(order, tok)
		}
		groups[tok] = append(groups[tok], rs)
	}

	for _, tok := range order {
		group := groups[tok]
		if len(group) < 2 {
			continue
		}
		for _, col := range equalColumns {
			value := ""
			for _, rs := range group {
				if v := rs.row.Get(col); v != "" {
					value = v
					break
				}
			}
			if value == "" {
				continue
			}
			for _, rs := range group {
				v := rs.row.Get(col)
				if v == value {
					continue
				}
				if v != "" {
					c.audit.status(rs.index, col, StatusProposed)
				}
				rs.row.Set(col, value)
			}
		}
	}
	return nil
}

// addPage registers the page embodiment of a resource once.
func (c *Curator) addPage(br, id Token, rng string) {
	br = c.br.find(br)
	if _, ok := c.pages[br]; ok {
		return
	}
	c.pages[br] = &pageEntry{id: id, rng: rng}
	c.pageOrder = append(c.pageOrder, br)
}

// collectPages gives every resource with a page range one embodiment,
// reusing the stored one for persisted resources.
func (c *Curator) collectPages(ctx context.Context) error {
	for _, rs := range c.rows {
		br := c.br.find(rs.br)
		r := &rs.row
		if pe, ok := c.pages[br]; ok {
			r.Page = pe.rng
			continue
		}
		if r.Page == "" {
			continue
		}
		if br.Persisted() {
			pr, err := c.res.FindPageRange(ctx, br.ID)
			if err != nil {
				return err
			}
			if pr != nil {
				c.addPage(br, persisted(pr.ID), pr.Range)
				r.Page = pr.Range
				continue
			}
		}
		c.addPage(br, c.nextSeq(), r.Page)
	}
	return nil
}

