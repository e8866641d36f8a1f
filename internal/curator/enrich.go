package curator

import (
	"strings"

	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// result assembles the canonicalized batch.
func (c *Curator) result(minted map[counter.Name]int) *Result {
	res := &Result{
		RunID:       c.opts.RunID,
		Prefix:      c.opts.Prefix,
		Entities:    make(map[reference.Kind][]Entity),
		Conflicts:   make(map[reference.Kind][]Entity),
		Identifiers: make(map[reference.Kind]map[string]string),
		Minted:      minted,
	}

	for _, kind := range kinds {
		res.Entities[kind] = c.exportTable(c.entities(kind))
		res.Conflicts[kind] = c.exportTable(c.conflicts(kind))
		ids := make(map[string]string, len(c.idIndex[kind]))
		for id, local := range c.idIndex[kind] {
			ids[id.String()] = local
		}
		res.Identifiers[kind] = ids
	}

	res.Sequences = c.exportSequences()
	res.Venues = c.exportVenues()
	res.Pages = c.exportPages()
	res.Resources = c.exportResources()
	res.Audit = c.exportAudit()
	res.Rows = c.enrichRows()
	return res
}

func (c *Curator) exportTable(t *table) []Entity {
	var out []Entity
	for _, rec := range t.live() {
		e := Entity{
			ID:       c.canon(rec.token),
			Title:    rec.title,
			IDs:      append([]identifier.ID(nil), rec.ids...),
			Existing: rec.token.Persisted(),
		}
		for _, m := range rec.mergedFrom {
			e.MergedFrom = append(e.MergedFrom, m.String())
		}
		out = append(out, e)
	}
	return out
}

func (c *Curator) exportSequences() []Sequence {
	var out []Sequence
	seen := make(map[string]bool)
	for _, br := range c.seqOrder {
		id := c.canon(br)
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, role := range reference.Roles {
			seq, ok := c.sequences[br][role]
			if !ok || len(seq.entries) == 0 {
				continue
			}
			s := Sequence{BR: id, Role: role}
			for _, e := range seq.entries {
				s.Entries = append(s.Entries, RoleRef{ID: c.canon(e.role), Agent: c.canon(e.agent)})
			}
			out = append(out, s)
		}
	}
	return out
}

func (c *Curator) exportVenues() map[string]resolver.VenueTree {
	out := make(map[string]resolver.VenueTree)
	for _, venue := range c.treeOrder {
		tree, ok := c.trees[venue]
		if !ok {
			continue
		}
		id := c.canon(venue)
		if _, done := out[id]; done {
			continue
		}
		vt := resolver.NewVenueTree()
		for label, node := range tree.volumes {
			issues := make(map[string]string, len(node.issues))
			for l, tok := range node.issues {
				issues[l] = c.canon(tok)
			}
			vt.Volumes[label] = resolver.VolumeRef{ID: c.canon(node.id), Issues: issues}
		}
		for label, tok := range tree.issues {
			vt.Issues[label] = c.canon(tok)
		}
		out[id] = *vt
	}
	return out
}

func (c *Curator) exportPages() []Page {
	var out []Page
	seen := make(map[string]bool)
	for _, br := range c.pageOrder {
		pe := c.pages[br]
		id := c.canon(br)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Page{BR: id, ID: c.canon(pe.id), Range: pe.rng})
	}
	return out
}

func (c *Curator) exportResources() []Resource {
	var out []Resource
	index := make(map[string]int)
	for _, tok := range c.resourceOrder {
		r := c.resources[tok]
		res := Resource{
			BR:      c.canon(tok),
			Type:    r.typ,
			PubDate: r.pubDate,
			PartOf:  c.canon(r.partOf),
			Label:   r.label,
		}
		if res.PartOf == res.BR {
			res.PartOf = ""
		}
		i, ok := index[res.BR]
		if !ok {
			index[res.BR] = len(out)
			out = append(out, res)
			continue
		}
		prev := &out[i]
		if prev.Type == "" {
			prev.Type = res.Type
		}
		if prev.PubDate == "" {
			prev.PubDate = res.PubDate
		}
		if prev.PartOf == "" {
			prev.PartOf = res.PartOf
		}
		if prev.Label == "" {
			prev.Label = res.Label
		}
	}
	return out
}

// exportAudit keeps the rows with at least one entry and stamps each with
// the canonical id of its resource.
func (c *Curator) exportAudit() map[int]map[reference.Column]AuditEntry {
	out := make(map[int]map[reference.Column]AuditEntry)
	for _, rs := range c.rows {
		cols, ok := c.audit.rows[rs.index]
		if !ok {
			continue
		}
		row := make(map[reference.Column]AuditEntry, len(cols)+1)
		for col, e := range cols {
			entry := e.AuditEntry
			if !e.conflict.IsZero() {
				entry.Conflict = string(e.conflictKind) + "/" + c.canon(e.conflict)
			}
			row[col] = entry
		}
		idEntry := row[reference.ColumnID]
		idEntry.Meta = string(reference.KindBR) + "/" + c.canon(rs.br)
		row[reference.ColumnID] = idEntry
		out[rs.index] = row
	}
	return out
}

// enrichRows rewrites every row with canonical identifiers, titles and
// contributor lists, then keeps one row per resource.
func (c *Curator) enrichRows() []reference.Row {
	var out []reference.Row
	position := make(map[string]int)
	for _, rs := range c.rows {
		r := rs.row
		if rec := c.record(reference.KindBR, rs.br); rec != nil {
			r.ID = identifier.Join(rec.ids)
			r.Title = rec.title
		}
		for _, role := range reference.Roles {
			col := role.Column()
			if r.Get(col) == "" {
				continue
			}
			r.Set(col, c.renderContributors(rs.br, role))
		}
		if !rs.venue.IsZero() {
			if rec := c.record(reference.KindBR, rs.venue); rec != nil {
				r.Venue = render(rec.title, rec.ids)
			}
		}

		if i, ok := position[r.ID]; ok {
			out[i] = r
			continue
		}
		position[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func (c *Curator) renderContributors(br Token, role reference.Role) string {
	seq, ok := c.sequences[c.br.find(br)][role]
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(seq.entries))
	for _, e := range seq.entries {
		rec := c.record(reference.KindRA, e.agent)
		if rec == nil {
			continue
		}
		parts = append(parts, render(rec.title, rec.ids))
	}
	return strings.Join(parts, "; ")
}

// render formats an entity as "Title [scheme:value ...]".
func render(title string, ids []identifier.ID) string {
	return title + " [" + identifier.Join(ids) + "]"
}
