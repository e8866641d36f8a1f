package curator

import (
	"context"

	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/normalize"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// curateVenue resolves the row's venue and places the row's volume and issue
// in the venue tree.
func (c *Curator) curateVenue(ctx context.Context, rs *rowState) error {
	r := &rs.row
	if r.Venue == "" {
		r.Volume = ""
		r.Issue = ""
		c.describe(rs.br, r.Type, r.PubDate, "", Token{})
		return nil
	}

	venue, err := c.venueToken(ctx, rs)
	if err != nil {
		return err
	}
	rs.venue = venue
	tree := c.tree(venue)
	c.describe(venue, containerType(r.Type), "", "", Token{})

	var vol *volumeNode
	var label string
	container := venue

	switch {
	case r.Volume != "" && (r.Type == reference.TypeJournalIssue || r.Type == reference.TypeJournalArticle):
		volLabel := normalize.CleanLabel(r.Volume)
		r.Volume = volLabel
		node, ok := tree.volumes[volLabel]
		if !ok {
			node = &volumeNode{id: c.br.mint(""), issues: make(map[string]Token)}
			tree.volumes[volLabel] = node
		}
		vol = node
		c.describe(node.id, reference.TypeJournalVolume, "", volLabel, venue)
		container = node.id

	case r.Volume != "" && r.Type == reference.TypeJournalVolume:
		label = normalize.CleanLabel(r.Volume)
		r.Volume = ""
		r.Issue = ""
		node, ok := tree.volumes[label]
		if !ok {
			node = &volumeNode{id: rs.br, issues: make(map[string]Token)}
			tree.volumes[label] = node
		} else if node.id, err = c.claimLabel(ctx, rs, node.id, rs.br); err != nil {
			return err
		}
	}

	issues := tree.issues
	if vol != nil {
		issues = vol.issues
	}
	switch {
	case r.Issue != "" && r.Type == reference.TypeJournalArticle:
		issueLabel := normalize.CleanLabel(r.Issue)
		r.Issue = issueLabel
		id, ok := issues[issueLabel]
		if !ok {
			id = c.br.mint("")
			issues[issueLabel] = id
		}
		c.describe(id, reference.TypeJournalIssue, "", issueLabel, container)
		container = id

	case r.Issue != "" && r.Type == reference.TypeJournalIssue:
		label = normalize.CleanLabel(r.Issue)
		r.Issue = ""
		if current, ok := issues[label]; ok {
			if issues[label], err = c.claimLabel(ctx, rs, current, rs.br); err != nil {
				return err
			}
		} else {
			issues[label] = rs.br
		}
	}

	c.describe(rs.br, r.Type, r.PubDate, label, container)
	return nil
}

// venueToken resolves the venue of a row and makes sure its tree exists,
// loading the stored tree of a persisted venue.
func (c *Curator) venueToken(ctx context.Context, rs *rowState) (Token, error) {
	name, rawIDs, ok := normalize.SplitBracketed(rs.row.Venue)
	name = normalize.CleanTitle(name)
	if !ok {
		venue := c.br.mint(name)
		c.addTree(venue, newVenueTree())
		return venue, nil
	}

	list := c.parseIDs(rs, reference.ColumnVenue, rawIDs, reference.KindBR)
	venue, err := c.resolveEntity(ctx, rs, reference.ColumnVenue, name, list)
	if err != nil {
		return Token{}, err
	}
	if _, ok := c.trees[c.br.find(venue)]; !ok {
		c.addTree(venue, newVenueTree())
	}
	if err := c.loadTree(ctx, rs, c.br.find(venue)); err != nil {
		return Token{}, err
	}
	return venue, nil
}

// loadTree folds the stored tree of a persisted venue into its batch tree,
// once per venue. The venue may already hold a tree moved onto it by a merge;
// stored ids then take over the labels that tree bound provisionally.
func (c *Curator) loadTree(ctx context.Context, rs *rowState, venue Token) error {
	if !venue.Persisted() || c.loaded[venue] {
		return nil
	}
	c.loaded[venue] = true
	stored, err := c.res.FindVenueTree(ctx, venue.ID)
	if err != nil || stored == nil {
		return err
	}

	tree := c.trees[venue]
	for label, node := range treeFromStore(stored).volumes {
		existing, ok := tree.volumes[label]
		if !ok {
			tree.volumes[label] = node
			continue
		}
		if existing.id, err = c.preferStored(ctx, rs, existing.id, node.id); err != nil {
			return err
		}
		if err := c.foldIssues(ctx, rs, existing.issues, node.issues); err != nil {
			return err
		}
	}
	stray := make(map[string]Token, len(stored.Issues))
	for label, id := range stored.Issues {
		stray[label] = persisted(id)
	}
	return c.foldIssues(ctx, rs, tree.issues, stray)
}

func (c *Curator) foldIssues(ctx context.Context, rs *rowState, dst, stored map[string]Token) error {
	for label, id := range stored {
		cur, ok := dst[label]
		if !ok {
			dst[label] = id
			continue
		}
		tok, err := c.preferStored(ctx, rs, cur, id)
		if err != nil {
			return err
		}
		dst[label] = tok
	}
	return nil
}

// preferStored settles a label bound to cur in the batch and to stored in the
// knowledge store. A provisional cur is merged into stored; a different
// persisted cur keeps the label.
func (c *Curator) preferStored(ctx context.Context, rs *rowState, cur, stored Token) (Token, error) {
	cur = c.br.find(cur)
	switch {
	case cur == stored:
		return cur, nil
	case !cur.Persisted():
		if err := c.ensureLocal(ctx, stored); err != nil {
			return Token{}, err
		}
		c.br.merge(cur, stored)
		return stored, nil
	}
	c.audit.info(rs.index, reference.ColumnVenue, "label stored for br/"+stored.ID)
	c.log.Warn("label bound to another persisted resource than the stored one",
		zap.Int("row", rs.index), zap.Stringer("stored", stored), zap.Stringer("holder", cur))
	return cur, nil
}

func (c *Curator) addTree(venue Token, tree *venueTree) {
	venue = c.br.find(venue)
	c.trees[venue] = tree
	c.treeOrder = append(c.treeOrder, venue)
}

// tree returns the tree of venue, following merges.
func (c *Curator) tree(venue Token) *venueTree {
	return c.trees[c.br.find(venue)]
}

func treeFromStore(stored *resolver.VenueTree) *venueTree {
	tree := newVenueTree()
	for label, vol := range stored.Volumes {
		node := &volumeNode{id: persisted(vol.ID), issues: make(map[string]Token)}
		for l, id := range vol.Issues {
			node.issues[l] = persisted(id)
		}
		tree.volumes[label] = node
	}
	for label, id := range stored.Issues {
		tree.issues[label] = persisted(id)
	}
	return tree
}

// claimLabel decides which resource owns a volume or issue label that is
// already taken by current, now that the row's resource claims it too.
// Persisted resources win over provisional ones; two provisional ones are
// merged; two different persisted ones are left apart.
func (c *Curator) claimLabel(ctx context.Context, rs *rowState, current, claimant Token) (Token, error) {
	current, claimant = c.br.find(current), c.br.find(claimant)
	switch {
	case current == claimant:
		return current, nil
	case !current.Persisted():
		c.br.merge(current, claimant)
		return claimant, nil
	case !claimant.Persisted():
		if err := c.ensureLocal(ctx, current); err != nil {
			return Token{}, err
		}
		c.br.merge(claimant, current)
		return current, nil
	default:
		c.audit.info(rs.index, reference.ColumnVenue, "label already held by br/"+current.ID)
		c.log.Warn("label held by another persisted resource",
			zap.Int("row", rs.index), zap.Stringer("holder", current), zap.Stringer("claimant", claimant))
		return current, nil
	}
}

// ensureLocal registers a persisted resource known only from a venue tree.
func (c *Curator) ensureLocal(ctx context.Context, tok Token) error {
	if c.br.has(tok) {
		return nil
	}
	ent, err := c.res.FindEntityByCanonicalID(ctx, reference.KindBR, tok.ID)
	if err != nil {
		return err
	}
	if ent == nil {
		c.br.add(tok, "")
		return nil
	}
	c.materialize(nil, reference.ColumnVenue, c.br, *ent, "", false)
	return nil
}

// mergeTrees runs when a resource is folded into another. A venue tree of
// the absorbed resource moves to the survivor, label by label.
func (c *Curator) mergeTrees(from, into Token) {
	c.metrics.Merge(string(reference.KindBR))
	c.log.Debug("resource merged", zap.Stringer("from", from), zap.Stringer("into", into))

	src, ok := c.trees[from]
	if !ok {
		return
	}
	delete(c.trees, from)
	dst, ok := c.trees[into]
	if !ok {
		c.trees[into] = src
		c.treeOrder = append(c.treeOrder, into)
		return
	}
	for label, node := range src.volumes {
		existing, ok := dst.volumes[label]
		if !ok {
			dst.volumes[label] = node
			continue
		}
		existing.id = c.unify(existing.id, node.id)
		for l, id := range node.issues {
			if cur, ok := existing.issues[l]; ok {
				existing.issues[l] = c.unify(cur, id)
			} else {
				existing.issues[l] = id
			}
		}
	}
	for label, id := range src.issues {
		if cur, ok := dst.issues[label]; ok {
			dst.issues[label] = c.unify(cur, id)
		} else {
			dst.issues[label] = id
		}
	}
}

// unify merges two resources bound to the same label when at least one is
// provisional and returns the survivor.
func (c *Curator) unify(a, b Token) Token {
	a, b = c.br.find(a), c.br.find(b)
	switch {
	case a == b:
		return a
	case !b.Persisted() && c.br.has(a):
		c.br.merge(b, a)
		return a
	case !a.Persisted() && c.br.has(b):
		c.br.merge(a, b)
		return b
	}
	return a
}

// containerType is the type of the venue holding a resource of type t.
func containerType(t string) string {
	switch t {
	case reference.TypeJournalArticle, reference.TypeJournalIssue, reference.TypeJournalVolume:
		return reference.TypeJournal
	case "book chapter", "book part", "book section", "reference entry":
		return "book"
	case "proceedings article":
		return "proceedings"
	case "book":
		return "book series"
	}
	return ""
}
