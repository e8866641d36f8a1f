package curator

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
)

var kinds = []reference.Kind{reference.KindBR, reference.KindRA}

type pendingID struct {
	kind reference.Kind
	id   identifier.ID
}

// canonicalize replaces every provisional token with a canonical id. All
// counter ranges are reserved before anything is rewritten, so a failed
// reservation leaves the batch untouched.
func (c *Curator) canonicalize(ctx context.Context) (map[counter.Name]int, error) {
	pending, err := c.pendingIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	plan := []struct {
		name   counter.Name
		tokens []Token
	}{
		{counter.BR, append(provisional(c.br), provisional(c.brConflicts)...)},
		{counter.RA, append(provisional(c.ra), provisional(c.raConflicts)...)},
		{counter.Role, c.roleOrder},
		{counter.Embodiment, c.provisionalPages()},
	}

	firsts := make(map[counter.Name]int64, len(plan)+1)
	minted := make(map[counter.Name]int, len(plan)+1)
	for _, p := range plan {
		minted[p.name] = len(p.tokens)
	}
	minted[counter.Identifier] = len(pending)
	for _, name := range counter.Names {
		n := minted[name]
		if n == 0 {
			continue
		}
		first, err := c.alloc.Reserve(name, n)
		if err != nil {
			return nil, fmt.Errorf("reserving %d %s ids: %w", n, name, err)
		}
		firsts[name] = first
	}

	c.canonical = make(map[Token]string)
	for _, p := range plan {
		for i, tok := range p.tokens {
			c.canonical[tok] = c.mintID(firsts[p.name], i)
		}
	}
	for i, p := range pending {
		c.idIndex[p.kind][p.id] = c.mintID(firsts[counter.Identifier], i)
	}

	for _, kind := range kinds {
		for _, t := range []*table{c.entities(kind), c.conflicts(kind)} {
			for _, rec := range t.live() {
				rec.ids = append(rec.ids, identifier.Meta(kind, c.canon(rec.token)))
			}
		}
	}

	for name, n := range minted {
		c.metrics.Minted(string(name), n)
	}
	c.log.Info("canonical ids minted",
		zap.Int("br", minted[counter.BR]),
		zap.Int("ra", minted[counter.RA]),
		zap.Int("ar", minted[counter.Role]),
		zap.Int("re", minted[counter.Embodiment]),
		zap.Int("id", minted[counter.Identifier]))
	return minted, nil
}

func (c *Curator) mintID(first int64, offset int) string {
	return c.opts.Prefix + strconv.FormatInt(first+int64(offset), 10)
}

// pendingIdentifiers returns the identifiers that need a new identifier
// entity. Identifiers the knowledge store already holds reuse theirs.
func (c *Curator) pendingIdentifiers(ctx context.Context) ([]pendingID, error) {
	var pending []pendingID
	seen := make(map[pendingID]bool)
	for _, kind := range kinds {
		index := c.idIndex[kind]
		for _, t := range []*table{c.entities(kind), c.conflicts(kind)} {
			for _, rec := range t.live() {
				for _, id := range rec.ids {
					p := pendingID{kind: kind, id: id}
					if id.IsMeta() || seen[p] {
						continue
					}
					seen[p] = true
					if _, ok := index[id]; ok {
						continue
					}
					local, err := c.res.FindIdentifierID(ctx, kind, id)
					if err != nil {
						return nil, err
					}
					if local != "" {
						index[id] = local
						continue
					}
					pending = append(pending, p)
				}
			}
		}
	}
	return pending, nil
}

// provisional returns the provisional live records of t in creation order.
func provisional(t *table) []Token {
	var out []Token
	for _, rec := range t.live() {
		if !rec.token.Persisted() {
			out = append(out, rec.token)
		}
	}
	return out
}

func (c *Curator) provisionalPages() []Token {
	var out []Token
	for _, br := range c.pageOrder {
		if pe := c.pages[br]; !pe.id.Persisted() {
			out = append(out, pe.id)
		}
	}
	return out
}

// canon returns the canonical id of tok after merges. It is only
// meaningful once canonicalize has run.
func (c *Curator) canon(tok Token) string {
	if tok.IsZero() {
		return ""
	}
	for _, t := range []*table{c.br, c.ra} {
		if f := t.find(tok); f != tok {
			tok = f
			break
		}
	}
	if tok.Persisted() {
		return tok.ID
	}
	if id, ok := c.canonical[tok]; ok {
		return id
	}
	return tok.String()
}
