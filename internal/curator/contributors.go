package curator

import (
	"context"

	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/normalize"
	"github.com/matsen/bibmeta/internal/reference"
)

// curateContributors reconciles the row's contributors for role with the
// ordered sequence already known for the row's resource. New agents are
// appended; the known order is never changed.
func (c *Curator) curateContributors(ctx context.Context, rs *rowState, role reference.Role) error {
	col := role.Column()
	raw := rs.row.Get(col)
	parts := normalize.SplitContributors(raw)
	if len(parts) == 0 {
		return nil
	}

	br := c.br.find(rs.br)
	seq, err := c.sequenceFor(ctx, br, role)
	if err != nil {
		return err
	}

	var added []seqEntry
	reorder := false
	for pos, part := range parts {
		name, rawIDs, hasIDs := normalize.SplitBracketed(part)
		name = normalize.CleanName(name)

		var agent Token
		if !hasIDs {
			e, ok := c.entryByTitle(seq.entries, name)
			switch {
			case !ok:
				agent = c.ra.mint(name)
			case c.ra.find(e.agent).Persisted():
				list := identifier.List{Explicit: c.ra.find(e.agent).ID}
				if agent, err = c.resolveEntity(ctx, rs, col, name, list); err != nil {
					return err
				}
			default:
				agent = e.agent
			}
		} else {
			list := c.parseIDs(rs, col, rawIDs, reference.KindRA)
			if list.Explicit == "" {
				list.Explicit = c.knownAgent(seq.entries, list.IDs, name)
			}
			agent, err = c.resolveEntity(ctx, rs, col, name, list)
			if err != nil {
				return err
			}
		}

		if at := c.position(seq.entries, agent); at >= 0 {
			if at != pos {
				reorder = true
			}
			continue
		}
		if c.position(added, agent) >= 0 {
			continue
		}
		roleTok := c.nextSeq()
		c.roleOrder = append(c.roleOrder, roleTok)
		added = append(added, seqEntry{role: roleTok, agent: agent})
	}

	if reorder {
		c.audit.info(rs.index, col, InfoReorderRefused)
		c.metrics.RefusedReorder()
		c.log.Info("contributor reordering refused",
			zap.Int("row", rs.index), zap.String("role", string(role)), zap.Stringer("resource", br))
	}
	seq.entries = append(seq.entries, added...)
	return nil
}

// sequenceFor returns the contributor sequence of br for role, seeding it
// from the knowledge store the first time a persisted resource is seen.
func (c *Curator) sequenceFor(ctx context.Context, br Token, role reference.Role) (*sequence, error) {
	roles, ok := c.sequences[br]
	if !ok {
		roles = make(map[reference.Role]*sequence)
		c.sequences[br] = roles
		c.seqOrder = append(c.seqOrder, br)
	}
	if seq, ok := roles[role]; ok {
		return seq, nil
	}

	seq := &sequence{}
	roles[role] = seq
	if !br.Persisted() {
		return seq, nil
	}
	chain, err := c.res.FindOrderedContributors(ctx, br.ID, role)
	if err != nil {
		return nil, err
	}
	for _, ct := range chain {
		agent := persisted(ct.AgentID)
		if !c.ra.has(agent) {
			c.ra.add(agent, ct.AgentTitle)
		}
		for _, x := range ct.IDs {
			if x.ID.IsMeta() {
				continue
			}
			if x.LocalID != "" {
				c.idIndex[reference.KindRA][x.ID] = x.LocalID
			}
			c.ra.attach(agent, x.ID)
		}
		seq.entries = append(seq.entries, seqEntry{role: persisted(ct.RoleID), agent: agent})
	}
	return seq, nil
}

// entryByTitle finds a sequence entry whose agent carries name. Without
// identifiers this is the only way a name alone identifies an agent.
func (c *Curator) entryByTitle(entries []seqEntry, name string) (seqEntry, bool) {
	if name == "" {
		return seqEntry{}, false
	}
	for _, e := range entries {
		if rec := c.record(reference.KindRA, e.agent); rec != nil && rec.title == name {
			return e, true
		}
	}
	return seqEntry{}, false
}

// knownAgent returns the canonical id of a persisted agent in entries that
// holds one of ids or, failing that, carries name.
func (c *Curator) knownAgent(entries []seqEntry, ids []identifier.ID, name string) string {
	for _, e := range entries {
		agent := c.ra.find(e.agent)
		rec := c.ra.get(agent)
		if rec == nil || !agent.Persisted() {
			continue
		}
		for _, id := range ids {
			if identifier.Contains(rec.ids, id) {
				return agent.ID
			}
		}
	}
	if e, ok := c.entryByTitle(entries, name); ok {
		if agent := c.ra.find(e.agent); agent.Persisted() {
			return agent.ID
		}
	}
	return ""
}

// position returns the index of agent in entries, or -1.
func (c *Curator) position(entries []seqEntry, agent Token) int {
	agent = c.ra.find(agent)
	for i, e := range entries {
		if c.ra.find(e.agent) == agent {
			return i
		}
	}
	return -1
}
