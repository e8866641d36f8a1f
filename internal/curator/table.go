package curator

import (
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
)

// record is one entity of a table.
type record struct {
	token      Token
	title      string
	ids        []identifier.ID
	mergedFrom []Token
	absorbed   bool
}

// table is the arena of one entity kind. Records are never removed: a merged
// record is marked absorbed and its token redirects to the survivor.
//
// In an entity table every identifier is owned by at most one live record.
// Conflict tables keep their records' identifiers but never claim them, so
// conflicts never match and never merge.
type table struct {
	kind     reference.Kind
	conflict bool
	seq      *int

	records  []*record
	index    map[Token]int
	redirect map[Token]Token
	owner    map[identifier.ID]Token

	// onMerge runs after a record has been folded into another.
	onMerge func(from, into Token)
}

func newTable(kind reference.Kind, conflict bool, seq *int) *table {
	return &table{
		kind:     kind,
		conflict: conflict,
		seq:      seq,
		index:    make(map[Token]int),
		redirect: make(map[Token]Token),
		owner:    make(map[identifier.ID]Token),
	}
}

// find follows redirects to the live token tok was merged into.
func (t *table) find(tok Token) Token {
	root := tok
	for {
		next, ok := t.redirect[root]
		if !ok {
			break
		}
		root = next
	}
	for tok != root {
		next := t.redirect[tok]
		t.redirect[tok] = root
		tok = next
	}
	return root
}

// has reports whether tok (after redirects) is a live record of this table.
func (t *table) has(tok Token) bool {
	_, ok := t.index[t.find(tok)]
	return ok
}

func (t *table) get(tok Token) *record {
	i, ok := t.index[t.find(tok)]
	if !ok {
		return nil
	}
	return t.records[i]
}

// mint creates a provisional record.
func (t *table) mint(title string) Token {
	*t.seq++
	tok := Token{Seq: *t.seq}
	t.add(tok, title)
	return tok
}

// add creates a record for tok, which must not exist yet.
func (t *table) add(tok Token, title string) *record {
	rec := &record{token: tok, title: title}
	t.index[tok] = len(t.records)
	t.records = append(t.records, rec)
	return rec
}

// attach adds id to the record of tok. An identifier held by another
// provisional record pulls that record into tok. An identifier held by
// another persisted record is refused; its owner is returned with false.
func (t *table) attach(tok Token, id identifier.ID) (Token, bool) {
	tok = t.find(tok)
	rec := t.get(tok)
	if rec == nil {
		return Token{}, false
	}
	if t.conflict {
		if !identifier.Contains(rec.ids, id) {
			rec.ids = append(rec.ids, id)
		}
		return tok, true
	}
	if o, ok := t.owner[id]; ok {
		o = t.find(o)
		if o == tok {
			return tok, true
		}
		if o.Persisted() {
			return o, false
		}
		t.merge(o, tok)
		return tok, true
	}
	rec.ids = append(rec.ids, id)
	t.owner[id] = tok
	return tok, true
}

// merge folds the provisional record from into the record into. Identifiers,
// merge history and, when into has none, the title move over. Persisted
// records are never folded.
func (t *table) merge(from, into Token) bool {
	from, into = t.find(from), t.find(into)
	if from == into || from.Persisted() {
		return false
	}
	src, dst := t.get(from), t.get(into)
	if src == nil || dst == nil {
		return false
	}
	for _, id := range src.ids {
		if !identifier.Contains(dst.ids, id) {
			dst.ids = append(dst.ids, id)
		}
		if !t.conflict {
			t.owner[id] = into
		}
	}
	dst.mergedFrom = append(dst.mergedFrom, src.mergedFrom...)
	dst.mergedFrom = append(dst.mergedFrom, from)
	if dst.title == "" {
		dst.title = src.title
	}

	src.absorbed = true
	src.ids = nil
	src.mergedFrom = nil
	t.redirect[from] = into
	delete(t.index, from)

	if t.onMerge != nil {
		t.onMerge(from, into)
	}
	return true
}

// match returns the live records owning any of ids, persisted and
// provisional separately, in order of first appearance.
func (t *table) match(ids []identifier.ID) (persistedMatches, provisionalMatches []Token) {
	seen := make(map[Token]bool)
	for _, id := range ids {
		o, ok := t.owner[id]
		if !ok {
			continue
		}
		o = t.find(o)
		if seen[o] {
			continue
		}
		seen[o] = true
		if o.Persisted() {
			persistedMatches = append(persistedMatches, o)
		} else {
			provisionalMatches = append(provisionalMatches, o)
		}
	}
	return persistedMatches, provisionalMatches
}

// missing returns the ids not yet attached to tok.
func (t *table) missing(tok Token, ids []identifier.ID) []identifier.ID {
	rec := t.get(tok)
	var out []identifier.ID
	for _, id := range ids {
		if rec == nil || !identifier.Contains(rec.ids, id) {
			out = append(out, id)
		}
	}
	return out
}

// live returns the records that were not merged away, in creation order.
func (t *table) live() []*record {
	out := make([]*record, 0, len(t.index))
	for _, rec := range t.records {
		if !rec.absorbed {
			out = append(out, rec)
		}
	}
	return out
}
