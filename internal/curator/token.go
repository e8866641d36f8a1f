package curator

import "strconv"

// Token identifies an entity during a batch. A persisted token carries the
// canonical id minted by an earlier batch; a provisional token carries a
// batch-local sequence number and is replaced at canonicalization.
type Token struct {
	ID  string
	Seq int
}

func persisted(id string) Token {
	return Token{ID: id}
}

// Persisted reports whether the token carries a canonical id.
func (t Token) Persisted() bool {
	return t.ID != ""
}

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool {
	return t.ID == "" && t.Seq == 0
}

func (t Token) String() string {
	if t.Persisted() {
		return t.ID
	}
	return "wannabe_" + strconv.Itoa(t.Seq)
}
