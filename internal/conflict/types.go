// Package conflict reports quarantined identity conflicts: entities whose
// identifiers pointed at more than one existing entity and were set aside
// instead of merged.
package conflict

import (
	"github.com/matsen/bibmeta/internal/reference"
)

// Report lists the conflicts of one batch or of the whole store.
type Report struct {
	RunID string `json:"run_id,omitempty"`
	Items []Item `json:"items"`
}

// Item is one quarantined conflict entity.
type Item struct {
	Kind        reference.Kind `json:"kind"`
	ID          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
	Identifiers []string       `json:"identifiers"`

	// Rows of the batch that were pointed at this conflict. Empty for
	// reports built from the store.
	Rows []RowRef `json:"rows,omitempty"`

	// Candidates are the stored entities holding any of Identifiers.
	Candidates []Candidate `json:"candidates,omitempty"`

	Reason string `json:"reason,omitempty"` // Human-readable explanation
}

// RowRef points at a column of a batch row.
type RowRef struct {
	Row    int              `json:"row"`
	Column reference.Column `json:"column"`
}

// Candidate is a stored entity one of the conflict's identifiers resolves to.
type Candidate struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	MatchedBy []string `json:"matched_by"` // identifiers that led here
}
