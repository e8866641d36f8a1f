package curator

import (
	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// Result is a curated, canonicalized batch. It holds no provisional tokens
// apart from the merge history in Entity.MergedFrom.
type Result struct {
	RunID  string `json:"run_id"`
	Prefix string `json:"prefix"`

	// Rows are the input rows rewritten with canonical data, one per
	// resource: the first position and the last value of duplicates.
	Rows []reference.Row `json:"rows"`

	Entities  map[reference.Kind][]Entity `json:"entities"`
	Conflicts map[reference.Kind][]Entity `json:"conflicts"`

	Sequences   []Sequence                              `json:"sequences"`
	Venues      map[string]resolver.VenueTree           `json:"venues"`
	Pages       []Page                                  `json:"pages"`
	Identifiers map[reference.Kind]map[string]string    `json:"identifiers"`
	Resources   []Resource                              `json:"resources"`
	Audit       map[int]map[reference.Column]AuditEntry `json:"audit"`
	Minted      map[counter.Name]int                    `json:"minted"`
}

// Entity is a canonical bibliographic resource, agent, or conflict record.
type Entity struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	IDs   []identifier.ID `json:"ids"`
	// MergedFrom lists the provisional names of records folded into this one.
	MergedFrom []string `json:"merged_from,omitempty"`
	// Existing is true when the entity was persisted before the batch.
	Existing bool `json:"existing"`
}

// ExternalIDs returns the entity's identifiers without its canonical reference.
func (e Entity) ExternalIDs() []identifier.ID {
	var out []identifier.ID
	for _, id := range e.IDs {
		if !id.IsMeta() {
			out = append(out, id)
		}
	}
	return out
}

// Sequence is the ordered contributor list of a resource for one role.
type Sequence struct {
	BR      string         `json:"br"`
	Role    reference.Role `json:"role"`
	Entries []RoleRef      `json:"entries"`
}

// RoleRef is one position of a Sequence.
type RoleRef struct {
	ID    string `json:"id"`
	Agent string `json:"agent"`
}

// Page is the page embodiment of a resource.
type Page struct {
	BR    string `json:"br"`
	ID    string `json:"id"`
	Range string `json:"range"`
}

// Resource carries the containment facts of a resource.
type Resource struct {
	BR      string `json:"br"`
	Type    string `json:"type,omitempty"`
	PubDate string `json:"pub_date,omitempty"`
	PartOf  string `json:"part_of,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Entity returns the entity of kind with canonical id, from either the
// entity or the conflict list.
func (r *Result) Entity(kind reference.Kind, id string) (Entity, bool) {
	for _, list := range [][]Entity{r.Entities[kind], r.Conflicts[kind]} {
		for _, e := range list {
			if e.ID == id {
				return e, true
			}
		}
	}
	return Entity{}, false
}

// IsConflict reports whether id is a conflict record of kind.
func (r *Result) IsConflict(kind reference.Kind, id string) bool {
	for _, e := range r.Conflicts[kind] {
		if e.ID == id {
			return true
		}
	}
	return false
}
