// Package resolver defines read-only lookups against the persisted knowledge
// store that earlier batches were written to.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
)

// ErrUnavailable indicates the knowledge store could not be queried.
// A batch that hits it must be abandoned and re-run.
var ErrUnavailable = errors.New("resolver unavailable")

// Unavailable wraps err so that IsUnavailable reports true for it.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsUnavailable reports whether err is a knowledge store failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Identifier is an external identifier together with the canonical id of the
// identifier entity that stores it.
type Identifier struct {
	LocalID string        `json:"local_id"`
	ID      identifier.ID `json:"id"`
}

// Entity is a persisted bibliographic resource or responsible agent.
type Entity struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	IDs   []Identifier `json:"ids"`
}

// ExternalIDs returns the entity's identifiers without their local ids.
func (e Entity) ExternalIDs() []identifier.ID {
	ids := make([]identifier.ID, len(e.IDs))
	for i, x := range e.IDs {
		ids[i] = x.ID
	}
	return ids
}

// Contributor is one entry of a persisted, ordered contributor sequence.
type Contributor struct {
	RoleID     string       `json:"role_id"`
	AgentID    string       `json:"agent_id"`
	AgentTitle string       `json:"agent_title"`
	IDs        []Identifier `json:"ids"`
}

// VolumeRef is a volume node of a venue tree.
type VolumeRef struct {
	ID     string            `json:"id"`
	Issues map[string]string `json:"issue"`
}

// VenueTree maps volume and issue labels under a venue to their canonical
// ids. Issues holds issues published directly under the venue.
type VenueTree struct {
	Volumes map[string]VolumeRef `json:"volume"`
	Issues  map[string]string    `json:"issue"`
}

// NewVenueTree returns an empty tree.
func NewVenueTree() *VenueTree {
	return &VenueTree{
		Volumes: make(map[string]VolumeRef),
		Issues:  make(map[string]string),
	}
}

// PageRange is a resource embodiment carrying a "start-end" page range.
type PageRange struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}

// FullRecord is what the store knows about a bibliographic resource. Venue is
// rendered "Title [meta:br/<id>]".
type FullRecord struct {
	Type    string     `json:"type"`
	PubDate string     `json:"pub_date"`
	Page    *PageRange `json:"page,omitempty"`
	Issue   string     `json:"issue"`
	Volume  string     `json:"volume"`
	Venue   string     `json:"venue"`
}

// Resolver answers lookups against persisted state. Absent results are not
// errors: a nil pointer or empty slice is returned instead. Any returned
// error is fatal for the batch in progress.
type Resolver interface {
	// FindEntityByExternalID returns every distinct entity of kind carrying id.
	FindEntityByExternalID(ctx context.Context, kind reference.Kind, id identifier.ID) ([]Entity, error)
	// FindEntityByCanonicalID returns the entity with the given canonical id.
	FindEntityByCanonicalID(ctx context.Context, kind reference.Kind, id string) (*Entity, error)
	// FindIdentifierID returns the canonical id of the identifier entity for id, or "".
	FindIdentifierID(ctx context.Context, kind reference.Kind, id identifier.ID) (string, error)
	// FindOrderedContributors returns the contributor chain of brID for role, in order.
	FindOrderedContributors(ctx context.Context, brID string, role reference.Role) ([]Contributor, error)
	// FindVenueTree returns the volumes and issues contained in a venue.
	FindVenueTree(ctx context.Context, brID string) (*VenueTree, error)
	// FindPageRange returns the page embodiment of brID.
	FindPageRange(ctx context.Context, brID string) (*PageRange, error)
	// FindFullRecord returns the known field values of brID.
	FindFullRecord(ctx context.Context, brID string) (*FullRecord, error)
}

// Clone returns a deep copy of the tree.
func (t *VenueTree) Clone() *VenueTree {
	c := NewVenueTree()
	if t == nil {
		return c
	}
	for label, vol := range t.Volumes {
		issues := make(map[string]string, len(vol.Issues))
		for l, id := range vol.Issues {
			issues[l] = id
		}
		c.Volumes[label] = VolumeRef{ID: vol.ID, Issues: issues}
	}
	for label, id := range t.Issues {
		c.Issues[label] = id
	}
	return c
}
