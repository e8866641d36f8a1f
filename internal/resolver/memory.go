package resolver

import (
	"context"
	"sync"

	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
)

type roleKey struct {
	br   string
	role reference.Role
}

// Memory is an in-memory Resolver. It backs dry runs over an empty store and
// seeds persisted state in tests.
type Memory struct {
	mu sync.RWMutex

	// Err, when set, is returned (wrapped as unavailable) by every lookup.
	Err error

	entities     map[reference.Kind][]Entity
	contributors map[roleKey][]Contributor
	venues       map[string]*VenueTree
	pages        map[string]PageRange
	records      map[string]FullRecord
}

// NewMemory returns an empty in-memory resolver.
func NewMemory() *Memory {
	return &Memory{
		entities:     make(map[reference.Kind][]Entity),
		contributors: make(map[roleKey][]Contributor),
		venues:       make(map[string]*VenueTree),
		pages:        make(map[string]PageRange),
		records:      make(map[string]FullRecord),
	}
}

// AddEntity registers a persisted entity of kind.
func (m *Memory) AddEntity(kind reference.Kind, e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[kind] = append(m.entities[kind], e)
}

// SetContributors registers the ordered contributor chain of brID for role.
func (m *Memory) SetContributors(brID string, role reference.Role, chain []Contributor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributors[roleKey{brID, role}] = chain
}

// SetVenueTree registers the volumes and issues of a venue.
func (m *Memory) SetVenueTree(brID string, tree *VenueTree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venues[brID] = tree.Clone()
}

// SetPageRange registers the page embodiment of brID.
func (m *Memory) SetPageRange(brID string, pr PageRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[brID] = pr
}

// SetFullRecord registers the known field values of brID.
func (m *Memory) SetFullRecord(brID string, rec FullRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[brID] = rec
}

func (m *Memory) fail(op string) error {
	if m.Err != nil {
		return Unavailable(op, m.Err)
	}
	return nil
}

func (m *Memory) FindEntityByExternalID(ctx context.Context, kind reference.Kind, id identifier.ID) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find entity by external id"); err != nil {
		return nil, err
	}
	var out []Entity
	for _, e := range m.entities[kind] {
		for _, x := range e.IDs {
			if x.ID == id {
				out = append(out, copyEntity(e))
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) FindEntityByCanonicalID(ctx context.Context, kind reference.Kind, id string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find entity by canonical id"); err != nil {
		return nil, err
	}
	for _, e := range m.entities[kind] {
		if e.ID == id {
			c := copyEntity(e)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindIdentifierID(ctx context.Context, kind reference.Kind, id identifier.ID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find identifier id"); err != nil {
		return "", err
	}
	for _, e := range m.entities[kind] {
		for _, x := range e.IDs {
			if x.ID == id {
				return x.LocalID, nil
			}
		}
	}
	return "", nil
}

func (m *Memory) FindOrderedContributors(ctx context.Context, brID string, role reference.Role) ([]Contributor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find ordered contributors"); err != nil {
		return nil, err
	}
	chain := m.contributors[roleKey{brID, role}]
	out := make([]Contributor, len(chain))
	copy(out, chain)
	return out, nil
}

func (m *Memory) FindVenueTree(ctx context.Context, brID string) (*VenueTree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find venue tree"); err != nil {
		return nil, err
	}
	tree, ok := m.venues[brID]
	if !ok {
		return nil, nil
	}
	return tree.Clone(), nil
}

func (m *Memory) FindPageRange(ctx context.Context, brID string) (*PageRange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find page range"); err != nil {
		return nil, err
	}
	pr, ok := m.pages[brID]
	if !ok {
		return nil, nil
	}
	return &pr, nil
}

func (m *Memory) FindFullRecord(ctx context.Context, brID string) (*FullRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("find full record"); err != nil {
		return nil, err
	}
	rec, ok := m.records[brID]
	if !ok {
		return nil, nil
	}
	if rec.Page == nil {
		if pr, ok := m.pages[brID]; ok {
			rec.Page = &pr
		}
	}
	return &rec, nil
}

func copyEntity(e Entity) Entity {
	ids := make([]Identifier, len(e.IDs))
	copy(ids, e.IDs)
	e.IDs = ids
	return e
}
