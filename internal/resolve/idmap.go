package resolve

import (
	"github.com/google/uuid"

	"github.com/mesh-intelligence/boxport/pkg/types"
)

// newID generates a UUID v7 string, falling back to v4 if v7 generation
// fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IDMap assigns destination identities to raw source identities, per entity
// kind, in first-seen order. It is built while kinds are processed in
// dependency order and consulted for every reference rewrite afterwards.
type IDMap struct {
	byKind map[types.EntityKind]map[string]string
}

// NewIDMap returns an empty map.
func NewIDMap() *IDMap {
	return &IDMap{byKind: make(map[types.EntityKind]map[string]string)}
}

// Assign returns the destination ID for a raw ID, creating one on first
// sight.
func (m *IDMap) Assign(kind types.EntityKind, rawID string) string {
	kinds := m.byKind[kind]
	if kinds == nil {
		kinds = make(map[string]string)
		m.byKind[kind] = kinds
	}
	if id, ok := kinds[rawID]; ok {
		return id
	}
	id := newID()
	kinds[rawID] = id
	return id
}

// Lookup returns the destination ID for a raw ID without creating one.
func (m *IDMap) Lookup(kind types.EntityKind, rawID string) (string, bool) {
	id, ok := m.byKind[kind][rawID]
	return id, ok
}

// Len returns how many raw IDs of a kind have been assigned.
func (m *IDMap) Len(kind types.EntityKind) int {
	return len(m.byKind[kind])
}
