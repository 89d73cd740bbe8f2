package models

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// ChangeKind classifies an element-level difference between two snapshots.
type ChangeKind string

// Change kind constants.
const (
	ChangeKindAdded    ChangeKind = "added"
	ChangeKindDeleted  ChangeKind = "deleted"
	ChangeKindModified ChangeKind = "modified"
)

// ChangeRecord is one element-level difference. Before is nil for added
// elements and After is nil for deleted ones.
type ChangeRecord struct {
	Kind   ChangeKind         `json:"kind"`
	IRI    string             `json:"iri"`
	Before *ElementDescriptor `json:"before,omitempty"`
	After  *ElementDescriptor `json:"after,omitempty"`
}

// AffectsDependents reports whether artifacts referencing the element may be
// broken by this change. Added elements cannot have prior dependents.
func (c ChangeRecord) AffectsDependents() bool {
	return c.Kind == ChangeKindDeleted || c.Kind == ChangeKindModified
}

// ChangeSummary counts change records per kind.
type ChangeSummary struct {
	Added    int `json:"added"`
	Deleted  int `json:"deleted"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}

// ImpactSet is a deduplicated set of artifact IDs affected by a change set.
type ImpactSet map[uuid.UUID]struct{}

// NewImpactSet creates an ImpactSet from ids.
func NewImpactSet(ids ...uuid.UUID) ImpactSet {
	s := make(ImpactSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s ImpactSet) Add(id uuid.UUID) { s[id] = struct{}{} }

// Contains reports whether id is in the set.
func (s ImpactSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids ordered by their string form so responses are stable.
func (s ImpactSet) Sorted() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// MarshalJSON encodes the set as a sorted array of IDs.
func (s ImpactSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of IDs.
func (s *ImpactSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewImpactSet(ids...)
	return nil
}
