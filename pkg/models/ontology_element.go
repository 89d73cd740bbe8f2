// Package models contains domain types for ontology-impact.
package models

import (
	"fmt"
	"sort"
	"time"
)

// ElementKind is the closed classification of an ontology element.
type ElementKind string

// Element kind constants. Unrecognized RDF types map to ElementKindOther.
const (
	ElementKindClass            ElementKind = "class"
	ElementKindObjectProperty   ElementKind = "object_property"
	ElementKindDatatypeProperty ElementKind = "datatype_property"
	ElementKindIndividual       ElementKind = "individual"
	ElementKindOther            ElementKind = "other"
)

// AllElementKinds lists the kinds in a stable order.
var AllElementKinds = []ElementKind{
	ElementKindClass,
	ElementKindObjectProperty,
	ElementKindDatatypeProperty,
	ElementKindIndividual,
	ElementKindOther,
}

// IsValid reports whether k is one of the known kinds.
func (k ElementKind) IsValid() bool {
	switch k {
	case ElementKindClass, ElementKindObjectProperty, ElementKindDatatypeProperty,
		ElementKindIndividual, ElementKindOther:
		return true
	}
	return false
}

// ParseElementKind converts a stored value back into an ElementKind.
// Unknown values become ElementKindOther.
func ParseElementKind(s string) ElementKind {
	k := ElementKind(s)
	if k.IsValid() {
		return k
	}
	return ElementKindOther
}

// ElementDescriptor is one ontology element as observed in a snapshot.
type ElementDescriptor struct {
	IRI   string      `json:"iri"`
	Kind  ElementKind `json:"kind"`
	Label *string     `json:"label,omitempty"`
}

// LabelValue returns the label or the empty string when absent.
func (d ElementDescriptor) LabelValue() string {
	if d.Label == nil {
		return ""
	}
	return *d.Label
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// KindConflict records a subject that was asserted with more than one mapped
// kind while building a snapshot. The kind with the highest precedence
// (Class, ObjectProperty, DatatypeProperty, Individual) is kept.
type KindConflict struct {
	IRI      string      `json:"iri"`
	Kept     ElementKind `json:"kept"`
	Rejected ElementKind `json:"rejected"`
}

// GraphSnapshot is an immutable point-in-time view of the elements of one
// named graph. Construct it with NewGraphSnapshot; the element map is private
// so callers cannot mutate a snapshot after extraction.
type GraphSnapshot struct {
	graphIRI   string
	capturedAt time.Time
	elements   map[string]ElementDescriptor
	conflicts  []KindConflict
}

// NewGraphSnapshot builds a snapshot from descriptors. A duplicate IRI is an
// error: extractors are responsible for resolving duplicates before calling.
func NewGraphSnapshot(graphIRI string, capturedAt time.Time, elements []ElementDescriptor, conflicts []KindConflict) (*GraphSnapshot, error) {
	m := make(map[string]ElementDescriptor, len(elements))
	for _, el := range elements {
		if _, dup := m[el.IRI]; dup {
			return nil, fmt.Errorf("duplicate element %q in snapshot of %s", el.IRI, graphIRI)
		}
		m[el.IRI] = copyDescriptor(el)
	}
	return &GraphSnapshot{
		graphIRI:   graphIRI,
		capturedAt: capturedAt,
		elements:   m,
		conflicts:  append([]KindConflict(nil), conflicts...),
	}, nil
}

// GraphIRI returns the named graph the snapshot was taken from.
func (s *GraphSnapshot) GraphIRI() string { return s.graphIRI }

// CapturedAt returns the capture timestamp.
func (s *GraphSnapshot) CapturedAt() time.Time { return s.capturedAt }

// Len returns the number of elements.
func (s *GraphSnapshot) Len() int { return len(s.elements) }

// Get returns a copy of the descriptor for iri.
func (s *GraphSnapshot) Get(iri string) (ElementDescriptor, bool) {
	d, ok := s.elements[iri]
	if !ok {
		return ElementDescriptor{}, false
	}
	return copyDescriptor(d), true
}

// Contains reports whether iri is an element of the snapshot.
func (s *GraphSnapshot) Contains(iri string) bool {
	_, ok := s.elements[iri]
	return ok
}

// IRIs returns the element IRIs sorted lexically.
func (s *GraphSnapshot) IRIs() []string {
	iris := make([]string, 0, len(s.elements))
	for iri := range s.elements {
		iris = append(iris, iri)
	}
	sort.Strings(iris)
	return iris
}

// Elements returns copies of all descriptors sorted by IRI.
func (s *GraphSnapshot) Elements() []ElementDescriptor {
	out := make([]ElementDescriptor, 0, len(s.elements))
	for _, iri := range s.IRIs() {
		out = append(out, copyDescriptor(s.elements[iri]))
	}
	return out
}

// Conflicts returns the kind conflicts observed during extraction.
func (s *GraphSnapshot) Conflicts() []KindConflict {
	return append([]KindConflict(nil), s.conflicts...)
}

func copyDescriptor(d ElementDescriptor) ElementDescriptor {
	if d.Label != nil {
		d.Label = StringPtr(*d.Label)
	}
	return d
}

// ElementRow is one solution of the graph-store element query: a typed IRI
// subject with its type and optional label. A subject appears once per
// (type, label) combination.
type ElementRow struct {
	IRI     string  `json:"iri"`
	TypeIRI string  `json:"type"`
	Label   *string `json:"label,omitempty"`

	// LabelPredicate is the predicate the label came from. Empty means rdfs:label.
	LabelPredicate string `json:"label_predicate,omitempty"`
	LabelLang      string `json:"label_lang,omitempty"`
}
