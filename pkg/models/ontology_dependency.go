package models

import (
	"time"

	"github.com/google/uuid"
)

// Triple is one statement of an artifact. Terms use Turtle term syntax:
// <absolute>, prefix:local, the keyword "a", quoted literals, or _:blank.
type Triple struct {
	Subject   string `json:"subject" validate:"required"`
	Predicate string `json:"predicate" validate:"required"`
	Object    string `json:"object" validate:"required"`
}

// Artifact is a derived knowledge artifact (microtheory): a bounded set of
// statements scoped to one ontology graph.
type Artifact struct {
	ID               uuid.UUID         `json:"id"`
	ProjectID        uuid.UUID         `json:"project_id"`
	OntologyGraphIRI string            `json:"ontology_graph_iri"`
	IRI              string            `json:"iri,omitempty"`
	Prefixes         map[string]string `json:"prefixes,omitempty"`
	Statements       []Triple          `json:"statements"`
}

// ElementRef is an ontology element referenced by an artifact, as produced by
// dependency extraction.
type ElementRef struct {
	IRI  string      `json:"iri"`
	Kind ElementKind `json:"kind"`
}

// NeedsReclassification reports whether the kind could not be inferred at
// extraction time.
func (r ElementRef) NeedsReclassification() bool {
	return r.Kind == ElementKindOther
}

// DependencyEdge is a persisted fact that an artifact references an element.
// Unique on (ArtifactID, ElementIRI).
type DependencyEdge struct {
	ArtifactID       uuid.UUID   `json:"artifact_id"`
	ProjectID        uuid.UUID   `json:"project_id"`
	ElementIRI       string      `json:"element_iri"`
	OntologyGraphIRI string      `json:"ontology_graph_iri"`
	ElementKind      ElementKind `json:"element_type"`
	FirstDetectedAt  time.Time   `json:"first_detected_at"`
	LastValidatedAt  *time.Time  `json:"last_validated_at,omitempty"`
	IsValid          bool        `json:"is_valid"`
}

// ValidationReport is the outcome of re-checking an artifact's edges against
// fresh graph snapshots. Incomplete is set when the run hit its deadline; in
// that case Valid+Invalid is less than Total.
type ValidationReport struct {
	ArtifactID   uuid.UUID        `json:"artifact_id"`
	Total        int              `json:"total"`
	Valid        int              `json:"valid"`
	Invalid      int              `json:"invalid"`
	Broken       []DependencyEdge `json:"broken"`
	Reclassified int              `json:"reclassified,omitempty"`
	Incomplete   bool             `json:"incomplete"`
	ValidatedAt  time.Time        `json:"validated_at"`
}

// ValidityCounts summarizes dependency rows by validity for a project.
type ValidityCounts struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}
