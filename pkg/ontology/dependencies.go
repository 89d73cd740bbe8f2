package ontology

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/rdf"
)

// DependencyOptions controls which IRIs count as dependencies of an artifact.
type DependencyOptions struct {
	// Prefixes is the artifact's own prefix table. It overrides the
	// well-known bindings.
	Prefixes map[string]string
	// ArtifactIRI is the artifact's own identity; it never depends on itself.
	ArtifactIRI string
	// Snapshot is used to infer kinds. When nil every dependency gets
	// ElementKindOther and is reclassified later by validation.
	Snapshot *models.GraphSnapshot
	// IgnoreIRIs are never collected.
	IgnoreIRIs []string
	// IgnoreNamespaces drop every IRI that starts with one of them.
	IgnoreNamespaces []string
	// BookkeepingTypes are skipped only as the object of rdf:type.
	BookkeepingTypes []string
}

// DefaultIgnoreNamespaces are the W3C vocabularies every ontology uses.
var DefaultIgnoreNamespaces = []string{
	rdf.NamespaceRDF,
	rdf.NamespaceRDFS,
	rdf.NamespaceOWL,
	rdf.NamespaceXSD,
}

// DefaultBookkeepingTypes are generic container classes used only to tag
// artifact statements.
var DefaultBookkeepingTypes = []string{
	rdf.OWLNamedIndividual,
	rdf.OWLThing,
	rdf.RDFSResource,
}

// DefaultDependencyOptions returns options with the default ignore lists.
func DefaultDependencyOptions() DependencyOptions {
	return DependencyOptions{
		IgnoreNamespaces: append([]string(nil), DefaultIgnoreNamespaces...),
		BookkeepingTypes: append([]string(nil), DefaultBookkeepingTypes...),
	}
}

// ExtractDependencies collects the ontology elements referenced by an
// artifact's statements.
//
// Subjects, predicates and objects are resolved against opts.Prefixes laid
// over the well-known rdf, rdfs, owl, xsd and skos bindings.
// Literals and blank nodes are skipped. The result is in first-seen order
// with no duplicate IRIs, and the first inferred kind for an IRI is kept.
// An unresolvable term aborts extraction with the statement index attached.
func ExtractDependencies(statements []models.Triple, opts DependencyOptions) ([]models.ElementRef, error) {
	ignore := make(map[string]bool, len(opts.IgnoreIRIs)+1)
	for _, iri := range opts.IgnoreIRIs {
		ignore[iri] = true
	}
	if opts.ArtifactIRI != "" {
		ignore[opts.ArtifactIRI] = true
	}
	bookkeeping := make(map[string]bool, len(opts.BookkeepingTypes))
	for _, iri := range opts.BookkeepingTypes {
		bookkeeping[iri] = true
	}

	prefixes := rdf.MergePrefixes(rdf.DefaultPrefixes(), opts.Prefixes)
	seen := make(map[string]bool)
	var refs []models.ElementRef

	collect := func(term rdf.Term) {
		if !term.IsIRI() || ignore[term.Value] || seen[term.Value] {
			return
		}
		if hasAnyPrefix(term.Value, opts.IgnoreNamespaces) {
			return
		}
		seen[term.Value] = true
		refs = append(refs, models.ElementRef{IRI: term.Value, Kind: inferKind(opts.Snapshot, term.Value)})
	}

	for i, st := range statements {
		subject, err := rdf.ParseTerm(prefixes, st.Subject)
		if err != nil {
			return nil, fmt.Errorf("statement %d subject: %w", i, err)
		}
		predicate, err := rdf.ParseTerm(prefixes, st.Predicate)
		if err != nil {
			return nil, fmt.Errorf("statement %d predicate: %w", i, err)
		}
		object, err := rdf.ParseTerm(prefixes, st.Object)
		if err != nil {
			return nil, fmt.Errorf("statement %d object: %w", i, err)
		}

		collect(subject)
		collect(predicate)
		if predicate.Value == rdf.RDFType && bookkeeping[object.Value] {
			continue
		}
		collect(object)
	}
	return refs, nil
}

// TriplesFromDocument converts parsed statements into artifact triples using
// absolute term syntax, so they resolve without a prefix table.
func TriplesFromDocument(doc *rdf.Document) []models.Triple {
	triples := make([]models.Triple, 0, len(doc.Statements))
	for _, st := range doc.Statements {
		triples = append(triples, models.Triple{
			Subject:   st.Subject.String(),
			Predicate: st.Predicate.String(),
			Object:    st.Object.String(),
		})
	}
	return triples
}

func inferKind(snapshot *models.GraphSnapshot, iri string) models.ElementKind {
	if snapshot == nil {
		return models.ElementKindOther
	}
	if el, ok := snapshot.Get(iri); ok {
		return el.Kind
	}
	return models.ElementKindOther
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
