// Package ontology builds graph snapshots from Turtle documents and
// graph-store query results, diffs snapshots, and extracts the ontology
// elements an artifact depends on. Everything here is pure computation.
package ontology

import (
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/rdf"
)

// strongKinds maps type IRIs that determine an element's kind.
var strongKinds = map[string]models.ElementKind{
	rdf.OWLClass:                                   models.ElementKindClass,
	rdf.RDFSClass:                                  models.ElementKindClass,
	rdf.OWLObjectProperty:                          models.ElementKindObjectProperty,
	rdf.NamespaceOWL + "TransitiveProperty":        models.ElementKindObjectProperty,
	rdf.NamespaceOWL + "SymmetricProperty":         models.ElementKindObjectProperty,
	rdf.NamespaceOWL + "AsymmetricProperty":        models.ElementKindObjectProperty,
	rdf.NamespaceOWL + "ReflexiveProperty":         models.ElementKindObjectProperty,
	rdf.NamespaceOWL + "IrreflexiveProperty":       models.ElementKindObjectProperty,
	rdf.NamespaceOWL + "InverseFunctionalProperty": models.ElementKindObjectProperty,
	rdf.OWLDatatypeProperty:                        models.ElementKindDatatypeProperty,
	rdf.OWLNamedIndividual:                         models.ElementKindIndividual,
}

// kindTypeIRI is the type written for each kind when serializing a snapshot.
var kindTypeIRI = map[models.ElementKind]string{
	models.ElementKindClass:            rdf.OWLClass,
	models.ElementKindObjectProperty:   rdf.OWLObjectProperty,
	models.ElementKindDatatypeProperty: rdf.OWLDatatypeProperty,
	models.ElementKindIndividual:       rdf.OWLNamedIndividual,
	models.ElementKindOther:            rdf.OWLAnnotationProperty,
}

// labelPriority ranks label predicates; higher wins.
var labelPriority = map[string]int{
	rdf.RDFSLabel:     2,
	rdf.SKOSPrefLabel: 1,
}

// kindPrecedence orders decisive kinds when a subject is asserted with more
// than one. The highest is kept whatever order the assertions arrive in.
var kindPrecedence = map[models.ElementKind]int{
	models.ElementKindClass:            4,
	models.ElementKindObjectProperty:   3,
	models.ElementKindDatatypeProperty: 2,
	models.ElementKindIndividual:       1,
}

// ClassifyType maps an rdf:type object to an element kind.
//
// The second result reports whether the kind is decisive. Mapped OWL/RDFS
// kinds and instances of user classes (Individual) are decisive. Any other
// type from the rdf, rdfs, or owl vocabularies (owl:AnnotationProperty,
// rdf:Property, owl:FunctionalProperty, owl:Ontology...) yields Other and is
// not decisive, so a later decisive assertion for the same subject replaces it.
func ClassifyType(typeIRI string) (models.ElementKind, bool) {
	if kind, ok := strongKinds[typeIRI]; ok {
		return kind, true
	}
	if isCoreVocabulary(typeIRI) {
		return models.ElementKindOther, false
	}
	return models.ElementKindIndividual, true
}

func isCoreVocabulary(iri string) bool {
	return strings.HasPrefix(iri, rdf.NamespaceRDF) ||
		strings.HasPrefix(iri, rdf.NamespaceRDFS) ||
		strings.HasPrefix(iri, rdf.NamespaceOWL)
}

// SnapshotFromDocument parses a Turtle document and folds its type and label
// assertions into a snapshot of graphIRI. Any syntax or prefix error aborts
// the extraction; no partial snapshot is returned.
func SnapshotFromDocument(graphIRI, document string) (*models.GraphSnapshot, error) {
	doc, err := rdf.Parse(document)
	if err != nil {
		return nil, err
	}

	b := newSnapshotBuilder()
	for _, st := range doc.Statements {
		if !st.Subject.IsIRI() {
			continue
		}
		switch {
		case st.Predicate.Value == rdf.RDFType && st.Object.IsIRI():
			b.addType(st.Subject.Value, st.Object.Value)
		case st.Object.Kind == rdf.TermLiteral:
			if _, ok := labelPriority[st.Predicate.Value]; ok {
				b.addLabel(st.Subject.Value, st.Predicate.Value, st.Object.Lang, st.Object.Value)
			}
		}
	}
	return b.build(graphIRI, time.Now().UTC())
}

// SnapshotFromRows maps graph-store query rows directly to a snapshot. Row
// IRIs are already absolute. The result does not depend on row order and
// equals SnapshotFromDocument of the same graph.
func SnapshotFromRows(graphIRI string, rows []models.ElementRow) (*models.GraphSnapshot, error) {
	b := newSnapshotBuilder()
	for _, row := range rows {
		if row.IRI == "" {
			continue
		}
		if row.TypeIRI != "" {
			b.addType(row.IRI, row.TypeIRI)
		}
		if row.Label != nil {
			predicate := row.LabelPredicate
			if predicate == "" {
				predicate = rdf.RDFSLabel
			}
			b.addLabel(row.IRI, predicate, row.LabelLang, *row.Label)
		}
	}
	return b.build(graphIRI, time.Now().UTC())
}

// SerializeSnapshot writes the snapshot as Turtle. Reading the output back
// with SnapshotFromDocument yields an equal snapshot.
func SerializeSnapshot(s *models.GraphSnapshot, prefixes map[string]string) string {
	w := rdf.NewTurtleWriter()
	for prefix, ns := range prefixes {
		w.SetPrefix(prefix, ns)
	}
	w.WritePrefixes()

	for _, el := range s.Elements() {
		pairs := [][2]rdf.Term{{rdf.NewIRI(rdf.RDFType), rdf.NewIRI(kindTypeIRI[el.Kind])}}
		if el.Label != nil {
			pairs = append(pairs, [2]rdf.Term{rdf.NewIRI(rdf.RDFSLabel), rdf.NewLiteral(*el.Label)})
		}
		w.WriteSubject(el.IRI, pairs)
	}
	return w.String()
}

type kindAssertion struct {
	kind     models.ElementKind
	decisive bool
}

type labelAssertion struct {
	value    string
	priority int
	langRank int
}

// outranks orders label candidates: predicate priority, then untagged over
// English over other languages, then the lexically smallest value.
func (l labelAssertion) outranks(other labelAssertion) bool {
	if l.priority != other.priority {
		return l.priority > other.priority
	}
	if l.langRank != other.langRank {
		return l.langRank < other.langRank
	}
	return l.value < other.value
}

func langRank(lang string) int {
	lang = strings.ToLower(lang)
	switch {
	case lang == "":
		return 0
	case lang == "en" || strings.HasPrefix(lang, "en-"):
		return 1
	default:
		return 2
	}
}

// snapshotBuilder folds type and label assertions into descriptors. The
// chosen kind and label are independent of assertion order.
type snapshotBuilder struct {
	kinds    map[string]kindAssertion
	rejected map[string]map[models.ElementKind]bool
	labels   map[string]labelAssertion
}

func newSnapshotBuilder() *snapshotBuilder {
	return &snapshotBuilder{
		kinds:    make(map[string]kindAssertion),
		rejected: make(map[string]map[models.ElementKind]bool),
		labels:   make(map[string]labelAssertion),
	}
}

func (b *snapshotBuilder) addType(subject, typeIRI string) {
	kind, decisive := ClassifyType(typeIRI)
	current, exists := b.kinds[subject]

	switch {
	case !exists:
		b.kinds[subject] = kindAssertion{kind: kind, decisive: decisive}
	case !decisive:
	case !current.decisive:
		b.kinds[subject] = kindAssertion{kind: kind, decisive: true}
	case current.kind != kind:
		if b.rejected[subject] == nil {
			b.rejected[subject] = make(map[models.ElementKind]bool)
		}
		if kindPrecedence[kind] > kindPrecedence[current.kind] {
			b.rejected[subject][current.kind] = true
			b.kinds[subject] = kindAssertion{kind: kind, decisive: true}
		} else {
			b.rejected[subject][kind] = true
		}
	}
}

func (b *snapshotBuilder) addLabel(subject, predicate, lang, value string) {
	candidate := labelAssertion{value: value, priority: labelPriority[predicate], langRank: langRank(lang)}
	if current, ok := b.labels[subject]; ok && !candidate.outranks(current) {
		return
	}
	b.labels[subject] = candidate
}

func (b *snapshotBuilder) build(graphIRI string, capturedAt time.Time) (*models.GraphSnapshot, error) {
	iris := make([]string, 0, len(b.kinds))
	for iri := range b.kinds {
		iris = append(iris, iri)
	}
	sort.Strings(iris)

	elements := make([]models.ElementDescriptor, 0, len(iris))
	var conflicts []models.KindConflict
	for _, iri := range iris {
		kept := b.kinds[iri].kind
		el := models.ElementDescriptor{IRI: iri, Kind: kept}
		if label, ok := b.labels[iri]; ok {
			el.Label = models.StringPtr(label.value)
		}
		elements = append(elements, el)

		rejected := make([]models.ElementKind, 0, len(b.rejected[iri]))
		for kind := range b.rejected[iri] {
			rejected = append(rejected, kind)
		}
		sort.Slice(rejected, func(i, j int) bool { return kindPrecedence[rejected[i]] > kindPrecedence[rejected[j]] })
		for _, kind := range rejected {
			conflicts = append(conflicts, models.KindConflict{IRI: iri, Kept: kept, Rejected: kind})
		}
	}
	return models.NewGraphSnapshot(graphIRI, capturedAt, elements, conflicts)
}
