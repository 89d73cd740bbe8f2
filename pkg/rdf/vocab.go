// Package rdf resolves prefixed names, parses Turtle documents into resolved
// statements, and writes Turtle back out.
package rdf

// Namespace IRIs of the W3C vocabularies the engine understands.
const (
	NamespaceRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NamespaceRDFS = "http://www.w3.org/2000/01/rdf-schema#"
	NamespaceOWL  = "http://www.w3.org/2002/07/owl#"
	NamespaceXSD  = "http://www.w3.org/2001/XMLSchema#"
	NamespaceSKOS = "http://www.w3.org/2004/02/skos/core#"
)

// Well-known IRIs.
const (
	RDFType     = NamespaceRDF + "type"
	RDFFirst    = NamespaceRDF + "first"
	RDFRest     = NamespaceRDF + "rest"
	RDFNil      = NamespaceRDF + "nil"
	RDFProperty = NamespaceRDF + "Property"
	RDFLangStr  = NamespaceRDF + "langString"

	RDFSLabel    = NamespaceRDFS + "label"
	RDFSClass    = NamespaceRDFS + "Class"
	RDFSResource = NamespaceRDFS + "Resource"

	OWLClass              = NamespaceOWL + "Class"
	OWLObjectProperty     = NamespaceOWL + "ObjectProperty"
	OWLDatatypeProperty   = NamespaceOWL + "DatatypeProperty"
	OWLAnnotationProperty = NamespaceOWL + "AnnotationProperty"
	OWLNamedIndividual    = NamespaceOWL + "NamedIndividual"
	OWLThing              = NamespaceOWL + "Thing"
	OWLOntology           = NamespaceOWL + "Ontology"

	SKOSPrefLabel = NamespaceSKOS + "prefLabel"

	XSDString  = NamespaceXSD + "string"
	XSDInteger = NamespaceXSD + "integer"
	XSDDecimal = NamespaceXSD + "decimal"
	XSDDouble  = NamespaceXSD + "double"
	XSDBoolean = NamespaceXSD + "boolean"
)

// DefaultPrefixes returns the standard namespace bindings used when writing.
func DefaultPrefixes() map[string]string {
	return map[string]string{
		"rdf":  NamespaceRDF,
		"rdfs": NamespaceRDFS,
		"owl":  NamespaceOWL,
		"xsd":  NamespaceXSD,
		"skos": NamespaceSKOS,
	}
}

// VocabularyNamespaces lists the built-in namespaces in match order.
var VocabularyNamespaces = []string{
	NamespaceRDF,
	NamespaceRDFS,
	NamespaceOWL,
	NamespaceXSD,
	NamespaceSKOS,
}

// IsVocabularyIRI reports whether iri belongs to one of the W3C vocabularies.
func IsVocabularyIRI(iri string) bool {
	for _, ns := range VocabularyNamespaces {
		if len(iri) >= len(ns) && iri[:len(ns)] == ns {
			return true
		}
	}
	return false
}
