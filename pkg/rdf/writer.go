package rdf

import (
	"fmt"
	"sort"
	"strings"
)

// TurtleWriter writes RDF in Turtle format, compacting IRIs with the
// registered prefixes where the local name allows it.
type TurtleWriter struct {
	prefixes map[string]string
	sb       strings.Builder
}

// NewTurtleWriter creates a new Turtle writer with default prefixes.
func NewTurtleWriter() *TurtleWriter {
	return &TurtleWriter{
		prefixes: DefaultPrefixes(),
	}
}

// SetPrefix sets a namespace prefix.
func (w *TurtleWriter) SetPrefix(prefix, iri string) {
	w.prefixes[prefix] = iri
}

// WritePrefixes writes prefix declarations.
func (w *TurtleWriter) WritePrefixes() {
	keys := make([]string, 0, len(w.prefixes))
	for k := range w.prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, prefix := range keys {
		fmt.Fprintf(&w.sb, "@prefix %s: <%s> .\n", prefix, w.prefixes[prefix])
	}
	w.sb.WriteString("\n")
}

// WriteSubject writes a subject followed by its predicate-object pairs. The
// first pair may use the "a" keyword by passing RDFType as its predicate.
func (w *TurtleWriter) WriteSubject(subject string, pairs [][2]Term) {
	if len(pairs) == 0 {
		return
	}
	w.sb.WriteString(w.FormatIRI(subject))
	w.sb.WriteString("\n")
	for i, pair := range pairs {
		predicate := w.FormatIRI(pair[0].Value)
		if pair[0].Value == RDFType {
			predicate = "a"
		}
		terminator := " ;"
		if i == len(pairs)-1 {
			terminator = " ."
		}
		fmt.Fprintf(&w.sb, "    %s %s%s\n", predicate, w.FormatTerm(pair[1]), terminator)
	}
	w.sb.WriteString("\n")
}

// FormatIRI renders iri as a prefixed name when a registered namespace
// matches and the remaining local name needs no escaping; otherwise as <iri>.
func (w *TurtleWriter) FormatIRI(iri string) string {
	bestPrefix, bestNS := "", ""
	for prefix, ns := range w.prefixes {
		if strings.HasPrefix(iri, ns) && len(ns) > len(bestNS) {
			bestPrefix, bestNS = prefix, ns
		}
	}
	if bestNS != "" {
		local := iri[len(bestNS):]
		if isSafeLocalName(local) {
			return bestPrefix + ":" + local
		}
	}
	return "<" + iri + ">"
}

// FormatTerm renders a term in Turtle syntax.
func (w *TurtleWriter) FormatTerm(t Term) string {
	switch t.Kind {
	case TermIRI:
		return w.FormatIRI(t.Value)
	case TermBlank:
		return "_:" + t.Value
	}
	lit := `"` + EscapeString(t.Value) + `"`
	switch {
	case t.Lang != "":
		return lit + "@" + t.Lang
	case t.Datatype != "" && t.Datatype != XSDString:
		return lit + "^^" + w.FormatIRI(t.Datatype)
	}
	return lit
}

// String returns the written document.
func (w *TurtleWriter) String() string {
	return w.sb.String()
}

func isSafeLocalName(local string) bool {
	if local == "" {
		return false
	}
	for i := 0; i < len(local); i++ {
		c := local[i]
		if isLetter(c) || isDigit(c) || c == '_' {
			continue
		}
		if (c == '-' || c == '.') && i > 0 && i < len(local)-1 {
			continue
		}
		return false
	}
	return true
}

// EscapeString escapes special characters in strings for RDF serialization.
func EscapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
