package rdf

import (
	"errors"
	"fmt"
	"strings"
)

// TermKind distinguishes the three kinds of RDF terms.
type TermKind int

const (
	TermIRI TermKind = iota
	TermBlank
	TermLiteral
)

// Term is a resolved RDF term. Value holds the absolute IRI, the blank node
// label, or the lexical form of a literal.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// NewIRI returns an IRI term.
func NewIRI(iri string) Term { return Term{Kind: TermIRI, Value: iri} }

// NewLiteral returns a plain string literal term.
func NewLiteral(value string) Term { return Term{Kind: TermLiteral, Value: value, Datatype: XSDString} }

// IsIRI reports whether t is an IRI.
func (t Term) IsIRI() bool { return t.Kind == TermIRI }

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case TermIRI:
		return "<" + t.Value + ">"
	case TermBlank:
		return "_:" + t.Value
	}
	lit := `"` + EscapeString(t.Value) + `"`
	switch {
	case t.Lang != "":
		return lit + "@" + t.Lang
	case t.Datatype != "" && t.Datatype != XSDString:
		return lit + "^^<" + t.Datatype + ">"
	}
	return lit
}

// Statement is one resolved triple with the source line it ended on.
type Statement struct {
	Subject   Term
	Predicate Term
	Object    Term
	Line      int
}

// Document is a parsed Turtle document.
type Document struct {
	Prefixes   map[string]string
	Base       string
	Statements []Statement
}

// Parse parses a Turtle document. Every prefixed name is resolved against the
// document's own declarations; the first syntax error aborts the parse.
func Parse(src string) (*Document, error) {
	return ParseWithPrefixes(src, nil)
}

// ParseWithPrefixes parses src with a seed prefix table that the document's
// declarations may extend or override.
func ParseWithPrefixes(src string, seed map[string]string) (*Document, error) {
	tokens, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}

	p := &parser{
		src:      src,
		tokens:   tokens,
		prefixes: MergePrefixes(seed, nil),
	}
	if err := p.parseDocument(); err != nil {
		return nil, err
	}

	return &Document{
		Prefixes:   p.prefixes,
		Base:       p.base,
		Statements: p.statements,
	}, nil
}

// ParseTerm resolves a single term as supplied by callers that hold triples
// outside a document: an IRI in any form accepted by Resolve, the keyword
// "a", a blank node, or a literal.
func ParseTerm(prefixes map[string]string, raw string) (Term, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return Term{}, fmt.Errorf("empty term")
	case s == "a":
		return NewIRI(RDFType), nil
	case strings.HasPrefix(s, "_:"):
		if len(s) == 2 {
			return Term{}, fmt.Errorf("empty blank node label")
		}
		return Term{Kind: TermBlank, Value: s[2:]}, nil
	case looksLikeLiteral(s):
		return parseLiteralTerm(prefixes, s)
	}

	iri, err := Resolve(prefixes, s)
	if err != nil {
		return Term{}, err
	}
	return NewIRI(iri), nil
}

func looksLikeLiteral(s string) bool {
	if s == "true" || s == "false" {
		return true
	}
	switch c := s[0]; {
	case c == '"' || c == '\'':
		return true
	case isDigit(c):
		return true
	case c == '+' || c == '-' || c == '.':
		return len(s) > 1 && (isDigit(s[1]) || s[1] == '.')
	}
	return false
}

func parseLiteralTerm(prefixes map[string]string, s string) (Term, error) {
	tokens, err := newLexer(s).tokenize()
	if err != nil {
		return Term{}, err
	}
	p := &parser{src: s, tokens: tokens, prefixes: MergePrefixes(DefaultPrefixes(), prefixes)}
	term, err := p.parseObject()
	if err != nil {
		return Term{}, err
	}
	if term.Kind != TermLiteral {
		return Term{}, fmt.Errorf("expected literal, got %s", term)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return Term{}, p.errorAt(tok, "unexpected %s after literal", tok.kind)
	}
	return term, nil
}

type parser struct {
	src        string
	tokens     []token
	pos        int
	prefixes   map[string]string
	base       string
	statements []Statement
	blankSeq   int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, context string) (token, error) {
	tok := p.advance()
	if tok.kind != kind {
		return tok, p.errorAt(tok, "expected %s %s, found %s", kind, context, tok.kind)
	}
	return tok, nil
}

func (p *parser) errorAt(tok token, format string, args ...any) error {
	return &MalformedStatementError{
		Line:    tok.line,
		Snippet: sourceLine(p.src, tok.line),
		Reason:  fmt.Sprintf(format, args...),
	}
}

func (p *parser) emit(s, pr, o Term, line int) {
	p.statements = append(p.statements, Statement{Subject: s, Predicate: pr, Object: o, Line: line})
}

func (p *parser) newBlank() Term {
	p.blankSeq++
	return Term{Kind: TermBlank, Value: fmt.Sprintf("genid%d", p.blankSeq)}
}

func (p *parser) parseDocument() error {
	for p.peek().kind != tokEOF {
		var err error
		switch p.peek().kind {
		case tokPrefixDirective:
			err = p.parsePrefix()
		case tokBaseDirective:
			err = p.parseBase()
		default:
			err = p.parseTriples()
			if err == nil {
				_, err = p.expect(tokDot, "at end of statement")
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parsePrefix() error {
	directive := p.advance()

	name, err := p.expect(tokPName, "in prefix declaration")
	if err != nil {
		return err
	}
	if !strings.HasSuffix(name.value, ":") || strings.Count(name.value, ":") != 1 {
		return p.errorAt(name, "prefix name %q must end with ':'", name.value)
	}

	iriTok, err := p.expect(tokIRI, "in prefix declaration")
	if err != nil {
		return err
	}
	iri, err := resolveAgainstBase(p.base, iriTok.value)
	if err != nil {
		return p.errorAt(iriTok, "%v", err)
	}
	p.prefixes[strings.TrimSuffix(name.value, ":")] = iri

	if !directive.sparql {
		if _, err := p.expect(tokDot, "after prefix declaration"); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseBase() error {
	directive := p.advance()

	iriTok, err := p.expect(tokIRI, "in base declaration")
	if err != nil {
		return err
	}
	base, err := resolveAgainstBase(p.base, iriTok.value)
	if err != nil {
		return p.errorAt(iriTok, "%v", err)
	}
	p.base = base

	if !directive.sparql {
		if _, err := p.expect(tokDot, "after base declaration"); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseTriples() error {
	if p.peek().kind == tokLBracket {
		subject, err := p.parseBlankNodePropertyList()
		if err != nil {
			return err
		}
		if p.peek().kind == tokDot {
			return nil
		}
		return p.parsePredicateObjectList(subject)
	}

	subject, err := p.parseSubject()
	if err != nil {
		return err
	}
	return p.parsePredicateObjectList(subject)
}

func (p *parser) parseSubject() (Term, error) {
	tok := p.peek()
	switch tok.kind {
	case tokIRI, tokPName:
		p.advance()
		return p.resolveToken(tok)
	case tokBlank:
		p.advance()
		return Term{Kind: TermBlank, Value: tok.value}, nil
	case tokLParen:
		return p.parseCollection()
	}
	return Term{}, p.errorAt(tok, "expected subject, found %s", tok.kind)
}

func (p *parser) parsePredicateObjectList(subject Term) error {
	for {
		predicate, err := p.parseVerb()
		if err != nil {
			return err
		}
		if err := p.parseObjectList(subject, predicate); err != nil {
			return err
		}

		if p.peek().kind != tokSemicolon {
			return nil
		}
		for p.peek().kind == tokSemicolon {
			p.advance()
		}
		switch p.peek().kind {
		case tokDot, tokRBracket, tokEOF:
			return nil
		}
	}
}

func (p *parser) parseVerb() (Term, error) {
	tok := p.peek()
	switch tok.kind {
	case tokA:
		p.advance()
		return NewIRI(RDFType), nil
	case tokIRI, tokPName:
		p.advance()
		return p.resolveToken(tok)
	}
	return Term{}, p.errorAt(tok, "expected predicate, found %s", tok.kind)
}

func (p *parser) parseObjectList(subject, predicate Term) error {
	for {
		line := p.peek().line
		object, err := p.parseObject()
		if err != nil {
			return err
		}
		p.emit(subject, predicate, object, line)

		if p.peek().kind != tokComma {
			return nil
		}
		p.advance()
	}
}

func (p *parser) parseObject() (Term, error) {
	tok := p.peek()
	switch tok.kind {
	case tokIRI, tokPName:
		p.advance()
		return p.resolveToken(tok)
	case tokBlank:
		p.advance()
		return Term{Kind: TermBlank, Value: tok.value}, nil
	case tokLBracket:
		return p.parseBlankNodePropertyList()
	case tokLParen:
		return p.parseCollection()
	case tokString:
		p.advance()
		return p.parseLiteralSuffix(tok)
	case tokNumber:
		p.advance()
		return Term{Kind: TermLiteral, Value: tok.value, Datatype: tok.datatype}, nil
	case tokBoolean:
		p.advance()
		return Term{Kind: TermLiteral, Value: tok.value, Datatype: XSDBoolean}, nil
	}
	return Term{}, p.errorAt(tok, "expected object, found %s", tok.kind)
}

func (p *parser) parseLiteralSuffix(str token) (Term, error) {
	lit := Term{Kind: TermLiteral, Value: str.value, Datatype: XSDString}
	switch p.peek().kind {
	case tokLangTag:
		lit.Lang = strings.ToLower(p.advance().value)
		lit.Datatype = RDFLangStr
	case tokDatatypeMark:
		p.advance()
		dt := p.advance()
		if dt.kind != tokIRI && dt.kind != tokPName {
			return Term{}, p.errorAt(dt, "expected datatype IRI, found %s", dt.kind)
		}
		dtTerm, err := p.resolveToken(dt)
		if err != nil {
			return Term{}, err
		}
		lit.Datatype = dtTerm.Value
	}
	return lit, nil
}

func (p *parser) parseBlankNodePropertyList() (Term, error) {
	p.advance()
	node := p.newBlank()
	if p.peek().kind != tokRBracket {
		if err := p.parsePredicateObjectList(node); err != nil {
			return Term{}, err
		}
	}
	if _, err := p.expect(tokRBracket, "to close blank node"); err != nil {
		return Term{}, err
	}
	return node, nil
}

func (p *parser) parseCollection() (Term, error) {
	open := p.advance()

	var items []Term
	for p.peek().kind != tokRParen {
		if p.peek().kind == tokEOF {
			return Term{}, p.errorAt(open, "unterminated collection")
		}
		item, err := p.parseObject()
		if err != nil {
			return Term{}, err
		}
		items = append(items, item)
	}
	p.advance()

	if len(items) == 0 {
		return NewIRI(RDFNil), nil
	}

	head := p.newBlank()
	node := head
	for i, item := range items {
		p.emit(node, NewIRI(RDFFirst), item, open.line)
		if i == len(items)-1 {
			p.emit(node, NewIRI(RDFRest), NewIRI(RDFNil), open.line)
			break
		}
		next := p.newBlank()
		p.emit(node, NewIRI(RDFRest), next, open.line)
		node = next
	}
	return head, nil
}

func (p *parser) resolveToken(tok token) (Term, error) {
	if tok.kind == tokIRI {
		iri, err := resolveAgainstBase(p.base, tok.value)
		if err != nil {
			return Term{}, p.errorAt(tok, "%v", err)
		}
		return NewIRI(iri), nil
	}

	iri, err := Resolve(p.prefixes, tok.value)
	if err != nil {
		var unresolved *UnresolvedPrefixError
		if errors.As(err, &unresolved) {
			unresolved.Line = tok.line
			return Term{}, unresolved
		}
		return Term{}, p.errorAt(tok, "%v", err)
	}
	return NewIRI(iri), nil
}
