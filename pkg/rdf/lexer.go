package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokBlank
	tokString
	tokLangTag
	tokDatatypeMark
	tokNumber
	tokBoolean
	tokA
	tokPrefixDirective
	tokBaseDirective
	tokDot
	tokSemicolon
	tokComma
	tokLBracket
	tokRBracket
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIRI:
		return "IRI"
	case tokPName:
		return "prefixed name"
	case tokBlank:
		return "blank node"
	case tokString:
		return "string literal"
	case tokLangTag:
		return "language tag"
	case tokDatatypeMark:
		return "'^^'"
	case tokNumber:
		return "number"
	case tokBoolean:
		return "boolean"
	case tokA:
		return "'a'"
	case tokPrefixDirective:
		return "prefix directive"
	case tokBaseDirective:
		return "base directive"
	case tokDot:
		return "'.'"
	case tokSemicolon:
		return "';'"
	case tokComma:
		return "','"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind     tokenKind
	value    string
	datatype string // numbers only
	line     int
	sparql   bool // PREFIX/BASE without '@' and without trailing '.'
}

// lexer splits a Turtle document into tokens. It tracks line numbers so that
// syntax errors can point at the offending line.
type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

// tokenize returns all tokens up to and including tokEOF.
func (l *lexer) tokenize() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(line int, format string, args ...any) error {
	return &MalformedStatementError{
		Line:    line,
		Snippet: sourceLine(l.src, line),
		Reason:  fmt.Sprintf(format, args...),
	}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	line := l.line
	c := l.src[l.pos]
	switch c {
	case '<':
		return l.lexIRI()
	case '"', '\'':
		return l.lexString()
	case '@':
		return l.lexAt()
	case '^':
		if l.peekByte(1) != '^' {
			return token{}, l.errorf(line, "expected '^^'")
		}
		l.pos += 2
		return token{kind: tokDatatypeMark, line: line}, nil
	case '.':
		if isDigit(l.peekByte(1)) {
			return l.lexNumber()
		}
		l.pos++
		return token{kind: tokDot, line: line}, nil
	case ';':
		l.pos++
		return token{kind: tokSemicolon, line: line}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, line: line}, nil
	case '[':
		l.pos++
		return token{kind: tokLBracket, line: line}, nil
	case ']':
		l.pos++
		return token{kind: tokRBracket, line: line}, nil
	case '(':
		l.pos++
		return token{kind: tokLParen, line: line}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, line: line}, nil
	case '+', '-':
		return l.lexNumber()
	}

	if isDigit(c) {
		return l.lexNumber()
	}
	if c == '_' && l.peekByte(1) == ':' {
		l.pos += 2
		label := l.readName()
		if label == "" {
			return token{}, l.errorf(line, "empty blank node label")
		}
		return token{kind: tokBlank, value: label, line: line}, nil
	}
	return l.lexWord()
}

func (l *lexer) lexIRI() (token, error) {
	line := l.line
	start := l.pos + 1
	for i := start; i < len(l.src); i++ {
		switch l.src[i] {
		case '>':
			l.pos = i + 1
			value, err := unescapeIRI(l.src[start:i])
			if err != nil {
				return token{}, l.errorf(line, "%v", err)
			}
			return token{kind: tokIRI, value: value, line: line}, nil
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}', '|', '`':
			return token{}, l.errorf(line, "invalid character %q in IRI", l.src[i])
		}
	}
	return token{}, l.errorf(line, "unterminated IRI")
}

func (l *lexer) lexString() (token, error) {
	line := l.line
	quote := l.src[l.pos]
	long := l.peekByte(1) == quote && l.peekByte(2) == quote
	if long {
		l.pos += 3
	} else {
		l.pos++
	}

	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errorf(line, "unterminated string literal")
		}
		c := l.src[l.pos]
		switch {
		case c == quote && !long:
			l.pos++
			return token{kind: tokString, value: sb.String(), line: line}, nil
		case c == quote && long && l.peekByte(1) == quote && l.peekByte(2) == quote:
			l.pos += 3
			// A long string may end with extra quotes that belong to the content.
			for l.pos < len(l.src) && l.src[l.pos] == quote {
				sb.WriteByte(quote)
				l.pos++
			}
			return token{kind: tokString, value: sb.String(), line: line}, nil
		case c == '\n' || c == '\r':
			if !long {
				return token{}, l.errorf(line, "line break in string literal")
			}
			if c == '\n' {
				l.line++
			}
			sb.WriteByte(c)
			l.pos++
		case c == '\\':
			r, width, err := l.readEscape()
			if err != nil {
				return token{}, l.errorf(l.line, "%v", err)
			}
			sb.WriteRune(r)
			l.pos += width
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
}

// readEscape decodes the escape sequence at l.pos and returns the rune and
// the number of bytes consumed.
func (l *lexer) readEscape() (rune, int, error) {
	if l.pos+1 >= len(l.src) {
		return 0, 0, fmt.Errorf("dangling escape")
	}
	switch l.src[l.pos+1] {
	case 't':
		return '\t', 2, nil
	case 'b':
		return '\b', 2, nil
	case 'n':
		return '\n', 2, nil
	case 'r':
		return '\r', 2, nil
	case 'f':
		return '\f', 2, nil
	case '"':
		return '"', 2, nil
	case '\'':
		return '\'', 2, nil
	case '\\':
		return '\\', 2, nil
	case 'u':
		return decodeHexEscape(l.src[l.pos:], 4)
	case 'U':
		return decodeHexEscape(l.src[l.pos:], 8)
	}
	return 0, 0, fmt.Errorf("invalid escape %q", l.src[l.pos:l.pos+2])
}

func decodeHexEscape(s string, digits int) (rune, int, error) {
	if len(s) < 2+digits {
		return 0, 0, fmt.Errorf("short unicode escape")
	}
	n, err := strconv.ParseUint(s[2:2+digits], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid unicode escape %q", s[:2+digits])
	}
	return rune(n), 2 + digits, nil
}

func unescapeIRI(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling escape in IRI")
		}
		var digits int
		switch s[i+1] {
		case 'u':
			digits = 4
		case 'U':
			digits = 8
		default:
			return "", fmt.Errorf("invalid escape in IRI")
		}
		r, width, err := decodeHexEscape(s[i:], digits)
		if err != nil {
			return "", err
		}
		sb.WriteRune(r)
		i += width
	}
	return sb.String(), nil
}

func (l *lexer) lexAt() (token, error) {
	line := l.line
	l.pos++
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if !(isLetter(c) || isDigit(c) || c == '-') {
			break
		}
		l.pos++
	}
	word := l.src[start:l.pos]
	switch word {
	case "":
		return token{}, l.errorf(line, "expected directive or language tag after '@'")
	case "prefix":
		return token{kind: tokPrefixDirective, line: line}, nil
	case "base":
		return token{kind: tokBaseDirective, line: line}, nil
	}
	return token{kind: tokLangTag, value: word, line: line}, nil
}

func (l *lexer) lexNumber() (token, error) {
	line := l.line
	start := l.pos
	if c := l.src[l.pos]; c == '+' || c == '-' {
		l.pos++
	}
	digits := l.consumeDigits()
	datatype := XSDInteger
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		l.pos++
		l.consumeDigits()
		datatype = XSDDecimal
	} else if digits == 0 {
		return token{}, l.errorf(line, "invalid number")
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		l.pos++
		if c := l.peekByte(0); c == '+' || c == '-' {
			l.pos++
		}
		if l.consumeDigits() == 0 {
			return token{}, l.errorf(line, "invalid exponent")
		}
		datatype = XSDDouble
	}
	return token{kind: tokNumber, value: l.src[start:l.pos], datatype: datatype, line: line}, nil
}

func (l *lexer) consumeDigits() int {
	n := 0
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
		n++
	}
	return n
}

func (l *lexer) lexWord() (token, error) {
	line := l.line
	word := l.readName()
	if word == "" {
		r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		return token{}, l.errorf(line, "unexpected character %q", r)
	}

	switch {
	case word == "a":
		return token{kind: tokA, line: line}, nil
	case word == "true" || word == "false":
		return token{kind: tokBoolean, value: word, line: line}, nil
	case strings.EqualFold(word, "PREFIX"):
		return token{kind: tokPrefixDirective, line: line, sparql: true}, nil
	case strings.EqualFold(word, "BASE"):
		return token{kind: tokBaseDirective, line: line, sparql: true}, nil
	case strings.Contains(word, ":"):
		return token{kind: tokPName, value: word, line: line}, nil
	}
	return token{}, l.errorf(line, "unexpected word %q", word)
}

// readName consumes prefixed-name characters. A trailing '.' is left in the
// input because it terminates the statement.
func (l *lexer) readName() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos += 2
			continue
		}
		if c >= utf8.RuneSelf {
			r, width := utf8.DecodeRuneInString(l.src[l.pos:])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.pos += width
			continue
		}
		if !(isLetter(c) || isDigit(c) || c == '_' || c == '-' || c == ':' || c == '.' || c == '%') {
			break
		}
		l.pos++
	}
	for l.pos > start && l.src[l.pos-1] == '.' && !(l.pos-2 >= start && l.src[l.pos-2] == '\\') {
		l.pos--
	}
	return l.src[start:l.pos]
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// maxSnippetBytes caps error snippets. Cuts fall on a rune boundary.
const maxSnippetBytes = 80

// sourceLine returns the trimmed text of the given 1-based line, capped at
// maxSnippetBytes.
func sourceLine(src string, line int) string {
	current := 1
	start := 0
	for i := 0; i < len(src) && current < line; i++ {
		if src[i] == '\n' {
			current++
			start = i + 1
		}
	}
	if current != line {
		return ""
	}
	end := strings.IndexByte(src[start:], '\n')
	var text string
	if end < 0 {
		text = src[start:]
	} else {
		text = src[start : start+end]
	}
	text = strings.TrimSpace(text)
	if len(text) > maxSnippetBytes {
		cut := maxSnippetBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
