package rdf

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedPrefix matches any *UnresolvedPrefixError.
	ErrUnresolvedPrefix = errors.New("unresolved prefix")

	// ErrMalformedStatement matches any *MalformedStatementError.
	ErrMalformedStatement = errors.New("malformed statement")
)

// UnresolvedPrefixError is returned when a prefixed name uses a prefix that
// has no declaration. Line is zero when the token did not come from a document.
type UnresolvedPrefixError struct {
	Token string
	Line  int
}

func (e *UnresolvedPrefixError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("unresolved prefix in %q at line %d", e.Token, e.Line)
	}
	return fmt.Sprintf("unresolved prefix in %q", e.Token)
}

func (e *UnresolvedPrefixError) Is(target error) bool { return target == ErrUnresolvedPrefix }

// MalformedStatementError reports a syntax error. Snippet is the offending
// source line, trimmed.
type MalformedStatementError struct {
	Line    int
	Snippet string
	Reason  string
}

func (e *MalformedStatementError) Error() string {
	return fmt.Sprintf("malformed statement at line %d: %s (near %q)", e.Line, e.Reason, e.Snippet)
}

func (e *MalformedStatementError) Is(target error) bool { return target == ErrMalformedStatement }
