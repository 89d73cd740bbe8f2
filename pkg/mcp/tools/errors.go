package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/rdf"
)

// ErrorResponse is a structured error in a tool result. Actionable errors
// are returned this way so the agent sees the details instead of a bare
// protocol error.
type ErrorResponse struct {
	Error     bool   `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for errors the caller can act on, e.g. invalid parameters or a
// document that does not parse.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message})
}

// NewErrorResultWithDetails creates an error result with additional context:
//
//	return NewErrorResultWithDetails(
//	    "malformed_statement",
//	    "statement on line 4 is not terminated",
//	    map[string]any{"line": 4, "snippet": ":Car a owl:Class"},
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message, Details: details})
}

func newErrorResult(resp ErrorResponse) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// HandleServiceError converts a service error into a tool result. Parse
// errors, conflicts and store outages are actionable and become error
// results; anything else is returned as a Go error.
func HandleServiceError(err error, fallbackCode string) (*mcp.CallToolResult, error) {
	var malformed *rdf.MalformedStatementError
	var unresolved *rdf.UnresolvedPrefixError
	var unavailable *apperrors.StoreUnavailableError

	switch {
	case errors.As(err, &malformed):
		return NewErrorResultWithDetails("malformed_statement", err.Error(),
			map[string]any{"line": malformed.Line, "snippet": malformed.Snippet}), nil
	case errors.As(err, &unresolved):
		details := map[string]any{"token": unresolved.Token}
		if unresolved.Line > 0 {
			details["line"] = unresolved.Line
		}
		return NewErrorResultWithDetails("unresolved_prefix", err.Error(), details), nil
	case errors.As(err, &unavailable):
		return newErrorResult(ErrorResponse{
			Error:     true,
			Code:      "store_unavailable",
			Message:   err.Error(),
			Retryable: unavailable.IsRetryable(),
		}), nil
	case errors.Is(err, apperrors.ErrConflict):
		return NewErrorResult("conflict", err.Error()), nil
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error()), nil
	case errors.Is(err, apperrors.ErrGraphMismatch):
		return NewErrorResult("graph_mismatch", err.Error()), nil
	case errors.Is(err, context.DeadlineExceeded):
		return newErrorResult(ErrorResponse{Error: true, Code: "timeout_exceeded", Message: err.Error(), Retryable: true}), nil
	}
	return nil, fmt.Errorf("%s: %w", fallbackCode, err)
}
