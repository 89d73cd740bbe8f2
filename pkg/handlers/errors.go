package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/rdf"
)

// writeServiceError maps a service error onto a status code and error body.
// fallbackCode names unexpected failures of the operation.
func writeServiceError(w http.ResponseWriter, err error, fallbackCode string, logger *zap.Logger) {
	var (
		status  int
		code    string
		details map[string]any
	)

	var malformed *rdf.MalformedStatementError
	var unresolved *rdf.UnresolvedPrefixError
	switch {
	case errors.As(err, &malformed):
		status, code = http.StatusUnprocessableEntity, "malformed_statement"
		details = map[string]any{"line": malformed.Line, "snippet": malformed.Snippet}
	case errors.As(err, &unresolved):
		status, code = http.StatusUnprocessableEntity, "unresolved_prefix"
		details = map[string]any{"token": unresolved.Token}
		if unresolved.Line > 0 {
			details["line"] = unresolved.Line
		}
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrGraphMismatch):
		status, code = http.StatusBadRequest, "graph_mismatch"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout_exceeded"
	default:
		status, code = http.StatusInternalServerError, fallbackCode
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("error_code", code), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.String("error_code", code), zap.Error(err))
	}

	if err := ErrorResponseWithDetails(w, status, code, err.Error(), details); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
