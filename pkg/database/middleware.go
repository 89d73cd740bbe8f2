package database

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProjectIDPathValue is the route wildcard that carries the project ID.
const ProjectIDPathValue = "pid"

// WithTenantContext scopes the request to the project named by the {pid}
// path value. Handlers read the connection with GetTenantScope; it is
// released when the handler returns.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw := r.PathValue(ProjectIDPathValue)
			if raw == "" {
				logger.Error("Route has no project ID wildcard", zap.String("path", r.URL.Path))
				writeError(w, http.StatusBadRequest, "missing_project_id", "Project ID is required")
				return
			}

			projectID, err := uuid.Parse(raw)
			if err != nil || projectID == uuid.Nil {
				writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
				return
			}

			scope, err := db.WithTenant(r.Context(), projectID)
			if err != nil {
				if r.Context().Err() != nil {
					// client went away while waiting for a connection
					return
				}
				logger.Error("Failed to acquire tenant connection",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Dependency store is unavailable")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetTenantScope(r.Context(), scope)))
		}
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
