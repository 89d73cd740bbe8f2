package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/config"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SaveArtifactRequest for POST /artifacts/{aid}/dependencies
type SaveArtifactRequest struct {
	OntologyGraphIRI string            `json:"ontology_graph_iri" validate:"required,graphiri"`
	IRI              string            `json:"iri,omitempty"`
	Prefixes         map[string]string `json:"prefixes,omitempty"`
	Statements       []models.Triple   `json:"statements" validate:"required,max=100000,dive"`
}

// DependencyListResponse for GET /artifacts/{aid}/dependencies and /dependencies/invalid
type DependencyListResponse struct {
	Dependencies []*models.DependencyEdge `json:"dependencies"`
	Total        int                      `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// DependencyHandler exposes the artifact hooks and dependency queries.
type DependencyHandler struct {
	tracking     services.ChangeTrackingService
	validation   services.ValidationService
	dependencies services.DependencyService
	cfg          config.TrackingConfig
	validator    *RequestValidator
	logger       *zap.Logger
}

// NewDependencyHandler creates a new dependency handler.
func NewDependencyHandler(
	tracking services.ChangeTrackingService,
	validation services.ValidationService,
	dependencies services.DependencyService,
	cfg config.TrackingConfig,
	logger *zap.Logger,
) *DependencyHandler {
	return &DependencyHandler{
		tracking:     tracking,
		validation:   validation,
		dependencies: dependencies,
		cfg:          cfg,
		validator:    NewRequestValidator(),
		logger:       logger,
	}
}

// RegisterRoutes registers the dependency handler's routes on the given mux.
func (h *DependencyHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	artifact := "/api/projects/{pid}/artifacts/{aid}"
	project := "/api/projects/{pid}/dependencies"

	mux.HandleFunc("GET "+artifact+"/dependencies", tenantMiddleware(h.List))
	mux.HandleFunc("POST "+artifact+"/dependencies", tenantMiddleware(h.Save))
	mux.HandleFunc("DELETE "+artifact+"/dependencies", tenantMiddleware(h.Delete))
	mux.HandleFunc("GET "+artifact+"/validation", tenantMiddleware(h.Validate))
	mux.HandleFunc("GET "+project+"/stats", tenantMiddleware(h.Stats))
	mux.HandleFunc("GET "+project+"/invalid", tenantMiddleware(h.ListInvalid))
}

// List handles GET /api/projects/{pid}/artifacts/{aid}/dependencies
func (h *DependencyHandler) List(w http.ResponseWriter, r *http.Request) {
	_, artifactID, ok := ParseProjectAndArtifactIDs(w, r, h.logger)
	if !ok {
		return
	}

	edges, err := h.dependencies.ListForArtifact(r.Context(), artifactID)
	if err != nil {
		writeServiceError(w, err, "list_dependencies_failed", h.logger)
		return
	}

	response := DependencyListResponse{Dependencies: edges, Total: len(edges)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Save handles POST /api/projects/{pid}/artifacts/{aid}/dependencies.
// The surrounding application calls it after persisting an artifact. The
// response is always 200: an artifact that could not be tracked is reported
// with tracked=false and a warning.
func (h *DependencyHandler) Save(w http.ResponseWriter, r *http.Request) {
	projectID, artifactID, ok := ParseProjectAndArtifactIDs(w, r, h.logger)
	if !ok {
		return
	}

	var req SaveArtifactRequest
	if err := decodeBody(w, r, h.validator, &req); err != nil {
		h.logger.Debug("Rejected artifact save", zap.Error(err))
		return
	}

	artifact := &models.Artifact{
		ID:               artifactID,
		ProjectID:        projectID,
		OntologyGraphIRI: req.OntologyGraphIRI,
		IRI:              req.IRI,
		Prefixes:         req.Prefixes,
		Statements:       req.Statements,
	}

	result := h.tracking.OnArtifactSaved(r.Context(), artifact)
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}/artifacts/{aid}/dependencies
func (h *DependencyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, artifactID, ok := ParseProjectAndArtifactIDs(w, r, h.logger)
	if !ok {
		return
	}

	if _, err := h.tracking.OnArtifactDeleted(r.Context(), artifactID); err != nil {
		writeServiceError(w, err, "delete_dependencies_failed", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate handles GET /api/projects/{pid}/artifacts/{aid}/validation[?timeout=]
func (h *DependencyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, artifactID, ok := ParseProjectAndArtifactIDs(w, r, h.logger)
	if !ok {
		return
	}
	override, ok := ParseTimeout(w, r, h.logger)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout(override, h.cfg.ValidationTimeout))
	defer cancel()

	report, err := h.validation.Validate(ctx, artifactID)
	if err != nil {
		writeServiceError(w, err, "validation_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stats handles GET /api/projects/{pid}/dependencies/stats
func (h *DependencyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	counts, err := h.dependencies.Stats(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, "dependency_stats_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: counts}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListInvalid handles GET /api/projects/{pid}/dependencies/invalid[?graph=&limit=]
func (h *DependencyHandler) ListInvalid(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	limit, ok := ParseLimit(w, r, services.DefaultInvalidLimit, 1000, h.logger)
	if !ok {
		return
	}

	edges, err := h.dependencies.ListInvalid(r.Context(), projectID, r.URL.Query().Get("graph"), limit)
	if err != nil {
		writeServiceError(w, err, "list_invalid_failed", h.logger)
		return
	}

	response := DependencyListResponse{Dependencies: edges, Total: len(edges)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
