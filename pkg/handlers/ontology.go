package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/config"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// SaveOntologyRequest for POST /ontologies/save and /ontologies/diff.
// Persist is ignored by the diff endpoint.
type SaveOntologyRequest struct {
	GraphIRI string `json:"graph_iri" validate:"required,graphiri"`
	Document string `json:"document" validate:"required"`
	Persist  bool   `json:"persist,omitempty"`
}

// impactQuery holds the query parameters of GET /impact.
type impactQuery struct {
	Graph   string `json:"graph" validate:"omitempty,graphiri"`
	Element string `json:"element" validate:"required"`
}

// ImpactResponse for GET /impact
type ImpactResponse struct {
	ArtifactIDs []uuid.UUID `json:"artifact_ids"`
	Incomplete  bool        `json:"incomplete"`
}

// OntologyHandler handles ontology change detection requests.
type OntologyHandler struct {
	tracking  services.ChangeTrackingService
	impact    services.ImpactService
	cfg       config.TrackingConfig
	validator *RequestValidator
	logger    *zap.Logger
}

// NewOntologyHandler creates a new ontology handler.
func NewOntologyHandler(
	tracking services.ChangeTrackingService,
	impact services.ImpactService,
	cfg config.TrackingConfig,
	logger *zap.Logger,
) *OntologyHandler {
	return &OntologyHandler{
		tracking:  tracking,
		impact:    impact,
		cfg:       cfg,
		validator: NewRequestValidator(),
		logger:    logger,
	}
}

// RegisterRoutes registers the ontology handler's routes on the given mux.
func (h *OntologyHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}"

	mux.HandleFunc("POST "+base+"/ontologies/save", tenantMiddleware(h.Save))
	mux.HandleFunc("POST "+base+"/ontologies/diff", tenantMiddleware(h.Diff))
	mux.HandleFunc("GET "+base+"/impact", tenantMiddleware(h.Impact))
}

// Save handles POST /api/projects/{pid}/ontologies/save[?timeout=]
func (h *OntologyHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.detectChanges(w, r, true)
}

// Diff handles POST /api/projects/{pid}/ontologies/diff[?timeout=]. It runs
// change detection and impact analysis without writing to the graph store.
func (h *OntologyHandler) Diff(w http.ResponseWriter, r *http.Request) {
	h.detectChanges(w, r, false)
}

func (h *OntologyHandler) detectChanges(w http.ResponseWriter, r *http.Request, allowPersist bool) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	override, ok := ParseTimeout(w, r, h.logger)
	if !ok {
		return
	}

	var req SaveOntologyRequest
	if err := decodeBody(w, r, h.validator, &req); err != nil {
		h.logger.Debug("Rejected ontology request", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout(override, h.cfg.DiffTimeout))
	defer cancel()

	result, err := h.tracking.OnOntologySaved(ctx, services.OntologySaveRequest{
		ProjectID: projectID,
		GraphIRI:  req.GraphIRI,
		Document:  req.Document,
		Persist:   allowPersist && req.Persist,
	})
	if err != nil {
		writeServiceError(w, err, "change_detection_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Impact handles GET /api/projects/{pid}/impact?element=<iri>[&graph=<iri>]
func (h *OntologyHandler) Impact(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	q := impactQuery{
		Graph:   r.URL.Query().Get("graph"),
		Element: r.URL.Query().Get("element"),
	}
	if err := h.validator.Struct(q); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.impact.ImpactOfElement(r.Context(), projectID, q.Graph, q.Element)
	if err != nil {
		writeServiceError(w, err, "impact_failed", h.logger)
		return
	}

	response := ImpactResponse{
		ArtifactIDs: result.AffectedArtifacts.Sorted(),
		Incomplete:  result.Incomplete,
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
