package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

type dependencyFixture struct {
	mux        *http.ServeMux
	tracking   *mockChangeTrackingService
	validation *mockValidationService
	deps       *mockDependencyService
	projectID  uuid.UUID
	artifactID uuid.UUID
}

func newDependencyFixture() *dependencyFixture {
	f := &dependencyFixture{
		mux:        http.NewServeMux(),
		tracking:   &mockChangeTrackingService{},
		validation: &mockValidationService{},
		deps:       &mockDependencyService{},
		projectID:  uuid.New(),
		artifactID: uuid.New(),
	}
	h := NewDependencyHandler(f.tracking, f.validation, f.deps, testTrackingConfig(), zap.NewNop())
	h.RegisterRoutes(f.mux, passThroughTenant)
	return f
}

func (f *dependencyFixture) artifactURL(suffix string) string {
	return "/api/projects/" + f.projectID.String() + "/artifacts/" + f.artifactID.String() + suffix
}

func (f *dependencyFixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestDependencyHandler_List(t *testing.T) {
	f := newDependencyFixture()
	f.deps.edges = []*models.DependencyEdge{
		{ArtifactID: f.artifactID, ElementIRI: "http://ex.org/onto#Car", ElementKind: models.ElementKindClass, IsValid: true},
	}

	rec := f.do(http.MethodGet, f.artifactURL("/dependencies"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DependencyListResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "http://ex.org/onto#Car", resp.Dependencies[0].ElementIRI)
}

func TestDependencyHandler_List_StoreUnavailable(t *testing.T) {
	f := newDependencyFixture()
	f.deps.err = apperrors.NewStoreUnavailable("dependency store", errors.New("connection refused"))

	rec := f.do(http.MethodGet, f.artifactURL("/dependencies"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decodeError(t, rec)["error"])
}

func TestDependencyHandler_Save(t *testing.T) {
	f := newDependencyFixture()

	rec := f.do(http.MethodPost, f.artifactURL("/dependencies"), SaveArtifactRequest{
		OntologyGraphIRI: "http://ex.org/graphs/onto",
		Prefixes:         map[string]string{"": "http://ex.org/onto#"},
		Statements: []models.Triple{
			{Subject: ":alice", Predicate: "a", Object: ":Person"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.TrackingResult
	decodeData(t, rec, &result)
	assert.True(t, result.Tracked)

	require.NotNil(t, f.tracking.savedArtifact)
	assert.Equal(t, f.artifactID, f.tracking.savedArtifact.ID)
	assert.Equal(t, f.projectID, f.tracking.savedArtifact.ProjectID)
	assert.Equal(t, "http://ex.org/graphs/onto", f.tracking.savedArtifact.OntologyGraphIRI)
	assert.Len(t, f.tracking.savedArtifact.Statements, 1)
}

func TestDependencyHandler_Save_UntrackedIsStillOK(t *testing.T) {
	f := newDependencyFixture()
	f.tracking.trackResult = &services.TrackingResult{ArtifactID: f.artifactID, Warning: services.UntrackedWarning}

	rec := f.do(http.MethodPost, f.artifactURL("/dependencies"), SaveArtifactRequest{
		OntologyGraphIRI: "http://ex.org/graphs/onto",
		Statements:       []models.Triple{{Subject: "<http://ex.org/a>", Predicate: "a", Object: "<http://ex.org/B>"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.TrackingResult
	decodeData(t, rec, &result)
	assert.False(t, result.Tracked)
	assert.Equal(t, services.UntrackedWarning, result.Warning)
}

func TestDependencyHandler_Save_InvalidBody(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		message string
	}{
		{
			name:    "missing graph",
			body:    map[string]any{"statements": []any{}},
			message: "ontology_graph_iri is required",
		},
		{
			name:    "relative graph IRI",
			body:    map[string]any{"ontology_graph_iri": "graphs/onto", "statements": []any{}},
			message: "ontology_graph_iri must be an absolute IRI",
		},
		{
			name:    "missing statements",
			body:    map[string]any{"ontology_graph_iri": "http://ex.org/g"},
			message: "statements is required",
		},
		{
			name: "incomplete triple",
			body: map[string]any{
				"ontology_graph_iri": "http://ex.org/g",
				"statements":         []any{map[string]string{"subject": ":a", "predicate": "a"}},
			},
			message: "object is required",
		},
		{
			name:    "not json",
			body:    "nope",
			message: "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDependencyFixture()
			rec := f.do(http.MethodPost, f.artifactURL("/dependencies"), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "invalid_request", body["error"])
			assert.Contains(t, body["message"], tt.message)
			assert.Nil(t, f.tracking.savedArtifact)
		})
	}
}

func TestDependencyHandler_Delete(t *testing.T) {
	f := newDependencyFixture()

	rec := f.do(http.MethodDelete, f.artifactURL("/dependencies"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, f.artifactID, f.tracking.deletedID)
}

func TestDependencyHandler_Validate(t *testing.T) {
	f := newDependencyFixture()
	f.validation.report = &models.ValidationReport{
		ArtifactID: f.artifactID,
		Total:      2,
		Valid:      1,
		Invalid:    1,
		Broken:     []models.DependencyEdge{{ElementIRI: "http://ex.org/onto#hasName"}},
	}

	rec := f.do(http.MethodGet, f.artifactURL("/validation"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.ValidationReport
	decodeData(t, rec, &report)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Broken, 1)
	assert.InDelta(t, (30 * time.Second).Seconds(), f.validation.deadline.Seconds(), 1)
}

func TestDependencyHandler_Validate_TimeoutOverride(t *testing.T) {
	f := newDependencyFixture()

	rec := f.do(http.MethodGet, f.artifactURL("/validation?timeout=5s"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 5, f.validation.deadline.Seconds(), 1)

	// Capped at the configured maximum
	rec = f.do(http.MethodGet, f.artifactURL("/validation?timeout=1h"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 60, f.validation.deadline.Seconds(), 1)

	rec = f.do(http.MethodGet, f.artifactURL("/validation?timeout=soon"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDependencyHandler_Validate_GraphStoreDown(t *testing.T) {
	f := newDependencyFixture()
	f.validation.err = apperrors.NewStoreUnavailable("graph store", errors.New("status 503"))

	rec := f.do(http.MethodGet, f.artifactURL("/validation"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDependencyHandler_InvalidArtifactID(t *testing.T) {
	f := newDependencyFixture()

	rec := f.do(http.MethodGet, "/api/projects/"+f.projectID.String()+"/artifacts/nope/dependencies", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_artifact_id", decodeError(t, rec)["error"])
}

func TestDependencyHandler_Stats(t *testing.T) {
	f := newDependencyFixture()
	f.deps.counts = &models.ValidityCounts{Valid: 7, Invalid: 2}

	rec := f.do(http.MethodGet, "/api/projects/"+f.projectID.String()+"/dependencies/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts models.ValidityCounts
	decodeData(t, rec, &counts)
	assert.Equal(t, models.ValidityCounts{Valid: 7, Invalid: 2}, counts)
}

func TestDependencyHandler_ListInvalid(t *testing.T) {
	f := newDependencyFixture()
	f.deps.edges = []*models.DependencyEdge{{ElementIRI: "http://ex.org/onto#gone"}}

	rec := f.do(http.MethodGet, "/api/projects/"+f.projectID.String()+"/dependencies/invalid?graph=http://ex.org/g&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DependencyListResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "http://ex.org/g", f.deps.lastGraph)
	assert.Equal(t, 5, f.deps.lastLimit)
}
