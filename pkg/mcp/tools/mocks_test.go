package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/config"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// toolHarness registers every tool against mock services.
type toolHarness struct {
	server    *server.MCPServer
	deps      *ToolDeps
	tracking  *mockChangeTrackingService
	validator *mockValidationService
	depsSvc   *mockDependencyService
	impact    *mockImpactService
	projectID uuid.UUID
	tenantFor uuid.UUID
}

func newToolHarness() *toolHarness {
	h := &toolHarness{
		tracking:  &mockChangeTrackingService{},
		validator: &mockValidationService{},
		depsSvc:   &mockDependencyService{},
		impact:    &mockImpactService{result: &services.ImpactResult{AffectedArtifacts: models.NewImpactSet()}},
		projectID: uuid.New(),
	}
	h.deps = &ToolDeps{
		Tracking:     h.tracking,
		Validation:   h.validator,
		Dependencies: h.depsSvc,
		Impact:       h.impact,
		TenantContext: func(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
			h.tenantFor = projectID
			return ctx, func() {}, nil
		},
		Config: config.TrackingConfig{
			ValidationTimeout: 30 * time.Second,
			DiffTimeout:       20 * time.Second,
			MaxTimeout:        time.Minute,
		},
		Logger: zap.NewNop(),
	}

	h.server = server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterDependencyTools(h.server, h.deps)
	RegisterOntologyTools(h.server, h.deps)
	return h
}

// toolResponse is a decoded tools/call response.
type toolResponse struct {
	Text    string
	IsError bool
	// RPCError is set when the handler returned a Go error.
	RPCError string
}

func (h *toolHarness) call(t *testing.T, name string, args map[string]any) toolResponse {
	t.Helper()
	return callTool(t, h.server, WithProjectID(context.Background(), h.projectID), name, args)
}

func callTool(t *testing.T, s *server.MCPServer, ctx context.Context, name string, args map[string]any) toolResponse {
	t.Helper()

	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	resultBytes, err := json.Marshal(s.HandleMessage(ctx, request))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	if response.Error != nil {
		return toolResponse{RPCError: response.Error.Message}
	}
	require.NotEmpty(t, response.Result.Content, "expected content in response")
	return toolResponse{Text: response.Result.Content[0].Text, IsError: response.Result.IsError}
}

func (r toolResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.Empty(t, r.RPCError)
	require.NoError(t, json.Unmarshal([]byte(r.Text), dst))
}

func (r toolResponse) errorResponse(t *testing.T) ErrorResponse {
	t.Helper()
	require.True(t, r.IsError, "expected an error result, got %s", r.Text)
	var resp ErrorResponse
	r.decode(t, &resp)
	return resp
}

type mockChangeTrackingService struct {
	saveReq      services.OntologySaveRequest
	saveDeadline time.Duration
	saveResult   *services.OntologySaveResult
	saveErr      error
}

func (m *mockChangeTrackingService) OnArtifactSaved(ctx context.Context, artifact *models.Artifact) *services.TrackingResult {
	return &services.TrackingResult{ArtifactID: artifact.ID, Tracked: true}
}

func (m *mockChangeTrackingService) OnArtifactDeleted(ctx context.Context, artifactID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *mockChangeTrackingService) OnOntologySaved(ctx context.Context, req services.OntologySaveRequest) (*services.OntologySaveResult, error) {
	m.saveReq = req
	if deadline, ok := ctx.Deadline(); ok {
		m.saveDeadline = time.Until(deadline)
	}
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if m.saveResult != nil {
		return m.saveResult, nil
	}
	return &services.OntologySaveResult{
		GraphIRI:          req.GraphIRI,
		Changes:           []models.ChangeRecord{},
		AffectedArtifacts: models.NewImpactSet(),
		Conflicts:         []models.KindConflict{},
	}, nil
}

type mockValidationService struct {
	report   *models.ValidationReport
	err      error
	deadline time.Duration
	lastID   uuid.UUID
}

func (m *mockValidationService) Validate(ctx context.Context, artifactID uuid.UUID) (*models.ValidationReport, error) {
	m.lastID = artifactID
	if deadline, ok := ctx.Deadline(); ok {
		m.deadline = time.Until(deadline)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.report != nil {
		return m.report, nil
	}
	return &models.ValidationReport{ArtifactID: artifactID, Broken: []models.DependencyEdge{}}, nil
}

type mockDependencyService struct {
	edges     []*models.DependencyEdge
	counts    *models.ValidityCounts
	err       error
	lastGraph string
	lastLimit int
}

func (m *mockDependencyService) ListForArtifact(ctx context.Context, artifactID uuid.UUID) ([]*models.DependencyEdge, error) {
	return m.edges, m.err
}

func (m *mockDependencyService) ListInvalid(ctx context.Context, projectID uuid.UUID, graphIRI string, limit int) ([]*models.DependencyEdge, error) {
	m.lastGraph, m.lastLimit = graphIRI, limit
	return m.edges, m.err
}

func (m *mockDependencyService) Stats(ctx context.Context, projectID uuid.UUID) (*models.ValidityCounts, error) {
	return m.counts, m.err
}

type mockImpactService struct {
	result      *services.ImpactResult
	err         error
	lastProject uuid.UUID
	lastGraph   string
	lastElement string
}

func (m *mockImpactService) ComputeImpact(ctx context.Context, projectID uuid.UUID, graphIRI string, changes []models.ChangeRecord) (*services.ImpactResult, error) {
	return m.result, m.err
}

func (m *mockImpactService) ImpactOfElement(ctx context.Context, projectID uuid.UUID, graphIRI, elementIRI string) (*services.ImpactResult, error) {
	m.lastProject, m.lastGraph, m.lastElement = projectID, graphIRI, elementIRI
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}
