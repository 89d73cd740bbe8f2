package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ontology-impact/pkg/config"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// passThroughTenant stands in for database.WithTenantContext.
func passThroughTenant(next http.HandlerFunc) http.HandlerFunc { return next }

func testTrackingConfig() config.TrackingConfig {
	return config.TrackingConfig{
		ValidationTimeout: 30 * time.Second,
		DiffTimeout:       30 * time.Second,
		MaxTimeout:        time.Minute,
	}
}

// mockChangeTrackingService implements services.ChangeTrackingService for handler tests.
type mockChangeTrackingService struct {
	savedArtifact *models.Artifact
	trackResult   *services.TrackingResult

	deletedID uuid.UUID
	deleteErr error

	saveReq      services.OntologySaveRequest
	saveDeadline time.Duration
	saveResult   *services.OntologySaveResult
	saveErr      error
}

func (m *mockChangeTrackingService) OnArtifactSaved(ctx context.Context, artifact *models.Artifact) *services.TrackingResult {
	m.savedArtifact = artifact
	if m.trackResult != nil {
		return m.trackResult
	}
	return &services.TrackingResult{ArtifactID: artifact.ID, Tracked: true, Dependencies: len(artifact.Statements)}
}

func (m *mockChangeTrackingService) OnArtifactDeleted(ctx context.Context, artifactID uuid.UUID) (int64, error) {
	m.deletedID = artifactID
	return 3, m.deleteErr
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
		Persisted:         req.Persist,
	}, nil
}

// mockValidationService implements services.ValidationService for handler tests.
type mockValidationService struct {
	report   *models.ValidationReport
	err      error
	deadline time.Duration
}

func (m *mockValidationService) Validate(ctx context.Context, artifactID uuid.UUID) (*models.ValidationReport, error) {
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

// mockDependencyService implements services.DependencyService for handler tests.
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

// mockImpactService implements services.ImpactService for handler tests.
type mockImpactService struct {
	result      *services.ImpactResult
	err         error
	lastGraph   string
	lastElement string
}

func (m *mockImpactService) ComputeImpact(ctx context.Context, projectID uuid.UUID, graphIRI string, changes []models.ChangeRecord) (*services.ImpactResult, error) {
	return m.result, m.err
}

func (m *mockImpactService) ImpactOfElement(ctx context.Context, projectID uuid.UUID, graphIRI, elementIRI string) (*services.ImpactResult, error) {
	m.lastGraph, m.lastElement = graphIRI, elementIRI
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

var (
	_ services.ChangeTrackingService = (*mockChangeTrackingService)(nil)
	_ services.ValidationService     = (*mockValidationService)(nil)
	_ services.DependencyService     = (*mockDependencyService)(nil)
	_ services.ImpactService         = (*mockImpactService)(nil)
)
