package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/ontology"
	"github.com/ekaya-inc/ontology-impact/pkg/repositories"
)

const (
	testGraph = "http://ex.org/graphs/onto"
	onto      = "http://ex.org/onto#"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockDependencyRepo is an in-memory DependencyRepository.
type mockDependencyRepo struct {
	mu    sync.Mutex
	edges map[uuid.UUID][]*models.DependencyEdge

	upsertErr      error
	referencingFn  func(ctx context.Context, elementIRI string) ([]uuid.UUID, error)
	markValidityFn func(ctx context.Context, elementIRI string) error
	edgesErr       error

	referencingCalls []string
	markCalls        int
}

func newMockDependencyRepo() *mockDependencyRepo {
	return &mockDependencyRepo{edges: make(map[uuid.UUID][]*models.DependencyEdge)}
}

var _ repositories.DependencyRepository = (*mockDependencyRepo)(nil)

func (m *mockDependencyRepo) UpsertEdges(ctx context.Context, artifact *models.Artifact, refs []models.ElementRef) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := make([]*models.DependencyEdge, 0, len(refs))
	for _, ref := range refs {
		edges = append(edges, &models.DependencyEdge{
			ArtifactID:       artifact.ID,
			ProjectID:        artifact.ProjectID,
			ElementIRI:       ref.IRI,
			OntologyGraphIRI: artifact.OntologyGraphIRI,
			ElementKind:      ref.Kind,
			FirstDetectedAt:  time.Now(),
			IsValid:          true,
		})
	}
	m.edges[artifact.ID] = edges
	return nil
}

func (m *mockDependencyRepo) EdgesForArtifact(ctx context.Context, artifactID uuid.UUID) ([]*models.DependencyEdge, error) {
	if m.edgesErr != nil {
		return nil, m.edgesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DependencyEdge, 0, len(m.edges[artifactID]))
	for _, e := range m.edges[artifactID] {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ElementIRI < out[j].ElementIRI })
	return out, nil
}

func (m *mockDependencyRepo) ArtifactsReferencing(ctx context.Context, projectID uuid.UUID, graphIRI, elementIRI string) ([]uuid.UUID, error) {
	m.mu.Lock()
	m.referencingCalls = append(m.referencingCalls, elementIRI)
	m.mu.Unlock()
	if m.referencingFn != nil {
		return m.referencingFn(ctx, elementIRI)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, edges := range m.edges {
		for _, e := range edges {
			if e.ProjectID == projectID && e.ElementIRI == elementIRI && (graphIRI == "" || e.OntologyGraphIRI == graphIRI) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (m *mockDependencyRepo) find(artifactID uuid.UUID, elementIRI string) *models.DependencyEdge {
	for _, e := range m.edges[artifactID] {
		if e.ElementIRI == elementIRI {
			return e
		}
	}
	return nil
}

func (m *mockDependencyRepo) MarkValidity(ctx context.Context, artifactID uuid.UUID, elementIRI string, isValid bool, validatedAt time.Time) error {
	if m.markValidityFn != nil {
		if err := m.markValidityFn(ctx, elementIRI); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++
	e := m.find(artifactID, elementIRI)
	if e == nil {
		return fmt.Errorf("dependency %s %s: %w", artifactID, elementIRI, apperrors.ErrNotFound)
	}
	e.IsValid = isValid
	e.LastValidatedAt = &validatedAt
	return nil
}

func (m *mockDependencyRepo) Reclassify(ctx context.Context, artifactID uuid.UUID, elementIRI string, kind models.ElementKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(artifactID, elementIRI)
	if e == nil {
		return fmt.Errorf("dependency %s %s: %w", artifactID, elementIRI, apperrors.ErrNotFound)
	}
	e.ElementKind = kind
	return nil
}

func (m *mockDependencyRepo) DeleteByArtifact(ctx context.Context, artifactID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.edges[artifactID]))
	delete(m.edges, artifactID)
	return n, nil
}

func (m *mockDependencyRepo) ListInvalid(ctx context.Context, projectID uuid.UUID, graphIRI string, limit int) ([]*models.DependencyEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DependencyEdge
	for _, edges := range m.edges {
		for _, e := range edges {
			if e.ProjectID == projectID && !e.IsValid && (graphIRI == "" || e.OntologyGraphIRI == graphIRI) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *mockDependencyRepo) CountByValidity(ctx context.Context, projectID uuid.UUID) (*models.ValidityCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := &models.ValidityCounts{}
	for _, edges := range m.edges {
		for _, e := range edges {
			if e.ProjectID != projectID {
				continue
			}
			if e.IsValid {
				counts.Valid++
			} else {
				counts.Invalid++
			}
		}
	}
	return counts, nil
}

// mockSnapshotSource serves fixed snapshots per graph.
type mockSnapshotSource struct {
	mu        sync.Mutex
	snapshots map[string]*models.GraphSnapshot
	err       error
	fn        func(ctx context.Context, graphIRI string) (*models.GraphSnapshot, error)
	calls     map[string]int
}

func newMockSnapshotSource() *mockSnapshotSource {
	return &mockSnapshotSource{
		snapshots: make(map[string]*models.GraphSnapshot),
		calls:     make(map[string]int),
	}
}

func (m *mockSnapshotSource) CurrentSnapshot(ctx context.Context, graphIRI string) (*models.GraphSnapshot, error) {
	m.mu.Lock()
	m.calls[graphIRI]++
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, graphIRI)
	}
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.snapshots[graphIRI]; ok {
		return s, nil
	}
	return models.NewGraphSnapshot(graphIRI, time.Now(), nil, nil)
}

// mockGraphWriter records PutGraph calls.
type mockGraphWriter struct {
	puts map[string]string
	err  error
}

func newMockGraphWriter() *mockGraphWriter {
	return &mockGraphWriter{puts: make(map[string]string)}
}

func (m *mockGraphWriter) PutGraph(ctx context.Context, graphIRI, turtle string) error {
	if m.err != nil {
		return m.err
	}
	m.puts[graphIRI] = turtle
	return nil
}

// ============================================================================
// Fixtures
// ============================================================================

func snapshotOf(t *testing.T, graphIRI string, elements ...models.ElementDescriptor) *models.GraphSnapshot {
	t.Helper()
	s, err := models.NewGraphSnapshot(graphIRI, time.Now(), elements, nil)
	require.NoError(t, err)
	return s
}

func documentSnapshot(t *testing.T, graphIRI, document string) *models.GraphSnapshot {
	t.Helper()
	s, err := ontology.SnapshotFromDocument(graphIRI, document)
	require.NoError(t, err)
	return s
}

func element(name string, kind models.ElementKind) models.ElementDescriptor {
	return models.ElementDescriptor{IRI: onto + name, Kind: kind}
}

func seedEdges(repo *mockDependencyRepo, artifactID, projectID uuid.UUID, graphIRI string, refs ...models.ElementRef) {
	_ = repo.UpsertEdges(context.Background(), &models.Artifact{
		ID:               artifactID,
		ProjectID:        projectID,
		OntologyGraphIRI: graphIRI,
	}, refs)
}

func ref(name string, kind models.ElementKind) models.ElementRef {
	return models.ElementRef{IRI: onto + name, Kind: kind}
}
