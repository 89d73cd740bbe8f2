package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/repositories"
)

// DefaultInvalidLimit bounds ListInvalid when the caller passes no limit.
const DefaultInvalidLimit = 100

// DependencyService answers read queries over stored dependency edges.
type DependencyService interface {
	// ListForArtifact returns the artifact's edges ordered by element IRI.
	ListForArtifact(ctx context.Context, artifactID uuid.UUID) ([]*models.DependencyEdge, error)

	// ListInvalid returns edges whose last validation found the element
	// missing. An empty graphIRI covers every graph of the project.
	ListInvalid(ctx context.Context, projectID uuid.UUID, graphIRI string, limit int) ([]*models.DependencyEdge, error)

	// Stats counts the project's edges by validity.
	Stats(ctx context.Context, projectID uuid.UUID) (*models.ValidityCounts, error)
}

type dependencyService struct {
	depRepo repositories.DependencyRepository
	logger  *zap.Logger
}

// NewDependencyService creates a new DependencyService.
func NewDependencyService(depRepo repositories.DependencyRepository, logger *zap.Logger) DependencyService {
	return &dependencyService{
		depRepo: depRepo,
		logger:  logger.Named("dependencies"),
	}
}

var _ DependencyService = (*dependencyService)(nil)

func (s *dependencyService) ListForArtifact(ctx context.Context, artifactID uuid.UUID) ([]*models.DependencyEdge, error) {
	edges, err := s.depRepo.EdgesForArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies of artifact %s: %w", artifactID, err)
	}
	if edges == nil {
		edges = []*models.DependencyEdge{}
	}
	return edges, nil
}

func (s *dependencyService) ListInvalid(ctx context.Context, projectID uuid.UUID, graphIRI string, limit int) ([]*models.DependencyEdge, error) {
	if limit <= 0 {
		limit = DefaultInvalidLimit
	}
	edges, err := s.depRepo.ListInvalid(ctx, projectID, graphIRI, limit)
	if err != nil {
		return nil, fmt.Errorf("list invalid dependencies: %w", err)
	}
	if edges == nil {
		edges = []*models.DependencyEdge{}
	}
	s.logger.Debug("Listed invalid dependencies",
		zap.String("project_id", projectID.String()),
		zap.String("graph", graphIRI),
		zap.Int("count", len(edges)))
	return edges, nil
}

func (s *dependencyService) Stats(ctx context.Context, projectID uuid.UUID) (*models.ValidityCounts, error) {
	counts, err := s.depRepo.CountByValidity(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("count dependencies: %w", err)
	}
	return counts, nil
}
