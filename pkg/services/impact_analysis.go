package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/metrics"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/repositories"
)

// ImpactResult is the set of artifacts affected by a change set.
type ImpactResult struct {
	AffectedArtifacts models.ImpactSet `json:"affected_artifacts"`
	// Incomplete is set when the deadline expired before every changed
	// element was looked up.
	Incomplete bool `json:"incomplete"`
}

// ImpactService answers "which artifacts break if these elements change".
type ImpactService interface {
	// ComputeImpact returns the artifacts whose dependencies reference a
	// deleted or modified element. Added elements never contribute.
	ComputeImpact(ctx context.Context, projectID uuid.UUID, graphIRI string, changes []models.ChangeRecord) (*ImpactResult, error)

	// ImpactOfElement returns the artifacts referencing a single element.
	// An empty graphIRI matches dependencies on any graph.
	ImpactOfElement(ctx context.Context, projectID uuid.UUID, graphIRI, elementIRI string) (*ImpactResult, error)
}

type impactService struct {
	depRepo repositories.DependencyRepository
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewImpactService creates a new ImpactService.
func NewImpactService(
	depRepo repositories.DependencyRepository,
	collector *metrics.Collector,
	logger *zap.Logger,
) ImpactService {
	return &impactService{
		depRepo: depRepo,
		metrics: collector,
		logger:  logger.Named("impact"),
	}
}

var _ ImpactService = (*impactService)(nil)

func (s *impactService) ComputeImpact(
	ctx context.Context,
	projectID uuid.UUID,
	graphIRI string,
	changes []models.ChangeRecord,
) (*ImpactResult, error) {
	result := &ImpactResult{AffectedArtifacts: models.NewImpactSet()}

	looked := 0
	for _, change := range changes {
		if !change.AffectsDependents() {
			continue
		}
		if deadlineExceeded(ctx) {
			result.Incomplete = true
			break
		}

		ids, err := s.depRepo.ArtifactsReferencing(ctx, projectID, graphIRI, change.IRI)
		if err != nil {
			if deadlineExceeded(ctx) {
				result.Incomplete = true
				break
			}
			return nil, fmt.Errorf("artifacts referencing %s: %w", change.IRI, err)
		}
		looked++
		for _, id := range ids {
			result.AffectedArtifacts.Add(id)
		}
	}

	if result.Incomplete {
		s.logger.Warn("Impact analysis hit its deadline",
			zap.String("project_id", projectID.String()),
			zap.String("graph", graphIRI),
			zap.Int("elements_checked", looked))
	}
	s.logger.Debug("Computed impact",
		zap.String("project_id", projectID.String()),
		zap.String("graph", graphIRI),
		zap.Int("changes", len(changes)),
		zap.Int("affected_artifacts", len(result.AffectedArtifacts)))
	s.metrics.RecordImpact(len(result.AffectedArtifacts), result.Incomplete)

	return result, nil
}

func (s *impactService) ImpactOfElement(
	ctx context.Context,
	projectID uuid.UUID,
	graphIRI, elementIRI string,
) (*ImpactResult, error) {
	if elementIRI == "" {
		return nil, errors.New("element IRI is required")
	}

	ids, err := s.depRepo.ArtifactsReferencing(ctx, projectID, graphIRI, elementIRI)
	if err != nil {
		return nil, fmt.Errorf("artifacts referencing %s: %w", elementIRI, err)
	}

	result := &ImpactResult{AffectedArtifacts: models.NewImpactSet(ids...)}
	s.metrics.RecordImpact(len(result.AffectedArtifacts), false)
	return result, nil
}

// deadlineExceeded reports whether the caller's deadline has passed. A store
// client's own request timeout does not count, nor does cancellation.
func deadlineExceeded(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
