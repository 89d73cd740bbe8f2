package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/metrics"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/repositories"
)

// ValidationService re-checks an artifact's dependencies against the graph store.
type ValidationService interface {
	// Validate marks every dependency of the artifact valid or invalid
	// against a fresh snapshot of its graph and reports the broken ones.
	// Edges stored with kind "other" are reclassified when the element is
	// now known. When ctx expires mid-run the partial report is returned
	// with Incomplete set.
	Validate(ctx context.Context, artifactID uuid.UUID) (*models.ValidationReport, error)
}

type dependencyValidationService struct {
	depRepo   repositories.DependencyRepository
	snapshots SnapshotSource
	metrics   *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// NewDependencyValidationService creates a new ValidationService.
func NewDependencyValidationService(
	depRepo repositories.DependencyRepository,
	snapshots SnapshotSource,
	collector *metrics.Collector,
	logger *zap.Logger,
) ValidationService {
	return &dependencyValidationService{
		depRepo:   depRepo,
		snapshots: snapshots,
		metrics:   collector,
		logger:    logger.Named("validation"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ ValidationService = (*dependencyValidationService)(nil)

func (s *dependencyValidationService) Validate(ctx context.Context, artifactID uuid.UUID) (*models.ValidationReport, error) {
	validatedAt := s.now()
	report := &models.ValidationReport{
		ArtifactID:  artifactID,
		Broken:      []models.DependencyEdge{},
		ValidatedAt: validatedAt,
	}

	edges, err := s.depRepo.EdgesForArtifact(ctx, artifactID)
	if err != nil {
		if deadlineExceeded(ctx) {
			report.Incomplete = true
			s.metrics.RecordValidation(report)
			return report, nil
		}
		return nil, fmt.Errorf("load dependencies: %w", err)
	}
	report.Total = len(edges)

	// One graph store round trip per distinct graph
	snapshots := make(map[string]*models.GraphSnapshot)

	for _, edge := range edges {
		if deadlineExceeded(ctx) {
			report.Incomplete = true
			break
		}

		snapshot, ok := snapshots[edge.OntologyGraphIRI]
		if !ok {
			snapshot, err = s.snapshots.CurrentSnapshot(ctx, edge.OntologyGraphIRI)
			if err != nil {
				if deadlineExceeded(ctx) {
					report.Incomplete = true
					break
				}
				return nil, fmt.Errorf("snapshot of %s: %w", edge.OntologyGraphIRI, err)
			}
			snapshots[edge.OntologyGraphIRI] = snapshot
		}

		descriptor, present := snapshot.Get(edge.ElementIRI)
		if err := s.depRepo.MarkValidity(ctx, artifactID, edge.ElementIRI, present, validatedAt); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				// Removed by a concurrent re-save of the artifact
				s.logger.Debug("Dependency vanished during validation",
					zap.String("artifact_id", artifactID.String()),
					zap.String("element_iri", edge.ElementIRI))
				report.Total--
				continue
			}
			if deadlineExceeded(ctx) {
				report.Incomplete = true
				break
			}
			return nil, fmt.Errorf("mark validity of %s: %w", edge.ElementIRI, err)
		}

		if !present {
			broken := *edge
			broken.IsValid = false
			broken.LastValidatedAt = &validatedAt
			report.Broken = append(report.Broken, broken)
			report.Invalid++
			continue
		}
		report.Valid++

		if edge.ElementKind == models.ElementKindOther && descriptor.Kind != models.ElementKindOther {
			if err := s.depRepo.Reclassify(ctx, artifactID, edge.ElementIRI, descriptor.Kind); err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					continue
				}
				if deadlineExceeded(ctx) {
					report.Incomplete = true
					break
				}
				return nil, fmt.Errorf("reclassify %s: %w", edge.ElementIRI, err)
			}
			report.Reclassified++
		}
	}

	s.metrics.RecordValidation(report)
	s.logger.Info("Validated artifact dependencies",
		zap.String("artifact_id", artifactID.String()),
		zap.Int("total", report.Total),
		zap.Int("valid", report.Valid),
		zap.Int("invalid", report.Invalid),
		zap.Int("reclassified", report.Reclassified),
		zap.Bool("incomplete", report.Incomplete))

	return report, nil
}
