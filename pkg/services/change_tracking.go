package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/metrics"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/ontology"
	"github.com/ekaya-inc/ontology-impact/pkg/repositories"
)

// UntrackedWarning is reported to the caller when an artifact was saved but
// its dependencies could not be recorded.
const UntrackedWarning = "dependencies not tracked for this save"

// TrackingConfig controls dependency extraction on artifact save.
type TrackingConfig struct {
	IgnoreIRIs       []string
	IgnoreNamespaces []string
	BookkeepingTypes []string
	// ClassifyOnSave fetches the artifact's graph to infer element kinds.
	ClassifyOnSave bool
	// ClassifyTimeout bounds that fetch. Zero leaves it to ctx.
	ClassifyTimeout time.Duration
}

// DefaultTrackingConfig returns the default ignore lists with kind
// classification on save enabled.
func DefaultTrackingConfig() TrackingConfig {
	opts := ontology.DefaultDependencyOptions()
	return TrackingConfig{
		IgnoreNamespaces: opts.IgnoreNamespaces,
		BookkeepingTypes: opts.BookkeepingTypes,
		ClassifyOnSave:   true,
		ClassifyTimeout:  2 * time.Second,
	}
}

// TrackingResult reports what happened to an artifact save's dependencies.
type TrackingResult struct {
	ArtifactID   uuid.UUID `json:"artifact_id"`
	Tracked      bool      `json:"tracked"`
	Dependencies int       `json:"dependencies"`
	// Unclassified counts dependencies stored with kind "other" pending validation.
	Unclassified int    `json:"unclassified"`
	Warning      string `json:"warning,omitempty"`
}

// OntologySaveRequest is an incoming ontology document for a named graph.
type OntologySaveRequest struct {
	ProjectID uuid.UUID
	GraphIRI  string
	Document  string
	// Persist writes the document to the graph store after change detection.
	Persist bool
}

// OntologySaveResult is the change set of an ontology save and its impact.
type OntologySaveResult struct {
	GraphIRI          string                `json:"graph_iri"`
	Changes           []models.ChangeRecord `json:"changes"`
	AffectedArtifacts models.ImpactSet      `json:"affected_artifacts"`
	Summary           models.ChangeSummary  `json:"summary"`
	Conflicts         []models.KindConflict `json:"conflicts"`
	Incomplete        bool                  `json:"incomplete"`
	Persisted         bool                  `json:"persisted"`
}

// GraphWriter replaces the content of a named graph.
type GraphWriter interface {
	PutGraph(ctx context.Context, graphIRI, turtle string) error
}

// ChangeTrackingService wires extraction, diffing and impact analysis into
// the hooks the surrounding application calls.
type ChangeTrackingService interface {
	// OnArtifactSaved extracts the artifact's dependencies and replaces its
	// stored edges. It never fails the save: problems are logged and
	// reported through TrackingResult.Warning.
	OnArtifactSaved(ctx context.Context, artifact *models.Artifact) *TrackingResult

	// OnArtifactDeleted removes every dependency edge of the artifact and
	// returns how many were removed.
	OnArtifactDeleted(ctx context.Context, artifactID uuid.UUID) (int64, error)

	// OnOntologySaved diffs the incoming document against the graph store's
	// current state and computes the affected artifacts. Parse and store
	// errors are returned. When ctx expires the partial result is returned
	// with Incomplete set, unless Persist was requested, which then fails
	// with apperrors.ErrConflict.
	OnOntologySaved(ctx context.Context, req OntologySaveRequest) (*OntologySaveResult, error)
}

type changeTrackingService struct {
	cfg       TrackingConfig
	depRepo   repositories.DependencyRepository
	snapshots SnapshotSource
	writer    GraphWriter
	impact    ImpactService
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewChangeTrackingService creates a new ChangeTrackingService. writer may be
// nil, in which case saves with Persist set are rejected.
func NewChangeTrackingService(
	cfg TrackingConfig,
	depRepo repositories.DependencyRepository,
	snapshots SnapshotSource,
	writer GraphWriter,
	impact ImpactService,
	collector *metrics.Collector,
	logger *zap.Logger,
) ChangeTrackingService {
	return &changeTrackingService{
		cfg:       cfg,
		depRepo:   depRepo,
		snapshots: snapshots,
		writer:    writer,
		impact:    impact,
		metrics:   collector,
		logger:    logger.Named("change-tracking"),
	}
}

var _ ChangeTrackingService = (*changeTrackingService)(nil)

func (s *changeTrackingService) OnArtifactSaved(ctx context.Context, artifact *models.Artifact) *TrackingResult {
	result := &TrackingResult{}
	if artifact != nil {
		result.ArtifactID = artifact.ID
	}

	untracked := func(msg string, fields ...zap.Field) *TrackingResult {
		s.logger.Warn(msg, append([]zap.Field{zap.String("artifact_id", result.ArtifactID.String())}, fields...)...)
		s.metrics.RecordTracking(false, 0)
		result.Tracked = false
		result.Warning = UntrackedWarning
		return result
	}

	switch {
	case artifact == nil:
		return untracked("Artifact save without an artifact")
	case artifact.ID == uuid.Nil:
		return untracked("Artifact save without an artifact ID")
	case artifact.OntologyGraphIRI == "":
		return untracked("Artifact is not scoped to an ontology graph")
	}

	opts := ontology.DependencyOptions{
		Prefixes:         artifact.Prefixes,
		ArtifactIRI:      artifact.IRI,
		IgnoreIRIs:       s.cfg.IgnoreIRIs,
		IgnoreNamespaces: s.cfg.IgnoreNamespaces,
		BookkeepingTypes: s.cfg.BookkeepingTypes,
	}
	if s.cfg.ClassifyOnSave && s.snapshots != nil {
		opts.Snapshot = s.classificationSnapshot(ctx, artifact)
	}

	refs, err := ontology.ExtractDependencies(artifact.Statements, opts)
	if err != nil {
		return untracked("Failed to extract artifact dependencies", zap.Error(err))
	}

	if err := s.depRepo.UpsertEdges(ctx, artifact, refs); err != nil {
		return untracked("Failed to store artifact dependencies",
			zap.Int("dependencies", len(refs)),
			zap.Error(err))
	}

	result.Tracked = true
	result.Dependencies = len(refs)
	for _, ref := range refs {
		if ref.NeedsReclassification() {
			result.Unclassified++
		}
	}
	s.metrics.RecordTracking(true, len(refs))

	s.logger.Debug("Tracked artifact dependencies",
		zap.String("artifact_id", artifact.ID.String()),
		zap.String("graph", artifact.OntologyGraphIRI),
		zap.Int("dependencies", result.Dependencies),
		zap.Int("unclassified", result.Unclassified))
	return result
}

// classificationSnapshot fetches the artifact's graph for kind inference.
// Failure leaves every dependency unclassified.
func (s *changeTrackingService) classificationSnapshot(ctx context.Context, artifact *models.Artifact) *models.GraphSnapshot {
	if s.cfg.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ClassifyTimeout)
		defer cancel()
	}

	snapshot, err := s.snapshots.CurrentSnapshot(ctx, artifact.OntologyGraphIRI)
	if err != nil {
		s.logger.Info("Graph snapshot unavailable; dependencies stored unclassified",
			zap.String("artifact_id", artifact.ID.String()),
			zap.String("graph", artifact.OntologyGraphIRI),
			zap.Error(err))
		return nil
	}
	return snapshot
}

func (s *changeTrackingService) OnArtifactDeleted(ctx context.Context, artifactID uuid.UUID) (int64, error) {
	n, err := s.depRepo.DeleteByArtifact(ctx, artifactID)
	if err != nil {
		return 0, fmt.Errorf("delete dependencies of %s: %w", artifactID, err)
	}
	s.logger.Debug("Removed artifact dependencies",
		zap.String("artifact_id", artifactID.String()),
		zap.Int64("removed", n))
	return n, nil
}

func (s *changeTrackingService) OnOntologySaved(ctx context.Context, req OntologySaveRequest) (*OntologySaveResult, error) {
	if req.Persist && s.writer == nil {
		return nil, fmt.Errorf("persisting ontologies is not configured: %w", apperrors.ErrConflict)
	}

	start := time.Now()

	// A malformed incoming document blocks the save before any store access
	current, err := ontology.SnapshotFromDocument(req.GraphIRI, req.Document)
	if err != nil {
		return nil, fmt.Errorf("parse ontology document: %w", err)
	}

	result := &OntologySaveResult{
		GraphIRI:          req.GraphIRI,
		Changes:           []models.ChangeRecord{},
		AffectedArtifacts: models.NewImpactSet(),
		Conflicts:         current.Conflicts(),
	}
	if result.Conflicts == nil {
		result.Conflicts = []models.KindConflict{}
	}

	previous, err := s.snapshots.CurrentSnapshot(ctx, req.GraphIRI)
	if err != nil {
		if !deadlineExceeded(ctx) {
			return nil, fmt.Errorf("load current ontology: %w", err)
		}
		result.Incomplete = true
		s.logger.Warn("Ontology diff hit its deadline before the current graph was loaded",
			zap.String("graph", req.GraphIRI))
		if req.Persist {
			return nil, errIncompletePersist(req.GraphIRI)
		}
		return result, nil
	}

	changes, err := ontology.Diff(previous, current)
	if err != nil {
		return nil, err
	}
	result.Changes = changes
	result.Summary = ontology.Summarize(changes)
	s.metrics.RecordDiff(result.Summary, len(result.Conflicts), time.Since(start))

	impact, err := s.impact.ComputeImpact(ctx, req.ProjectID, req.GraphIRI, changes)
	if err != nil {
		return nil, fmt.Errorf("compute impact: %w", err)
	}
	result.AffectedArtifacts = impact.AffectedArtifacts
	result.Incomplete = impact.Incomplete

	s.logger.Info("Detected ontology changes",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("graph", req.GraphIRI),
		zap.Int("added", result.Summary.Added),
		zap.Int("deleted", result.Summary.Deleted),
		zap.Int("modified", result.Summary.Modified),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("affected_artifacts", len(result.AffectedArtifacts)),
		zap.Bool("incomplete", result.Incomplete))

	if !req.Persist {
		return result, nil
	}
	if result.Incomplete {
		return nil, errIncompletePersist(req.GraphIRI)
	}
	if err := s.writer.PutGraph(ctx, req.GraphIRI, req.Document); err != nil {
		return nil, fmt.Errorf("persist ontology: %w", err)
	}
	result.Persisted = true
	return result, nil
}

// errIncompletePersist rejects writing a document whose impact is not fully known.
func errIncompletePersist(graphIRI string) error {
	return fmt.Errorf("change detection for %s did not finish; refusing to persist: %w", graphIRI, apperrors.ErrConflict)
}
