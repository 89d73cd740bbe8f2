package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/graphstore"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/ontology"
	"github.com/ekaya-inc/ontology-impact/pkg/retry"
)

// SnapshotSource provides the current state of an ontology graph.
type SnapshotSource interface {
	// CurrentSnapshot captures the elements of graphIRI as the graph store holds them now.
	CurrentSnapshot(ctx context.Context, graphIRI string) (*models.GraphSnapshot, error)
}

type graphStoreSnapshotSource struct {
	client   graphstore.Client
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewGraphStoreSnapshotSource creates a SnapshotSource backed by the graph store.
// Transient read failures are retried with retryCfg; nil uses retry.GraphStoreConfig.
func NewGraphStoreSnapshotSource(client graphstore.Client, retryCfg *retry.Config, logger *zap.Logger) SnapshotSource {
	if retryCfg == nil {
		retryCfg = retry.GraphStoreConfig()
	}
	return &graphStoreSnapshotSource{
		client:   client,
		retryCfg: retryCfg,
		logger:   logger.Named("snapshot-source"),
	}
}

var _ SnapshotSource = (*graphStoreSnapshotSource)(nil)

func (s *graphStoreSnapshotSource) CurrentSnapshot(ctx context.Context, graphIRI string) (*models.GraphSnapshot, error) {
	var rows []models.ElementRow
	attempt := 0
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		attempt++
		var err error
		rows, err = s.client.ElementRows(ctx, graphIRI)
		if err != nil && attempt == 1 && retry.IsRetryable(err) {
			s.logger.Warn("Graph store read failed, retrying",
				zap.String("graph", graphIRI),
				zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch elements of %s: %w", graphIRI, err)
	}

	snapshot, err := ontology.SnapshotFromRows(graphIRI, rows)
	if err != nil {
		return nil, fmt.Errorf("build snapshot of %s: %w", graphIRI, err)
	}

	if conflicts := snapshot.Conflicts(); len(conflicts) > 0 {
		s.logger.Warn("Graph store holds elements with conflicting types",
			zap.String("graph", graphIRI),
			zap.Int("conflicts", len(conflicts)))
	}
	return snapshot, nil
}
