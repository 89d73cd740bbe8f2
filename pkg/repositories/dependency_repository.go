package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/database"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
)

// DependencyRepository provides data access for artifact → ontology element dependency edges.
// Every method is confined to the project of the tenant scope on ctx; an
// artifact ID owned by another project behaves as if it did not exist.
type DependencyRepository interface {
	// UpsertEdges replaces all edges of the artifact with refs in one transaction.
	// Rows for IRIs still referenced keep first_detected_at and validity.
	// An artifact whose edges belong to another project is an ErrConflict.
	UpsertEdges(ctx context.Context, artifact *models.Artifact, refs []models.ElementRef) error

	// EdgesForArtifact returns the artifact's edges ordered by element IRI.
	EdgesForArtifact(ctx context.Context, artifactID uuid.UUID) ([]*models.DependencyEdge, error)

	// ArtifactsReferencing returns the distinct artifacts with an edge to elementIRI
	// in graphIRI. An empty graphIRI matches every graph.
	ArtifactsReferencing(ctx context.Context, projectID uuid.UUID, graphIRI, elementIRI string) ([]uuid.UUID, error)

	// MarkValidity records the outcome of validating one edge.
	MarkValidity(ctx context.Context, artifactID uuid.UUID, elementIRI string, isValid bool, validatedAt time.Time) error

	// Reclassify sets the element kind of an edge extracted without a snapshot.
	Reclassify(ctx context.Context, artifactID uuid.UUID, elementIRI string, kind models.ElementKind) error

	// DeleteByArtifact removes every edge of the artifact and returns the count removed.
	DeleteByArtifact(ctx context.Context, artifactID uuid.UUID) (int64, error)

	// ListInvalid returns invalid edges for a project, optionally narrowed to one graph.
	ListInvalid(ctx context.Context, projectID uuid.UUID, graphIRI string, limit int) ([]*models.DependencyEdge, error)

	// CountByValidity returns counts of valid and invalid edges for a project.
	CountByValidity(ctx context.Context, projectID uuid.UUID) (*models.ValidityCounts, error)
}

type dependencyRepository struct{}

// NewDependencyRepository creates a new DependencyRepository.
func NewDependencyRepository() DependencyRepository {
	return &dependencyRepository{}
}

var _ DependencyRepository = (*dependencyRepository)(nil)

const dependencyColumns = `
	artifact_id, project_id, element_iri, ontology_graph_iri, element_type,
	first_detected_at, last_validated_at, is_valid`

func (r *dependencyRepository) UpsertEdges(ctx context.Context, artifact *models.Artifact, refs []models.ElementRef) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if artifact.ProjectID != scope.ProjectID {
		return fmt.Errorf("artifact %s is not in project %s: %w", artifact.ID, scope.ProjectID, apperrors.ErrConflict)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Concurrent saves of the same artifact apply one after the other
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, artifact.ID.String())
	if err != nil {
		return storeError("lock artifact", err)
	}

	var foreign bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM engine_ontology_dependencies
			WHERE artifact_id = $1 AND project_id <> $2
		)`, artifact.ID, scope.ProjectID).Scan(&foreign)
	if err != nil {
		return storeError("check artifact owner", err)
	}
	if foreign {
		return fmt.Errorf("artifact %s is tracked by another project: %w", artifact.ID, apperrors.ErrConflict)
	}

	iris := make([]string, 0, len(refs))
	for _, ref := range refs {
		iris = append(iris, ref.IRI)
	}

	// Stale edges go first so readers never see the union of old and new sets
	_, err = tx.Exec(ctx, `
		DELETE FROM engine_ontology_dependencies
		WHERE artifact_id = $1 AND project_id = $2 AND NOT (element_iri = ANY($3))`,
		artifact.ID, scope.ProjectID, iris)
	if err != nil {
		return storeError("delete stale dependencies", err)
	}

	if len(refs) > 0 {
		now := time.Now()
		query := `
			INSERT INTO engine_ontology_dependencies (
				artifact_id, project_id, element_iri, ontology_graph_iri, element_type,
				first_detected_at, is_valid
			) VALUES ($1, $2, $3, $4, $5, $6, true)
			ON CONFLICT (artifact_id, element_iri) DO UPDATE SET
				element_type = CASE
					WHEN EXCLUDED.element_type = 'other' THEN engine_ontology_dependencies.element_type
					ELSE EXCLUDED.element_type
				END,
				is_valid = CASE
					WHEN engine_ontology_dependencies.ontology_graph_iri = EXCLUDED.ontology_graph_iri
					THEN engine_ontology_dependencies.is_valid
					ELSE true
				END,
				last_validated_at = CASE
					WHEN engine_ontology_dependencies.ontology_graph_iri = EXCLUDED.ontology_graph_iri
					THEN engine_ontology_dependencies.last_validated_at
				END,
				ontology_graph_iri = EXCLUDED.ontology_graph_iri
			WHERE engine_ontology_dependencies.project_id = EXCLUDED.project_id`

		batch := &pgx.Batch{}
		for _, ref := range refs {
			batch.Queue(query,
				artifact.ID,
				scope.ProjectID,
				ref.IRI,
				artifact.OntologyGraphIRI,
				string(ref.Kind),
				now,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range refs {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return storeError(fmt.Sprintf("upsert dependency %d", i), err)
			}
		}
		if err := results.Close(); err != nil {
			return storeError("upsert dependencies", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError("commit transaction", err)
	}

	return nil
}

func (r *dependencyRepository) EdgesForArtifact(ctx context.Context, artifactID uuid.UUID) ([]*models.DependencyEdge, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT` + dependencyColumns + `
		FROM engine_ontology_dependencies
		WHERE artifact_id = $1 AND project_id = $2
		ORDER BY element_iri COLLATE "C"`

	rows, err := scope.Conn.Query(ctx, query, artifactID, scope.ProjectID)
	if err != nil {
		return nil, storeError("list dependencies", err)
	}
	defer rows.Close()

	return scanDependencyEdges(rows)
}

func (r *dependencyRepository) ArtifactsReferencing(ctx context.Context, projectID uuid.UUID, graphIRI, elementIRI string) ([]uuid.UUID, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT DISTINCT artifact_id
		FROM engine_ontology_dependencies
		WHERE project_id = $1
		  AND ($2 = '' OR ontology_graph_iri = $2)
		  AND element_iri = $3
		ORDER BY artifact_id`

	rows, err := scope.Conn.Query(ctx, query, projectID, graphIRI, elementIRI)
	if err != nil {
		return nil, storeError("query referencing artifacts", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan artifact id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate referencing artifacts", err)
	}

	return ids, nil
}

func (r *dependencyRepository) MarkValidity(ctx context.Context, artifactID uuid.UUID, elementIRI string, isValid bool, validatedAt time.Time) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE engine_ontology_dependencies
		SET is_valid = $3, last_validated_at = $4
		WHERE artifact_id = $1 AND element_iri = $2 AND project_id = $5`

	result, err := scope.Conn.Exec(ctx, query, artifactID, elementIRI, isValid, validatedAt, scope.ProjectID)
	if err != nil {
		return storeError("mark dependency validity", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("dependency %s %s: %w", artifactID, elementIRI, apperrors.ErrNotFound)
	}

	return nil
}

func (r *dependencyRepository) Reclassify(ctx context.Context, artifactID uuid.UUID, elementIRI string, kind models.ElementKind) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE engine_ontology_dependencies
		SET element_type = $3
		WHERE artifact_id = $1 AND element_iri = $2 AND project_id = $4`

	result, err := scope.Conn.Exec(ctx, query, artifactID, elementIRI, string(kind), scope.ProjectID)
	if err != nil {
		return storeError("reclassify dependency", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("dependency %s %s: %w", artifactID, elementIRI, apperrors.ErrNotFound)
	}

	return nil
}

func (r *dependencyRepository) DeleteByArtifact(ctx context.Context, artifactID uuid.UUID) (int64, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `DELETE FROM engine_ontology_dependencies WHERE artifact_id = $1 AND project_id = $2`
	result, err := scope.Conn.Exec(ctx, query, artifactID, scope.ProjectID)
	if err != nil {
		return 0, storeError("delete dependencies", err)
	}

	return result.RowsAffected(), nil
}

func (r *dependencyRepository) ListInvalid(ctx context.Context, projectID uuid.UUID, graphIRI string, limit int) ([]*models.DependencyEdge, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT` + dependencyColumns + `
		FROM engine_ontology_dependencies
		WHERE project_id = $1
		  AND is_valid = false
		  AND ($2 = '' OR ontology_graph_iri = $2)
		ORDER BY last_validated_at DESC NULLS LAST, artifact_id, element_iri COLLATE "C"
		LIMIT $3`

	rows, err := scope.Conn.Query(ctx, query, projectID, graphIRI, limit)
	if err != nil {
		return nil, storeError("list invalid dependencies", err)
	}
	defer rows.Close()

	return scanDependencyEdges(rows)
}

func (r *dependencyRepository) CountByValidity(ctx context.Context, projectID uuid.UUID) (*models.ValidityCounts, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT is_valid, COUNT(*) as count
		FROM engine_ontology_dependencies
		WHERE project_id = $1
		GROUP BY is_valid`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, storeError("count dependencies", err)
	}
	defer rows.Close()

	counts := &models.ValidityCounts{}
	for rows.Next() {
		var isValid bool
		var count int
		if err := rows.Scan(&isValid, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		if isValid {
			counts.Valid = count
		} else {
			counts.Invalid = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate counts", err)
	}

	return counts, nil
}

func scanDependencyEdges(rows pgx.Rows) ([]*models.DependencyEdge, error) {
	var edges []*models.DependencyEdge
	for rows.Next() {
		var e models.DependencyEdge
		var kind string
		err := rows.Scan(
			&e.ArtifactID,
			&e.ProjectID,
			&e.ElementIRI,
			&e.OntologyGraphIRI,
			&kind,
			&e.FirstDetectedAt,
			&e.LastValidatedAt,
			&e.IsValid,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		e.ElementKind = models.ParseElementKind(kind)
		edges = append(edges, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate dependencies", err)
	}

	return edges, nil
}

// storeError wraps err with the failed action and marks connection-level
// failures as StoreUnavailable so callers can retry them.
func storeError(action string, err error) error {
	wrapped := fmt.Errorf("failed to %s: %w", action, err)
	if isConnectionError(err) {
		return apperrors.NewStoreUnavailable("dependency store", wrapped)
	}
	return wrapped
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
