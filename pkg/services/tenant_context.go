package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/database"
)

// TenantContextFunc returns ctx carrying a connection scoped to projectID and
// a cleanup that releases it. MCP tools use it where the HTTP tenant
// middleware does not run.
type TenantContextFunc func(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error)

// NewTenantContextFunc scopes connections from db. Pool failures are
// reported as a dependency store outage; cancellation is returned as is.
func NewTenantContextFunc(db *database.DB) TenantContextFunc {
	return func(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
		if projectID == uuid.Nil {
			return nil, nil, errors.New("tenant scope requires a project id")
		}

		scope, err := db.WithTenant(ctx, projectID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("scope project %s: %w", projectID, ctx.Err())
			}
			return nil, nil, apperrors.NewStoreUnavailable("dependency store", err)
		}
		return database.SetTenantScope(ctx, scope), scope.Close, nil
	}
}
