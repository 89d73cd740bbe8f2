package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantSetting is the session setting read by the row-level security
// policy on the dependency table.
const TenantSetting = "app.current_project_id"

// TenantScope is a pooled connection bound to one project.
type TenantScope struct {
	Conn      *pgxpool.Conn
	ProjectID uuid.UUID
}

// Close clears the project setting and releases the connection. It must be
// called exactly once per scope.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET "+TenantSetting)
	s.Conn.Release()
	s.Conn = nil
}

// WithTenant acquires a connection with TenantSetting set to projectID.
func (db *DB) WithTenant(ctx context.Context, projectID uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT set_config($1, $2, false)", TenantSetting, projectID.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set %s: %w", TenantSetting, err)
	}
	return &TenantScope{Conn: conn, ProjectID: projectID}, nil
}

type tenantScopeKey struct{}

// GetTenantScope returns the scope stored by SetTenantScope.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(tenantScopeKey{}).(*TenantScope)
	return scope, ok && scope != nil
}

// SetTenantScope returns a copy of ctx carrying scope.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, tenantScopeKey{}, scope)
}
