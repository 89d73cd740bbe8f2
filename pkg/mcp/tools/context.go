package tools

import (
	"context"

	"github.com/google/uuid"
)

type projectIDKey struct{}

// WithProjectID returns a context carrying the project the MCP session is
// bound to.
func WithProjectID(ctx context.Context, projectID uuid.UUID) context.Context {
	return context.WithValue(ctx, projectIDKey{}, projectID)
}

// ProjectIDFromContext returns the project set by WithProjectID.
func ProjectIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(projectIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
