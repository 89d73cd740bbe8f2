// Package tools provides the MCP tools that expose dependency tracking and
// ontology impact analysis to agents.
package tools

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/config"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// ToolDeps contains the dependencies shared by every tool.
type ToolDeps struct {
	Tracking     services.ChangeTrackingService
	Validation   services.ValidationService
	Dependencies services.DependencyService
	Impact       services.ImpactService

	// TenantContext scopes database access to the caller's project. Nil
	// leaves the context unchanged.
	TenantContext services.TenantContextFunc

	// Config supplies the default and maximum tool deadlines.
	Config config.TrackingConfig
	Logger *zap.Logger
}

// ToolAccessError is an actionable error returned to the MCP client as an
// error result rather than a protocol error.
type ToolAccessError struct {
	Code      string
	Message   string
	MCPResult *mcp.CallToolResult
}

func (e *ToolAccessError) Error() string {
	return e.Message
}

// AsToolAccessResult returns the prepared result when err is a ToolAccessError:
//
//	projectID, ctx, cleanup, err := AcquireToolAccess(ctx, deps, "my_tool")
//	if err != nil {
//	    if result := AsToolAccessResult(err); result != nil {
//	        return result, nil
//	    }
//	    return nil, err
//	}
func AsToolAccessResult(err error) *mcp.CallToolResult {
	var accessErr *ToolAccessError
	if errors.As(err, &accessErr) {
		return accessErr.MCPResult
	}
	return nil
}

func newToolAccessError(code, message string) *ToolAccessError {
	return &ToolAccessError{
		Code:      code,
		Message:   message,
		MCPResult: NewErrorResult(code, message),
	}
}

// AcquireToolAccess resolves the caller's project and returns a
// tenant-scoped context. cleanup must be called when the tool is done.
// A missing project and a store outage are ToolAccessErrors; any other
// failure to acquire the tenant scope is a system error.
func AcquireToolAccess(ctx context.Context, deps *ToolDeps, toolName string) (uuid.UUID, context.Context, func(), error) {
	projectID, ok := ProjectIDFromContext(ctx)
	if !ok {
		return uuid.Nil, nil, nil, newToolAccessError("project_required",
			"no project in request: connect to /mcp/{project-id}")
	}

	if deps.TenantContext == nil {
		return projectID, ctx, func() {}, nil
	}

	tenantCtx, cleanup, err := deps.TenantContext(ctx, projectID)
	if err != nil {
		deps.Logger.Error("Failed to acquire tenant scope for tool",
			zap.String("tool", toolName),
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			result, _ := HandleServiceError(err, "tenant_scope_failed")
			return uuid.Nil, nil, nil, &ToolAccessError{Code: "store_unavailable", Message: err.Error(), MCPResult: result}
		}
		return uuid.Nil, nil, nil, err
	}
	return projectID, tenantCtx, cleanup, nil
}
