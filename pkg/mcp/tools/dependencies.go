package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// maxInvalidLimit caps the limit argument of list_invalid_dependencies.
const maxInvalidLimit = 1000

type dependencyListResult struct {
	Dependencies []*models.DependencyEdge `json:"dependencies"`
	Total        int                      `json:"total"`
}

// RegisterDependencyTools registers the dependency query and validation tools.
func RegisterDependencyTools(s *server.MCPServer, deps *ToolDeps) {
	registerGetDependenciesTool(s, deps)
	registerValidateArtifactTool(s, deps)
	registerDependencyStatsTool(s, deps)
	registerListInvalidDependenciesTool(s, deps)
}

func registerGetDependenciesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_dependencies",
		mcp.WithDescription(
			"List the ontology elements an artifact references. "+
				"Each dependency carries the element IRI, its kind (class, object_property, datatype_property, individual or other) "+
				"and whether the last validation found it in the ontology.",
		),
		mcp.WithString("artifact_id", mcp.Required(), mcp.Description("UUID of the artifact")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, tenantCtx, cleanup, err := AcquireToolAccess(ctx, deps, "get_dependencies")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		artifactID, errResult := requireUUID(req, "artifact_id")
		if errResult != nil {
			return errResult, nil
		}

		edges, err := deps.Dependencies.ListForArtifact(tenantCtx, artifactID)
		if err != nil {
			return HandleServiceError(err, "list_dependencies_failed")
		}
		return jsonResult(dependencyListResult{Dependencies: edges, Total: len(edges)})
	})
}

func registerValidateArtifactTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"validate_artifact",
		mcp.WithDescription(
			"Check every dependency of an artifact against the current ontology and report the broken ones. "+
				"Validity flags are updated as a side effect. "+
				"If the deadline expires the partial report is returned with incomplete=true.",
		),
		mcp.WithString("artifact_id", mcp.Required(), mcp.Description("UUID of the artifact")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Optional - deadline in seconds, capped by the server maximum")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, tenantCtx, cleanup, err := AcquireToolAccess(ctx, deps, "validate_artifact")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		artifactID, errResult := requireUUID(req, "artifact_id")
		if errResult != nil {
			return errResult, nil
		}

		tenantCtx, cancel := withToolDeadline(tenantCtx, req, deps, deps.Config.ValidationTimeout)
		defer cancel()

		report, err := deps.Validation.Validate(tenantCtx, artifactID)
		if err != nil {
			return HandleServiceError(err, "validation_failed")
		}
		if report.Incomplete {
			deps.Logger.Info("Artifact validation incomplete",
				zap.String("artifact_id", artifactID.String()),
				zap.Int("checked", report.Valid+report.Invalid),
				zap.Int("total", report.Total))
		}
		return jsonResult(report)
	})
}

func registerDependencyStatsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"dependency_stats",
		mcp.WithDescription("Count the project's artifact dependencies by validity."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, tenantCtx, cleanup, err := AcquireToolAccess(ctx, deps, "dependency_stats")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		counts, err := deps.Dependencies.Stats(tenantCtx, projectID)
		if err != nil {
			return HandleServiceError(err, "dependency_stats_failed")
		}
		return jsonResult(counts)
	})
}

func registerListInvalidDependenciesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_invalid_dependencies",
		mcp.WithDescription(
			"List dependencies whose element was missing at the last validation, across all artifacts of the project.",
		),
		mcp.WithString("graph_iri", mcp.Description("Optional - restrict to one ontology graph")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Optional - maximum rows (default %d, max %d)", services.DefaultInvalidLimit, maxInvalidLimit))),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, tenantCtx, cleanup, err := AcquireToolAccess(ctx, deps, "list_invalid_dependencies")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		limit := services.DefaultInvalidLimit
		if v, ok := getOptionalFloat(req, "limit"); ok {
			if v < 1 {
				return NewErrorResult("invalid_parameters", "limit must be a positive integer"), nil
			}
			limit = min(int(v), maxInvalidLimit)
		}

		edges, err := deps.Dependencies.ListInvalid(tenantCtx, projectID, getOptionalString(req, "graph_iri"), limit)
		if err != nil {
			return HandleServiceError(err, "list_invalid_failed")
		}
		return jsonResult(dependencyListResult{Dependencies: edges, Total: len(edges)})
	})
}
