package tools

import (
	"context"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ontology-impact/pkg/graphstore"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

type elementImpactResult struct {
	ElementIRI  string      `json:"element_iri"`
	ArtifactIDs []uuid.UUID `json:"artifact_ids"`
	Count       int         `json:"count"`
	Incomplete  bool        `json:"incomplete"`
}

// RegisterOntologyTools registers the change detection and impact tools.
func RegisterOntologyTools(s *server.MCPServer, deps *ToolDeps) {
	registerDiffOntologyTool(s, deps)
	registerElementImpactTool(s, deps)
}

func registerDiffOntologyTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"diff_ontology",
		mcp.WithDescription(
			"Preview an ontology edit: diff a Turtle document against the stored graph and list the artifacts "+
				"whose dependencies are deleted or modified by it. Nothing is written. "+
				"Changes are reported per element as added, deleted or modified (label or kind changed). "+
				"Elements asserted with conflicting kinds are listed under conflicts.",
		),
		mcp.WithString("graph_iri", mcp.Required(), mcp.Description("Absolute IRI of the named graph holding the ontology")),
		mcp.WithString("document", mcp.Required(), mcp.Description("The complete proposed ontology in Turtle")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Optional - deadline in seconds, capped by the server maximum")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, tenantCtx, cleanup, err := AcquireToolAccess(ctx, deps, "diff_ontology")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		graphIRI, err := req.RequireString("graph_iri")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if err := graphstore.ValidateGraphIRI(graphIRI); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		document, err := req.RequireString("document")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		tenantCtx, cancel := withToolDeadline(tenantCtx, req, deps, deps.Config.DiffTimeout)
		defer cancel()

		result, err := deps.Tracking.OnOntologySaved(tenantCtx, services.OntologySaveRequest{
			ProjectID: projectID,
			GraphIRI:  graphIRI,
			Document:  document,
		})
		if err != nil {
			return HandleServiceError(err, "change_detection_failed")
		}
		return jsonResult(result)
	})
}

func registerElementImpactTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"element_impact",
		mcp.WithDescription(
			"List the artifacts that reference an ontology element, i.e. those that would break if it were deleted or changed.",
		),
		mcp.WithString("element_iri", mcp.Required(), mcp.Description("Full IRI of the class, property or individual")),
		mcp.WithString("graph_iri", mcp.Description("Optional - restrict to dependencies on one ontology graph")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, tenantCtx, cleanup, err := AcquireToolAccess(ctx, deps, "element_impact")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		elementIRI, err := req.RequireString("element_iri")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if elementIRI == "" {
			return NewErrorResult("invalid_parameters", "parameter 'element_iri' cannot be empty"), nil
		}
		graphIRI := getOptionalString(req, "graph_iri")
		if graphIRI != "" {
			if err := graphstore.ValidateGraphIRI(graphIRI); err != nil {
				return NewErrorResult("invalid_parameters", err.Error()), nil
			}
		}

		impact, err := deps.Impact.ImpactOfElement(tenantCtx, projectID, graphIRI, elementIRI)
		if err != nil {
			return HandleServiceError(err, "impact_failed")
		}

		ids := impact.AffectedArtifacts.Sorted()
		return jsonResult(elementImpactResult{
			ElementIRI:  elementIRI,
			ArtifactIDs: ids,
			Count:       len(ids),
			Incomplete:  impact.Incomplete,
		})
	})
}
