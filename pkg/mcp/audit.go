package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/logging"
	"github.com/ekaya-inc/ontology-impact/pkg/mcp/tools"
	"github.com/ekaya-inc/ontology-impact/pkg/metrics"
)

// Tool call outcomes recorded in metrics.
const (
	outcomeSuccess   = "success"
	outcomeToolError = "tool_error"
	outcomeError     = "error"
)

// AuditLogger logs every tool call with its project, sanitized arguments,
// outcome and duration, and records it on the metrics collector.
type AuditLogger struct {
	logger  *zap.Logger
	metrics *metrics.Collector

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger. collector may be nil.
func NewAuditLogger(logger *zap.Logger, collector *metrics.Collector) *AuditLogger {
	return &AuditLogger{
		logger:  logger.Named("mcp-audit"),
		metrics: collector,
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	duration := a.elapsed(id)

	outcome := outcomeSuccess
	if result != nil && result.IsError {
		outcome = outcomeToolError
	}
	a.metrics.RecordToolCall(req.Params.Name, outcome, duration)

	fields := append(a.baseFields(ctx, req),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration),
	)
	summary := summarizeResult(result)
	if summary.Code != "" {
		fields = append(fields, zap.String("error_code", summary.Code))
	}
	if summary.Incomplete {
		fields = append(fields, zap.Bool("incomplete", true))
	}
	a.logger.Info("MCP tool call", fields...)
}

func (a *AuditLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	duration := a.elapsed(id)
	a.metrics.RecordToolCall(req.Params.Name, outcomeError, duration)

	fields := append(a.baseFields(ctx, req),
		zap.String("outcome", outcomeError),
		zap.Duration("duration", duration),
		zap.String("error", logging.SanitizeError(err)),
	)
	a.logger.Warn("MCP tool call failed", fields...)
}

func (a *AuditLogger) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

func (a *AuditLogger) baseFields(ctx context.Context, req *mcplib.CallToolRequest) []zap.Field {
	fields := []zap.Field{zap.String("tool", req.Params.Name)}
	if projectID, ok := tools.ProjectIDFromContext(ctx); ok {
		fields = append(fields, zap.String("project_id", projectID.String()))
	}
	if args, ok := req.Params.Arguments.(map[string]any); ok && len(args) > 0 {
		fields = append(fields, zap.Any("arguments", logging.SanitizeArguments(args)))
	}
	return fields
}

// resultSummary holds the fields of a tool result worth logging.
type resultSummary struct {
	Code       string
	Incomplete bool
}

// summarizeResult reads the error code or incomplete flag from the first
// text content of a result.
func summarizeResult(result *mcplib.CallToolResult) resultSummary {
	if result == nil {
		return resultSummary{}
	}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			Code       string `json:"code"`
			Incomplete bool   `json:"incomplete"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err != nil {
			return resultSummary{}
		}
		summary := resultSummary{Incomplete: partial.Incomplete}
		if result.IsError {
			summary.Code = partial.Code
		}
		return summary
	}
	return resultSummary{}
}
