package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ontology-impact/pkg/mcp/tools"
	"github.com/ekaya-inc/ontology-impact/pkg/metrics"
)

type auditFixture struct {
	server    *Server
	logs      *observer.ObservedLogs
	collector *metrics.Collector
	projectID uuid.UUID
}

func newAuditFixture() *auditFixture {
	core, logs := observer.New(zapcore.DebugLevel)
	collector := metrics.NewCollector()
	audit := NewAuditLogger(zap.New(core), collector)

	f := &auditFixture{
		server:    NewServer("test-server", "1.0.0", zap.NewNop(), audit.Hooks()),
		logs:      logs,
		collector: collector,
		projectID: uuid.New(),
	}

	f.server.RegisterTool(mcplib.NewTool("ok_tool"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return mcplib.NewToolResultText(`{"artifact_ids":[],"incomplete":true}`), nil
	})
	f.server.RegisterTool(mcplib.NewTool("rejecting_tool"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return tools.NewErrorResult("invalid_parameters", "element_iri is required"), nil
	})
	f.server.RegisterTool(mcplib.NewTool("failing_tool"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return nil, errors.New("connect postgres://impact:hunter2@db:5432/impact: refused")
	})
	return f
}

func (f *auditFixture) call(t *testing.T, name string, args map[string]any) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)
	f.server.MCP().HandleMessage(tools.WithProjectID(context.Background(), f.projectID), body)
}

func TestAuditLogger_SuccessfulCall(t *testing.T) {
	f := newAuditFixture()

	f.call(t, "ok_tool", map[string]any{"element_iri": "http://ex.org/onto#Car", "api_key": "abc"})

	entries := f.logs.FilterMessage("MCP tool call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ok_tool", fields["tool"])
	assert.Equal(t, f.projectID.String(), fields["project_id"])
	assert.Equal(t, outcomeSuccess, fields["outcome"])
	assert.Equal(t, true, fields["incomplete"])

	args := fields["arguments"].(map[string]any)
	assert.Equal(t, "http://ex.org/onto#Car", args["element_iri"])
	assert.Equal(t, "[REDACTED]", args["api_key"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.ToolCalls.WithLabelValues("ok_tool", outcomeSuccess)))
}

func TestAuditLogger_ErrorResult(t *testing.T) {
	f := newAuditFixture()

	f.call(t, "rejecting_tool", nil)

	entries := f.logs.FilterMessage("MCP tool call").All()
	require.Len(t, entries, 1)
	assert.Equal(t, outcomeToolError, entries[0].ContextMap()["outcome"])
	assert.Equal(t, "invalid_parameters", entries[0].ContextMap()["error_code"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.ToolCalls.WithLabelValues("rejecting_tool", outcomeToolError)))
}

func TestAuditLogger_HandlerError(t *testing.T) {
	f := newAuditFixture()

	f.call(t, "failing_tool", nil)

	entries := f.logs.FilterMessage("MCP tool call failed").All()
	require.Len(t, entries, 1)
	logged := entries[0].ContextMap()["error"].(string)
	assert.False(t, strings.Contains(logged, "hunter2"), "credentials must not be logged: %s", logged)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.ToolCalls.WithLabelValues("failing_tool", outcomeError)))
}

func TestSummarizeResult(t *testing.T) {
	assert.Equal(t, resultSummary{}, summarizeResult(nil))
	assert.Equal(t, resultSummary{}, summarizeResult(mcplib.NewToolResultText("not json")))
	assert.Equal(t, resultSummary{Incomplete: true}, summarizeResult(mcplib.NewToolResultText(`{"incomplete":true}`)))

	// code is only read from error results
	assert.Equal(t, resultSummary{}, summarizeResult(mcplib.NewToolResultText(`{"code":"x"}`)))
	assert.Equal(t, resultSummary{Code: "conflict"}, summarizeResult(tools.NewErrorResult("conflict", "busy")))
}
