package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// getOptionalString extracts an optional, trimmed string argument.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(val)
}

// getOptionalFloat extracts an optional numeric argument.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// requireUUID reads a required UUID argument. The error result is ready to
// return to the client.
func requireUUID(req mcp.CallToolRequest, key string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(key)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", err.Error())
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters",
			fmt.Sprintf("invalid %s: %q is not a valid UUID", key, raw))
	}
	return id, nil
}

// withToolDeadline bounds ctx by the timeout_seconds argument, capped by
// the configured maximum, or by fallback when the argument is absent.
func withToolDeadline(ctx context.Context, req mcp.CallToolRequest, deps *ToolDeps, fallback time.Duration) (context.Context, context.CancelFunc) {
	var override time.Duration
	if secs, ok := getOptionalFloat(req, "timeout_seconds"); ok && secs > 0 {
		override = time.Duration(secs * float64(time.Second))
	}
	return context.WithTimeout(ctx, deps.Config.RequestTimeout(override, fallback))
}

// jsonResult marshals v as the text content of a successful tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
