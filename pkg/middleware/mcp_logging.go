package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/logging"
)

// maxInspectedResponse caps how much of an MCP response is buffered for
// logging. Larger responses (big diffs) are still forwarded in full.
const maxInspectedResponse = 1 << 20

// MCPRequestLogger returns middleware that logs MCP JSON-RPC exchanges at
// DEBUG: method, tool, project, sanitized arguments, outcome and duration.
// Tool results flagged isError are logged with their error code. A nil
// logger disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			call := parseRPCCall(body, logger)
			fields := []zap.Field{zap.String("tool", call.Params.Name)}
			if pid := r.PathValue("pid"); pid != "" {
				fields = append(fields, zap.String("project_id", pid))
			}

			logger.Debug("MCP request", append(fields,
				zap.String("method", call.Method),
				zap.Any("arguments", logging.SanitizeArguments(call.Params.Arguments)),
			)...)

			tee := &teeResponseWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(tee, r)
			fields = append(fields, zap.Duration("duration", time.Since(start)))

			logRPCOutcome(logger, tee.captured.Bytes(), fields)
		})
	}
}

// rpcCall is the part of a JSON-RPC request worth logging.
type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

// rpcReply covers both transport errors and tool error results.
type rpcReply struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result *struct {
		IsError bool `json:"isError"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

func parseRPCCall(body []byte, logger *zap.Logger) rpcCall {
	var call rpcCall
	if err := json.Unmarshal(body, &call); err != nil {
		logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
	}
	return call
}

func logRPCOutcome(logger *zap.Logger, raw []byte, fields []zap.Field) {
	var reply rpcReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
		return
	}

	switch {
	case reply.Error != nil:
		logger.Debug("MCP response error", append(fields,
			zap.Int("error_code", reply.Error.Code),
			zap.String("error_message", reply.Error.Message),
		)...)
	case reply.Result != nil && reply.Result.IsError:
		logger.Debug("MCP tool error result", append(fields, zap.String("code", toolErrorCode(reply)))...)
	default:
		logger.Debug("MCP response success", fields...)
	}
}

// toolErrorCode pulls "code" out of the first text block of an error result.
func toolErrorCode(reply rpcReply) string {
	if len(reply.Result.Content) == 0 {
		return ""
	}
	var body struct {
		Code string `json:"code"`
	}
	if json.Unmarshal([]byte(reply.Result.Content[0].Text), &body) != nil {
		return ""
	}
	return body.Code
}

// teeResponseWriter forwards the response and keeps a bounded copy of it.
type teeResponseWriter struct {
	http.ResponseWriter
	captured bytes.Buffer
}

func (t *teeResponseWriter) Write(b []byte) (int, error) {
	if room := maxInspectedResponse - t.captured.Len(); room > 0 {
		t.captured.Write(b[:min(len(b), room)])
	}
	return t.ResponseWriter.Write(b)
}
