package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedArgument is the longest string argument value written to logs.
const maxLoggedArgument = 200

var redactedArgumentKeywords = []string{"password", "secret", "token", "key", "credential", "dsn"}

// MCPRequestLogger returns middleware that logs each JSON-RPC call on the
// MCP endpoint: the method, tool and sanitized arguments on the way in,
// and the outcome with its duration on the way out. A nil logger
// disables logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call rpcCall
			if err := json.Unmarshal(body, &call); err != nil {
				logger.Debug("MCP request is not a JSON-RPC object", zap.Error(err))
			}

			logger.Debug("MCP request",
				zap.String("method", call.Method),
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", sanitizeArguments(call.Params.Arguments)),
			)

			recorder := &bodyRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var reply rpcReply
			if err := json.Unmarshal(recorder.body.Bytes(), &reply); err != nil {
				logger.Debug("MCP response is not a JSON-RPC object", zap.Error(err))
				return
			}

			switch {
			case reply.Error != nil:
				logger.Debug("MCP response error",
					zap.String("tool", call.Params.Name),
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", reply.Error.Message),
					zap.Duration("duration", duration))
			case reply.Result.IsError:
				// Tool-level failures travel inside a successful JSON-RPC result.
				logger.Debug("MCP tool error",
					zap.String("tool", call.Params.Name),
					zap.Duration("duration", duration))
			default:
				logger.Debug("MCP response success",
					zap.String("tool", call.Params.Name),
					zap.Duration("duration", duration))
			}
		})
	}
}

type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcReply struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type bodyRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// sanitizeArguments redacts credential-like keys and truncates long
// string values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		if isRedactedKey(k) {
			result[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxLoggedArgument {
			result[k] = s[:maxLoggedArgument] + "..."
			continue
		}
		result[k] = v
	}
	return result
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range redactedArgumentKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
