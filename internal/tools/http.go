package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowmatic/flowmatic/internal/logging"
)

// HTTPConfig configures the HTTP-backed tool adapters (CRM, vision,
// accounting, notifications). Each collaborator service gets its own
// base URL; an adapter without one fails terminally at dispatch.
type HTTPConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	IdempotencyKey string
}

const (
	defaultHTTPTimeout     = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// httpTool is the shared transport for adapters that call collaborator
// services with JSON POST requests.
type httpTool struct {
	cfg    HTTPConfig
	client *http.Client
}

func newHTTPTool(cfg HTTPConfig) *httpTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &httpTool{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// post sends a JSON POST to path under the configured base URL and decodes
// the JSON response. Transport failures and 5xx/429 responses come back as
// retriable tool errors; other non-2xx responses are terminal.
func (h *httpTool) post(ctx context.Context, tool, path string, body map[string]any) (map[string]any, error) {
	if h.cfg.BaseURL == "" {
		return nil, NewToolError(tool, "no service endpoint configured")
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, NewToolError(tool, "encode request: %s", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, NewToolError(tool, "build request: %s", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}
	if key := h.idempotencyKey(ctx); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &ToolError{Tool: tool, Message: fmt.Sprintf("request failed: %v", err), Retriable: true, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	if err != nil {
		return nil, &ToolError{Tool: tool, Message: fmt.Sprintf("read response: %v", err), Retriable: true, Cause: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ToolError{
			Tool:      tool,
			Message:   fmt.Sprintf("service returned %d: %s", resp.StatusCode, truncate(string(data), 200)),
			Retriable: true,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewToolError(tool, "service returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	out := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, NewToolError(tool, "decode response: %s", err.Error())
		}
	}
	return out, nil
}

// idempotencyKey prefers an explicit configured key, then falls back to the
// execution and step carried on the context so a retried dispatch sends the
// same key and collaborator services can deduplicate side effects.
func (h *httpTool) idempotencyKey(ctx context.Context) string {
	if h.cfg.IdempotencyKey != "" {
		return h.cfg.IdempotencyKey
	}
	execID := logging.ExecutionID(ctx)
	step := logging.Step(ctx)
	if execID == "" || step == "" {
		return ""
	}
	return execID + ":" + step
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Param helpers used by all adapter files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}
