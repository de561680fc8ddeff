package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRMCreateTask_PostsJSON(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotIdemKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIdemKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id": 123, "success": true}`))
	}))
	defer srv.Close()

	tool := NewCRMCreateTaskTool(HTTPConfig{BaseURL: srv.URL, IdempotencyKey: "abc"})
	out, err := tool.Execute(context.Background(), map[string]any{
		"title":    "Respond to DMV notice",
		"due_date": "03/27/2025",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tasks", gotPath)
	assert.Equal(t, "abc", gotIdemKey)
	assert.Equal(t, "Respond to DMV notice", gotBody["title"])
	assert.Equal(t, float64(123), out["task_id"])
}

func TestCRMUpdateCommunication_DefaultsProcessed(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	tool := NewCRMUpdateCommunicationTool(HTTPConfig{BaseURL: srv.URL})

	_, err := tool.Execute(context.Background(), map[string]any{
		"communication_id": "c1",
		"ai_summary":       "renewal notice",
	})
	require.NoError(t, err)
	assert.Equal(t, true, gotBody["processed"])

	// An explicit processed: false is passed through.
	_, err = tool.Execute(context.Background(), map[string]any{
		"communication_id": "c1",
		"processed":        false,
	})
	require.NoError(t, err)
	assert.Equal(t, false, gotBody["processed"])
}

func TestHTTPTool_RetriableClassification(t *testing.T) {
	tests := []struct {
		status    int
		retriable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		tool := NewVisionExtractInvoiceTool(HTTPConfig{BaseURL: srv.URL})
		_, err := tool.Execute(context.Background(), map[string]any{"document_url": "file.pdf"})
		require.Error(t, err, tt.status)

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, tt.retriable, toolErr.Retriable, tt.status)
		srv.Close()
	}
}

func TestHTTPTool_ConnectionFailureIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	tool := NewQuickbooksCreateVendorTool(HTTPConfig{BaseURL: srv.URL})
	_, err := tool.Execute(context.Background(), map[string]any{"name": "Acme"})
	assert.True(t, IsRetriable(err))
}

func TestHTTPTool_UnconfiguredIsTerminal(t *testing.T) {
	tool := NewCRMUpdateCommunicationTool(HTTPConfig{})
	_, err := tool.Execute(context.Background(), map[string]any{"communication_id": "c1"})
	require.Error(t, err)
	assert.False(t, IsRetriable(err))
}

func TestNotifySend_FallsBackToLog(t *testing.T) {
	tool := NewNotifySendTool(HTTPConfig{}, nil)
	out, err := tool.Execute(context.Background(), map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, true, out["delivered"])
	assert.Equal(t, "log", out["transport"])
}
