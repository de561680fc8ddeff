package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ExecutionID(ctx))

	ctx = WithExecutionID(ctx, "exec-1")
	ctx = WithWorkflow(ctx, "dmv_handler")
	ctx = WithStep(ctx, "summarize")

	assert.Equal(t, "exec-1", ExecutionID(ctx))
	assert.Equal(t, "dmv_handler", Workflow(ctx))
	assert.Equal(t, "summarize", Step(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithStep(WithWorkflow(WithExecutionID(context.Background(), "exec-1"), "dmv_handler"), "summarize")
	logger.InfoContext(ctx, "step started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "exec-1", record["execution_id"])
	assert.Equal(t, "dmv_handler", record["workflow"])
	assert.Equal(t, "summarize", record["step"])
}

func TestCorrelationHandler_NoIDsNoAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("plain")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.NotContains(t, record, "execution_id")
}
