package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/flowmatic/internal/definitions"
	"github.com/flowmatic/flowmatic/internal/ledger"
	"github.com/flowmatic/flowmatic/pkg/schema"
)

// --- Mock engine ---

type mockEngine struct {
	submitIDs  []string
	submitErr  error
	triggerID  string
	triggerErr error
	execution  *schema.Execution
	getErr     error
	listed     []*schema.Execution
	cancelErr  error

	lastEvent    string
	lastPayload  map[string]any
	lastWorkflow string
	lastFilter   ledger.ExecutionFilter
	cancelled    []string
}

func (m *mockEngine) SubmitEvent(_ context.Context, event string, payload map[string]any) ([]string, error) {
	m.lastEvent = event
	m.lastPayload = payload
	return m.submitIDs, m.submitErr
}

func (m *mockEngine) TriggerWorkflow(_ context.Context, workflow string, payload map[string]any) (string, error) {
	m.lastWorkflow = workflow
	m.lastPayload = payload
	return m.triggerID, m.triggerErr
}

func (m *mockEngine) GetExecution(_ context.Context, id string) (*schema.Execution, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.execution, nil
}

func (m *mockEngine) ListExecutions(_ context.Context, filter ledger.ExecutionFilter) ([]*schema.Execution, error) {
	m.lastFilter = filter
	return m.listed, nil
}

func (m *mockEngine) CancelExecution(_ context.Context, id, _ string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, id)
	return nil
}

// --- Mock definition source ---

type mockDefs struct {
	defs      []*schema.WorkflowDefinition
	defineErr error
	reloadErr error
	defined   []*schema.WorkflowDefinition
	reloads   int
}

func (m *mockDefs) List() []*schema.WorkflowDefinition { return m.defs }

func (m *mockDefs) Get(name string) (*schema.WorkflowDefinition, error) {
	for _, d := range m.defs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", name)
}

func (m *mockDefs) Define(_ context.Context, def *schema.WorkflowDefinition) error {
	if m.defineErr != nil {
		return m.defineErr
	}
	m.defined = append(m.defined, def)
	return nil
}

func (m *mockDefs) Reload(_ context.Context) (*definitions.ReloadReport, error) {
	if m.reloadErr != nil {
		return nil, m.reloadErr
	}
	m.reloads++
	names := make([]string, 0, len(m.defs))
	for _, d := range m.defs {
		names = append(names, d.Name)
	}
	return &definitions.ReloadReport{Loaded: names}, nil
}

// --- Helpers ---

func newTestServer(eng *mockEngine, defs *mockDefs) *FlowmaticServer {
	return NewFlowmaticServer(FlowmaticServerDeps{Engine: eng, Defs: defs})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// --- Tests ---

func TestSubmitEventTool(t *testing.T) {
	eng := &mockEngine{submitIDs: []string{"exec-1", "exec-2"}}
	s := newTestServer(eng, &mockDefs{})

	req := buildRequest("flowmatic.submit_event", map[string]any{
		"event": "email.received",
		"data":  map[string]any{"sender": "noreply@dmv.ca.gov"},
	})

	result, err := s.handleSubmitEvent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Event      string   `json:"event"`
		Executions []string `json:"executions"`
		Matched    int      `json:"matched"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, "email.received", out.Event)
	assert.Equal(t, []string{"exec-1", "exec-2"}, out.Executions)
	assert.Equal(t, 2, out.Matched)
	assert.Equal(t, "noreply@dmv.ca.gov", eng.lastPayload["sender"])
}

func TestSubmitEventToolMissingEvent(t *testing.T) {
	s := newTestServer(&mockEngine{}, &mockDefs{})

	result, err := s.handleSubmitEvent(context.Background(), buildRequest("flowmatic.submit_event", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestTriggerTool(t *testing.T) {
	eng := &mockEngine{triggerID: "exec-9"}
	s := newTestServer(eng, &mockDefs{})

	req := buildRequest("flowmatic.trigger", map[string]any{
		"workflow": "invoice-processing",
		"data":     map[string]any{"amounts": []any{float64(125)}},
	})

	result, err := s.handleTrigger(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "invoice-processing", eng.lastWorkflow)
	assert.Contains(t, extractText(t, result), "exec-9")
}

func TestTriggerToolUnknownWorkflow(t *testing.T) {
	eng := &mockEngine{triggerErr: schema.NewError(schema.ErrCodeNotFound, "workflow not found")}
	s := newTestServer(eng, &mockDefs{})

	result, err := s.handleTrigger(context.Background(), buildRequest("flowmatic.trigger", map[string]any{
		"workflow": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExecutionToolGet(t *testing.T) {
	eng := &mockEngine{execution: &schema.Execution{
		ID:       "exec-1",
		Workflow: "invoice-processing",
		Status:   schema.ExecutionStatusCompleted,
	}}
	s := newTestServer(eng, &mockDefs{})

	result, err := s.handleExecution(context.Background(), buildRequest("flowmatic.execution", map[string]any{
		"execution_id": "exec-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var exec schema.Execution
	unmarshalResult(t, result, &exec)
	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, schema.ExecutionStatusCompleted, exec.Status)
}

func TestExecutionToolList(t *testing.T) {
	eng := &mockEngine{listed: []*schema.Execution{
		{ID: "exec-1", Workflow: "a"},
		{ID: "exec-2", Workflow: "a"},
	}}
	s := newTestServer(eng, &mockDefs{})

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	result, err := s.handleExecution(context.Background(), buildRequest("flowmatic.execution", map[string]any{
		"filter": map[string]any{
			"workflow": "a",
			"status":   "failed",
			"since":    since.Format(time.RFC3339),
			"limit":    float64(10),
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "a", eng.lastFilter.Workflow)
	require.NotNil(t, eng.lastFilter.Status)
	assert.Equal(t, schema.ExecutionStatusFailed, *eng.lastFilter.Status)
	require.NotNil(t, eng.lastFilter.Since)
	assert.True(t, eng.lastFilter.Since.Equal(since))
	assert.Equal(t, 10, eng.lastFilter.Limit)
}

func TestExecutionToolCancel(t *testing.T) {
	eng := &mockEngine{}
	s := newTestServer(eng, &mockDefs{})

	result, err := s.handleExecution(context.Background(), buildRequest("flowmatic.execution", map[string]any{
		"execution_id": "exec-1",
		"action":       "cancel",
		"reason":       "operator request",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"exec-1"}, eng.cancelled)

	// Cancel without an ID is rejected.
	result, err = s.handleExecution(context.Background(), buildRequest("flowmatic.execution", map[string]any{
		"action": "cancel",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestWorkflowsTool(t *testing.T) {
	defs := &mockDefs{defs: []*schema.WorkflowDefinition{
		{Name: "invoice-processing"},
		{Name: "dmv-registration-renewal"},
	}}
	s := newTestServer(&mockEngine{}, defs)

	result, err := s.handleWorkflows(context.Background(), buildRequest("flowmatic.workflows", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "invoice-processing")

	// Fetch one by name.
	result, err = s.handleWorkflows(context.Background(), buildRequest("flowmatic.workflows", map[string]any{
		"name": "dmv-registration-renewal",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	// Unknown name is an error result.
	result, err = s.handleWorkflows(context.Background(), buildRequest("flowmatic.workflows", map[string]any{
		"name": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDefineTool(t *testing.T) {
	defs := &mockDefs{}
	s := newTestServer(&mockEngine{}, defs)

	result, err := s.handleDefine(context.Background(), buildRequest("flowmatic.define", map[string]any{
		"definition": map[string]any{
			"name": "new-workflow",
			"triggers": []any{
				map[string]any{"event": "thing.happened"},
			},
			"steps": []any{
				map[string]any{"name": "log_it", "tool": "log"},
			},
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, defs.defined, 1)
	def := defs.defined[0]
	assert.Equal(t, "new-workflow", def.Name)
	require.Len(t, def.Triggers, 1)
	assert.Equal(t, "thing.happened", def.Triggers[0].Event)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, "log", def.Steps[0].Tool)
}

func TestDefineToolMissingDefinition(t *testing.T) {
	s := newTestServer(&mockEngine{}, &mockDefs{})

	result, err := s.handleDefine(context.Background(), buildRequest("flowmatic.define", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDefineToolRejectedDefinition(t *testing.T) {
	defs := &mockDefs{defineErr: schema.NewError(schema.ErrCodeDefinition, "unknown tool \"bogus\"")}
	s := newTestServer(&mockEngine{}, defs)

	result, err := s.handleDefine(context.Background(), buildRequest("flowmatic.define", map[string]any{
		"definition": map[string]any{"name": "bad"},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "bogus")
}

func TestReloadTool(t *testing.T) {
	defs := &mockDefs{defs: []*schema.WorkflowDefinition{{Name: "a"}}}
	s := newTestServer(&mockEngine{}, defs)

	result, err := s.handleReload(context.Background(), buildRequest("flowmatic.reload", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, defs.reloads)

	var report definitions.ReloadReport
	unmarshalResult(t, result, &report)
	assert.Equal(t, []string{"a"}, report.Loaded)
}
