package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowmatic/flowmatic/internal/ledger"
	"github.com/flowmatic/flowmatic/pkg/schema"
)

// handleSubmitEvent feeds one event through trigger matching.
func (s *FlowmaticServer) handleSubmitEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	event, err := req.RequireString("event")
	if err != nil {
		return mcp.NewToolResultError("event is required"), nil
	}
	data := mcp.ParseStringMap(req, "data", nil)

	ids, submitErr := s.engine.SubmitEvent(ctx, event, data)
	if submitErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", submitErr)), nil
	}

	return marshalResult(map[string]any{
		"event":      event,
		"executions": ids,
		"matched":    len(ids),
	})
}

// handleTrigger runs a single workflow directly.
func (s *FlowmaticServer) handleTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflow, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	data := mcp.ParseStringMap(req, "data", nil)

	id, trigErr := s.engine.TriggerWorkflow(ctx, workflow, data)
	if trigErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger failed: %v", trigErr)), nil
	}

	return marshalResult(map[string]any{
		"workflow":     workflow,
		"execution_id": id,
	})
}

// handleExecution fetches, lists, or cancels executions.
func (s *FlowmaticServer) handleExecution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("execution_id", "")
	action := req.GetString("action", "get")

	if id == "" {
		if action == "cancel" {
			return mcp.NewToolResultError("cancel requires execution_id"), nil
		}
		return s.listExecutions(ctx, mcp.ParseStringMap(req, "filter", nil))
	}

	switch action {
	case "get":
		exec, getErr := s.engine.GetExecution(ctx, id)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("execution lookup failed: %v", getErr)), nil
		}
		return marshalResult(exec)
	case "cancel":
		reason := req.GetString("reason", "")
		if cancelErr := s.engine.CancelExecution(ctx, id, reason); cancelErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cancelErr)), nil
		}
		return marshalResult(map[string]any{
			"execution_id": id,
			"cancelled":    true,
		})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

func (s *FlowmaticServer) listExecutions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	ef := ledger.ExecutionFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if workflow, ok := filter["workflow"].(string); ok {
		ef.Workflow = workflow
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		es := schema.ExecutionStatus(status)
		ef.Status = &es
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %v", err)), nil
		}
		ef.Since = &t
	}

	execs, err := s.engine.ListExecutions(ctx, ef)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"executions": execs})
}

// handleWorkflows lists loaded definitions or fetches one by name.
func (s *FlowmaticServer) handleWorkflows(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("name", ""); name != "" {
		def, err := s.defs.Get(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", err)), nil
		}
		return marshalResult(def)
	}
	return marshalResult(map[string]any{"workflows": s.defs.List()})
}

// handleDefine validates and persists a new workflow definition.
func (s *FlowmaticServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	// Round-trip through JSON to get a typed WorkflowDefinition.
	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	var def schema.WorkflowDefinition
	if unmarshalErr := json.Unmarshal(defBytes, &def); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
	}

	if defineErr := s.defs.Define(ctx, &def); defineErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("define failed: %v", defineErr)), nil
	}

	return marshalResult(map[string]any{
		"name":    def.Name,
		"defined": true,
	})
}

// handleReload re-reads the definitions directory.
func (s *FlowmaticServer) handleReload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.defs.Reload(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reload failed: %v", err)), nil
	}
	return marshalResult(report)
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
