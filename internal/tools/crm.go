package tools

import (
	"context"
	"encoding/json"
)

// CRM adapters call the CRM collaborator service over HTTP.

type crmCreateTaskTool struct {
	*httpTool
}

// NewCRMCreateTaskTool returns the crm_create_task adapter.
func NewCRMCreateTaskTool(cfg HTTPConfig) Tool {
	return &crmCreateTaskTool{httpTool: newHTTPTool(cfg)}
}

func (t *crmCreateTaskTool) Name() string { return "crm_create_task" }

func (t *crmCreateTaskTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Create a follow-up task in the CRM",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["title"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "due_date": {"type": "string"},
    "priority": {"type": "string", "enum": ["low", "normal", "high", "urgent"]},
    "assignee": {"type": "string"}
  }
}`),
	}
}

func (t *crmCreateTaskTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return t.post(ctx, t.Name(), "/tasks", params)
}

type crmUpdateCommunicationTool struct {
	*httpTool
}

// NewCRMUpdateCommunicationTool returns the crm_update_communication adapter.
func NewCRMUpdateCommunicationTool(cfg HTTPConfig) Tool {
	return &crmUpdateCommunicationTool{httpTool: newHTTPTool(cfg)}
}

func (t *crmUpdateCommunicationTool) Name() string { return "crm_update_communication" }

func (t *crmUpdateCommunicationTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Annotate a CRM communication with processing results",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["communication_id"],
  "properties": {
    "communication_id": {"type": ["string", "integer"]},
    "ai_summary": {"type": "string"},
    "urgency_level": {"type": "string"},
    "processed": {"type": "boolean"}
  }
}`),
	}
}

func (t *crmUpdateCommunicationTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	// Annotating a communication marks it processed unless the workflow
	// says otherwise.
	body := make(map[string]any, len(params)+1)
	for k, v := range params {
		body[k] = v
	}
	body["processed"] = boolParam(params, "processed", true)
	return t.post(ctx, t.Name(), "/communications/update", body)
}
