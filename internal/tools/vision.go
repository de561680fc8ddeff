package tools

import (
	"context"
	"encoding/json"
)

type visionExtractInvoiceTool struct {
	*httpTool
}

// NewVisionExtractInvoiceTool returns the vision_extract_invoice adapter.
func NewVisionExtractInvoiceTool(cfg HTTPConfig) Tool {
	return &visionExtractInvoiceTool{httpTool: newHTTPTool(cfg)}
}

func (t *visionExtractInvoiceTool) Name() string { return "vision_extract_invoice" }

func (t *visionExtractInvoiceTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Extract structured invoice data from a document image",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["document_url"],
  "properties": {
    "document_url": {"type": "string", "minLength": 1},
    "fields": {"type": "array", "items": {"type": "string"}}
  }
}`),
	}
}

func (t *visionExtractInvoiceTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return t.post(ctx, t.Name(), "/invoices/extract", params)
}
