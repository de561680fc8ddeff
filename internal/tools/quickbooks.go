package tools

import (
	"context"
	"encoding/json"
)

// Accounting adapters call the QuickBooks bridge service over HTTP.

type quickbooksCreateVendorTool struct {
	*httpTool
}

// NewQuickbooksCreateVendorTool returns the quickbooks_create_vendor adapter.
func NewQuickbooksCreateVendorTool(cfg HTTPConfig) Tool {
	return &quickbooksCreateVendorTool{httpTool: newHTTPTool(cfg)}
}

func (t *quickbooksCreateVendorTool) Name() string { return "quickbooks_create_vendor" }

func (t *quickbooksCreateVendorTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Create a vendor record in the accounting system",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "email": {"type": "string"},
    "phone": {"type": "string"},
    "address": {"type": "object"}
  }
}`),
	}
}

func (t *quickbooksCreateVendorTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return t.post(ctx, t.Name(), "/vendors", params)
}

type quickbooksAutoCodeTool struct {
	*httpTool
}

// NewQuickbooksAutoCodeTool returns the quickbooks_auto_code adapter, which
// assigns an expense account to an extracted invoice.
func NewQuickbooksAutoCodeTool(cfg HTTPConfig) Tool {
	return &quickbooksAutoCodeTool{httpTool: newHTTPTool(cfg)}
}

func (t *quickbooksAutoCodeTool) Name() string { return "quickbooks_auto_code" }

func (t *quickbooksAutoCodeTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Auto-assign an expense account to invoice line items",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["invoice_data"],
  "properties": {
    "invoice_data": {"type": "object"},
    "vendor_id": {"type": ["string", "integer"]}
  }
}`),
	}
}

func (t *quickbooksAutoCodeTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return t.post(ctx, t.Name(), "/invoices/auto-code", params)
}
