package tools

import "log/slog"

// BuiltinConfig wires the built-in tool suite to its collaborator services.
type BuiltinConfig struct {
	CRM        HTTPConfig
	Vision     HTTPConfig
	Quickbooks HTTPConfig
	Notify     HTTPConfig
	Logger     *slog.Logger
}

// RegisterBuiltins registers the full built-in tool suite on the router.
func RegisterBuiltins(r *Router, cfg BuiltinConfig) error {
	suite := []Tool{
		NewSummarizeTool(),
		NewExtractEntitiesTool(),
		NewClassifyUrgencyTool(),
		NewCRMCreateTaskTool(cfg.CRM),
		NewCRMUpdateCommunicationTool(cfg.CRM),
		NewVisionExtractInvoiceTool(cfg.Vision),
		NewQuickbooksCreateVendorTool(cfg.Quickbooks),
		NewQuickbooksAutoCodeTool(cfg.Quickbooks),
		NewNotifySendTool(cfg.Notify, cfg.Logger),
		NewWorkflowLogTool(cfg.Logger),
		NewDataTransformTool(),
	}
	for _, tool := range suite {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
