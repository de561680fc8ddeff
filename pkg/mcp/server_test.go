package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlowmaticServer(t *testing.T) {
	s := NewFlowmaticServer(FlowmaticServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
}

func TestToolRegistration(t *testing.T) {
	s := NewFlowmaticServer(FlowmaticServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 6)

	expectedTools := []string{
		"flowmatic.submit_event",
		"flowmatic.trigger",
		"flowmatic.execution",
		"flowmatic.workflows",
		"flowmatic.define",
		"flowmatic.reload",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}
