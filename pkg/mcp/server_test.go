package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClaimsServer(t *testing.T) {
	s := NewClaimsServer(ClaimsServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewClaimsServer(ClaimsServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 4)

	expectedTools := []string{
		"claims.process",
		"claims.resume",
		"claims.status",
		"claims.sessions",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"process", "claims.process", "Submit an insurance claim for orchestrated processing"},
		{"resume", "claims.resume", "Resume a paused claim with new evidence"},
		{"status", "claims.status", "Get the persisted state and timeline of a case"},
		{"sessions", "claims.sessions", "List persisted case sessions"},
	}

	s := NewClaimsServer(ClaimsServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
