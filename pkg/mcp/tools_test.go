package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/pkg/schema"
)

// --- Mock runner ---

type mockRunner struct {
	lastCaseData schema.Context
	lastCaseID   string
	lastEvidence *schema.Evidence

	processResult *schema.Result
	processErr    error
	resumeResult  *schema.Result
	resumeErr     error
}

func (m *mockRunner) Process(_ context.Context, caseData schema.Context, _ *schema.Transcript, _ schema.Context) (*schema.Result, error) {
	m.lastCaseData = caseData
	return m.processResult, m.processErr
}

func (m *mockRunner) Resume(_ context.Context, caseID string, evidence *schema.Evidence) (*schema.Result, error) {
	m.lastCaseID = caseID
	m.lastEvidence = evidence
	return m.resumeResult, m.resumeErr
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func approvedResult(caseID string) *schema.Result {
	return &schema.Result{
		Status:            schema.StatusApproved,
		TerminationReason: schema.ReasonApprovedHandoffReady,
		Context:           schema.Context{schema.KeyCaseID: caseID},
		RoundsExecuted:    2,
	}
}

// --- Tests ---

func TestProcessTool(t *testing.T) {
	runner := &mockRunner{processResult: approvedResult("CLM-1")}
	s := NewClaimsServer(ClaimsServerDeps{Runner: runner})

	req := buildRequest("claims.process", map[string]any{
		"content":       "Collision claim, bumper damage.",
		"case_id":       "CLM-1",
		"policy_number": "POL-100234",
		"claim":         map[string]any{"estimate_amount": 4200.0},
	})

	result, err := s.handleProcess(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "Collision claim, bumper damage.", runner.lastCaseData.GetString(schema.KeyOriginalContent))
	assert.Equal(t, "POL-100234", runner.lastCaseData.GetString(schema.KeyPolicyNumber))
	assert.Equal(t, 4200.0, runner.lastCaseData["estimate_amount"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, "approved", decoded["status"])
	assert.Equal(t, float64(2), decoded["rounds_executed"])
}

func TestProcessToolRequiresContent(t *testing.T) {
	s := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}})

	result, err := s.handleProcess(context.Background(), buildRequest("claims.process", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestResumeTool(t *testing.T) {
	runner := &mockRunner{resumeResult: approvedResult("CLM-2")}
	s := NewClaimsServer(ClaimsServerDeps{Runner: runner})

	req := buildRequest("claims.resume", map[string]any{
		"case_id": "CLM-2",
		"evidence": map[string]any{
			"documents": []any{
				map[string]any{"type": "police_report", "name": "report.pdf"},
			},
		},
	})

	result, err := s.handleResume(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "CLM-2", runner.lastCaseID)
	require.NotNil(t, runner.lastEvidence)
	require.Len(t, runner.lastEvidence.Documents, 1)
	assert.Equal(t, "police_report", runner.lastEvidence.Documents[0].Type)
}

func TestResumeToolNotFound(t *testing.T) {
	runner := &mockRunner{resumeErr: schema.NewError(schema.ErrCodeNotFound, "no session")}
	s := NewClaimsServer(ClaimsServerDeps{Runner: runner})

	result, err := s.handleResume(context.Background(), buildRequest("claims.resume", map[string]any{
		"case_id": "CLM-GONE",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusTool(t *testing.T) {
	sessions, err := session.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	cc := schema.NewContext()
	cc[schema.KeyCaseID] = "CLM-3"
	cc[schema.KeyMissingDocuments] = []string{"police_report"}
	transcript := schema.NewTranscript()
	transcript.AppendSystem("note")
	_, err = sessions.Save(context.Background(), "CLM-3", transcript, cc, map[string]any{
		session.MetaStatus: session.StatusPausedAfterPhase1,
	})
	require.NoError(t, err)

	s := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}, Sessions: sessions})

	result, toolErr := s.handleStatus(context.Background(), buildRequest("claims.status", map[string]any{
		"case_id": "CLM-3",
	}))
	require.NoError(t, toolErr)
	assert.False(t, result.IsError)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, session.StatusPausedAfterPhase1, decoded["status"])
	assert.Equal(t, []any{"police_report"}, decoded["missing_documents"])
}

func TestStatusToolNotFound(t *testing.T) {
	sessions, err := session.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	s := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}, Sessions: sessions})

	result, toolErr := s.handleStatus(context.Background(), buildRequest("claims.status", map[string]any{
		"case_id": "CLM-GONE",
	}))
	require.NoError(t, toolErr)
	assert.True(t, result.IsError)
}

func TestSessionsTool(t *testing.T) {
	sessions, err := session.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	for _, caseID := range []string{"CLM-B", "CLM-A"} {
		cc := schema.NewContext()
		cc[schema.KeyCaseID] = caseID
		_, err = sessions.Save(context.Background(), caseID, schema.NewTranscript(), cc, nil)
		require.NoError(t, err)
	}

	s := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}, Sessions: sessions})

	result, toolErr := s.handleSessions(context.Background(), buildRequest("claims.sessions", map[string]any{}))
	require.NoError(t, toolErr)
	assert.False(t, result.IsError)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, []any{"CLM-A", "CLM-B"}, decoded["sessions"])
	assert.Equal(t, float64(2), decoded["count"])
}
