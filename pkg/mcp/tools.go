package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/internal/store"
	"github.com/rendis/claimflow/pkg/schema"
)

// handleProcess submits a claim through the orchestration runner.
func (s *ClaimsServer) handleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content is required"), nil
	}

	caseData := schema.Context{}
	for k, v := range mcp.ParseStringMap(req, "claim", nil) {
		caseData[k] = v
	}
	caseData[schema.KeyOriginalContent] = content
	if caseID := req.GetString("case_id", ""); caseID != "" {
		caseData[schema.KeyCaseID] = caseID
	}
	if policyNumber := req.GetString("policy_number", ""); policyNumber != "" {
		caseData[schema.KeyPolicyNumber] = policyNumber
	}
	if claimant := req.GetString("claimant", ""); claimant != "" {
		caseData[schema.KeyClaimant] = claimant
	}
	if claimType := req.GetString("claim_type", ""); claimType != "" {
		caseData[schema.KeyClaimType] = claimType
	}

	adjusterID := req.GetString("adjuster_id", "")
	if adjusterID != "" {
		s.captureSession(ctx, adjusterID)
		caseData[schema.KeyAdjusterID] = adjusterID
	}

	result, runErr := s.runner.Process(ctx, caseData, nil, nil)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("claim processing failed: %v", runErr)), nil
	}

	s.notifyIfPaused(ctx, adjusterID, result)
	return marshalResult(result)
}

// handleResume continues a paused claim with new evidence.
func (s *ClaimsServer) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("case_id is required"), nil
	}

	var evidence *schema.Evidence
	if raw := mcp.ParseStringMap(req, "evidence", nil); raw != nil {
		evidence = &schema.Evidence{}
		data, marshalErr := json.Marshal(raw)
		if marshalErr == nil {
			marshalErr = json.Unmarshal(data, evidence)
		}
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid evidence: %v", marshalErr)), nil
		}
	}

	adjusterID := req.GetString("adjuster_id", "")
	if adjusterID != "" {
		s.captureSession(ctx, adjusterID)
	}

	result, resumeErr := s.runner.Resume(ctx, caseID, evidence)
	if resumeErr != nil {
		if schema.IsNotFound(resumeErr) {
			return mcp.NewToolResultError(fmt.Sprintf("no session found for case %s", caseID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("resume failed: %v", resumeErr)), nil
	}

	s.notifyIfPaused(ctx, adjusterID, result)
	return marshalResult(result)
}

// handleStatus reports the persisted state of a case: session metadata,
// the context keys callers care about, and the audit timeline when an
// event log is wired.
func (s *ClaimsServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("case_id is required"), nil
	}

	sess, loadErr := s.store.Load(ctx, caseID)
	if loadErr != nil {
		if schema.IsNotFound(loadErr) {
			return mcp.NewToolResultError(fmt.Sprintf("no session found for case %s", caseID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", loadErr)), nil
	}

	status := map[string]any{
		"case_id":             caseID,
		"status":              sess.Metadata[session.MetaStatus],
		"saved_at":            sess.Metadata[session.MetaSavedAt],
		"message_count":       sess.Metadata[session.MetaMessageCount],
		"state":               sess.Context.GetString(schema.KeyState),
		"missing_documents":   sess.Context.MissingDocuments(),
		"missing_information": sess.Context.MissingInformation(),
		"decision":            sess.Context[schema.KeyDecision],
		"handoff_status":      sess.Context.GetString(schema.KeyHandoffStatus),
	}
	if archivedAt, ok := sess.Metadata[session.MetaArchivedAt]; ok {
		status["archived_at"] = archivedAt
	}
	if s.registry != nil {
		if rec, recErr := s.registry.GetCase(ctx, caseID); recErr == nil {
			status["registry"] = rec
		}
	}
	if s.events != nil {
		if timeline, tlErr := s.events.ReplayTimeline(ctx, caseID); tlErr == nil {
			status["timeline"] = timeline
		}
	}

	return marshalResult(status)
}

// handleSessions lists persisted cases. With a status filter and a wired
// case registry the listing comes from the registry; otherwise it is the
// sorted session IDs from the session store.
func (s *ClaimsServer) handleSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)

	if status, ok := filter["status"].(string); ok && status != "" && s.registry != nil {
		cases, listErr := s.registry.ListCases(ctx, store.CaseFilter{
			Status: status,
			Limit:  extractInt(filter, "limit", 50),
		})
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"cases": cases})
	}

	ids, listErr := s.store.List()
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session query failed: %v", listErr)), nil
	}
	if limit := extractInt(filter, "limit", 0); limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return marshalResult(map[string]any{"sessions": ids, "count": len(ids)})
}

// --- Internal helpers ---

// notifyIfPaused pushes a best-effort pause notification to the submitting
// adjuster so the missing-evidence request does not sit unnoticed.
func (s *ClaimsServer) notifyIfPaused(ctx context.Context, adjusterID string, result *schema.Result) {
	if s.notifier == nil || adjusterID == "" || result == nil || result.Status != schema.StatusPaused {
		return
	}
	note := PauseNotification{
		CaseID:             result.Context.CaseID(),
		MissingDocuments:   result.MissingDocuments,
		MissingInformation: result.MissingInformation,
		ResumeInstructions: result.ResumeInstructions,
	}
	if err := s.notifier.NotifyPaused(ctx, adjusterID, note); err != nil {
		s.logger.Warn("pause notification failed",
			slog.String("adjuster_id", adjusterID),
			slog.Any("error", err))
	}
}

// captureSession maps the adjuster ID to its current MCP session for
// notifications.
func (s *ClaimsServer) captureSession(ctx context.Context, adjusterID string) {
	if sess := server.ClientSessionFromContext(ctx); sess != nil {
		s.adjusters.bind(adjusterID, sess.SessionID())
	}
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
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
