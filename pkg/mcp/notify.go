package mcp

import (
	"context"
	"errors"
	"sync"

	"github.com/mark3labs/mcp-go/server"
)

// PauseNotification is pushed to the submitting adjuster when a case pauses
// for missing evidence. It mirrors the pause section of a Result so the
// adjuster can act on it without re-querying the case.
type PauseNotification struct {
	CaseID             string   `json:"case_id"`
	MissingDocuments   []string `json:"missing_documents,omitempty"`
	MissingInformation []string `json:"missing_information,omitempty"`
	ResumeInstructions string   `json:"resume_instructions,omitempty"`
}

// AdjusterNotifier pushes pause notifications to connected adjusters.
type AdjusterNotifier interface {
	NotifyPaused(ctx context.Context, adjusterID string, note PauseNotification) error
}

// adjusterSessions maps adjuster IDs to live MCP session IDs. Populated
// whenever a caller passes adjuster_id to a case tool; a rebind on
// reconnect overwrites the old session.
type adjusterSessions struct {
	mu         sync.RWMutex
	byAdjuster map[string]string
}

func newAdjusterSessions() *adjusterSessions {
	return &adjusterSessions{byAdjuster: make(map[string]string)}
}

func (a *adjusterSessions) bind(adjusterID, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byAdjuster[adjusterID] = sessionID
}

func (a *adjusterSessions) lookup(adjusterID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sid, ok := a.byAdjuster[adjusterID]
	return sid, ok
}

// dropSession removes every adjuster bound to a disconnected session.
func (a *adjusterSessions) dropSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for aid, sid := range a.byAdjuster {
		if sid == sessionID {
			delete(a.byAdjuster, aid)
		}
	}
}

// MCPNotifier implements AdjusterNotifier over MCP push notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	adjusters *adjusterSessions
}

// NewMCPNotifier creates a notifier that pushes via the adjuster's MCP
// session.
func NewMCPNotifier(mcpServer *server.MCPServer, adjusters *adjusterSessions) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, adjusters: adjusters}
}

// NotifyPaused sends a case_paused notification to the adjuster's session.
// Best-effort: an adjuster without a live session is not an error.
func (n *MCPNotifier) NotifyPaused(_ context.Context, adjusterID string, note PauseNotification) error {
	sessionID, ok := n.adjusters.lookup(adjusterID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", map[string]any{
		"type":                "case_paused",
		"case_id":             note.CaseID,
		"missing_documents":   note.MissingDocuments,
		"missing_information": note.MissingInformation,
		"resume_instructions": note.ResumeInstructions,
	})
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.adjusters.dropSession(sessionID)
		return nil
	}
	return err
}
