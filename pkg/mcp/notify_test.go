package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjusterSessionsBindAndLookup(t *testing.T) {
	a := newAdjusterSessions()

	a.bind("adj-1", "sess-A")
	a.bind("adj-2", "sess-B")

	sid, ok := a.lookup("adj-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-A", sid)

	_, ok = a.lookup("adj-3")
	assert.False(t, ok)

	// Reconnect rebinds the adjuster to the new session.
	a.bind("adj-1", "sess-C")
	sid, _ = a.lookup("adj-1")
	assert.Equal(t, "sess-C", sid)
}

func TestAdjusterSessionsDropSession(t *testing.T) {
	a := newAdjusterSessions()
	a.bind("adj-1", "sess-A")
	a.bind("adj-2", "sess-A")
	a.bind("adj-3", "sess-B")

	a.dropSession("sess-A")

	_, ok := a.lookup("adj-1")
	assert.False(t, ok)
	_, ok = a.lookup("adj-2")
	assert.False(t, ok)
	sid, ok := a.lookup("adj-3")
	assert.True(t, ok)
	assert.Equal(t, "sess-B", sid)
}

func TestNotifyPausedWithoutSessionIsNoop(t *testing.T) {
	s := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}})
	n := NewMCPNotifier(s.MCPServer(), s.adjusters)

	err := n.NotifyPaused(context.Background(), "adj-unknown", PauseNotification{
		CaseID:           "CLM-1001",
		MissingDocuments: []string{"police_report"},
	})
	assert.NoError(t, err)
}

func TestNotifyPausedDropsExpiredSession(t *testing.T) {
	s := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}})
	n := NewMCPNotifier(s.MCPServer(), s.adjusters)

	// Bound to a session the server no longer tracks.
	s.adjusters.bind("adj-1", "sess-gone")

	err := n.NotifyPaused(context.Background(), "adj-1", PauseNotification{CaseID: "CLM-1001"})
	assert.NoError(t, err)

	_, ok := s.adjusters.lookup("adj-1")
	assert.False(t, ok, "expired session binding should be evicted")
}
