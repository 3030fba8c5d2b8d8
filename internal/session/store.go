package session

import (
	"context"

	"github.com/rendis/claimflow/pkg/schema"
)

// Metadata keys the store writes into session.json on every save.
const (
	MetaCaseID           = "case_id"
	MetaSavedAt          = "saved_at"
	MetaMessageCount     = "message_count"
	MetaStatus           = "status"
	MetaMissingDocuments = "missing_documents"
	MetaArchivedAt       = "archived_at"
)

// Session statuses recorded by the orchestrator at save time.
const (
	StatusPausedAfterPhase1 = "paused_after_phase1"
	StatusPausedAfterPhase2 = "paused_after_phase2"
	StatusCompleted         = "completed"
	StatusError             = "error"
)

// Session is a loaded snapshot of a persisted case.
type Session struct {
	Transcript *schema.Transcript
	Context    schema.Context
	Metadata   map[string]any
}

// Store is the durable per-case persistence contract.
//
// Every Save fully overwrites the persisted artifacts for a case; there are
// no partial or merge writes. The store does not serialize concurrent access
// per case — callers must hold a Guard (or equivalent) so that at most one
// Process/Resume runs per case ID at a time.
type Store interface {
	// Save persists the full session state and returns the session location.
	Save(ctx context.Context, caseID string, transcript *schema.Transcript, cc schema.Context, metadata map[string]any) (string, error)

	// Load restores a persisted session. Returns a NOT_FOUND ClaimError when
	// no session (or no session metadata) exists for the case.
	Load(ctx context.Context, caseID string) (*Session, error)

	// Exists reports whether a loadable session exists for the case.
	Exists(caseID string) bool

	// List returns the case IDs with persisted sessions, sorted.
	List() ([]string, error)

	// Archive stamps archived_at into the session metadata without touching
	// the transcript or context. Safe to call repeatedly.
	Archive(ctx context.Context, caseID string) error
}
