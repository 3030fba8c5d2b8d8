package store

import (
	"encoding/json"
	"time"
)

// Case status constants for the registry.
const (
	CaseStatusOpen     = "open"
	CaseStatusPaused   = "paused"
	CaseStatusApproved = "approved"
	CaseStatusDenied   = "denied"
	CaseStatusStalled  = "stalled"
	CaseStatusTimedOut = "timeout"
	CaseStatusError    = "error"
	CaseStatusArchived = "archived"
)

// Event type constants for the audit log.
const (
	EventCaseSubmitted  = "case_submitted"
	EventPhaseStarted   = "phase_started"
	EventPhaseCompleted = "phase_completed"
	EventCasePaused     = "case_paused"
	EventCaseResumed    = "case_resumed"
	EventCaseDecided    = "case_decided"
	EventCaseArchived   = "case_archived"
	EventCaseError      = "case_error"
	EventSLABreached    = "sla_breached"
)

// CaseRecord is the persisted registry entry for a claim case.
type CaseRecord struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	PolicyNumber string          `json:"policy_number,omitempty"`
	Claimant     string          `json:"claimant,omitempty"`
	ClaimType    string          `json:"claim_type,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	PausedAt     *time.Time      `json:"paused_at,omitempty"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
}

// CaseUpdate holds the mutable fields of a case record; nil fields are
// left untouched.
type CaseUpdate struct {
	Status    *string
	Summary   json.RawMessage
	PausedAt  *time.Time
	DecidedAt *time.Time
}

// CaseFilter narrows ListCases.
type CaseFilter struct {
	Status string
	Since  *time.Time
	Limit  int
	Offset int
}

// CaseEvent is an immutable entry in the per-case audit log.
type CaseEvent struct {
	ID        int64           `json:"id"`
	CaseID    string          `json:"case_id"`
	Type      string          `json:"event_type"`
	Phase     string          `json:"phase,omitempty"`
	ActorID   string          `json:"actor_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// EventFilter narrows audit log queries.
type EventFilter struct {
	CaseID string
	Phase  string
	Since  *time.Time
	Limit  int
}
