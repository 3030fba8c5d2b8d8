package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/claimflow/pkg/schema"
)

// EventLog is the read-side view of the audit log: queries and timeline
// replay. Writes go through LibSQLStore.AppendEvent so exactly one append
// path owns the per-case sequence.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide audit-log queries.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// GetEvents returns events for a case with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, caseID string, since int64) ([]*CaseEvent, error) {
	return el.store.GetEvents(ctx, caseID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*CaseEvent, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// PhaseState is the replayed lifecycle of a single phase.
type PhaseState struct {
	Phase       string     `json:"phase"`
	Started     bool       `json:"started"`
	Completed   bool       `json:"completed"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Timeline is the materialized view of a case's audit history.
type Timeline struct {
	CaseID     string                 `json:"case_id"`
	Phases     map[string]*PhaseState `json:"phases"`
	PauseCount int                    `json:"pause_count"`
	Resumed    int                    `json:"resumed"`
	Decided    bool                   `json:"decided"`
	Decision   string                 `json:"decision,omitempty"`
	Errored    bool                   `json:"errored"`
}

// ReplayTimeline rebuilds a case timeline from its audit events.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayTimeline(ctx context.Context, caseID string) (*Timeline, error) {
	events, err := el.store.GetEvents(ctx, caseID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	tl := &Timeline{CaseID: caseID, Phases: make(map[string]*PhaseState)}
	if len(events) == 0 {
		return tl, nil
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in case %s: expected %d, got %d", caseID, expected, e.Sequence)
		}
	}

	for _, e := range events {
		switch e.Type {
		case EventPhaseStarted:
			ps := tl.phase(e.Phase)
			ps.Started = true
			ts := e.Timestamp
			ps.StartedAt = &ts

		case EventPhaseCompleted:
			ps := tl.phase(e.Phase)
			ps.Completed = true
			ts := e.Timestamp
			ps.CompletedAt = &ts

		case EventCasePaused:
			tl.PauseCount++

		case EventCaseResumed:
			tl.Resumed++

		case EventCaseDecided:
			tl.Decided = true
			var payload struct {
				Decision string `json:"decision"`
			}
			if len(e.Payload) > 0 {
				_ = json.Unmarshal(e.Payload, &payload)
			}
			tl.Decision = payload.Decision

		case EventCaseError:
			tl.Errored = true
		}
	}

	return tl, nil
}

func (tl *Timeline) phase(name string) *PhaseState {
	if name == "" {
		name = "unknown"
	}
	ps, ok := tl.Phases[name]
	if !ok {
		ps = &PhaseState{Phase: name}
		tl.Phases[name] = ps
	}
	return ps
}
