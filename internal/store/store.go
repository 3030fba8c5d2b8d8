package store

import "context"

// Registry is the durable case registry plus its audit event log.
type Registry interface {
	// Cases
	CreateCase(ctx context.Context, rec *CaseRecord) error
	GetCase(ctx context.Context, id string) (*CaseRecord, error)
	UpdateCase(ctx context.Context, id string, update CaseUpdate) error
	ListCases(ctx context.Context, filter CaseFilter) ([]*CaseRecord, error)

	// Audit events
	AppendEvent(ctx context.Context, event *CaseEvent) error
	GetEvents(ctx context.Context, caseID string, since int64) ([]*CaseEvent, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*CaseEvent, error)

	Close() error
}
