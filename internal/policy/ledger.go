package policy

import (
	"reflect"
	"time"
)

// LedgerEntry records one specialist invocation during the adaptive phase.
// Entries are ephemeral: they feed stall detection for the current run and
// are never persisted.
type LedgerEntry struct {
	ActorID       string
	ResultSummary string
	Metadata      map[string]any
	Timestamp     time.Time
}

// comparableState is the portion of a ledger entry used for progress
// comparison. Timestamps are deliberately excluded: a repeated identical
// response at a later time is still a stall.
type comparableState struct {
	ActorID       string
	ResultSummary string
	Metadata      map[string]any
}

func (e LedgerEntry) state() comparableState {
	return comparableState{
		ActorID:       e.ActorID,
		ResultSummary: e.ResultSummary,
		Metadata:      e.Metadata,
	}
}

func (s comparableState) equal(other comparableState) bool {
	return s.ActorID == other.ActorID &&
		s.ResultSummary == other.ResultSummary &&
		reflect.DeepEqual(s.Metadata, other.Metadata)
}

// Ledger is the in-memory record of recent specialist invocations.
// Not safe for concurrent use; a case runs on a single worker.
type Ledger struct {
	entries []LedgerEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends an invocation entry, stamping the time if unset.
func (l *Ledger) Record(entry LedgerEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns the recorded entries in order.
func (l *Ledger) Entries() []LedgerEntry {
	return l.entries
}

// tail returns the last n entries (or fewer when the ledger is shorter).
func (l *Ledger) tail(n int) []LedgerEntry {
	if n >= len(l.entries) {
		return l.entries
	}
	return l.entries[len(l.entries)-n:]
}
