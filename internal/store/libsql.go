package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/claimflow/pkg/schema"
)

// LibSQLStore implements Registry using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/claims.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. the event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Cases ---

func (s *LibSQLStore) CreateCase(ctx context.Context, rec *CaseRecord) error {
	if rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "case id is required")
	}
	if rec.Status == "" {
		rec.Status = CaseStatusOpen
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (id, status, policy_number, claimant, claim_type, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Status, nullStr(rec.PolicyNumber), nullStr(rec.Claimant), nullStr(rec.ClaimType),
		nullRaw(rec.Summary), timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "case %q already registered", rec.ID)
	}
	return err
}

func (s *LibSQLStore) GetCase(ctx context.Context, id string) (*CaseRecord, error) {
	rec := &CaseRecord{}
	var policy, claimant, claimType, summary sql.NullString
	var pausedAt, decidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, policy_number, claimant, claim_type, summary, created_at, updated_at, paused_at, decided_at
		 FROM cases WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Status, &policy, &claimant, &claimType, &summary,
		&rec.CreatedAt, &rec.UpdatedAt, &pausedAt, &decidedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("case", id)
	}
	if err != nil {
		return nil, err
	}
	rec.PolicyNumber = policy.String
	rec.Claimant = claimant.String
	rec.ClaimType = claimType.String
	rec.Summary = rawOrNil(summary)
	if pausedAt.Valid {
		rec.PausedAt = &pausedAt.Time
	}
	if decidedAt.Valid {
		rec.DecidedAt = &decidedAt.Time
	}
	return rec, nil
}

func (s *LibSQLStore) UpdateCase(ctx context.Context, id string, update CaseUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, string(update.Summary))
	}
	if update.PausedAt != nil {
		sets = append(sets, "paused_at = ?")
		args = append(args, *update.PausedAt)
	}
	if update.DecidedAt != nil {
		sets = append(sets, "decided_at = ?")
		args = append(args, *update.DecidedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE cases SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "case", id)
}

func (s *LibSQLStore) ListCases(ctx context.Context, filter CaseFilter) ([]*CaseRecord, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, status, policy_number, claimant, claim_type, summary, created_at, updated_at, paused_at, decided_at FROM cases`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*CaseRecord
	for rows.Next() {
		rec := &CaseRecord{}
		var policy, claimant, claimType, summary sql.NullString
		var pausedAt, decidedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Status, &policy, &claimant, &claimType, &summary,
			&rec.CreatedAt, &rec.UpdatedAt, &pausedAt, &decidedAt); err != nil {
			return nil, err
		}
		rec.PolicyNumber = policy.String
		rec.Claimant = claimant.String
		rec.ClaimType = claimType.String
		rec.Summary = rawOrNil(summary)
		if pausedAt.Valid {
			rec.PausedAt = &pausedAt.Time
		}
		if decidedAt.Valid {
			rec.DecidedAt = &decidedAt.Time
		}
		cases = append(cases, rec)
	}
	return cases, rows.Err()
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-case
// sequence. This is the only event write path.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *CaseEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone starts a deferred transaction. Touching the
	// parent case row forces lock acquisition up front so the sequence read
	// and the insert cannot interleave with another writer's.
	if _, err := tx.ExecContext(ctx,
		`UPDATE cases SET updated_at = updated_at WHERE id = ?`, event.CaseID); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM case_events WHERE case_id = ?`, event.CaseID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO case_events (case_id, event_type, phase, actor_id, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.CaseID, event.Type, nullStr(event.Phase), nullStr(event.ActorID),
		nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, caseID string, since int64) ([]*CaseEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, event_type, phase, actor_id, payload, timestamp, sequence
		 FROM case_events WHERE case_id = ? AND sequence > ? ORDER BY sequence ASC`,
		caseID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*CaseEvent, error) {
	var where []string
	var args []any

	where = append(where, "event_type = ?")
	args = append(args, eventType)

	if filter.CaseID != "" {
		where = append(where, "case_id = ?")
		args = append(args, filter.CaseID)
	}
	if filter.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, filter.Phase)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, case_id, event_type, phase, actor_id, payload, timestamp, sequence FROM case_events`
	query += " WHERE " + strings.Join(where, " AND ")
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*CaseEvent, error) {
	var events []*CaseEvent
	for rows.Next() {
		e := &CaseEvent{}
		var phase, actorID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Type, &phase, &actorID, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Phase = phase.String
		e.ActorID = actorID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.ClaimError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
