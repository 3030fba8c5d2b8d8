package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/internal/store"
	"github.com/rendis/claimflow/pkg/schema"
)

// DefaultSLADeadline is how long a paused case may wait for claimant input
// before it is marked breached.
const DefaultSLADeadline = 72 * time.Hour

// Auditor is the slice of the audit log the sweeper needs.
// Satisfied by *store.LibSQLStore.
type Auditor interface {
	AppendEvent(ctx context.Context, event *store.CaseEvent) error
}

// Sweeper periodically scans paused sessions and marks cases whose pause
// has exceeded the SLA deadline. Breached sessions get sla_breached set in
// their persisted context so the termination policy forces a denial on the
// next resume.
type Sweeper struct {
	sessions *session.FileStore
	guard    *session.Guard
	audit    Auditor
	schedule cron.Schedule
	deadline time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // case IDs currently being swept (dedup)

	nextRun time.Time
}

// NewSweeper creates a sweeper from a standard five-field cron expression.
// An empty expression defaults to hourly; a non-positive deadline defaults
// to DefaultSLADeadline.
func NewSweeper(sessions *session.FileStore, guard *session.Guard, audit Auditor, cronExpr string, deadline time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if deadline <= 0 {
		deadline = DefaultSLADeadline
	}
	if logger == nil {
		logger = slog.Default()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse SLA cron expression %q", cronExpr).WithCause(err)
	}

	return &Sweeper{
		sessions: sessions,
		guard:    guard,
		audit:    audit,
		schedule: schedule,
		deadline: deadline,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}, nil
}

// Start launches the background sweep loop with a 60s ticker.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("sla sweeper already started")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = s.schedule.Next(s.now())
	s.mu.Unlock()

	go s.loop(sweepCtx)
	s.logger.Info("sla sweeper started", slog.Duration("deadline", s.deadline))
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			if now.Before(s.nextRun) {
				continue
			}
			s.nextRun = s.schedule.Next(now)
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("sla sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("sla sweeper stopped")
	return nil
}

// Sweep scans every paused session once and marks the breached ones.
// Returns the first listing error; per-case failures are logged and the
// sweep continues.
func (s *Sweeper) Sweep(ctx context.Context) (err error) {
	caseIDs, err := s.sessions.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	now := s.now()
	breached := 0
	for _, caseID := range caseIDs {
		if !s.tryAcquire(caseID) {
			continue
		}
		marked, caseErr := s.sweepCase(ctx, caseID, now)
		s.release(caseID)
		if caseErr != nil {
			s.logger.Error("sla sweep case failed",
				slog.String("case_id", caseID),
				slog.String("error", caseErr.Error()),
			)
			continue
		}
		if marked {
			breached++
		}
	}

	if breached > 0 {
		s.logger.Info("sla sweep marked breached cases", slog.Int("count", breached))
	}
	return nil
}

// sweepCase marks one case breached if it is paused past the deadline.
func (s *Sweeper) sweepCase(ctx context.Context, caseID string, now time.Time) (bool, error) {
	release := s.guard.Acquire(caseID)
	defer release()

	sess, err := s.sessions.Load(ctx, caseID)
	if err != nil {
		return false, err
	}

	status, _ := sess.Metadata[session.MetaStatus].(string)
	if !strings.HasPrefix(status, "paused") {
		return false, nil
	}
	if sess.Context.GetBool(schema.KeySLABreached) {
		return false, nil
	}

	savedAt, _ := sess.Metadata[session.MetaSavedAt].(string)
	saved, parseErr := time.Parse(time.RFC3339, savedAt)
	if parseErr != nil || now.Sub(saved) < s.deadline {
		return false, nil
	}

	sess.Context[schema.KeySLABreached] = true
	if _, err := s.sessions.Save(ctx, caseID, sess.Transcript, sess.Context, sess.Metadata); err != nil {
		return false, err
	}

	payload, _ := json.Marshal(map[string]any{
		"paused_since": savedAt,
		"deadline":     s.deadline.String(),
	})
	if err := s.audit.AppendEvent(ctx, &store.CaseEvent{
		CaseID:  caseID,
		Type:    store.EventSLABreached,
		Payload: payload,
	}); err != nil {
		s.logger.Error("append sla_breached event failed",
			slog.String("case_id", caseID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Warn("case breached SLA",
		slog.String("case_id", caseID),
		slog.String("paused_since", savedAt),
	)
	return true, nil
}

func (s *Sweeper) tryAcquire(caseID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[caseID]; ok {
		return false
	}
	s.inflight[caseID] = struct{}{}
	return true
}

func (s *Sweeper) release(caseID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, caseID)
}
