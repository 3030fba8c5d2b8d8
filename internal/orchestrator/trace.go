package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rendis/claimflow/pkg/schema"
)

// Tracer writes a per-case debug trace file recording every actor input and
// output. A nil Tracer is valid and discards everything; tracing failures
// are logged, never fatal.
type Tracer struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewTracer creates the trace file {case_id}_trace.txt under dir and writes
// its header. Returns nil when dir is empty (tracing disabled).
func NewTracer(dir string, cc schema.Context, logger *slog.Logger) *Tracer {
	if dir == "" {
		return nil
	}
	t := &Tracer{
		path:   filepath.Join(dir, cc.CaseID()+"_trace.txt"),
		logger: logger,
		now:    time.Now,
	}
	policyNumber := cc.GetString(schema.KeyPolicyNumber)
	if policyNumber == "" {
		policyNumber = "unknown"
	}
	header := fmt.Sprintf("Claims orchestration trace\nCase ID: %s\nPolicy: %s\nGenerated: %s\n%s\n",
		cc.CaseID(), policyNumber, t.timestamp(), strings.Repeat("-", 60))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("trace dir unavailable, tracing disabled", slog.String("dir", dir), slog.Any("error", err))
		return nil
	}
	if err := os.WriteFile(t.path, []byte(header), 0o644); err != nil {
		logger.Warn("trace file unavailable, tracing disabled", slog.String("path", t.path), slog.Any("error", err))
		return nil
	}
	return t
}

// LogInput records the transcript an actor is about to see.
func (t *Tracer) LogInput(actorName string, transcript *schema.Transcript) {
	if t == nil {
		return
	}
	var b strings.Builder
	for _, msg := range transcript.Messages() {
		author := string(msg.Role)
		if msg.Name != "" {
			author += "/" + msg.Name
		}
		fmt.Fprintf(&b, "%s: %s\n", author, msg.Content)
	}
	t.append(fmt.Sprintf("[%s] %s INPUT\n%s\n", t.timestamp(), actorName, b.String()))
}

// LogOutput records the message an actor produced. Nil messages (the actor
// had nothing to contribute) are not recorded.
func (t *Tracer) LogOutput(actorName string, msg *schema.Message) {
	if t == nil || msg == nil {
		return
	}
	t.append(fmt.Sprintf("[%s] %s OUTPUT\n%s\n\n", t.timestamp(), actorName, strings.TrimSpace(msg.Content)))
}

// Path returns the trace file location, or "" when tracing is disabled.
func (t *Tracer) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

func (t *Tracer) timestamp() string {
	return t.now().UTC().Format(time.RFC3339)
}

func (t *Tracer) append(record string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.logger.Warn("trace append failed", slog.String("path", t.path), slog.Any("error", err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(record); err != nil {
		t.logger.Warn("trace append failed", slog.String("path", t.path), slog.Any("error", err))
	}
}
