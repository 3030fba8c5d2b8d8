package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/pkg/schema"
)

// ErrRunnerShutdown is returned when work is submitted to a shut-down Runner.
var ErrRunnerShutdown = errors.New("runner is shut down")

// RunnerMetrics tracks runner operational counters.
type RunnerMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Runner makes the single-writer-per-case contract concrete: it holds a
// per-case guard around every Process and Resume call and bounds how many
// independent cases run at once. Each slot gets its own Orchestrator because
// the termination policy carries per-run round state.
type Runner struct {
	build func() (*Orchestrator, error)
	guard *session.Guard

	sem  chan struct{}
	done chan struct{}

	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	metrics RunnerMetrics
}

// NewRunner creates a Runner with the given max concurrency. build is called
// once per acquired slot to obtain a fresh Orchestrator for that run.
func NewRunner(build func() (*Orchestrator, error), size int) *Runner {
	if size <= 0 {
		size = 1
	}
	return &Runner{
		build: build,
		guard: session.NewGuard(),
		sem:   make(chan struct{}, size),
		done:  make(chan struct{}),
	}
}

// Process runs a new case submission through a pooled Orchestrator. When the
// submission carries a case_id the run is serialized against any other
// Process or Resume on that case. The returned error only reports pool-level
// failures (shutdown, context cancellation, construction); orchestration
// failures arrive inside the Result per the Process contract.
func (r *Runner) Process(ctx context.Context, caseData schema.Context, transcript *schema.Transcript, existing schema.Context) (*schema.Result, error) {
	return r.do(ctx, caseData.CaseID(), func(orch *Orchestrator) (*schema.Result, error) {
		return orch.Process(ctx, caseData, transcript, existing), nil
	})
}

// Resume reloads and continues a paused case, serialized per case ID.
func (r *Runner) Resume(ctx context.Context, caseID string, evidence *schema.Evidence) (*schema.Result, error) {
	return r.do(ctx, caseID, func(orch *Orchestrator) (*schema.Result, error) {
		return orch.Resume(ctx, caseID, evidence)
	})
}

// Guard exposes the per-case lock so other components touching paused
// sessions (the SLA sweeper) serialize against live runs.
func (r *Runner) Guard() *session.Guard {
	return r.guard
}

// Metrics returns a snapshot of the runner counters.
func (r *Runner) Metrics() RunnerMetrics {
	return RunnerMetrics{
		Active:    atomic.LoadInt64(&r.metrics.Active),
		Completed: atomic.LoadInt64(&r.metrics.Completed),
		Failed:    atomic.LoadInt64(&r.metrics.Failed),
	}
}

// Shutdown prevents new submissions and waits for active runs to finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) do(ctx context.Context, caseID string, fn func(*Orchestrator) (*schema.Result, error)) (*schema.Result, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	if caseID != "" {
		release := r.guard.Acquire(caseID)
		defer release()
	}

	orch, err := r.build()
	if err != nil {
		atomic.AddInt64(&r.metrics.Failed, 1)
		return nil, err
	}

	result, err := fn(orch)
	if err != nil || (result != nil && result.Status == schema.StatusError) {
		atomic.AddInt64(&r.metrics.Failed, 1)
	} else {
		atomic.AddInt64(&r.metrics.Completed, 1)
	}
	return result, err
}

// acquire takes a concurrency slot, respecting context cancellation and
// shutdown while waiting. The wg.Add must happen under the lock so Shutdown
// cannot race past an in-flight acquisition.
func (r *Runner) acquire(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerShutdown
	}
	r.mu.Unlock()

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRunnerShutdown
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.sem
		return ErrRunnerShutdown
	}
	r.wg.Add(1)
	atomic.AddInt64(&r.metrics.Active, 1)
	r.mu.Unlock()
	return nil
}

func (r *Runner) release() {
	atomic.AddInt64(&r.metrics.Active, -1)
	<-r.sem
	r.wg.Done()
}
