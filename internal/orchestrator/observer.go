package orchestrator

import "context"

// ProgressObserver receives phase-boundary notifications during a case run.
// Front ends use it to stream progress; hooks are called synchronously from
// the orchestration goroutine and must return quickly.
type ProgressObserver interface {
	OnPhaseStart(ctx context.Context, caseID, phase string)
	OnPhaseEnd(ctx context.Context, caseID, phase string)
	OnPause(ctx context.Context, caseID, phase string, missing []string)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnPhaseStart(context.Context, string, string) {}

func (NopObserver) OnPhaseEnd(context.Context, string, string) {}

func (NopObserver) OnPause(context.Context, string, string, []string) {}
