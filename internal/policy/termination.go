package policy

import (
	"context"
	"log/slog"

	"github.com/rendis/claimflow/internal/expressions"
	"github.com/rendis/claimflow/internal/logging"
	"github.com/rendis/claimflow/pkg/schema"
)

// Defaults applied when Config leaves the corresponding field zero.
const (
	DefaultMaxRounds      = 15
	DefaultStallThreshold = 3
)

// CustomCondition is an operator-defined termination predicate, evaluated as
// a CEL expression after the built-in chain. Name becomes the
// termination_reason when the condition matches.
type CustomCondition struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// Config holds the termination policy knobs.
type Config struct {
	MaxRounds         int
	StallThreshold    int
	EnableHumanInLoop bool
	CustomConditions  []CustomCondition
}

// Policy evaluates the ordered termination conditions for a running case and
// packages the final result once a terminal condition holds.
//
// A Policy instance carries per-run state (round counter, last ledger
// snapshot); Reset must be called between independent cases run through the
// same orchestrator instance.
type Policy struct {
	maxRounds         int
	stallThreshold    int
	enableHumanInLoop bool
	custom            []CustomCondition

	cel    *expressions.CELEngine
	logger *slog.Logger

	roundCounter    int
	lastLedgerState *comparableState
}

// New creates a Policy from the given config. The CEL engine is only
// constructed when custom conditions are configured.
func New(cfg Config, logger *slog.Logger) (*Policy, error) {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Policy{
		maxRounds:         cfg.MaxRounds,
		stallThreshold:    cfg.StallThreshold,
		enableHumanInLoop: cfg.EnableHumanInLoop,
		custom:            cfg.CustomConditions,
		logger:            logger,
	}

	if len(cfg.CustomConditions) > 0 {
		eng, err := expressions.NewCELEngine()
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTermination,
				"build CEL engine for custom conditions: %s", err.Error()).WithCause(err)
		}
		p.cel = eng
		// Compile eagerly so misconfigured expressions fail at load time,
		// not mid-case.
		for _, cc := range cfg.CustomConditions {
			if cc.Name == "" {
				return nil, schema.NewError(schema.ErrCodeValidation, "custom condition missing name")
			}
			if _, err := eng.Evaluate(context.Background(), cc.Expression, nil); err != nil {
				if ce, ok := err.(*schema.ClaimError); ok && ce.Code == schema.ErrCodeValidation {
					return nil, schema.NewErrorf(schema.ErrCodeValidation,
						"custom condition %q: %s", cc.Name, ce.Message).WithCause(err)
				}
				// Runtime errors against the empty activation are fine; the
				// expression compiled.
			}
		}
	}

	return p, nil
}

// ShouldTerminate evaluates the termination conditions in strict priority
// order. The first matching condition records its name under
// context.termination_reason and ends the evaluation. Returns false when the
// orchestration should continue.
func (p *Policy) ShouldTerminate(ctx context.Context, cc schema.Context, ledger *Ledger) bool {
	if p.signalIf(ctx, cc, schema.ReasonApprovedHandoffReady, p.isReadyForHandoff(cc)) {
		return true
	}
	if p.signalIf(ctx, cc, schema.ReasonDeniedManual, p.isManualDenial(cc)) {
		return true
	}
	if p.signalIf(ctx, cc, schema.ReasonDeniedSLABreach, cc.GetBool(schema.KeySLABreached)) {
		if cc.GetString(schema.KeyDecision) == "" {
			cc[schema.KeyDecision] = schema.DecisionDeny
		}
		return true
	}
	if ledger != nil && p.signalIf(ctx, cc, schema.ReasonStalled, p.isStalled(ledger)) {
		return true
	}
	if p.signalIf(ctx, cc, schema.ReasonMaxRoundsExceeded, p.RoundsExhausted()) {
		return true
	}
	if p.enableHumanInLoop && cc.HasMissingItems() && !cc.GetBool(schema.KeyAgentReviewed) {
		p.setReason(cc, schema.ReasonHumanInLoopRequired)
		logging.LogWith(ctx, p.logger).Info("termination: human-in-loop pause required",
			slog.Any("missing_documents", cc.MissingDocuments()),
			slog.Any("missing_information", cc.MissingInformation()),
		)
		return true
	}

	for _, custom := range p.custom {
		if p.evalCustom(ctx, cc, ledger, custom) {
			p.setReason(cc, custom.Name)
			logging.LogWith(ctx, p.logger).Info("termination: custom condition matched",
				slog.String("condition", custom.Name))
			return true
		}
	}

	logging.LogWith(ctx, p.logger).Debug("orchestration continues",
		slog.Int("round", p.roundCounter),
		slog.Int("max_rounds", p.maxRounds),
	)
	return false
}

func (p *Policy) isReadyForHandoff(cc schema.Context) bool {
	return cc.GetString(schema.KeyDecision) == schema.DecisionApprove &&
		cc.GetString(schema.KeyHandoffStatus) == schema.HandoffReadyForSettlement
}

func (p *Policy) isManualDenial(cc schema.Context) bool {
	return cc.GetString(schema.KeyDecision) == schema.DecisionDeny &&
		cc.GetBool(schema.KeyDenialPackageReady)
}

// isStalled detects lack of forward progress in the adaptive phase.
// Stall indicators, evaluated only once the ledger holds at least
// stallThreshold entries:
//   - the same actor was invoked for the entire trailing window, or
//   - the most recent entry's comparable state (timestamps excluded) equals
//     the previous round's.
func (p *Policy) isStalled(ledger *Ledger) bool {
	if ledger.Len() < p.stallThreshold {
		return false
	}

	window := ledger.tail(p.stallThreshold)
	sameActor := true
	for _, entry := range window[1:] {
		if entry.ActorID != window[0].ActorID {
			sameActor = false
			break
		}
	}
	if sameActor {
		return true
	}

	current := window[len(window)-1].state()
	if p.lastLedgerState != nil && current.equal(*p.lastLedgerState) {
		return true
	}
	p.lastLedgerState = &current
	return false
}

func (p *Policy) evalCustom(ctx context.Context, cc schema.Context, ledger *Ledger, cond CustomCondition) bool {
	data := map[string]any{
		"context": map[string]any(cc),
		"rounds":  p.roundCounter,
	}
	if ledger != nil {
		entries := make([]any, 0, ledger.Len())
		for _, e := range ledger.Entries() {
			entries = append(entries, map[string]any{
				"actor_id":       e.ActorID,
				"result_summary": e.ResultSummary,
				"metadata":       e.Metadata,
			})
		}
		data["ledger"] = entries
	}

	matched, err := p.cel.EvaluateBool(ctx, cond.Expression, data)
	if err != nil {
		// A broken custom condition must not wedge the case; log and move on.
		logging.LogWith(ctx, p.logger).Warn("custom termination condition failed",
			slog.String("condition", cond.Name),
			slog.String("error", err.Error()),
		)
		return false
	}
	return matched
}

// RecordRound registers completion of a full specialist round.
func (p *Policy) RecordRound() {
	p.roundCounter++
}

// RoundsExhausted reports whether the configured max_rounds has been reached.
func (p *Policy) RoundsExhausted() bool {
	return p.roundCounter >= p.maxRounds
}

// Rounds returns the number of specialist rounds executed so far.
func (p *Policy) Rounds() int {
	return p.roundCounter
}

// Reset clears per-run state for a new case. The same Policy instance must
// not leak round state across cases run sequentially through one
// orchestrator.
func (p *Policy) Reset() {
	p.roundCounter = 0
	p.lastLedgerState = nil
}

func (p *Policy) signalIf(ctx context.Context, cc schema.Context, reason string, condition bool) bool {
	if !condition {
		return false
	}
	p.setReason(cc, reason)
	logging.LogWith(ctx, p.logger).Info("termination condition matched", slog.String("reason", reason))
	return true
}

func (p *Policy) setReason(cc schema.Context, reason string) {
	cc[schema.KeyTerminationReason] = reason
}
