package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/claimflow/internal/actors"
	"github.com/rendis/claimflow/internal/logging"
	"github.com/rendis/claimflow/internal/policy"
	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/internal/store"
	"github.com/rendis/claimflow/internal/validation"
	"github.com/rendis/claimflow/pkg/schema"
)

// Phase identifiers recorded under completed_phases and in audit events.
const (
	PhaseIntake    = "intake_validation"
	PhaseGathering = "adaptive_gathering"
	PhaseDecision  = "handoff_decision"
)

// Fixed actor sequences for the deterministic phases.
var (
	intakeSequence   = []string{actors.RoleIntakeCoordinator, actors.RolePolicySpecialist, actors.RoleDocumentValidator}
	decisionSequence = []string{actors.RoleAssessmentAgent, actors.RoleClaimsOfficer, actors.RoleHandoffAgent}
)

// Config holds the orchestrator knobs. Zero values fall back to the policy
// defaults; an empty TraceDir disables per-case trace files.
type Config struct {
	MaxRounds         int
	StallThreshold    int
	EnableHumanInLoop bool
	CustomConditions  []policy.CustomCondition
	ActorTimeout      time.Duration
	TraceDir          string
}

// Auditor is the durable case registry: a lifecycle record per case plus
// the audit events appended at phase boundaries. Events reference their case
// record, so the record is created before the first event and updated on
// pause, decision, and failure. The orchestrator treats auditing as
// advisory: registry failures are logged, never fatal.
type Auditor interface {
	CreateCase(ctx context.Context, rec *store.CaseRecord) error
	UpdateCase(ctx context.Context, id string, update store.CaseUpdate) error
	AppendEvent(ctx context.Context, event *store.CaseEvent) error
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithObserver installs a progress observer notified at phase boundaries.
func WithObserver(obs ProgressObserver) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithAuditor installs an audit event sink.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// Orchestrator drives the three-phase claims pipeline: deterministic intake,
// adaptive specialist gathering, and decision handoff. All collaborators are
// injected at construction; an Orchestrator holds no global state and
// multiple instances run independent cases in the same process.
//
// A single Orchestrator must not run two cases concurrently: the termination
// policy carries per-run round state. Use a Runner to serialize access.
type Orchestrator struct {
	cfg      Config
	registry *actors.Registry
	invoker  actors.Invoker
	sessions session.Store
	policy   *policy.Policy
	handoff  *validation.HandoffValidator
	audit    Auditor
	observer ProgressObserver
	logger   *slog.Logger
}

// New creates an Orchestrator. Every role the fixed sequences reference must
// be present in the registry; misconfigured role sets fail here, not at
// invocation time.
func New(cfg Config, registry *actors.Registry, invoker actors.Invoker, sessions session.Store, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "actor registry is empty")
	}
	if invoker == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "actor invoker is required")
	}
	if sessions == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, role := range append(append([]string{}, intakeSequence...), decisionSequence...) {
		if _, ok := registry.Get(role); !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "registry is missing required role %q", role)
		}
	}

	pol, err := policy.New(policy.Config{
		MaxRounds:         cfg.MaxRounds,
		StallThreshold:    cfg.StallThreshold,
		EnableHumanInLoop: cfg.EnableHumanInLoop,
		CustomConditions:  cfg.CustomConditions,
	}, logger)
	if err != nil {
		return nil, err
	}
	handoff, err := validation.NewHandoffValidator()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		invoker:  invoker,
		sessions: sessions,
		policy:   pol,
		handoff:  handoff,
		observer: NopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Process runs the full pipeline for one case and always returns a
// structured Result: failures inside a run are converted to an error Result
// after persisting a forensic snapshot, never raised past this boundary.
//
// caseData is the submission payload; transcript and existing are non-nil
// only when re-entering from a saved session, in which case resumed context
// values win over submission values.
func (o *Orchestrator) Process(ctx context.Context, caseData schema.Context, transcript *schema.Transcript, existing schema.Context) *schema.Result {
	o.policy.Reset()

	cc := schema.NewContext()
	cc.Merge(caseData)
	resuming := existing != nil
	if resuming {
		cc.Merge(existing)
	}
	if cc.CaseID() == "" {
		cc[schema.KeyCaseID] = newCaseID()
	}
	// Termination reasons are re-derived on every run; a stale one from a
	// resumed snapshot must not short-circuit the pipeline.
	delete(cc, schema.KeyTerminationReason)
	caseID := cc.CaseID()
	ctx = logging.WithCaseID(ctx, caseID)

	if transcript == nil {
		transcript = schema.NewTranscript()
	}
	tracer := NewTracer(o.cfg.TraceDir, cc, o.logger)

	if docs := cc.MissingDocuments(); len(docs) > 0 {
		transcript.AppendSystem(intakeSystemNote(docs))
	}

	logging.LogWith(ctx, o.logger).Info("orchestration starting",
		slog.String("policy_number", cc.GetString(schema.KeyPolicyNumber)),
		slog.Bool("resume", resuming),
	)
	if !resuming {
		o.registerCase(ctx, cc)
		o.appendEvent(ctx, caseID, store.EventCaseSubmitted, "", "", map[string]any{
			"policy_number": cc.GetString(schema.KeyPolicyNumber),
		})
	}

	result, err := o.runProtected(ctx, caseID, cc, transcript, tracer)
	if err != nil {
		return o.failureResult(ctx, caseID, cc, transcript, err)
	}
	return result
}

// runProtected converts panics from actor or store collaborators into
// ordinary errors so the catch-all in Process can persist a forensic
// snapshot for them too.
func (o *Orchestrator) runProtected(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, tracer *Tracer) (result *schema.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeExecution, "orchestration panic: %v", r).WithCase(caseID)
		}
	}()
	return o.run(ctx, caseID, cc, transcript, tracer)
}

// Resume reloads a paused case, merges new evidence into its context and
// transcript, and re-enters Process from the saved state. Unlike Process it
// may fail: a missing session is a caller precondition violation and
// surfaces as a NOT_FOUND error rather than an error Result.
func (o *Orchestrator) Resume(ctx context.Context, caseID string, evidence *schema.Evidence) (*schema.Result, error) {
	ctx = logging.WithCaseID(ctx, caseID)

	sess, err := o.sessions.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	cc := sess.Context
	var resolved []string
	if evidence != nil && !evidence.Empty() {
		resolved = o.mergeEvidence(cc, sess.Transcript, *evidence)
	}

	logging.LogWith(ctx, o.logger).Info("resuming case",
		slog.Int("messages", sess.Transcript.Len()),
		slog.Any("resolved", resolved),
	)
	o.updateCase(ctx, caseID, store.CaseUpdate{Status: statusPtr(store.CaseStatusOpen)})
	o.appendEvent(ctx, caseID, store.EventCaseResumed, "", "", map[string]any{
		"resolved": resolved,
	})

	return o.Process(ctx, schema.Context{}, sess.Transcript, cc), nil
}

// --- Phase pipeline ---

func (o *Orchestrator) run(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, tracer *Tracer) (*schema.Result, error) {
	if !cc.PhaseCompleted(PhaseIntake) {
		if err := o.runIntake(ctx, caseID, cc, transcript, tracer); err != nil {
			return nil, err
		}
	}
	if o.shouldPause(cc) {
		return o.pause(ctx, caseID, cc, transcript, PhaseIntake, session.StatusPausedAfterPhase1)
	}

	if !o.policy.ShouldTerminate(ctx, cc, nil) && !cc.PhaseCompleted(PhaseGathering) {
		if err := o.runGathering(ctx, caseID, cc, transcript, tracer); err != nil {
			return nil, err
		}
	}
	if o.shouldPause(cc) {
		return o.pause(ctx, caseID, cc, transcript, PhaseGathering, session.StatusPausedAfterPhase2)
	}

	// A reason recorded during gathering (stall, exhausted rounds, terminal
	// decision) already ends the run; re-checking the remaining conditions
	// here catches context changes from a skipped gathering phase.
	if cc.GetString(schema.KeyTerminationReason) == "" && !o.policy.ShouldTerminate(ctx, cc, nil) && !cc.PhaseCompleted(PhaseDecision) {
		if err := o.runDecision(ctx, caseID, cc, transcript, tracer); err != nil {
			return nil, err
		}
	}

	return o.finalize(ctx, caseID, cc, transcript)
}

// runIntake executes Phase 1: acknowledgment, policy validation, and
// document completeness, each role exactly once in fixed order.
func (o *Orchestrator) runIntake(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, tracer *Tracer) error {
	ctx = logging.WithPhase(ctx, PhaseIntake)
	o.observer.OnPhaseStart(ctx, caseID, PhaseIntake)
	o.appendEvent(ctx, caseID, store.EventPhaseStarted, PhaseIntake, "", nil)
	logging.LogWith(ctx, o.logger).Info("phase 1: sequential intake started")

	if content := cc.GetString(schema.KeyOriginalContent); content != "" {
		transcript.Append(schema.Message{
			Role:    schema.RoleUser,
			Content: "New claim submission:\n\n" + content,
		})
	}

	for i, role := range intakeSequence {
		msg, err := o.invokeActor(ctx, role, cc, transcript, tracer)
		if err != nil {
			return err
		}
		if i == 0 && msg != nil {
			cc[schema.KeyAckSent] = true
		}
	}
	cc[schema.KeyState] = schema.StateValidationComplete
	cc.MarkPhaseCompleted(PhaseIntake)

	logging.LogWith(ctx, o.logger).Info("phase 1 completed",
		slog.Int("missing_documents", len(cc.MissingDocuments())))
	o.appendEvent(ctx, caseID, store.EventPhaseCompleted, PhaseIntake, "", map[string]any{
		"missing_documents": cc.MissingDocuments(),
	})
	o.observer.OnPhaseEnd(ctx, caseID, PhaseIntake)
	return nil
}

// runGathering executes Phase 2: a bounded adaptive loop over the specialist
// roles. Entering with known missing items skips the loop entirely and
// attaches a PENDING handoff note instead; specialists never work on an
// under-specified case.
func (o *Orchestrator) runGathering(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, tracer *Tracer) error {
	ctx = logging.WithPhase(ctx, PhaseGathering)
	o.observer.OnPhaseStart(ctx, caseID, PhaseGathering)
	o.appendEvent(ctx, caseID, store.EventPhaseStarted, PhaseGathering, "", nil)
	defer o.observer.OnPhaseEnd(ctx, caseID, PhaseGathering)
	logging.LogWith(ctx, o.logger).Info("phase 2: adaptive gathering started")

	if cc.HasMissingItems() {
		missing := append(cc.MissingInformation(), cc.MissingDocuments()...)
		logging.LogWith(ctx, o.logger).Info("skipping phase 2: case has missing items",
			slog.Any("missing", missing))
		cc[schema.KeyHandoffPayload] = map[string]any{
			"decision": "PENDING",
			"notes":    "Awaiting required information/documents from claimant: " + strings.Join(missing, ", "),
		}
		cc.MarkPhaseCompleted(PhaseGathering)
		o.appendEvent(ctx, caseID, store.EventPhaseCompleted, PhaseGathering, "", map[string]any{
			"skipped": true,
		})
		return nil
	}

	cc[schema.KeyState] = schema.StateAdaptiveGathering
	specialists := o.registry.Specialists()
	ledger := policy.NewLedger()

	for !o.policy.ShouldTerminate(ctx, cc, ledger) {
		logging.LogWith(ctx, o.logger).Debug("gathering round",
			slog.Int("round", o.policy.Rounds()+1))

		for _, def := range specialists {
			msg, err := o.invokeActor(ctx, def.Role, cc, transcript, tracer)
			if err != nil {
				return err
			}
			ledger.Record(policy.LedgerEntry{
				ActorID:       def.Role,
				ResultSummary: summarize(msg),
				Timestamp:     time.Now(),
			})
		}
		o.policy.RecordRound()

		if o.cfg.EnableHumanInLoop && len(cc.MissingDocuments()) > 0 {
			logging.LogWith(ctx, o.logger).Info("pausing for human input",
				slog.Any("missing", cc.MissingDocuments()))
			break
		}
	}

	cc[schema.KeyState] = schema.StateDataGatheringComplete
	cc.MarkPhaseCompleted(PhaseGathering)

	logging.LogWith(ctx, o.logger).Info("phase 2 completed",
		slog.Int("rounds", o.policy.Rounds()),
		slog.Int("risk_score", cc.GetInt(schema.KeyRiskScore)))
	o.appendEvent(ctx, caseID, store.EventPhaseCompleted, PhaseGathering, "", map[string]any{
		"rounds":     o.policy.Rounds(),
		"risk_score": cc.GetInt(schema.KeyRiskScore),
	})
	return nil
}

// runDecision executes Phase 3: assessment synthesis, decision capture, and
// handoff packaging, each role exactly once in fixed order.
func (o *Orchestrator) runDecision(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, tracer *Tracer) error {
	ctx = logging.WithPhase(ctx, PhaseDecision)
	o.observer.OnPhaseStart(ctx, caseID, PhaseDecision)
	o.appendEvent(ctx, caseID, store.EventPhaseStarted, PhaseDecision, "", nil)
	logging.LogWith(ctx, o.logger).Info("phase 3: handoff decision started")

	for _, role := range decisionSequence {
		msg, err := o.invokeActor(ctx, role, cc, transcript, tracer)
		if err != nil {
			return err
		}
		if role == actors.RoleHandoffAgent && msg != nil {
			if cc.GetString(schema.KeyDecision) == schema.DecisionDeny {
				cc[schema.KeyHandoffStatus] = schema.HandoffDeniedWithReason
				cc[schema.KeyDenialPackageReady] = true
			} else {
				cc[schema.KeyHandoffStatus] = schema.HandoffReadyForSettlement
			}
		}
	}
	cc.MarkPhaseCompleted(PhaseDecision)

	logging.LogWith(ctx, o.logger).Info("phase 3 completed",
		slog.Any("decision", cc[schema.KeyDecision]),
		slog.String("handoff_status", cc.GetString(schema.KeyHandoffStatus)))
	o.appendEvent(ctx, caseID, store.EventPhaseCompleted, PhaseDecision, "", map[string]any{
		"decision":       cc[schema.KeyDecision],
		"handoff_status": cc.GetString(schema.KeyHandoffStatus),
	})
	o.observer.OnPhaseEnd(ctx, caseID, PhaseDecision)
	return nil
}

// finalize records the terminal reason, packages the result, validates any
// handoff payload, and archives the session.
func (o *Orchestrator) finalize(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript) (*schema.Result, error) {
	o.policy.ShouldTerminate(ctx, cc, nil)
	cc[schema.KeyState] = schema.StateTerminal

	result := o.policy.GatherFinalResult(ctx, cc, transcript)
	if result.HandoffPayload != nil {
		if err := o.handoff.Validate(result.HandoffPayload); err != nil {
			return nil, err
		}
	}

	if _, err := o.sessions.Save(ctx, caseID, transcript, cc, map[string]any{
		session.MetaStatus: session.StatusCompleted,
	}); err != nil {
		return nil, err
	}
	if err := o.sessions.Archive(ctx, caseID); err != nil {
		return nil, err
	}

	decidedAt := time.Now().UTC()
	summary, _ := json.Marshal(map[string]any{
		"decision":           cc.GetString(schema.KeyDecision),
		"termination_reason": result.TerminationReason,
		"rounds":             result.RoundsExecuted,
	})
	o.updateCase(ctx, caseID, store.CaseUpdate{
		Status:    statusPtr(string(result.Status)),
		Summary:   summary,
		DecidedAt: &decidedAt,
	})
	o.appendEvent(ctx, caseID, store.EventCaseDecided, "", "", map[string]any{
		"status":             string(result.Status),
		"decision":           cc.GetString(schema.KeyDecision),
		"termination_reason": result.TerminationReason,
		"rounds":             result.RoundsExecuted,
	})
	o.appendEvent(ctx, caseID, store.EventCaseArchived, "", "", nil)
	return result, nil
}

// --- Pause and failure handling ---

// shouldPause reports whether the human-in-loop pause predicate holds:
// pausing enabled, missing items present, and the case not yet reviewed.
func (o *Orchestrator) shouldPause(cc schema.Context) bool {
	return o.cfg.EnableHumanInLoop && cc.HasMissingItems() && !cc.GetBool(schema.KeyAgentReviewed)
}

func (o *Orchestrator) pause(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, phase, status string) (*schema.Result, error) {
	if _, err := o.sessions.Save(ctx, caseID, transcript.Clone(), cc.Clone(), map[string]any{
		session.MetaStatus: status,
	}); err != nil {
		return nil, err
	}

	missing := cc.MissingDocuments()
	logging.LogWith(ctx, o.logger).Info("orchestration paused",
		slog.String("after_phase", phase),
		slog.Int("missing_documents", len(missing)))
	pausedAt := time.Now().UTC()
	o.updateCase(ctx, caseID, store.CaseUpdate{
		Status:   statusPtr(store.CaseStatusPaused),
		PausedAt: &pausedAt,
	})
	o.appendEvent(ctx, caseID, store.EventCasePaused, phase, "", map[string]any{
		"status":            status,
		"missing_documents": missing,
	})
	o.observer.OnPause(ctx, caseID, phase, missing)

	return &schema.Result{
		Status:             schema.StatusPaused,
		TerminationReason:  schema.ReasonMissingDocuments,
		Context:            cc,
		Transcript:         transcript,
		RoundsExecuted:     o.policy.Rounds(),
		MissingDocuments:   missing,
		MissingInformation: cc.MissingInformation(),
		ResumeInstructions: fmt.Sprintf(
			"To resume case %s, provide the missing documents and call Resume with the case ID and the new evidence.",
			caseID),
	}, nil
}

// failureResult is the single place failures become normal return values:
// it persists a forensic snapshot so the case is never silently lost and
// returns an error-status Result.
func (o *Orchestrator) failureResult(ctx context.Context, caseID string, cc schema.Context, transcript *schema.Transcript, cause error) *schema.Result {
	logging.LogWith(ctx, o.logger).Error("orchestration failed",
		slog.Any("error", cause))

	cc[schema.KeyTerminationReason] = schema.ReasonException
	if _, err := o.sessions.Save(ctx, caseID, transcript, cc, map[string]any{
		session.MetaStatus: session.StatusError,
	}); err != nil {
		logging.LogWith(ctx, o.logger).Error("error snapshot save failed",
			slog.Any("error", err))
	}
	o.updateCase(ctx, caseID, store.CaseUpdate{Status: statusPtr(store.CaseStatusError)})
	o.appendEvent(ctx, caseID, store.EventCaseError, "", "", map[string]any{
		"error": cause.Error(),
	})

	return &schema.Result{
		Status:            schema.StatusError,
		TerminationReason: schema.ReasonException,
		Context:           cc,
		Transcript:        transcript,
		RoundsExecuted:    o.policy.Rounds(),
		Err:               cause.Error(),
	}
}

// --- Actor invocation ---

// invokeActor runs one actor against the current transcript. A non-nil
// response is appended to the transcript; a nil response means the actor had
// nothing to contribute. The configured timeout bounds the call so a hung
// invoker cannot block the case indefinitely.
func (o *Orchestrator) invokeActor(ctx context.Context, role string, cc schema.Context, transcript *schema.Transcript, tracer *Tracer) (*schema.Message, error) {
	def, ok := o.registry.Get(role)
	if !ok {
		logging.LogWith(ctx, o.logger).Debug("actor not configured", slog.String("role", role))
		return nil, nil
	}

	actx := logging.WithActorID(ctx, role)
	if o.cfg.ActorTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, o.cfg.ActorTimeout)
		defer cancel()
	}

	tracer.LogInput(def.Name, transcript)
	msg, err := o.invoker.Invoke(actx, def, cc, transcript)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "actor %s timed out after %s", role, o.cfg.ActorTimeout).
				WithCase(cc.CaseID()).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeActor, "actor %s failed: %s", role, err.Error()).
			WithCase(cc.CaseID()).WithCause(err)
	}
	if msg == nil {
		return nil, nil
	}
	if msg.Name == "" {
		msg.Name = role
	}
	transcript.Append(*msg)
	tracer.LogOutput(def.Name, msg)
	return msg, nil
}

// --- Helpers ---

// registerCase creates the registry record a case's audit events reference.
// A conflict means the case was submitted before and the record stands.
func (o *Orchestrator) registerCase(ctx context.Context, cc schema.Context) {
	if o.audit == nil {
		return
	}
	err := o.audit.CreateCase(ctx, &store.CaseRecord{
		ID:           cc.CaseID(),
		Status:       store.CaseStatusOpen,
		PolicyNumber: cc.GetString(schema.KeyPolicyNumber),
		Claimant:     cc.GetString(schema.KeyClaimant),
		ClaimType:    cc.GetString(schema.KeyClaimType),
	})
	if err != nil && !schema.IsConflict(err) {
		logging.LogWith(ctx, o.logger).Warn("case registration failed",
			slog.Any("error", err))
	}
}

func (o *Orchestrator) updateCase(ctx context.Context, caseID string, update store.CaseUpdate) {
	if o.audit == nil {
		return
	}
	if err := o.audit.UpdateCase(ctx, caseID, update); err != nil {
		logging.LogWith(ctx, o.logger).Warn("case record update failed",
			slog.Any("error", err))
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, caseID, eventType, phase, actorID string, payload map[string]any) {
	if o.audit == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	event := &store.CaseEvent{
		CaseID:  caseID,
		Type:    eventType,
		Phase:   phase,
		ActorID: actorID,
		Payload: raw,
	}
	if err := o.audit.AppendEvent(ctx, event); err != nil {
		logging.LogWith(ctx, o.logger).Warn("audit event append failed",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}
}

// mergeEvidence folds new documents and notes into the resumed context,
// shrinks the missing-item lists for every recognized evidence type, and
// appends a synthetic system message so subsequent actor invocations see
// the change in-band, not just in the context.
func (o *Orchestrator) mergeEvidence(cc schema.Context, transcript *schema.Transcript, evidence schema.Evidence) []string {
	for _, item := range evidence.Documents {
		cc[schema.KeyDocuments] = append(asList(cc[schema.KeyDocuments]), evidenceItemMap(item))
		if name := evidenceName(item); name != "" {
			cc.AppendStrings(schema.KeyEvidenceDocuments, name)
		}
	}
	for _, item := range evidence.Notes {
		cc[schema.KeyCustomerNotes] = append(asList(cc[schema.KeyCustomerNotes]), evidenceItemMap(item))
	}

	// Only types that clear an outstanding missing item count as resolved;
	// extra material the claimant attached is kept but not announced as such.
	outstanding := make(map[string]bool)
	for _, label := range cc.MissingDocuments() {
		outstanding[label] = true
	}
	for _, label := range cc.MissingInformation() {
		outstanding[label] = true
	}
	var resolved []string
	for _, t := range evidence.ResolvedTypes() {
		if outstanding[t] {
			resolved = append(resolved, t)
		}
	}
	cc.ResolveMissing(resolved...)

	if len(resolved) > 0 {
		transcript.AppendSystem(fmt.Sprintf(
			"System note: The claimant provided new evidence. Resolved items: %s.",
			strings.Join(resolved, ", ")))
	} else {
		transcript.AppendSystem("System note: The claimant provided additional material with the resume request.")
	}
	return resolved
}

func newCaseID() string {
	return "CLM-" + strings.ToUpper(uuid.NewString()[:8])
}

func statusPtr(s string) *string {
	return &s
}

func intakeSystemNote(missing []string) string {
	lines := []string{
		"System note: The intake portal did not find these referenced documents.",
		"Please instruct the customer to upload them before the claim can proceed:",
	}
	for _, doc := range missing {
		lines = append(lines, "- "+doc)
	}
	return strings.Join(lines, "\n")
}

// summarize condenses an actor response for the stall-detection ledger.
// Timestamps stay out of the summary so repeated identical responses at
// different times still compare equal.
func summarize(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	content := strings.TrimSpace(msg.Content)
	if len(content) > 240 {
		content = content[:240]
	}
	return content
}

func asList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case nil:
		return nil
	default:
		return []any{list}
	}
}

func evidenceItemMap(item schema.EvidenceItem) map[string]any {
	m := map[string]any{"type": item.Type}
	if item.Name != "" {
		m["name"] = item.Name
	}
	if item.Content != "" {
		m["content"] = item.Content
	}
	if len(item.Fields) > 0 {
		m["fields"] = item.Fields
	}
	return m
}

func evidenceName(item schema.EvidenceItem) string {
	if item.Name != "" {
		return item.Name
	}
	return item.Type
}
