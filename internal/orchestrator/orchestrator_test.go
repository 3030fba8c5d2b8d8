package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/claimflow/internal/actors"
	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/internal/store"
	"github.com/rendis/claimflow/pkg/schema"
)

// scriptedInvoker routes invocations to per-role handlers; roles without a
// handler respond with a canned assistant message.
type scriptedInvoker struct {
	mu       sync.Mutex
	calls    []string
	handlers map[string]func(cc schema.Context, transcript *schema.Transcript) (*schema.Message, error)
}

func (s *scriptedInvoker) Invoke(_ context.Context, def actors.Definition, cc schema.Context, transcript *schema.Transcript) (*schema.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, def.Role)
	s.mu.Unlock()

	if h, ok := s.handlers[def.Role]; ok {
		return h(cc, transcript)
	}
	return &schema.Message{
		Role:    schema.RoleAssistant,
		Content: def.Role + " reviewed the claim",
		Name:    def.Role,
	}, nil
}

func (s *scriptedInvoker) called(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == role {
			n++
		}
	}
	return n
}

func (s *scriptedInvoker) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func allRoleDefinitions() []actors.Definition {
	roles := []string{
		actors.RoleIntakeCoordinator,
		actors.RolePolicySpecialist,
		actors.RoleDocumentValidator,
		actors.RoleMedicalSpecialist,
		actors.RoleFraudAnalyst,
		actors.RoleClaimsHistoryAnalyst,
		actors.RoleVendorSpecialist,
		actors.RoleAssessmentAgent,
		actors.RoleClaimsOfficer,
		actors.RoleHandoffAgent,
	}
	defs := make([]actors.Definition, 0, len(roles))
	for _, role := range roles {
		defs = append(defs, actors.Definition{Role: role, Instructions: "Act as " + role + "."})
	}
	return defs
}

type testHarness struct {
	orch     *Orchestrator
	invoker  *scriptedInvoker
	sessions *session.FileStore
	audit    *recordingAuditor
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	registry, err := actors.NewRegistry(allRoleDefinitions())
	require.NoError(t, err)

	sessions, err := session.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	invoker := &scriptedInvoker{handlers: map[string]func(schema.Context, *schema.Transcript) (*schema.Message, error){}}
	audit := &recordingAuditor{}

	orch, err := New(cfg, registry, invoker, sessions, nil, WithAuditor(audit))
	require.NoError(t, err)

	return &testHarness{orch: orch, invoker: invoker, sessions: sessions, audit: audit}
}

type recordingAuditor struct {
	mu      sync.Mutex
	events  []*store.CaseEvent
	created []*store.CaseRecord
	updates map[string][]store.CaseUpdate
}

func (r *recordingAuditor) CreateCase(_ context.Context, rec *store.CaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, rec)
	return nil
}

func (r *recordingAuditor) UpdateCase(_ context.Context, id string, update store.CaseUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updates == nil {
		r.updates = map[string][]store.CaseUpdate{}
	}
	r.updates[id] = append(r.updates[id], update)
	return nil
}

func (r *recordingAuditor) AppendEvent(_ context.Context, event *store.CaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditor) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func submission(caseID string) schema.Context {
	return schema.Context{
		schema.KeyCaseID:          caseID,
		schema.KeyPolicyNumber:    "POL-100234",
		schema.KeyOriginalContent: "Rear-end collision on highway 12, bumper damage, estimate attached.",
	}
}

// --- Process ---

func TestProcessApprovedHandoff(t *testing.T) {
	h := newTestHarness(t, Config{MaxRounds: 5, EnableHumanInLoop: true})
	h.invoker.handlers[actors.RoleFraudAnalyst] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyDecision] = schema.DecisionApprove
		cc[schema.KeyHandoffStatus] = schema.HandoffReadyForSettlement
		cc[schema.KeyDecisionConfidence] = 88
		cc[schema.KeyApprovedAmount] = 5200.0
		cc[schema.KeyDecisionRationale] = "Coverage confirmed, no fraud indicators."
		return &schema.Message{Role: schema.RoleAssistant, Content: "No fraud indicators found."}, nil
	}

	result := h.orch.Process(context.Background(), submission("CLM-1001"), nil, nil)

	assert.Equal(t, schema.StatusApproved, result.Status)
	assert.Equal(t, schema.ReasonApprovedHandoffReady, result.TerminationReason)
	assert.Equal(t, 1, result.RoundsExecuted)
	require.NotNil(t, result.HandoffPayload)
	assert.Equal(t, schema.DecisionApprove, result.HandoffPayload.Decision)
	assert.Equal(t, "CLM-1001", result.HandoffPayload.CaseID)
	assert.Equal(t, 88, result.HandoffPayload.ConfidenceScore)

	// Phase 1 ran once per role, the decision phase was skipped because the
	// terminal condition already held.
	assert.Equal(t, 1, h.invoker.called(actors.RoleIntakeCoordinator))
	assert.Equal(t, 0, h.invoker.called(actors.RoleAssessmentAgent))

	// Completed sessions are archived.
	sess, err := h.sessions.Load(context.Background(), "CLM-1001")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Metadata[session.MetaStatus])
	assert.NotEmpty(t, sess.Metadata[session.MetaArchivedAt])

	assert.Contains(t, h.audit.types(), store.EventCaseSubmitted)
	assert.Contains(t, h.audit.types(), store.EventCaseDecided)
	assert.Contains(t, h.audit.types(), store.EventCaseArchived)
}

func TestProcessPausesAfterPhase1(t *testing.T) {
	h := newTestHarness(t, Config{EnableHumanInLoop: true})
	h.invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"police_report"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Police report is missing."}, nil
	}

	result := h.orch.Process(context.Background(), submission("CLM-2002"), nil, nil)

	assert.Equal(t, schema.StatusPaused, result.Status)
	assert.Equal(t, schema.ReasonMissingDocuments, result.TerminationReason)
	assert.Equal(t, []string{"police_report"}, result.MissingDocuments)
	assert.Contains(t, result.ResumeInstructions, "CLM-2002")

	// Phase 2 and 3 never run on a paused case.
	assert.Zero(t, h.invoker.called(actors.RoleFraudAnalyst))
	assert.Zero(t, h.invoker.called(actors.RoleAssessmentAgent))

	sess, err := h.sessions.Load(context.Background(), "CLM-2002")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPausedAfterPhase1, sess.Metadata[session.MetaStatus])
	assert.True(t, sess.Context.PhaseCompleted(PhaseIntake))
}

func TestProcessSkipsGatheringWhenMissingItemsKnown(t *testing.T) {
	h := newTestHarness(t, Config{EnableHumanInLoop: false})
	h.invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"repair_estimate"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Repair estimate not on file."}, nil
	}

	result := h.orch.Process(context.Background(), submission("CLM-3003"), nil, nil)

	// Specialists never work on an under-specified case.
	assert.Zero(t, h.invoker.called(actors.RoleFraudAnalyst))
	assert.Zero(t, h.invoker.called(actors.RoleVendorSpecialist))

	payload, ok := result.Context[schema.KeyHandoffPayload].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PENDING", payload["decision"])
	assert.Contains(t, payload["notes"], "repair_estimate")

	// With pausing disabled the decision phase still runs.
	assert.Equal(t, 1, h.invoker.called(actors.RoleAssessmentAgent))
	assert.Equal(t, 1, h.invoker.called(actors.RoleClaimsOfficer))
}

func TestProcessTimesOutAfterMaxRounds(t *testing.T) {
	h := newTestHarness(t, Config{MaxRounds: 2, EnableHumanInLoop: true})
	var n int
	for _, role := range actors.SpecialistRoles {
		role := role
		h.invoker.handlers[role] = func(_ schema.Context, _ *schema.Transcript) (*schema.Message, error) {
			n++
			return &schema.Message{Role: schema.RoleAssistant, Content: fmt.Sprintf("%s update %d", role, n)}, nil
		}
	}

	result := h.orch.Process(context.Background(), submission("CLM-4004"), nil, nil)

	assert.Equal(t, schema.StatusTimeout, result.Status)
	assert.Equal(t, schema.ReasonMaxRoundsExceeded, result.TerminationReason)
	assert.Equal(t, 2, result.RoundsExecuted)
	assert.Equal(t, 2, h.invoker.called(actors.RoleFraudAnalyst))
	assert.Zero(t, h.invoker.called(actors.RoleAssessmentAgent))
}

func TestProcessStallsOnRepeatedResponses(t *testing.T) {
	// The default canned responses never change, so the ledger state repeats
	// and stall detection fires before the round budget is spent.
	h := newTestHarness(t, Config{MaxRounds: 10, StallThreshold: 3, EnableHumanInLoop: true})

	result := h.orch.Process(context.Background(), submission("CLM-5005"), nil, nil)

	assert.Equal(t, schema.StatusStalled, result.Status)
	assert.Equal(t, schema.ReasonStalled, result.TerminationReason)
	assert.Less(t, result.RoundsExecuted, 10)
}

func TestProcessActorFailureReturnsErrorResult(t *testing.T) {
	h := newTestHarness(t, Config{EnableHumanInLoop: true})
	h.invoker.handlers[actors.RolePolicySpecialist] = func(_ schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		return nil, fmt.Errorf("model backend unavailable")
	}

	result := h.orch.Process(context.Background(), submission("CLM-6006"), nil, nil)

	assert.Equal(t, schema.StatusError, result.Status)
	assert.Equal(t, schema.ReasonException, result.TerminationReason)
	assert.Contains(t, result.Err, "model backend unavailable")

	// Forensic snapshot is persisted so the case is never silently lost.
	sess, err := h.sessions.Load(context.Background(), "CLM-6006")
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, sess.Metadata[session.MetaStatus])
	assert.Contains(t, h.audit.types(), store.EventCaseError)
}

func TestProcessGeneratesCaseIDWhenAbsent(t *testing.T) {
	h := newTestHarness(t, Config{EnableHumanInLoop: true})
	h.invoker.handlers[actors.RoleFraudAnalyst] = approveHandler()

	result := h.orch.Process(context.Background(), schema.Context{
		schema.KeyPolicyNumber: "POL-100234",
	}, nil, nil)

	caseID := result.Context.CaseID()
	assert.True(t, strings.HasPrefix(caseID, "CLM-"))
	assert.Len(t, caseID, len("CLM-")+8)
}

func TestProcessWritesTraceFile(t *testing.T) {
	traceDir := t.TempDir()
	h := newTestHarness(t, Config{EnableHumanInLoop: true, TraceDir: traceDir})
	h.invoker.handlers[actors.RoleFraudAnalyst] = approveHandler()

	h.orch.Process(context.Background(), submission("CLM-7007"), nil, nil)

	raw, err := os.ReadFile(filepath.Join(traceDir, "CLM-7007_trace.txt"))
	require.NoError(t, err)
	trace := string(raw)
	assert.Contains(t, trace, "Case ID: CLM-7007")
	assert.Contains(t, trace, "INPUT")
	assert.Contains(t, trace, "OUTPUT")
}

// --- Resume ---

func TestResumeNotFound(t *testing.T) {
	h := newTestHarness(t, Config{EnableHumanInLoop: true})

	result, err := h.orch.Resume(context.Background(), "CLM-MISSING", nil)

	assert.Nil(t, result)
	assert.True(t, schema.IsNotFound(err))
}

func TestResumeMergesEvidenceAndCompletes(t *testing.T) {
	h := newTestHarness(t, Config{MaxRounds: 5, EnableHumanInLoop: true})
	h.invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"police_report"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Police report is missing."}, nil
	}
	h.invoker.handlers[actors.RoleFraudAnalyst] = approveHandler()

	paused := h.orch.Process(context.Background(), submission("CLM-8008"), nil, nil)
	require.Equal(t, schema.StatusPaused, paused.Status)
	h.invoker.resetCalls()

	result, err := h.orch.Resume(context.Background(), "CLM-8008", &schema.Evidence{
		Documents: []schema.EvidenceItem{{Type: "police_report", Name: "report_4451.pdf"}},
	})
	require.NoError(t, err)

	assert.Equal(t, schema.StatusApproved, result.Status)
	assert.Empty(t, result.Context.MissingDocuments())
	assert.Contains(t, result.Context.GetStrings(schema.KeyEvidenceDocuments), "report_4451.pdf")

	// Completed phases are not re-run on resume.
	assert.Zero(t, h.invoker.called(actors.RoleIntakeCoordinator))
	assert.Zero(t, h.invoker.called(actors.RoleDocumentValidator))
	assert.Equal(t, 1, h.invoker.called(actors.RoleFraudAnalyst))

	// The evidence merge is visible in-band to subsequent actors.
	var foundNote bool
	for _, msg := range result.Transcript.Messages() {
		if msg.Role == schema.RoleSystem && strings.Contains(msg.Content, "police_report") &&
			strings.Contains(msg.Content, "Resolved") {
			foundNote = true
		}
	}
	assert.True(t, foundNote, "expected a synthetic system message naming the resolved items")
}

func TestResumeWithoutEvidencePausesAgain(t *testing.T) {
	h := newTestHarness(t, Config{EnableHumanInLoop: true})
	h.invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"police_report"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Police report is missing."}, nil
	}

	paused := h.orch.Process(context.Background(), submission("CLM-9009"), nil, nil)
	require.Equal(t, schema.StatusPaused, paused.Status)

	result, err := h.orch.Resume(context.Background(), "CLM-9009", nil)
	require.NoError(t, err)

	// Nothing was resolved, so the pause predicate still holds.
	assert.Equal(t, schema.StatusPaused, result.Status)
	assert.Equal(t, []string{"police_report"}, result.MissingDocuments)
}

func TestResumeNoteNamesOnlyOutstandingItems(t *testing.T) {
	h := newTestHarness(t, Config{MaxRounds: 5, EnableHumanInLoop: true})
	h.invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"police_report"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Police report is missing."}, nil
	}
	h.invoker.handlers[actors.RoleFraudAnalyst] = approveHandler()

	paused := h.orch.Process(context.Background(), submission("CLM-8010"), nil, nil)
	require.Equal(t, schema.StatusPaused, paused.Status)

	// The claimant sends the missing report plus an unrequested receipt.
	result, err := h.orch.Resume(context.Background(), "CLM-8010", &schema.Evidence{
		Documents: []schema.EvidenceItem{
			{Type: "police_report", Name: "report_4451.pdf"},
			{Type: "towing_receipt", Name: "receipt_0091.pdf"},
		},
	})
	require.NoError(t, err)

	var note string
	for _, msg := range result.Transcript.Messages() {
		if msg.Role == schema.RoleSystem && strings.Contains(msg.Content, "Resolved") {
			note = msg.Content
		}
	}
	require.NotEmpty(t, note, "expected a resolved-items system message")
	assert.Contains(t, note, "police_report")
	assert.NotContains(t, note, "towing_receipt")

	// The extra material is still attached to the case.
	assert.Contains(t, result.Context.GetStrings(schema.KeyEvidenceDocuments), "receipt_0091.pdf")
}

// --- Case registry ---

// newRegistryHarness backs the orchestrator's auditor with a real store so
// the lifecycle tests exercise the same path production wiring does, with
// no rows seeded up front.
func newRegistryHarness(t *testing.T, cfg Config) (*Orchestrator, *scriptedInvoker, *store.LibSQLStore) {
	t.Helper()

	registry, err := actors.NewRegistry(allRoleDefinitions())
	require.NoError(t, err)
	sessions, err := session.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	db, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	invoker := &scriptedInvoker{handlers: map[string]func(schema.Context, *schema.Transcript) (*schema.Message, error){}}
	orch, err := New(cfg, registry, invoker, sessions, nil, WithAuditor(db))
	require.NoError(t, err)
	return orch, invoker, db
}

func TestProcessRecordsCaseLifecycle(t *testing.T) {
	orch, invoker, db := newRegistryHarness(t, Config{MaxRounds: 5, EnableHumanInLoop: true})
	invoker.handlers[actors.RoleFraudAnalyst] = approveHandler()
	ctx := context.Background()

	result := orch.Process(ctx, schema.Context{
		schema.KeyCaseID:          "CLM-7100",
		schema.KeyPolicyNumber:    "POL-100234",
		schema.KeyClaimant:        "Jordan Ellis",
		schema.KeyClaimType:       "auto",
		schema.KeyOriginalContent: "Rear-end collision, bumper damage.",
	}, nil, nil)
	require.Equal(t, schema.StatusApproved, result.Status)

	rec, err := db.GetCase(ctx, "CLM-7100")
	require.NoError(t, err)
	assert.Equal(t, "approved", rec.Status)
	assert.Equal(t, "POL-100234", rec.PolicyNumber)
	assert.Equal(t, "Jordan Ellis", rec.Claimant)
	require.NotNil(t, rec.DecidedAt)
	assert.Contains(t, string(rec.Summary), schema.DecisionApprove)

	// Every audit event landed despite the foreign key on case_events.
	events, err := db.GetEvents(ctx, "CLM-7100", 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, store.EventCaseSubmitted, events[0].Type)

	tl, err := store.NewEventLog(db).ReplayTimeline(ctx, "CLM-7100")
	require.NoError(t, err)
	assert.True(t, tl.Decided)
	assert.Equal(t, schema.DecisionApprove, tl.Decision)
}

func TestProcessRecordsPausedCase(t *testing.T) {
	orch, invoker, db := newRegistryHarness(t, Config{EnableHumanInLoop: true})
	invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"police_report"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Police report is missing."}, nil
	}
	ctx := context.Background()

	result := orch.Process(ctx, submission("CLM-7200"), nil, nil)
	require.Equal(t, schema.StatusPaused, result.Status)

	rec, err := db.GetCase(ctx, "CLM-7200")
	require.NoError(t, err)
	assert.Equal(t, store.CaseStatusPaused, rec.Status)
	assert.NotNil(t, rec.PausedAt)

	tl, err := store.NewEventLog(db).ReplayTimeline(ctx, "CLM-7200")
	require.NoError(t, err)
	assert.Equal(t, 1, tl.PauseCount)
	assert.False(t, tl.Decided)
}

func TestResumeReopensCaseRecord(t *testing.T) {
	orch, invoker, db := newRegistryHarness(t, Config{MaxRounds: 5, EnableHumanInLoop: true})
	invoker.handlers[actors.RoleDocumentValidator] = func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyMissingDocuments] = []string{"police_report"}
		return &schema.Message{Role: schema.RoleAssistant, Content: "Police report is missing."}, nil
	}
	invoker.handlers[actors.RoleFraudAnalyst] = approveHandler()
	ctx := context.Background()

	paused := orch.Process(ctx, submission("CLM-7300"), nil, nil)
	require.Equal(t, schema.StatusPaused, paused.Status)

	result, err := orch.Resume(ctx, "CLM-7300", &schema.Evidence{
		Documents: []schema.EvidenceItem{{Type: "police_report", Name: "report_4451.pdf"}},
	})
	require.NoError(t, err)
	require.Equal(t, schema.StatusApproved, result.Status)

	rec, err := db.GetCase(ctx, "CLM-7300")
	require.NoError(t, err)
	assert.Equal(t, "approved", rec.Status)

	tl, err := store.NewEventLog(db).ReplayTimeline(ctx, "CLM-7300")
	require.NoError(t, err)
	assert.Equal(t, 1, tl.Resumed)
	assert.True(t, tl.Decided)
}

// --- Construction ---

func TestNewRejectsIncompleteRegistry(t *testing.T) {
	defs := []actors.Definition{
		{Role: actors.RoleIntakeCoordinator, Instructions: "Acknowledge the claim."},
	}
	registry, err := actors.NewRegistry(defs)
	require.NoError(t, err)
	sessions, err := session.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	invoker := &scriptedInvoker{}
	_, err = New(Config{}, registry, invoker, sessions, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required role")
}

func approveHandler() func(schema.Context, *schema.Transcript) (*schema.Message, error) {
	return func(cc schema.Context, _ *schema.Transcript) (*schema.Message, error) {
		cc[schema.KeyDecision] = schema.DecisionApprove
		cc[schema.KeyHandoffStatus] = schema.HandoffReadyForSettlement
		cc[schema.KeyDecisionConfidence] = 90
		cc[schema.KeyApprovedAmount] = 4100.0
		cc[schema.KeyDecisionRationale] = "Covered loss, documentation complete."
		return &schema.Message{Role: schema.RoleAssistant, Content: "Approved for settlement."}, nil
	}
}
