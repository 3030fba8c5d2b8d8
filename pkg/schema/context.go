package schema

// Case lifecycle states tracked under KeyState.
const (
	StateIntake                = "intake"
	StateValidationComplete    = "validation_complete"
	StateAdaptiveGathering     = "adaptive_gathering"
	StateDataGatheringComplete = "data_gathering_complete"
	StateTerminal              = "terminal"
)

// Decision values tracked under KeyDecision.
const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
)

// Handoff statuses tracked under KeyHandoffStatus.
const (
	HandoffPending            = "pending"
	HandoffReadyForSettlement = "ready_for_settlement"
	HandoffDeniedWithReason   = "denied_with_reason"
)

// Well-known context keys. Actors communicate results by writing these keys;
// the orchestrator and termination policy read them. This is a side-effect
// contract, not a return value.
const (
	KeyCaseID             = "case_id"
	KeyState              = "state"
	KeyMissingDocuments   = "missing_documents"
	KeyMissingInformation = "missing_information"
	KeyRiskScore          = "risk_score"
	KeyDecision           = "decision"
	KeyDecisionConfidence = "decision_confidence"
	KeyHandoffStatus      = "handoff_status"
	KeyTerminationReason  = "termination_reason"
	KeySLABreached        = "sla_breached"
	KeyAgentReviewed      = "agent_reviewed"
	KeyDenialPackageReady = "denial_package_ready"
	KeyAckSent            = "ack_sent"
	KeyInfoRequestSent    = "info_request_sent"
	KeyDocuments          = "documents"
	KeyCustomerNotes      = "customer_notes"
	KeyHandoffPayload     = "handoff_payload"
	KeyCompletedPhases    = "completed_phases"
	KeyFraudIndicators    = "fraud_indicators"
	KeyApprovedAmount     = "approved_amount"
	KeyDecisionRationale  = "decision_rationale"
	KeyEvidenceDocuments  = "evidence_documents"
	KeyDenialReason       = "denial_reason"
	KeyAdjusterID         = "adjuster_id"
	KeyDecisionTimestamp  = "decision_timestamp"
	KeyPolicyNumber       = "policy_number"
	KeyClaimant           = "claimant"
	KeyClaimType          = "claim_type"
	KeyOriginalContent    = "original_content"
)

// Context is the mutable key/value state bag shared across all actor
// invocations of a case. Values must stay JSON-compatible; the session
// store coerces anything else to a string on save.
type Context map[string]any

// NewContext returns a Context pre-populated with the orchestration defaults.
// Case-specific submission data and any resumed context are merged on top.
func NewContext() Context {
	return Context{
		KeyState:              StateIntake,
		KeyMissingDocuments:   []string{},
		KeyMissingInformation: []string{},
		KeyRiskScore:          0,
		KeyFraudIndicators:    []string{},
		KeyDecision:           nil,
		KeyDecisionConfidence: 0,
		KeyAckSent:            false,
		KeyInfoRequestSent:    false,
		KeySLABreached:        false,
		KeyAgentReviewed:      false,
		KeyHandoffStatus:      HandoffPending,
		KeyDenialPackageReady: false,
	}
}

// Merge copies every entry of other into c, with one exception: an already
// set case_id is never overwritten.
func (c Context) Merge(other Context) {
	for k, v := range other {
		if k == KeyCaseID && c.CaseID() != "" {
			continue
		}
		c[k] = v
	}
}

// Clone returns a shallow copy. Nested values are shared; callers that hand
// a clone to the session store must not mutate nested values afterwards.
func (c Context) Clone() Context {
	cp := make(Context, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// CaseID returns the case identifier, or "" if unset.
func (c Context) CaseID() string {
	return c.GetString(KeyCaseID)
}

// GetString returns the value at key as a string, or "" when absent or not
// a string.
func (c Context) GetString(key string) string {
	s, _ := c[key].(string)
	return s
}

// GetBool returns the value at key as a bool, or false when absent.
func (c Context) GetBool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// GetInt returns the value at key as an int. JSON round-trips store numbers
// as float64, so both forms are accepted.
func (c Context) GetInt(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GetStrings returns the value at key as a string slice. JSON round-trips
// store lists as []any, so both forms are accepted. Non-string elements and
// empty labels are dropped.
func (c Context) GetStrings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AppendStrings appends items to the string list at key, preserving order.
func (c Context) AppendStrings(key string, items ...string) {
	c[key] = append(c.GetStrings(key), items...)
}

// MissingDocuments returns the pending document labels.
func (c Context) MissingDocuments() []string {
	return c.GetStrings(KeyMissingDocuments)
}

// MissingInformation returns the pending information labels.
func (c Context) MissingInformation() []string {
	return c.GetStrings(KeyMissingInformation)
}

// HasMissingItems reports whether any documents or information are pending.
func (c Context) HasMissingItems() bool {
	return len(c.MissingDocuments()) > 0 || len(c.MissingInformation()) > 0
}

// ResolveMissing removes the given labels from both missing-item lists.
// This is the only sanctioned way the lists shrink: an explicit evidence
// merge, never a silent drop.
func (c Context) ResolveMissing(labels ...string) {
	if len(labels) == 0 {
		return
	}
	resolved := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		resolved[l] = struct{}{}
	}
	filter := func(key string) {
		kept := make([]string, 0)
		for _, item := range c.GetStrings(key) {
			if _, ok := resolved[item]; !ok {
				kept = append(kept, item)
			}
		}
		c[key] = kept
	}
	filter(KeyMissingDocuments)
	filter(KeyMissingInformation)
}

// PhaseCompleted reports whether the named phase is recorded as completed.
func (c Context) PhaseCompleted(phase string) bool {
	for _, p := range c.GetStrings(KeyCompletedPhases) {
		if p == phase {
			return true
		}
	}
	return false
}

// MarkPhaseCompleted records the named phase as completed (idempotent).
func (c Context) MarkPhaseCompleted(phase string) {
	if !c.PhaseCompleted(phase) {
		c.AppendStrings(KeyCompletedPhases, phase)
	}
}
