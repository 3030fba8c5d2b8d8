package schema

// Status is the terminal (or suspended) outcome of a case run.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusStalled  Status = "stalled"
	StatusTimeout  Status = "timeout"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
	StatusUnknown  Status = "unknown"
)

// Termination reasons recorded in the context by the termination policy.
// Ordered here by evaluation priority; first match wins.
const (
	ReasonApprovedHandoffReady = "approved_handoff_ready"
	ReasonDeniedManual         = "denied_manual"
	ReasonDeniedSLABreach      = "denied_sla_breach"
	ReasonStalled              = "stalled"
	ReasonMaxRoundsExceeded    = "max_rounds_exceeded"
	ReasonHumanInLoopRequired  = "human_in_loop_required"
	ReasonMissingDocuments     = "missing_documents"
	ReasonException            = "exception"
)

// StatusForReason maps a termination reason to its result status.
func StatusForReason(reason string) Status {
	switch reason {
	case ReasonApprovedHandoffReady:
		return StatusApproved
	case ReasonDeniedManual, ReasonDeniedSLABreach:
		return StatusDenied
	case ReasonStalled:
		return StatusStalled
	case ReasonMaxRoundsExceeded:
		return StatusTimeout
	case ReasonHumanInLoopRequired:
		return StatusPaused
	default:
		return StatusUnknown
	}
}

// HandoffPayload is the structured settlement or denial package produced
// once a terminal decision is reached.
type HandoffPayload struct {
	CaseID            string   `json:"case_id"`
	Decision          string   `json:"decision"`
	PayoutAmount      any      `json:"payout_amount,omitempty"`
	AdjusterID        string   `json:"adjuster_id,omitempty"`
	DecisionTimestamp string   `json:"decision_timestamp,omitempty"`
	ConfidenceScore   int      `json:"confidence_score"`
	FraudRisk         int      `json:"fraud_risk"`
	Rationale         string   `json:"rationale"`
	Attachments       []string `json:"attachments"`
	DenialReason      string   `json:"denial_reason,omitempty"`
}

// Result is the structured outcome callers always receive from Process and
// Resume. Process never raises past its boundary; failures arrive here with
// StatusError and Err set.
type Result struct {
	Status             Status          `json:"status"`
	TerminationReason  string          `json:"termination_reason"`
	Context            Context         `json:"context"`
	Transcript         *Transcript     `json:"-"`
	RoundsExecuted     int             `json:"rounds_executed"`
	HandoffPayload     *HandoffPayload `json:"handoff_payload,omitempty"`
	MissingDocuments   []string        `json:"missing_documents,omitempty"`
	MissingInformation []string        `json:"missing_information,omitempty"`
	ResumeInstructions string          `json:"resume_instructions,omitempty"`
	Err                string          `json:"error,omitempty"`
}
