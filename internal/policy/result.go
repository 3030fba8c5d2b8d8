package policy

import (
	"context"
	"log/slog"

	"github.com/rendis/claimflow/internal/logging"
	"github.com/rendis/claimflow/pkg/schema"
)

// GatherFinalResult packages the terminal result for a case based on the
// termination reason recorded in the context. Approved and denied outcomes
// carry a handoff payload for downstream settlement systems.
func (p *Policy) GatherFinalResult(ctx context.Context, cc schema.Context, transcript *schema.Transcript) *schema.Result {
	reason := cc.GetString(schema.KeyTerminationReason)
	status := schema.StatusForReason(reason)

	result := &schema.Result{
		Status:            status,
		TerminationReason: reason,
		Context:           cc,
		Transcript:        transcript,
		RoundsExecuted:    p.roundCounter,
	}

	switch status {
	case schema.StatusApproved:
		result.HandoffPayload = buildSettlementPayload(cc)
	case schema.StatusDenied:
		result.HandoffPayload = buildDenialPayload(cc)
	}

	logging.LogWith(ctx, p.logger).Info("final result gathered",
		slog.String("status", string(status)),
		slog.String("termination_reason", reason),
		slog.Int("rounds", p.roundCounter),
	)

	return result
}

// buildSettlementPayload assembles the approval handoff package from the
// context keys the decision actors write.
func buildSettlementPayload(cc schema.Context) *schema.HandoffPayload {
	return &schema.HandoffPayload{
		CaseID:            cc.CaseID(),
		Decision:          schema.DecisionApprove,
		PayoutAmount:      cc[schema.KeyApprovedAmount],
		AdjusterID:        cc.GetString(schema.KeyAdjusterID),
		DecisionTimestamp: cc.GetString(schema.KeyDecisionTimestamp),
		ConfidenceScore:   cc.GetInt(schema.KeyDecisionConfidence),
		FraudRisk:         cc.GetInt(schema.KeyRiskScore),
		Rationale:         cc.GetString(schema.KeyDecisionRationale),
		Attachments:       attachments(cc),
	}
}

// buildDenialPayload assembles the denial handoff package. An SLA breach
// overrides the recorded denial reason with "other" and a fixed rationale.
func buildDenialPayload(cc schema.Context) *schema.HandoffPayload {
	denialReason := cc.GetString(schema.KeyDenialReason)
	rationale := cc.GetString(schema.KeyDecisionRationale)
	if cc.GetBool(schema.KeySLABreached) {
		denialReason = "other"
		rationale = "Claim denied due to SLA breach (timeout)"
	} else if denialReason == "" {
		denialReason = "other"
	}

	return &schema.HandoffPayload{
		CaseID:            cc.CaseID(),
		Decision:          schema.DecisionDeny,
		AdjusterID:        cc.GetString(schema.KeyAdjusterID),
		DecisionTimestamp: cc.GetString(schema.KeyDecisionTimestamp),
		ConfidenceScore:   cc.GetInt(schema.KeyDecisionConfidence),
		FraudRisk:         cc.GetInt(schema.KeyRiskScore),
		Rationale:         rationale,
		Attachments:       attachments(cc),
		DenialReason:      denialReason,
	}
}

func attachments(cc schema.Context) []string {
	docs := cc.GetStrings(schema.KeyEvidenceDocuments)
	if docs == nil {
		docs = []string{}
	}
	return docs
}
