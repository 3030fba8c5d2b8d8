package actors

import "github.com/rendis/claimflow/pkg/schema"

// Actor role constants. The set is closed: definitions referencing any
// other role are rejected at load time.
const (
	RoleIntakeCoordinator    = "intake_coordinator"
	RolePolicySpecialist     = "policy_specialist"
	RoleDocumentValidator    = "document_validator"
	RoleMedicalSpecialist    = "medical_specialist"
	RoleFraudAnalyst         = "fraud_analyst"
	RoleClaimsHistoryAnalyst = "claims_history_analyst"
	RoleVendorSpecialist     = "vendor_specialist"
	RoleAssessmentAgent      = "assessment_agent"
	RoleClaimsOfficer        = "claims_officer"
	RoleHandoffAgent         = "handoff_agent"
)

// SpecialistRoles lists the adaptive-gathering specialists in their
// canonical invocation order.
var SpecialistRoles = []string{
	RolePolicySpecialist,
	RoleMedicalSpecialist,
	RoleFraudAnalyst,
	RoleClaimsHistoryAnalyst,
	RoleVendorSpecialist,
}

var validRoles = map[string]bool{
	RoleIntakeCoordinator:    true,
	RolePolicySpecialist:     true,
	RoleDocumentValidator:    true,
	RoleMedicalSpecialist:    true,
	RoleFraudAnalyst:         true,
	RoleClaimsHistoryAnalyst: true,
	RoleVendorSpecialist:     true,
	RoleAssessmentAgent:      true,
	RoleClaimsOfficer:        true,
	RoleHandoffAgent:         true,
}

// ValidateRole checks that role is one of the known actor roles.
func ValidateRole(role string) error {
	if !validRoles[role] {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown actor role %q", role)
	}
	return nil
}

// IsSpecialist reports whether role participates in adaptive gathering.
func IsSpecialist(role string) bool {
	for _, r := range SpecialistRoles {
		if r == role {
			return true
		}
	}
	return false
}
