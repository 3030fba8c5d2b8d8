package tools

import (
	"context"
	"strings"
	"time"
)

const (
	policiesDataset = "policies.csv"
	coverageDataset = "coverage_matrix.csv"
)

// PolicyTools answers policy lookups and coverage questions for the
// policy specialist.
type PolicyTools struct {
	repo *Repository
}

func NewPolicyTools(repo *Repository) *PolicyTools {
	return &PolicyTools{repo: repo}
}

// LookupPolicyDetails returns stored metadata for a policy number.
func (p *PolicyTools) LookupPolicyDetails(ctx context.Context, policyNumber string) (map[string]any, error) {
	rows, err := p.repo.LoadCSV(policiesDataset)
	if err != nil {
		return nil, err
	}
	for _, rec := range rows {
		if rec["policy_number"] == policyNumber {
			return map[string]any{"found": true, "policy": rec.ToMap()}, nil
		}
	}
	return map[string]any{"found": false, "policy_number": policyNumber}, nil
}

// ValidatePolicyStatus checks that the policy covers the incident date.
// An unparseable or empty incident date falls back to the current time.
func (p *PolicyTools) ValidatePolicyStatus(ctx context.Context, policyNumber, incidentDate string) (map[string]any, error) {
	rows, err := p.repo.LoadCSV(policiesDataset)
	if err != nil {
		return nil, err
	}
	var match Record
	for _, rec := range rows {
		if rec["policy_number"] == policyNumber {
			match = rec
			break
		}
	}
	if match == nil {
		return map[string]any{
			"policy_number": policyNumber,
			"active":        false,
			"reason":        "policy_not_found",
		}, nil
	}

	effective := parseDate(match["effective_date"])
	expiration := parseDate(match["expiration_date"])
	incident := parseDate(incidentDate)
	if incident.IsZero() {
		incident = time.Now().UTC()
	}
	active := !effective.IsZero() && !expiration.IsZero() &&
		!incident.Before(effective) && !incident.After(expiration)

	return map[string]any{
		"policy_number":   policyNumber,
		"status":          match["status"],
		"active":          active,
		"effective_date":  match["effective_date"],
		"expiration_date": match["expiration_date"],
		"policy_type":     match["policy_type"],
		"tier":            match["tier"],
	}, nil
}

// CheckCoverageMatrix returns deductible, limits, and exclusions for a
// policy tier and claim type.
func (p *PolicyTools) CheckCoverageMatrix(ctx context.Context, policyTier, claimType string) (map[string]any, error) {
	rows, err := p.repo.LoadCSV(coverageDataset)
	if err != nil {
		return nil, err
	}
	for _, rec := range rows {
		if strings.EqualFold(rec["policy_tier"], policyTier) && strings.EqualFold(rec["claim_type"], claimType) {
			return map[string]any{
				"policy_tier": policyTier,
				"claim_type":  claimType,
				"found":       true,
				"coverage":    rec.ToMap(),
			}, nil
		}
	}
	return map[string]any{
		"policy_tier": policyTier,
		"claim_type":  claimType,
		"found":       false,
	}, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"January 2, 2006",
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
