package tools

import (
	"context"
	"time"
)

const historyDataset = "historical/claims_history.csv"

// HistoryTools answers prior-claim lookups for the claims history analyst.
type HistoryTools struct {
	repo *Repository
	now  func() time.Time
}

func NewHistoryTools(repo *Repository) *HistoryTools {
	return &HistoryTools{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// LookupClaimsHistory fetches prior claims for a customer, optionally
// narrowed to one policy.
func (h *HistoryTools) LookupClaimsHistory(ctx context.Context, customerID, policyNumber string) (map[string]any, error) {
	rows, err := h.repo.LoadCSV(historyDataset)
	if err != nil {
		return nil, err
	}
	claims := []map[string]any{}
	for _, rec := range rows {
		if rec["customer_id"] != customerID {
			continue
		}
		if policyNumber != "" && rec["policy_number"] != policyNumber {
			continue
		}
		claims = append(claims, rec.ToMap())
	}
	return map[string]any{
		"customer_id":   customerID,
		"policy_number": policyNumber,
		"claim_count":   len(claims),
		"claims":        claims,
	}, nil
}

// CalculateFrequencyMetrics computes claim frequency over a rolling
// lookback window in months.
func (h *HistoryTools) CalculateFrequencyMetrics(ctx context.Context, customerID string, lookbackMonths int) (map[string]any, error) {
	if lookbackMonths <= 0 {
		lookbackMonths = 24
	}
	rows, err := h.repo.LoadCSV(historyDataset)
	if err != nil {
		return nil, err
	}

	cutoff := h.now().AddDate(0, 0, -30*lookbackMonths)
	recent := 0
	var totalDays float64
	for _, rec := range rows {
		if rec["customer_id"] != customerID {
			continue
		}
		incident := parseDate(rec["incident_date"])
		if incident.IsZero() || incident.Before(cutoff) {
			continue
		}
		recent++
		totalDays += rec.Float("processing_days")
	}

	avg := 0.0
	if recent > 0 {
		avg = totalDays / float64(recent)
	}
	return map[string]any{
		"customer_id":             customerID,
		"lookback_months":         lookbackMonths,
		"recent_claims":           recent,
		"average_processing_days": avg,
	}, nil
}
