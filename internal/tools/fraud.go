package tools

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/rendis/claimflow/internal/expressions"
	"github.com/rendis/claimflow/pkg/schema"
)

const blacklistDataset = "risk/blacklist.csv"

// RiskRule is a named boolean expression evaluated against fraud signals.
type RiskRule struct {
	Name       string
	Expression string
}

// DefaultRiskRules are the built-in fraud screens applied when no custom
// rules are configured.
var DefaultRiskRules = []RiskRule{
	{Name: "blacklisted_entity", Expression: "blacklist_matches > 0"},
	{Name: "duplicate_filing", Expression: "duplicate_count > 0"},
	{Name: "frequent_claimant", Expression: "recent_claims >= 3"},
}

// FraudTools screens claims against the blacklist, duplicate filings, and
// configurable risk rules.
type FraudTools struct {
	repo    *Repository
	history *HistoryTools
	engine  *expressions.ExprEngine
	rules   []RiskRule
	logger  *slog.Logger
}

func NewFraudTools(repo *Repository, history *HistoryTools, rules []RiskRule, logger *slog.Logger) *FraudTools {
	if len(rules) == 0 {
		rules = DefaultRiskRules
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FraudTools{
		repo:    repo,
		history: history,
		engine:  expressions.NewExprEngine(),
		rules:   rules,
		logger:  logger,
	}
}

// CheckBlacklist matches entities against the internal blacklist. Empty
// filters are ignored; provided filters are combined with AND.
func (f *FraudTools) CheckBlacklist(ctx context.Context, entityID, taxID, licenseNumber string) (map[string]any, error) {
	rows, err := f.repo.LoadCSV(blacklistDataset)
	if err != nil {
		return nil, err
	}
	matches := []map[string]any{}
	for _, rec := range rows {
		if entityID != "" && !strings.EqualFold(rec["entity_id"], entityID) {
			continue
		}
		if taxID != "" && !strings.EqualFold(rec["tax_id"], taxID) {
			continue
		}
		if licenseNumber != "" && !strings.EqualFold(rec["license_number"], licenseNumber) {
			continue
		}
		matches = append(matches, rec.ToMap())
	}
	return map[string]any{
		"match_count": len(matches),
		"matches":     matches,
	}, nil
}

// DetectDuplicateClaims finds prior claims on the same policy filed within
// windowDays of the incident date.
func (f *FraudTools) DetectDuplicateClaims(ctx context.Context, policyNumber, incidentDate string, windowDays int) (map[string]any, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	incident := parseDate(incidentDate)
	if incident.IsZero() {
		return map[string]any{
			"policy_number":   policyNumber,
			"incident_date":   incidentDate,
			"duplicates":      []map[string]any{},
			"duplicate_count": 0,
		}, nil
	}

	rows, err := f.repo.LoadCSV(historyDataset)
	if err != nil {
		return nil, err
	}
	duplicates := []map[string]any{}
	for _, rec := range rows {
		if rec["policy_number"] != policyNumber {
			continue
		}
		past := parseDate(rec["incident_date"])
		if past.IsZero() {
			continue
		}
		days := math.Abs(incident.Sub(past).Hours() / 24)
		if days <= float64(windowDays) {
			duplicates = append(duplicates, rec.ToMap())
		}
	}
	return map[string]any{
		"policy_number":   policyNumber,
		"incident_date":   incidentDate,
		"window_days":     windowDays,
		"duplicate_count": len(duplicates),
		"duplicates":      duplicates,
	}, nil
}

// EvaluateRiskRules runs the configured risk rules against the gathered
// fraud signals and returns the names of the rules that fired.
func (f *FraudTools) EvaluateRiskRules(ctx context.Context, signals map[string]any) ([]string, error) {
	var fired []string
	for _, rule := range f.rules {
		out, err := f.engine.Evaluate(ctx, rule.Expression, signals)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTool, "risk rule %q failed", rule.Name).WithCause(err)
		}
		hit, ok := out.(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"risk rule %q must evaluate to a boolean, got %T", rule.Name, out)
		}
		if hit {
			f.logger.Debug("risk rule fired", slog.String("rule", rule.Name))
			fired = append(fired, rule.Name)
		}
	}
	return fired, nil
}
