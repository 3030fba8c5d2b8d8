package tools

import (
	"context"
	"math"
	"strings"

	"github.com/rendis/claimflow/internal/expressions"
	"github.com/rendis/claimflow/pkg/schema"
)

const vendorsDataset = "vendors.csv"

// DefaultPricingRule flags vendor estimates that deviate too far from the
// vendor's historical accuracy or exceed the large-loss threshold.
const DefaultPricingRule = "variance_percent > 12.0 || estimate_amount > 25000.0"

// VendorTools verifies vendor credentials and pricing for the vendor
// specialist.
type VendorTools struct {
	repo        *Repository
	engine      *expressions.ExprEngine
	pricingRule string
}

func NewVendorTools(repo *Repository, pricingRule string) *VendorTools {
	if pricingRule == "" {
		pricingRule = DefaultPricingRule
	}
	return &VendorTools{
		repo:        repo,
		engine:      expressions.NewExprEngine(),
		pricingRule: pricingRule,
	}
}

// VerifyVendorCredentials looks up a vendor by id and/or license number.
func (v *VendorTools) VerifyVendorCredentials(ctx context.Context, vendorID, licenseNumber string) (map[string]any, error) {
	rows, err := v.repo.LoadCSV(vendorsDataset)
	if err != nil {
		return nil, err
	}
	for _, rec := range rows {
		if vendorID != "" && !strings.EqualFold(rec["vendor_id"], vendorID) {
			continue
		}
		if licenseNumber != "" && !strings.EqualFold(rec["license_number"], licenseNumber) {
			continue
		}
		if vendorID == "" && licenseNumber == "" {
			continue
		}
		return map[string]any{"found": true, "vendor": rec.ToMap()}, nil
	}
	return map[string]any{
		"found":          false,
		"vendor_id":      vendorID,
		"license_number": licenseNumber,
	}, nil
}

// ValidateVendorPricing compares a vendor estimate against the vendor's
// historical accuracy. With a zero estimate only accuracy info is returned.
func (v *VendorTools) ValidateVendorPricing(ctx context.Context, vendorID string, estimateAmount float64) (map[string]any, error) {
	rows, err := v.repo.LoadCSV(vendorsDataset)
	if err != nil {
		return nil, err
	}
	var match Record
	for _, rec := range rows {
		if strings.EqualFold(rec["vendor_id"], vendorID) {
			match = rec
			break
		}
	}
	if match == nil {
		return map[string]any{"found": false, "vendor_id": vendorID}, nil
	}

	accuracy := match.Float("avg_estimate_accuracy")
	if accuracy == 0 {
		accuracy = 1.0
	}
	variancePct := math.Round(math.Abs(1-accuracy)*100*100) / 100

	flagged := false
	if estimateAmount > 0 {
		out, err := v.engine.Evaluate(ctx, v.pricingRule, map[string]any{
			"variance_percent": variancePct,
			"estimate_amount":  estimateAmount,
			"avg_accuracy":     accuracy,
		})
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeTool, "pricing rule failed").WithCause(err)
		}
		flagged, _ = out.(bool)
	}

	result := map[string]any{
		"vendor_id":             vendorID,
		"found":                 true,
		"avg_estimate_accuracy": accuracy,
		"variance_percent":      variancePct,
		"pricing_flagged":       flagged,
	}
	if estimateAmount > 0 {
		result["estimate_amount"] = estimateAmount
	}
	return result, nil
}
