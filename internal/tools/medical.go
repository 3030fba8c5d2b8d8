package tools

import (
	"context"
	"strings"
)

const medicalCodesDataset = "external/medical_codes.csv"

// MedicalTools validates medical codes and provider credentials for the
// medical specialist.
type MedicalTools struct {
	repo    *Repository
	vendors *VendorTools
}

func NewMedicalTools(repo *Repository, vendors *VendorTools) *MedicalTools {
	return &MedicalTools{repo: repo, vendors: vendors}
}

// ValidateMedicalCode checks an ICD-10 code against the reference table.
func (m *MedicalTools) ValidateMedicalCode(ctx context.Context, code string) (map[string]any, error) {
	rows, err := m.repo.LoadCSV(medicalCodesDataset)
	if err != nil {
		return nil, err
	}
	for _, rec := range rows {
		if strings.EqualFold(rec["icd10_code"], code) {
			return map[string]any{"code": code, "valid": true, "details": rec.ToMap()}, nil
		}
	}
	return map[string]any{"code": code, "valid": false}, nil
}

// VerifyProviderCredentials verifies a medical provider through the vendor
// registry, warning when the license belongs to a non-medical vendor.
func (m *MedicalTools) VerifyProviderCredentials(ctx context.Context, licenseNumber string) (map[string]any, error) {
	result, err := m.vendors.VerifyVendorCredentials(ctx, "", licenseNumber)
	if err != nil {
		return nil, err
	}
	found, _ := result["found"].(bool)
	if !found {
		return map[string]any{"license_number": licenseNumber, "found": false}, nil
	}
	vendor, _ := result["vendor"].(map[string]any)
	if vendor != nil {
		if vt, _ := vendor["vendor_type"].(string); vt != "medical_provider" {
			vendor["warning"] = "License belongs to non-medical vendor"
		}
	}
	return map[string]any{"license_number": licenseNumber, "found": true, "vendor": vendor}, nil
}
