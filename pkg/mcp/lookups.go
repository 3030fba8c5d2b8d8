package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/claimflow/internal/tools"
)

// Lookups bundles the business-rule lookup tools exposed to actor backends.
// The orchestrator core never calls these; actors reach them over MCP at
// their own boundary.
type Lookups struct {
	Policy    *tools.PolicyTools
	History   *tools.HistoryTools
	Fraud     *tools.FraudTools
	Vendors   *tools.VendorTools
	Medical   *tools.MedicalTools
	Documents *tools.DocumentTools
	External  *tools.ExternalTools
}

// NewLookups builds the full lookup suite over a shared dataset repository.
// Empty riskRules and pricingRule fall back to the built-in defaults.
func NewLookups(repo *tools.Repository, riskRules []tools.RiskRule, pricingRule string, logger *slog.Logger) *Lookups {
	history := tools.NewHistoryTools(repo)
	vendors := tools.NewVendorTools(repo, pricingRule)
	return &Lookups{
		Policy:    tools.NewPolicyTools(repo),
		History:   history,
		Fraud:     tools.NewFraudTools(repo, history, riskRules, logger),
		Vendors:   vendors,
		Medical:   tools.NewMedicalTools(repo, vendors),
		Documents: tools.NewDocumentTools(repo),
		External:  tools.NewExternalTools(repo),
	}
}

func (s *ClaimsServer) lookupTools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: policyLookupTool(), Handler: s.handlePolicyLookup},
		{Tool: coverageLookupTool(), Handler: s.handleCoverageLookup},
		{Tool: historyLookupTool(), Handler: s.handleHistoryLookup},
		{Tool: blacklistLookupTool(), Handler: s.handleBlacklistLookup},
		{Tool: duplicatesLookupTool(), Handler: s.handleDuplicatesLookup},
		{Tool: vendorLookupTool(), Handler: s.handleVendorLookup},
		{Tool: medicalLookupTool(), Handler: s.handleMedicalLookup},
		{Tool: documentsLookupTool(), Handler: s.handleDocumentsLookup},
		{Tool: externalLookupTool(), Handler: s.handleExternalLookup},
	}
}

// --- Tool definitions ---

func policyLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.policy",
		mcp.WithDescription("Look up policy details, optionally validating status against an incident date"),
		mcp.WithString("policy_number", mcp.Required(), mcp.Description("Policy number to look up")),
		mcp.WithString("incident_date", mcp.Description("Incident date (YYYY-MM-DD); when set, validates policy status and coverage dates")),
	)
}

func coverageLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.coverage",
		mcp.WithDescription("Check the coverage matrix for a policy tier and claim type"),
		mcp.WithString("policy_tier", mcp.Required(), mcp.Description("Policy tier, e.g. standard or premium")),
		mcp.WithString("claim_type", mcp.Required(), mcp.Description("Claim type, e.g. auto or property")),
	)
}

func historyLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.history",
		mcp.WithDescription("Look up a claimant's prior claims, optionally with rolling-window frequency metrics"),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("Customer ID")),
		mcp.WithString("policy_number", mcp.Description("Restrict history to one policy")),
		mcp.WithNumber("lookback_months", mcp.Description("When set, also compute frequency metrics over this window")),
	)
}

func blacklistLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.blacklist",
		mcp.WithDescription("Match entities against the internal blacklist; provided filters are combined with AND"),
		mcp.WithString("entity_id", mcp.Description("Entity ID filter")),
		mcp.WithString("tax_id", mcp.Description("Tax ID filter")),
		mcp.WithString("license_number", mcp.Description("License number filter")),
	)
}

func duplicatesLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.duplicates",
		mcp.WithDescription("Find prior claims on the same policy filed near the incident date"),
		mcp.WithString("policy_number", mcp.Required(), mcp.Description("Policy number")),
		mcp.WithString("incident_date", mcp.Required(), mcp.Description("Incident date (YYYY-MM-DD)")),
		mcp.WithNumber("window_days", mcp.Description("Match window in days (default 30)")),
	)
}

func vendorLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.vendor",
		mcp.WithDescription("Verify vendor credentials, optionally flagging a repair estimate against pricing rules"),
		mcp.WithString("vendor_id", mcp.Description("Vendor ID")),
		mcp.WithString("license_number", mcp.Description("Vendor license number")),
		mcp.WithNumber("estimate_amount", mcp.Description("When set, validate this estimate against the vendor's pricing history")),
	)
}

func medicalLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.medical",
		mcp.WithDescription("Validate an ICD-10 code and/or verify medical provider credentials"),
		mcp.WithString("code", mcp.Description("ICD-10 code to validate")),
		mcp.WithString("provider_license", mcp.Description("Provider license number to verify")),
	)
}

func documentsLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.documents",
		mcp.WithDescription("Check document completeness, or inspect one document's metadata and authenticity"),
		mcp.WithArray("required", mcp.Description("Required document types"), mcp.WithStringItems()),
		mcp.WithArray("provided", mcp.Description("Provided document types"), mcp.WithStringItems()),
		mcp.WithString("document_name", mcp.Description("When set, extract metadata and validate authenticity of this document")),
	)
}

func externalLookupTool() mcp.Tool {
	return mcp.NewTool("claims.lookup.external",
		mcp.WithDescription("Verify a police report or check weather events for a date and location"),
		mcp.WithString("report_number", mcp.Description("Police report number to verify")),
		mcp.WithString("date", mcp.Description("Incident date for the weather check (YYYY-MM-DD)")),
		mcp.WithString("location", mcp.Description("Incident location for the weather check")),
	)
}

// --- Handlers ---

func (s *ClaimsServer) handlePolicyLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	policyNumber, err := req.RequireString("policy_number")
	if err != nil {
		return mcp.NewToolResultError("policy_number is required"), nil
	}
	if incidentDate := req.GetString("incident_date", ""); incidentDate != "" {
		out, err := s.lookups.Policy.ValidatePolicyStatus(ctx, policyNumber, incidentDate)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(out)
	}
	out, err := s.lookups.Policy.LookupPolicyDetails(ctx, policyNumber)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleCoverageLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tier, err := req.RequireString("policy_tier")
	if err != nil {
		return mcp.NewToolResultError("policy_tier is required"), nil
	}
	claimType, err := req.RequireString("claim_type")
	if err != nil {
		return mcp.NewToolResultError("claim_type is required"), nil
	}
	out, err := s.lookups.Policy.CheckCoverageMatrix(ctx, tier, claimType)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleHistoryLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID, err := req.RequireString("customer_id")
	if err != nil {
		return mcp.NewToolResultError("customer_id is required"), nil
	}
	history, err := s.lookups.History.LookupClaimsHistory(ctx, customerID, req.GetString("policy_number", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if months := req.GetInt("lookback_months", 0); months > 0 {
		metrics, err := s.lookups.History.CalculateFrequencyMetrics(ctx, customerID, months)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		history["frequency_metrics"] = metrics
	}
	return marshalResult(history)
}

func (s *ClaimsServer) handleBlacklistLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.lookups.Fraud.CheckBlacklist(ctx,
		req.GetString("entity_id", ""),
		req.GetString("tax_id", ""),
		req.GetString("license_number", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleDuplicatesLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	policyNumber, err := req.RequireString("policy_number")
	if err != nil {
		return mcp.NewToolResultError("policy_number is required"), nil
	}
	incidentDate, err := req.RequireString("incident_date")
	if err != nil {
		return mcp.NewToolResultError("incident_date is required"), nil
	}
	out, err := s.lookups.Fraud.DetectDuplicateClaims(ctx, policyNumber, incidentDate, req.GetInt("window_days", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleVendorLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vendorID := req.GetString("vendor_id", "")
	license := req.GetString("license_number", "")
	if vendorID == "" && license == "" {
		return mcp.NewToolResultError("vendor_id or license_number is required"), nil
	}
	out, err := s.lookups.Vendors.VerifyVendorCredentials(ctx, vendorID, license)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if estimate := req.GetFloat("estimate_amount", 0); estimate > 0 {
		pricing, err := s.lookups.Vendors.ValidateVendorPricing(ctx, vendorID, estimate)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out["pricing"] = pricing
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleMedicalLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := req.GetString("code", "")
	license := req.GetString("provider_license", "")
	if code == "" && license == "" {
		return mcp.NewToolResultError("code or provider_license is required"), nil
	}
	out := map[string]any{}
	if code != "" {
		codeResult, err := s.lookups.Medical.ValidateMedicalCode(ctx, code)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out["code"] = codeResult
	}
	if license != "" {
		providerResult, err := s.lookups.Medical.VerifyProviderCredentials(ctx, license)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out["provider"] = providerResult
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleDocumentsLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("document_name", ""); name != "" {
		metadata, err := s.lookups.Documents.ExtractDocumentMetadata(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		authenticity, err := s.lookups.Documents.ValidateDocumentAuthenticity(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(map[string]any{"metadata": metadata, "authenticity": authenticity})
	}
	required := req.GetStringSlice("required", nil)
	if len(required) == 0 {
		return mcp.NewToolResultError("required document types or a document_name must be provided"), nil
	}
	out, err := s.lookups.Documents.CheckDocumentCompleteness(ctx, required, req.GetStringSlice("provided", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(out)
}

func (s *ClaimsServer) handleExternalLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if report := req.GetString("report_number", ""); report != "" {
		out, err := s.lookups.External.VerifyPoliceReport(ctx, report)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(out)
	}
	date := req.GetString("date", "")
	location := req.GetString("location", "")
	if date == "" || location == "" {
		return mcp.NewToolResultError("report_number, or date and location, are required"), nil
	}
	out, err := s.lookups.External.CheckWeatherEvents(ctx, date, location)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(out)
}
