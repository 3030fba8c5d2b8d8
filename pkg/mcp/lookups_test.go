package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/claimflow/internal/tools"
)

func writeDataset(t *testing.T, root, rel, contents string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func newLookupServer(t *testing.T) *ClaimsServer {
	t.Helper()
	datasets := t.TempDir()

	writeDataset(t, datasets, "policies.csv",
		"policy_number,status,effective_date,expiration_date,policy_type,tier\n"+
			"POL-100234,active,2024-01-01,2026-12-31,auto,gold\n")
	writeDataset(t, datasets, "coverage_matrix.csv",
		"policy_tier,claim_type,deductible,limit,exclusions\n"+
			"gold,auto,500,50000,racing\n")
	writeDataset(t, datasets, "historical/claims_history.csv",
		"customer_id,policy_number,claim_id,incident_date,processing_days\n"+
			"CUST-1,POL-100234,CLM-old-1,2025-06-01,12\n")
	writeDataset(t, datasets, "risk/blacklist.csv",
		"entity_id,tax_id,license_number,reason\n"+
			"ENT-99,TAX-99,LIC-99,fraud_conviction\n")
	writeDataset(t, datasets, "vendors.csv",
		"vendor_id,vendor_type,license_number,avg_estimate_accuracy\n"+
			"VEN-1,repair_shop,LIC-100,0.95\n")

	repo := tools.NewRepository(datasets, t.TempDir(), nil)
	return NewClaimsServer(ClaimsServerDeps{
		Runner:  &mockRunner{},
		Lookups: NewLookups(repo, nil, "", nil),
	})
}

func lookupResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func TestLookupToolsRegisteredOnlyWithLookups(t *testing.T) {
	srv := newLookupServer(t)
	require.Len(t, srv.mcpServer.ListTools(), 13)
	assert.NotNil(t, srv.mcpServer.GetTool("claims.lookup.policy"))
	assert.NotNil(t, srv.mcpServer.GetTool("claims.lookup.blacklist"))

	bare := NewClaimsServer(ClaimsServerDeps{Runner: &mockRunner{}})
	assert.Nil(t, bare.mcpServer.GetTool("claims.lookup.policy"))
}

func TestPolicyLookupTool(t *testing.T) {
	srv := newLookupServer(t)

	result, err := srv.handlePolicyLookup(context.Background(),
		buildRequest("claims.lookup.policy", map[string]any{"policy_number": "POL-100234"}))
	require.NoError(t, err)
	out := lookupResult(t, result)
	assert.Equal(t, true, out["found"])

	result, err = srv.handlePolicyLookup(context.Background(),
		buildRequest("claims.lookup.policy", map[string]any{
			"policy_number": "POL-100234",
			"incident_date": "2025-08-01",
		}))
	require.NoError(t, err)
	out = lookupResult(t, result)
	assert.Equal(t, true, out["active"])
	assert.Equal(t, "gold", out["tier"])
}

func TestPolicyLookupToolRequiresPolicyNumber(t *testing.T) {
	srv := newLookupServer(t)

	result, err := srv.handlePolicyLookup(context.Background(),
		buildRequest("claims.lookup.policy", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCoverageLookupTool(t *testing.T) {
	srv := newLookupServer(t)

	result, err := srv.handleCoverageLookup(context.Background(),
		buildRequest("claims.lookup.coverage", map[string]any{
			"policy_tier": "gold",
			"claim_type":  "auto",
		}))
	require.NoError(t, err)
	out := lookupResult(t, result)
	assert.Equal(t, true, out["found"])
	coverage := out["coverage"].(map[string]any)
	assert.Equal(t, float64(500), coverage["deductible"])
}

func TestBlacklistLookupTool(t *testing.T) {
	srv := newLookupServer(t)

	result, err := srv.handleBlacklistLookup(context.Background(),
		buildRequest("claims.lookup.blacklist", map[string]any{"entity_id": "ENT-99"}))
	require.NoError(t, err)
	out := lookupResult(t, result)
	assert.Equal(t, float64(1), out["match_count"])
}

func TestVendorLookupToolWithPricing(t *testing.T) {
	srv := newLookupServer(t)

	result, err := srv.handleVendorLookup(context.Background(),
		buildRequest("claims.lookup.vendor", map[string]any{
			"vendor_id":       "VEN-1",
			"estimate_amount": 30000.0,
		}))
	require.NoError(t, err)
	out := lookupResult(t, result)
	assert.Equal(t, true, out["found"])
	pricing := out["pricing"].(map[string]any)
	assert.Equal(t, true, pricing["pricing_flagged"])
}

func TestDocumentsLookupToolCompleteness(t *testing.T) {
	srv := newLookupServer(t)

	result, err := srv.handleDocumentsLookup(context.Background(),
		buildRequest("claims.lookup.documents", map[string]any{
			"required": []any{"police_report", "repair_estimate"},
			"provided": []any{"repair_estimate"},
		}))
	require.NoError(t, err)
	out := lookupResult(t, result)
	assert.Equal(t, false, out["complete"])
	assert.Contains(t, out["missing_documents"], "police_report")
}
