package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/claimflow/pkg/schema"
)

// handoffSchemaJSON is the JSON Schema every settlement or denial payload
// must satisfy before a terminal result leaves the orchestrator.
// Embedded as a constant to avoid filesystem dependencies.
const handoffSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://claimflow.dev/schemas/handoff.json",
  "type": "object",
  "required": ["case_id", "decision", "confidence_score", "rationale"],
  "properties": {
    "case_id": {
      "type": "string",
      "minLength": 1
    },
    "decision": {
      "type": "string",
      "enum": ["approve", "deny"]
    },
    "payout_amount": {
      "type": ["number", "null"],
      "minimum": 0
    },
    "adjuster_id": {
      "type": "string"
    },
    "decision_timestamp": {
      "type": "string"
    },
    "confidence_score": {
      "type": "integer",
      "minimum": 0,
      "maximum": 100
    },
    "fraud_risk": {
      "type": "integer",
      "minimum": 0,
      "maximum": 100
    },
    "rationale": {
      "type": "string",
      "minLength": 1
    },
    "attachments": {
      "type": "array",
      "items": { "type": "string" }
    },
    "denial_reason": {
      "type": "string",
      "enum": ["policy_exclusion", "insufficient_documentation", "fraud_suspected", "coverage_lapsed", "other"]
    }
  },
  "additionalProperties": false,
  "allOf": [
    {
      "if": { "properties": { "decision": { "const": "deny" } } },
      "then": { "required": ["denial_reason"] }
    }
  ]
}`

// HandoffValidator validates handoff payloads against the embedded JSON
// Schema. Safe for concurrent use.
type HandoffValidator struct {
	compiled *jsonschema.Schema
}

// NewHandoffValidator compiles the handoff schema.
func NewHandoffValidator() (*HandoffValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(handoffSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal handoff schema: %w", err)
	}
	if err := c.AddResource("https://claimflow.dev/schemas/handoff.json", doc); err != nil {
		return nil, fmt.Errorf("add handoff schema resource: %w", err)
	}
	compiled, err := c.Compile("https://claimflow.dev/schemas/handoff.json")
	if err != nil {
		return nil, fmt.Errorf("compile handoff schema: %w", err)
	}
	return &HandoffValidator{compiled: compiled}, nil
}

// Validate checks a handoff payload. Violations come back as a single
// ClaimError with every leaf violation listed in its details.
func (v *HandoffValidator) Validate(payload *schema.HandoffPayload) error {
	if payload == nil {
		return schema.NewError(schema.ErrCodeValidation, "handoff payload is nil")
	}

	doc, err := toJSONValue(payload)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize handoff payload").WithCause(err)
	}

	if err := v.compiled.Validate(doc); err != nil {
		return toClaimError(err).WithCase(payload.CaseID)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toClaimError converts a jsonschema.ValidationError into a ClaimError with
// clear, actionable messages.
func toClaimError(err error) *schema.ClaimError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("handoff validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
