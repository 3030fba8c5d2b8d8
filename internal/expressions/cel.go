package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/claimflow/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common Expression
// Language. It evaluates operator-defined termination conditions over case
// state. Thread-safe: compiled programs are cached and reused across
// goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL expression engine with a sandboxed
// environment. The environment exposes four top-level variables:
//   - context: map(string, dyn) — the shared case context bag
//   - claim:   map(string, dyn) — the original submission data
//   - ledger:  list(dyn)        — recent invocation ledger entries
//   - rounds:  int              — specialist rounds executed so far
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("context", mapType),
		cel.Variable("claim", mapType),
		cel.Variable("ledger", cel.ListType(cel.DynType)),
		cel.Variable("rounds", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against the provided data. The data map should contain keys matching
// the environment variables: context, claim, ledger, rounds.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(buildActivation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// EvaluateBool evaluates the expression and coerces the result to a bool.
// Non-boolean results are a validation error: termination conditions must
// be predicates.
func (e *CELEngine) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL expression %q did not evaluate to a boolean (got %T)", expression, out)
	}
	return b, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildActivation creates the evaluation activation map from the data.
// Missing keys get zero values to prevent CEL runtime nil-ref errors.
func buildActivation(data map[string]any) map[string]any {
	activation := map[string]any{
		"context": map[string]any{},
		"claim":   map[string]any{},
		"ledger":  []any{},
		"rounds":  0,
	}
	for k, v := range data {
		if v != nil {
			activation[k] = v
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
