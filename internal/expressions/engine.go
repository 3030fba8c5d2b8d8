package expressions

import "context"

// Engine evaluates expressions over case data.
// Three implementations: CEL (termination conditions), GoJQ (dataset
// queries), Expr (business risk rules).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
