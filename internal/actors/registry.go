package actors

import (
	"context"

	"github.com/rendis/claimflow/pkg/schema"
)

// Invoker produces an actor's contribution for a role given the
// conversation so far. Implementations wrap whatever backs the actor
// (an LLM connection, a rules engine, a recorded script). Actors report
// findings by writing the agreed keys into cc; this side-effect contract
// is how results flow between phases.
type Invoker interface {
	// Invoke returns the actor's response message, or nil when the actor
	// has nothing to contribute this turn.
	Invoke(ctx context.Context, def Definition, cc schema.Context, transcript *schema.Transcript) (*schema.Message, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, def Definition, cc schema.Context, transcript *schema.Transcript) (*schema.Message, error)

func (f InvokerFunc) Invoke(ctx context.Context, def Definition, cc schema.Context, transcript *schema.Transcript) (*schema.Message, error) {
	return f(ctx, def, cc, transcript)
}

// Registry holds validated actor definitions keyed by role.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds a registry from definitions, rejecting duplicates.
// Role validity is already checked at parse time, but re-checked here so
// hand-built definitions get the same treatment.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if err := ValidateRole(def.Role); err != nil {
			return nil, err
		}
		if _, ok := r.defs[def.Role]; ok {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate actor role %q", def.Role)
		}
		r.defs[def.Role] = def
		r.order = append(r.order, def.Role)
	}
	return r, nil
}

// Get returns the definition for role. The second result reports whether
// the role is configured; unconfigured roles are skipped, not errors.
func (r *Registry) Get(role string) (Definition, bool) {
	def, ok := r.defs[role]
	return def, ok
}

// Roles returns configured roles in definition order.
func (r *Registry) Roles() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specialists returns the configured adaptive-gathering specialists in
// canonical invocation order.
func (r *Registry) Specialists() []Definition {
	var out []Definition
	for _, role := range SpecialistRoles {
		if def, ok := r.defs[role]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Len returns the number of configured actors.
func (r *Registry) Len() int {
	return len(r.defs)
}
