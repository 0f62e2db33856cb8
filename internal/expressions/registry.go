package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/waypoint/pkg/schema"
)

// Expression is a source string in one of the registered languages.
type Expression struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

func (e Expression) String() string {
	return fmt.Sprintf("%s:%s", e.Language, e.Source)
}

// Registry dispatches expressions to the engine registered for their language.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry registers the given engines by name.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		r.engines[e.Name()] = e
	}
	return r
}

// NewDefaultRegistry registers the expr, cel and jq engines.
func NewDefaultRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewRegistry(NewExprEngine(), celEngine, NewGoJQEngine()), nil
}

// Engine returns the engine for a language.
func (r *Registry) Engine(language string) (Engine, bool) {
	e, ok := r.engines[language]
	return e, ok
}

// Evaluate runs the expression with the engine registered for its language.
func (r *Registry) Evaluate(ctx context.Context, expr Expression, data map[string]any) (any, error) {
	e, ok := r.engines[expr.Language]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupported,
			"no expression engine registered for language %q", expr.Language).
			WithDetails(map[string]any{"expression": expr.Source})
	}
	return e.Evaluate(ctx, expr.Source, data)
}
