package engine

import (
	"context"
	"errors"

	"github.com/rendis/waypoint/internal/convert"
	"github.com/rendis/waypoint/internal/expressions"
	"github.com/rendis/waypoint/pkg/schema"
)

// Evaluator evaluates expressions; satisfied by *expressions.Registry.
type Evaluator interface {
	Evaluate(ctx context.Context, expr expressions.Expression, data map[string]any) (any, error)
}

// Environment is what an Input needs to resolve itself. ExecutionContext and
// trigger contexts both satisfy it.
type Environment interface {
	Context() context.Context
	Evaluator() Evaluator
	ExpressionData() map[string]any
}

// Input is an activity argument: either a literal or an expression evaluated
// against the current scope when the activity reads it.
type Input[T any] struct {
	literal T
	expr    *expressions.Expression
	set     bool
}

// Literal returns an input holding v.
func Literal[T any](v T) Input[T] {
	return Input[T]{literal: v, set: true}
}

// Expr returns an input evaluated with the engine registered for language.
func Expr[T any](language, source string) Input[T] {
	return Input[T]{expr: &expressions.Expression{Language: language, Source: source}, set: true}
}

// IsZero reports whether the input was never assigned.
func (in Input[T]) IsZero() bool { return !in.set }

// Expression returns the expression behind the input, if any.
func (in Input[T]) Expression() (expressions.Expression, bool) {
	if in.expr == nil {
		return expressions.Expression{}, false
	}
	return *in.expr, true
}

// Get resolves the input. Evaluation failures are EXECUTION_ERROR; results
// that cannot be coerced to T are CONVERSION_ERROR wrapping a
// *convert.ConversionError.
func (in Input[T]) Get(env Environment) (T, error) {
	var zero T
	if in.expr == nil {
		return in.literal, nil
	}
	ev := env.Evaluator()
	if ev == nil {
		return zero, schema.NewErrorf(schema.ErrCodeUnsupported,
			"no evaluator configured for %s expression", in.expr.Language)
	}
	raw, err := ev.Evaluate(env.Context(), *in.expr, env.ExpressionData())
	if err != nil {
		var we *schema.WaypointError
		if errors.As(err, &we) {
			return zero, err
		}
		return zero, schema.NewErrorf(schema.ErrCodeExecution, "evaluate %s: %s", in.expr, err.Error()).WithCause(err)
	}
	v, err := convert.To[T](raw)
	if err != nil {
		return zero, schema.NewErrorf(schema.ErrCodeConversion, "input %s: %s", in.expr, err.Error()).WithCause(err)
	}
	return v, nil
}
