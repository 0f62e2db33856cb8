package expressions

import "context"

// Data keys every engine receives. Expressions address variables as vars.<name>,
// the stimulus input as input.<key>, and instance metadata as workflow.<key>.
const (
	KeyVars     = "vars"
	KeyInput    = "input"
	KeyWorkflow = "workflow"
)

// Engine evaluates expressions bound to activity inputs.
// Three implementations: Expr (general logic), CEL (conditions), GoJQ (payload projection).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Data builds the evaluation environment shared by all engines. Nil maps become empty.
func Data(vars, input, workflow map[string]any) map[string]any {
	return map[string]any{
		KeyVars:     orEmpty(vars),
		KeyInput:    orEmpty(input),
		KeyWorkflow: orEmpty(workflow),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
