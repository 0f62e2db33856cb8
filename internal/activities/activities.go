// Package activities provides the built-in activities: control flow
// (sequence, loops, branches, fault boundaries), variable and console
// primitives, and the bookmark activities that wait for events and time.
package activities

import (
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/variables"
)

// Activity type names of the built-in control-flow and primitive activities.
// Bookmark activities use the names in pkg/schema.
const (
	TypeSequence    = "waypoint.Sequence"
	TypeFor         = "waypoint.For"
	TypeWhile       = "waypoint.While"
	TypeIf          = "waypoint.If"
	TypeFork        = "waypoint.Fork"
	TypeBreak       = "waypoint.Break"
	TypeCatch       = "waypoint.Catch"
	TypeSetVariable = "waypoint.SetVariable"
	TypeWriteLine   = "waypoint.WriteLine"
)

// outerScope is the scope of ctx without its own register. Activities that
// write results use it so the value outlives their context.
func outerScope(ctx *engine.ExecutionContext) variables.Scope {
	scope := ctx.Scope()
	if len(scope) > 1 {
		return scope[1:]
	}
	return scope
}

// setResult stores value in the named variable of an enclosing scope. An
// empty name discards the value.
func setResult(ctx *engine.ExecutionContext, name string, value any) {
	if name == "" {
		return
	}
	outerScope(ctx).Set(name, value)
}

// own returns a scope holding only the context's own register.
func own(ctx *engine.ExecutionContext) variables.Scope {
	return variables.Scope{ctx.Register()}
}
