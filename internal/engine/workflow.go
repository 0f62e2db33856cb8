package engine

import (
	"sync"

	"github.com/rendis/waypoint/pkg/schema"
)

// Workflow is a versioned, immutable tree of activities.
type Workflow struct {
	ID      string
	Version string
	Root    Activity
	// Variables are declared on the root context with their initial values.
	Variables map[string]any

	once  sync.Once
	index map[string]Activity
}

// Walk visits every activity of the tree in depth-first pre-order. Returning
// false from fn stops the walk.
func (w *Workflow) Walk(fn func(a Activity, parent Activity) bool) {
	if w.Root == nil {
		return
	}
	walk(w.Root, nil, fn)
}

func walk(a, parent Activity, fn func(Activity, Activity) bool) bool {
	if a == nil {
		return true
	}
	if !fn(a, parent) {
		return false
	}
	if c, ok := a.(Container); ok {
		for _, child := range c.Children() {
			if !walk(child, a, fn) {
				return false
			}
		}
	}
	return true
}

// Activity returns the definition with the given id.
func (w *Workflow) Activity(id string) (Activity, bool) {
	w.once.Do(func() {
		w.index = make(map[string]Activity)
		w.Walk(func(a, _ Activity) bool {
			if _, dup := w.index[a.ID()]; !dup {
				w.index[a.ID()] = a
			}
			return true
		})
	})
	a, ok := w.index[id]
	return a, ok
}

// Validate checks the structural rules every workflow must satisfy: a root,
// and non-empty activity ids unique across the tree.
func (w *Workflow) Validate() error {
	var v schema.Violations
	if w.ID == "" {
		v.Add("id", "REQUIRED", "workflow id is required")
	}
	if w.Root == nil {
		v.Add("root", "REQUIRED", "workflow root activity is required")
		return v.Err(w.ID)
	}

	seen := make(map[string]bool)
	w.Walk(func(a, parent Activity) bool {
		path := "root"
		if parent != nil {
			path = parent.ID() + ".children"
		}
		switch {
		case a.ID() == "":
			v.Add(path, "REQUIRED", "activity of type %q has no id", a.Type())
		case seen[a.ID()]:
			v.Add(path, "DUPLICATE_ID", "duplicate activity id %q", a.ID())
		default:
			seen[a.ID()] = true
		}
		return true
	})
	return v.Err(w.ID)
}
