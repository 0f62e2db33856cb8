package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/waypoint/internal/activities"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/trigger"
	"github.com/rendis/waypoint/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Build constructs a DiagramModel from a workflow and an optional instance
// snapshot. A root Sequence is laid out as the top-level chain; composite
// activities get one SubGraph per branch, nested to any depth.
func Build(wf *engine.Workflow, snap *engine.Snapshot) (*DiagramModel, error) {
	if wf == nil || wf.Root == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: workflow has no root activity")
	}
	if snap != nil && snap.WorkflowID != wf.ID {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"diagram: snapshot of workflow %s does not match %s", snap.WorkflowID, wf.ID)
	}
	overlay := indexSnapshot(snap)

	steps := []engine.Activity{wf.Root}
	if seq, ok := wf.Root.(*activities.Sequence); ok {
		steps = present(seq.Activities)
	}

	nodes := make([]*Node, 0, len(steps)+2)
	levels := make([][]string, 0, len(steps)+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	levels = append(levels, []string{startID})
	ids := []string{startID}
	for _, a := range steps {
		n := newNode(a, overlay)
		nodes = append(nodes, n)
		levels = append(levels, []string{n.ID})
		ids = append(ids, n.ID)
	}
	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})
	levels = append(levels, []string{endID})
	ids = append(ids, endID)

	return &DiagramModel{
		Title:  title(wf, snap),
		Nodes:  nodes,
		Edges:  chain(ids),
		Levels: levels,
	}, nil
}

// indexSnapshot maps activity ids to their runtime state. Contexts of the
// same activity (loop iterations) keep the last one.
func indexSnapshot(snap *engine.Snapshot) map[string]*StatusOverlay {
	overlay := make(map[string]*StatusOverlay)
	if snap == nil {
		return overlay
	}
	get := func(id string) *StatusOverlay {
		o, ok := overlay[id]
		if !ok {
			o = &StatusOverlay{}
			overlay[id] = o
		}
		return o
	}
	for _, c := range snap.Contexts {
		get(c.ActivityID).Status = string(c.Status)
	}
	for _, b := range snap.Bookmarks {
		get(b.ActivityID).Bookmarks++
	}
	if snap.Fault != nil && snap.Fault.ActivityID != "" {
		o := get(snap.Fault.ActivityID)
		o.Status = string(schema.ActivityStatusFaulted)
		o.Error = snap.Fault.Message
	}
	return overlay
}

func newNode(a engine.Activity, overlay map[string]*StatusOverlay) *Node {
	n := &Node{
		ID:     a.ID(),
		Label:  fmt.Sprintf("%s\n(%s)", a.ID(), shortType(a.Type())),
		Kind:   kindOf(a),
		Status: overlay[a.ID()],
	}
	for _, br := range branches(a) {
		n.Children = append(n.Children, newSubGraph(br.label, br.activity, overlay))
	}
	return n
}

type branch struct {
	label    string
	activity engine.Activity
}

// branches names the nested activities of a composite. Missing branches
// (an If without Else) are skipped.
func branches(a engine.Activity) []branch {
	var out []branch
	add := func(label string, child engine.Activity) {
		if child != nil {
			out = append(out, branch{label, child})
		}
	}
	switch x := a.(type) {
	case *activities.If:
		add("then", x.Then)
		add("else", x.Else)
	case *activities.Fork:
		for i, b := range x.Branches {
			add(fmt.Sprintf("branch_%d", i), b)
		}
	case *activities.For:
		add("body", x.Body)
	case *activities.While:
		add("body", x.Body)
	case *activities.Catch:
		add("body", x.Body)
		add("handler", x.Handler)
	case *activities.Sequence:
		add("steps", x)
	case engine.Container:
		for i, c := range x.Children() {
			add(fmt.Sprintf("child_%d", i), c)
		}
	}
	return out
}

// newSubGraph draws one branch. A Sequence branch is unrolled into its
// steps; a sequence's own "steps" branch is unrolled the same way.
func newSubGraph(label string, a engine.Activity, overlay map[string]*StatusOverlay) *SubGraph {
	sg := &SubGraph{Label: label}
	members := []engine.Activity{a}
	if seq, ok := a.(*activities.Sequence); ok {
		members = present(seq.Activities)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		n := newNode(m, overlay)
		sg.Nodes = append(sg.Nodes, n)
		ids = append(ids, n.ID)
	}
	sg.Edges = chain(ids)
	return sg
}

// kindOf maps an activity to a NodeKind.
func kindOf(a engine.Activity) NodeKind {
	if gen, ok := a.(trigger.EventGenerator); ok && gen.CanStartWorkflow() {
		return NodeKindTrigger
	}
	switch a.Type() {
	case activities.TypeSequence:
		return NodeKindSequence
	case activities.TypeIf:
		return NodeKindCondition
	case activities.TypeFork:
		return NodeKindParallel
	case activities.TypeFor, activities.TypeWhile:
		return NodeKindLoop
	case activities.TypeCatch:
		return NodeKindCatch
	case activities.TypeBreak:
		return NodeKindBreak
	case schema.ActivityTypeEvent, schema.ActivityTypeReadLine, schema.ActivityTypeDelay,
		schema.ActivityTypeTimer, schema.ActivityTypeCron:
		return NodeKindWait
	default:
		return NodeKindActivity
	}
}

func shortType(t string) string {
	return strings.TrimPrefix(t, "waypoint.")
}

func present(list []engine.Activity) []engine.Activity {
	out := make([]engine.Activity, 0, len(list))
	for _, a := range list {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

func chain(ids []string) []Edge {
	var edges []Edge
	for i := 1; i < len(ids); i++ {
		edges = append(edges, Edge{From: ids[i-1], To: ids[i]})
	}
	return edges
}

// title names the workflow and, for an instance, its status.
func title(wf *engine.Workflow, snap *engine.Snapshot) string {
	t := wf.ID
	if wf.Version != "" {
		t += " v" + wf.Version
	}
	if snap != nil {
		t += fmt.Sprintf(" [%s: %s]", snap.InstanceID, snap.Status)
	}
	return t
}
