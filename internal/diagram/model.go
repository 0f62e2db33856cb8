package diagram

// NodeKind classifies a diagram node by the activity it draws.
type NodeKind string

const (
	NodeKindActivity  NodeKind = "activity"
	NodeKindSequence  NodeKind = "sequence"
	NodeKindCondition NodeKind = "condition"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindLoop      NodeKind = "loop"
	NodeKindCatch     NodeKind = "catch"
	NodeKindBreak     NodeKind = "break"
	NodeKindWait      NodeKind = "wait"
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single activity in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Status   *StatusOverlay
	Children []*SubGraph // branches, loop bodies, sequence steps
}

// SubGraph holds the activities nested under a composite node.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// StatusOverlay carries the runtime state of an instance for a node.
type StatusOverlay struct {
	Status    string // from schema.ActivityStatus
	Bookmarks int
	Error     string
}

// Edge represents an ordering between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
