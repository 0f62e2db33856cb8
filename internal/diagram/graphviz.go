package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

func (f ImageFormat) graphviz() (graphviz.Format, error) {
	switch f {
	case FormatPNG, "":
		return graphviz.PNG, nil
	case FormatSVG:
		return graphviz.SVG, nil
	case FormatDOT:
		return graphviz.XDOT, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", string(f))
	}
}

// RenderImage renders a DiagramModel through graphviz. An empty format
// renders PNG.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat, err := format.graphviz()
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node)
	for _, node := range model.Nodes {
		if err := addGraphNode(graph, graph, node, gvNodes); err != nil {
			return nil, err
		}
	}

	// Create edges.
	for _, edge := range model.Edges {
		addGraphEdge(graph, gvNodes, edge)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", string(gvFormat), err)
	}

	return buf.Bytes(), nil
}

// addGraphNode creates node inside parent and one dashed cluster per
// subgraph. Edges always live on the root graph.
func addGraphNode(root, parent *cgraph.Graph, node *Node, gvNodes map[string]*cgraph.Node) error {
	gvNode, err := parent.CreateNodeByName(node.ID)
	if err != nil {
		return fmt.Errorf("diagram: create node %s: %w", node.ID, err)
	}
	gvNode.SetLabel(firstLine(node.Label))
	applyNodeStyle(gvNode, node)
	gvNodes[node.ID] = gvNode

	for _, sg := range node.Children {
		sub, err := parent.CreateSubGraphByName("cluster_" + node.ID + "_" + sg.Label)
		if err != nil {
			return fmt.Errorf("diagram: create cluster %s/%s: %w", node.ID, sg.Label, err)
		}
		sub.SetLabel(sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)

		for _, subNode := range sg.Nodes {
			if err := addGraphNode(root, sub, subNode, gvNodes); err != nil {
				return err
			}
		}
		for _, edge := range sg.Edges {
			addGraphEdge(root, gvNodes, edge)
		}
		if len(sg.Nodes) > 0 {
			addGraphEdge(root, gvNodes, Edge{From: node.ID, To: sg.Nodes[0].ID, Label: sg.Label})
		}
	}
	return nil
}

func addGraphEdge(graph *cgraph.Graph, gvNodes map[string]*cgraph.Node, edge Edge) {
	fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
	if fromGV == nil || toGV == nil {
		return
	}
	e, err := graph.CreateEdgeByName("", fromGV, toGV)
	if err == nil && edge.Label != "" {
		e.SetLabel(edge.Label)
	}
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	// Shape by kind.
	switch node.Kind {
	case NodeKindActivity, NodeKindSequence, NodeKindParallel, NodeKindLoop:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindCondition:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindCatch:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindWait:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindTrigger:
		gvNode.SetShape(cgraph.HouseShape)
	case NodeKindBreak:
		gvNode.SetShape(cgraph.ParallelogramShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	// Color by status.
	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
	}
}

// applyStatusColor sets fill color and style based on status.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case "completed":
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case "faulted":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "running":
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case "suspended":
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	case "pending":
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	case "cancelled":
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}
