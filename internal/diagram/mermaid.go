package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	// Render nodes with shapes based on kind, subgraphs nested under them.
	for _, node := range model.Nodes {
		writeMermaidNode(&b, node, "    ")
	}

	// Render edges.
	for _, edge := range model.Edges {
		writeMermaidEdge(&b, edge, "    ")
	}

	// Status class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef faulted fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef suspended fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef cancelled fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	// Apply status classes.
	walkNodes(model.Nodes, func(node *Node) {
		if node.Status == nil {
			return
		}
		if cls := mermaidStatusClass(node.Status.Status); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	})

	return b.String()
}

func writeMermaidNode(b *strings.Builder, node *Node, indent string) {
	b.WriteString(indent + mermaidNodeDef(node) + "\n")
	for _, sg := range node.Children {
		b.WriteString(fmt.Sprintf("%ssubgraph %s[\"%s: %s\"]\n",
			indent, mermaidSafeID(node.ID+"_"+sg.Label), node.ID, sg.Label))
		for _, sub := range sg.Nodes {
			writeMermaidNode(b, sub, indent+"    ")
		}
		for _, edge := range sg.Edges {
			writeMermaidEdge(b, edge, indent+"    ")
		}
		b.WriteString(indent + "end\n")
		if len(sg.Nodes) > 0 {
			b.WriteString(fmt.Sprintf("%s%s -.->|%s| %s\n",
				indent, mermaidSafeID(node.ID), sg.Label, mermaidSafeID(sg.Nodes[0].ID)))
		}
	}
}

func writeMermaidEdge(b *strings.Builder, edge Edge, indent string) {
	label := ""
	if edge.Label != "" {
		label = fmt.Sprintf("|%s|", edge.Label)
	}
	b.WriteString(fmt.Sprintf("%s%s -->%s %s\n", indent, mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case NodeKindCondition:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindCatch:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindWait:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindTrigger:
		return fmt.Sprintf("%s>%q]", id, label)
	case NodeKindParallel, NodeKindLoop, NodeKindSequence:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindBreak:
		return fmt.Sprintf("%s[/%q/]", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // activity
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes, colons and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces the double quotes Mermaid cannot take inside a
// quoted label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

// mermaidStatusClass maps a status string to a Mermaid class name.
func mermaidStatusClass(status string) string {
	switch status {
	case "completed", "faulted", "running", "suspended", "pending", "cancelled":
		return status
	default:
		return ""
	}
}

// walkNodes visits every node, nested subgraph nodes included.
func walkNodes(nodes []*Node, fn func(*Node)) {
	for _, n := range nodes {
		fn(n)
		for _, sg := range n.Children {
			walkNodes(sg.Nodes, fn)
		}
	}
}
