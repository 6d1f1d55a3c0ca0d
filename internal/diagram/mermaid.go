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

	for _, node := range model.Nodes {
		writeMermaidNode(&b, node, "    ")
	}

	for _, edge := range model.Edges {
		writeMermaidEdge(&b, edge, "    ")
	}

	// Issue class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef inactive fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	Walk(model, func(n *Node) {
		if n.Issue != nil {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(n.ID), n.Issue.Severity))
		}
	})

	return b.String()
}

// writeMermaidNode writes a node and, recursively, its child scopes as
// subgraphs.
func writeMermaidNode(b *strings.Builder, node *Node, indent string) {
	b.WriteString(indent + mermaidNodeDef(node) + "\n")

	for _, sg := range node.Children {
		title := fmt.Sprintf("%s: %s", node.BlockLabel, sg.Label)
		if sg.Inactive {
			title += " (inactive)"
		}
		sgID := mermaidSafeID(node.ID + "_" + sg.Label)
		b.WriteString(fmt.Sprintf("%ssubgraph %s[%q]\n", indent, sgID, title))
		for _, sub := range sg.Nodes {
			writeMermaidNode(b, sub, indent+"    ")
		}
		for _, edge := range sg.Edges {
			writeMermaidEdge(b, edge, indent+"    ")
		}
		b.WriteString(indent + "end\n")
		if sg.Inactive {
			b.WriteString(fmt.Sprintf("%sclass %s inactive\n", indent, sgID))
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
	label := firstLine(node.Label)

	switch node.Kind {
	case NodeKindConditional:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindPrompt:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindWait:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindLoop, NodeKindCode:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindData:
		return fmt.Sprintf("%s[(%q)]", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // browser
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", "(", "_", ")", "_")
	return r.Replace(id)
}
