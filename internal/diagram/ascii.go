package diagram

import (
	"fmt"
	"strings"
)

// issueTag returns a short ASCII indicator for a node's issues.
func issueTag(n *Node) string {
	if n.Issue == nil {
		return ""
	}
	if n.Issue.Severity == "error" {
		return "[ERR]"
	}
	return "[WARN]"
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	// Render each level.
	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	// Container contents follow the main flow.
	for _, node := range model.Nodes {
		renderChildren(&b, node, "")
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := strings.Split(node.Label, "\n")
	if tag := issueTag(node); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len(line))
	}
	width := maxLen + 4 // 2 border + 2 padding

	// Build box lines.
	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// renderChildren lists the child scopes of a container, indented by nesting.
func renderChildren(b *strings.Builder, node *Node, indent string) {
	if len(node.Children) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n%s--- %s ---\n", indent, node.BlockLabel))
	for _, sg := range node.Children {
		state := ""
		if sg.Inactive {
			state = " (inactive)"
		}
		b.WriteString(fmt.Sprintf("%s  [%s]%s\n", indent, sg.Label, state))
		if len(sg.Nodes) == 0 {
			b.WriteString(fmt.Sprintf("%s    (empty)\n", indent))
		}
		for _, sub := range sg.Nodes {
			tag := issueTag(sub)
			if tag != "" {
				tag = " " + tag
			}
			b.WriteString(fmt.Sprintf("%s    %s%s\n", indent, firstLine(sub.Label), tag))
		}
		// Edges.
		for _, edge := range sg.Edges {
			b.WriteString(fmt.Sprintf("%s    %s ─→ %s\n", indent, labelOf(sg, node, edge.From), labelOf(sg, node, edge.To)))
		}
		// Nested containers.
		for _, sub := range sg.Nodes {
			renderChildren(b, sub, indent+"    ")
		}
	}
}

// labelOf resolves an edge endpoint to a block label for listing.
func labelOf(sg *SubGraph, owner *Node, id string) string {
	if id == owner.ID {
		return owner.BlockLabel
	}
	if n := findNode(sg.Nodes, id); n != nil {
		return n.BlockLabel
	}
	return id
}

// findNode looks up a node by ID in a node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
