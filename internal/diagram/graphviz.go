package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return render(ctx, model, graphviz.PNG)
}

// RenderSVG renders a DiagramModel as an SVG document using graphviz.
func RenderSVG(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return render(ctx, model, graphviz.SVG)
}

func render(ctx context.Context, model *DiagramModel, format graphviz.Format) ([]byte, error) {
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

	r := &gvRenderer{root: graph, nodes: make(map[string]*cgraph.Node)}
	for _, node := range model.Nodes {
		if err := r.addNode(graph, node); err != nil {
			return nil, err
		}
	}
	r.addEdges(model.Edges)

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

type gvRenderer struct {
	root  *cgraph.Graph
	nodes map[string]*cgraph.Node
}

// addNode creates node inside parent, then one dashed cluster per child
// scope. Clusters nest the way containers do.
func (r *gvRenderer) addNode(parent *cgraph.Graph, node *Node) error {
	gvNode, err := parent.CreateNodeByName(node.ID)
	if err != nil {
		return fmt.Errorf("diagram: create node %s: %w", node.ID, err)
	}
	gvNode.SetLabel(firstLine(node.Label))
	applyNodeStyle(gvNode, node)
	r.nodes[node.ID] = gvNode

	for _, sg := range node.Children {
		sub, err := parent.CreateSubGraphByName("cluster_" + node.ID + "_" + sg.Label)
		if err != nil {
			continue
		}
		label := sg.Label
		if sg.Inactive {
			label += " (inactive)"
		}
		sub.SetLabel(label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, subNode := range sg.Nodes {
			if err := r.addNode(sub, subNode); err != nil {
				return err
			}
		}
		r.addEdges(sg.Edges)
	}
	return nil
}

func (r *gvRenderer) addEdges(edges []Edge) {
	for _, edge := range edges {
		from, to := r.nodes[edge.From], r.nodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, err := r.root.CreateEdgeByName("", from, to)
		if err == nil && edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}
}

// applyNodeStyle sets graphviz attributes based on node kind and issues.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindBrowser:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindConditional:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindPrompt:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindWait:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindData:
		gvNode.SetShape(cgraph.CylinderShape)
	case NodeKindLoop, NodeKindCode:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	if node.Issue == nil {
		return
	}
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	gvNode.SetFontColor("white")
	switch node.Issue.Severity {
	case "error":
		gvNode.SetFillColor("#8b1a1a")
	default:
		gvNode.SetFillColor("#b7791a")
	}
}
