package canvas

import (
	"fmt"

	"github.com/rendis/blockflow/pkg/schema"
)

// EdgeID derives a stable edge id from its endpoints and branch tag.
func EdgeID(source, target string, ref *BranchRef) string {
	if ref != nil {
		return fmt.Sprintf("%s->%s@%s", source, target, ref.ConditionalBranchID)
	}
	return fmt.Sprintf("%s->%s", source, target)
}

// NewEdge builds an edge with a derived id. The branch tag is copied.
func NewEdge(source, target string, ref *BranchRef) Edge {
	e := Edge{
		ID:     EdgeID(source, target, ref),
		Source: source,
		Target: target,
		Type:   EdgeTypeAdd,
	}
	if ref != nil {
		cp := *ref
		e.Data = &cp
	}
	return e
}

// InsertNode splits edgeID with head: source -> head -> target. head is
// placed in the edge's scope and inherits its branch tag. scaffold holds any
// nodes and edges owned by head (the child scope of a loop or conditional);
// they are appended as given.
func InsertNode(g Graph, edgeID string, head Node, scaffold Graph) (Graph, error) {
	pos := -1
	for i, e := range g.Edges {
		if e.ID == edgeID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return g, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q not found", edgeID)
	}
	split := g.Edges[pos]
	src, ok := g.Node(split.Source)
	if !ok {
		return g, schema.NewErrorf(schema.ErrCodeInvalidGraph, "edge %q has dangling source %q", edgeID, split.Source)
	}
	if _, exists := g.Node(head.ID); exists {
		return g, schema.NewErrorf(schema.ErrCodeConflict, "node %q already exists", head.ID)
	}

	// Scope entries and block nodes alike share their scope with the new node.
	head.ParentID = src.ParentID
	head.Branch = nil
	if split.Data != nil {
		ref := *split.Data
		head.Branch = &ref
	}

	out := g.Clone()
	out.Edges = append(out.Edges[:pos:pos], out.Edges[pos+1:]...)
	out.Nodes = append(out.Nodes, head)
	out.Nodes = append(out.Nodes, scaffold.Nodes...)
	out.Edges = append(out.Edges,
		NewEdge(split.Source, head.ID, split.Data),
		NewEdge(head.ID, split.Target, split.Data),
	)
	out.Edges = append(out.Edges, scaffold.Edges...)
	return ApplyVisibility(out), nil
}

// RemoveNode deletes id together with everything it contains, reconnecting
// each predecessor to the node's first successor so the chain stays intact.
// Utility nodes cannot be removed.
func RemoveNode(g Graph, id string) (Graph, error) {
	n, ok := g.Node(id)
	if !ok {
		return g, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	if n.IsUtility() {
		return g, schema.NewErrorf(schema.ErrCodeInvalidGraph, "utility node %q cannot be removed", id)
	}

	removed := map[string]bool{id: true}
	for _, d := range g.Descendants(id) {
		removed[d.ID] = true
	}

	var successor string
	for _, e := range g.Outgoing(id) {
		if !removed[e.Target] {
			successor = e.Target
			break
		}
	}

	out := Graph{}
	for _, node := range g.Nodes {
		if !removed[node.ID] {
			out.Nodes = append(out.Nodes, node)
		}
	}
	for _, e := range g.Edges {
		switch {
		case e.Target == id && successor != "" && !removed[e.Source]:
			out.Edges = append(out.Edges, NewEdge(e.Source, successor, e.Data))
		case removed[e.Source] || removed[e.Target]:
		default:
			out.Edges = append(out.Edges, e)
		}
	}
	return ApplyVisibility(out.Clone()), nil
}

// DuplicateNode copies a leaf block node under a new id and label and
// inserts the copy directly after the original. Containers are rejected
// because their scopes would need fresh ids throughout.
func DuplicateNode(g Graph, id, newID, newLabel string) (Graph, error) {
	n, ok := g.Node(id)
	if !ok {
		return g, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	if n.IsUtility() || IsContainer(n.Type) {
		return g, schema.NewErrorf(schema.ErrCodeInvalidGraph, "node %q of type %s cannot be duplicated", id, n.Type)
	}
	out := g.Outgoing(id)
	if len(out) == 0 {
		return g, schema.NewErrorf(schema.ErrCodeInvalidGraph, "node %q has no outgoing edge to insert after", id)
	}

	cp := n
	cp.ID = newID
	cp.Position = Position{X: n.Position.X + 20, Y: n.Position.Y + 20}
	bd := n.Data.Block()
	bd.Label = newLabel
	cp.Data = n.Data.WithBlock(bd)
	return InsertNode(g, out[0].ID, cp, Graph{})
}
