package canvas

import "github.com/rendis/blockflow/pkg/schema"

// ApplyVisibility recomputes the hidden flag of every node and edge from the
// active branch of each conditional and the collapsed flag of each container.
// A node is hidden when its branch tag names an inactive branch, when its
// container is collapsed, or when any container above it is hidden. An edge
// is hidden when its own tag is inactive or either endpoint is hidden.
func ApplyVisibility(g Graph) Graph {
	out := g.Clone()
	idx := out.Index()

	active := make(map[string]string)
	folded := make(map[string]bool)
	for _, n := range out.Nodes {
		switch d := n.Data.(type) {
		case ConditionalData:
			active[n.ID] = d.ActiveBranch()
			folded[n.ID] = d.Collapsed
		case LoopData:
			folded[n.ID] = d.Collapsed
		}
	}

	inactive := func(ref *BranchRef) bool {
		if ref == nil {
			return false
		}
		sel, ok := active[ref.ConditionalNodeID]
		return ok && sel != ref.ConditionalBranchID
	}

	memo := make(map[string]bool, len(out.Nodes))
	var hidden func(id string, depth int) bool
	hidden = func(id string, depth int) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		i, ok := idx[id]
		if !ok || depth > MaxTraversal {
			return false
		}
		n := out.Nodes[i]
		h := inactive(n.Branch) || folded[n.ParentID]
		if !h && n.ParentID != "" && n.ParentID != id {
			h = hidden(n.ParentID, depth+1)
		}
		memo[id] = h
		return h
	}

	for i := range out.Nodes {
		out.Nodes[i].Hidden = hidden(out.Nodes[i].ID, 0)
	}
	for i := range out.Edges {
		e := &out.Edges[i]
		e.Hidden = inactive(e.Data) || memo[e.Source] || memo[e.Target]
	}
	return out
}

// SetActiveBranch selects branchID on the conditional node condID and
// recomputes visibility.
func SetActiveBranch(g Graph, condID, branchID string) (Graph, error) {
	idx := g.Index()
	i, ok := idx[condID]
	if !ok {
		return g, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", condID)
	}
	cd, ok := g.Nodes[i].Data.(ConditionalData)
	if !ok {
		return g, schema.NewErrorf(schema.ErrCodeInvalidGraph, "node %q is not a conditional", condID)
	}
	found := false
	for _, b := range cd.Branches {
		if b.ID == branchID {
			found = true
			break
		}
	}
	if !found {
		return g, schema.NewErrorf(schema.ErrCodeNotFound, "branch %q not found on %s", branchID, cd.Label)
	}

	out := g.Clone()
	cd.ActiveBranchID = branchID
	out.Nodes[i].Data = cd
	return ApplyVisibility(out), nil
}
