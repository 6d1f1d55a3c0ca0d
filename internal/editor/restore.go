package editor

import (
	"slices"

	"github.com/rendis/blockflow/internal/canvas"
)

// RestoreLayout copies geometry, branch selection and collapsed state from
// prev onto fresh when both graphs hold exactly the same block labels. Nodes
// are matched by label; utility nodes by their owner's label and type. It
// reports whether anything was restored.
func RestoreLayout(fresh, prev canvas.Graph) (canvas.Graph, bool) {
	if !sameLabels(fresh, prev) {
		return fresh, false
	}
	saved := make(map[string]canvas.Node, len(prev.Nodes))
	for _, n := range prev.Nodes {
		saved[nodeKey(prev, n)] = n
	}

	out := fresh.Clone()
	for i, n := range out.Nodes {
		old, ok := saved[nodeKey(fresh, n)]
		if !ok {
			continue
		}
		out.Nodes[i].Data = carryState(n.Data, old.Data)
	}
	out = canvas.ApplyVisibility(out)

	for i, n := range out.Nodes {
		old, ok := saved[nodeKey(fresh, n)]
		if !ok {
			continue
		}
		out.Nodes[i].Position = old.Position
		out.Nodes[i].Width = old.Width
		out.Nodes[i].Height = old.Height
	}
	return out, true
}

func sameLabels(a, b canvas.Graph) bool {
	la, lb := a.Labels(), b.Labels()
	if len(la) == 0 || len(la) != len(lb) {
		return false
	}
	la, lb = slices.Clone(la), slices.Clone(lb)
	slices.Sort(la)
	slices.Sort(lb)
	if !slices.Equal(la, lb) {
		return false
	}
	return len(slices.Compact(la)) == len(lb)
}

func nodeKey(g canvas.Graph, n canvas.Node) string {
	if !n.IsUtility() {
		return "block:" + n.Label()
	}
	owner := ""
	if p, ok := g.Node(n.ParentID); ok {
		owner = p.Label()
	}
	return string(n.Type) + ":" + owner
}

// carryState keeps the fresh data but takes the presentation-only flags of
// the saved node. A saved branch selection is kept only when the branch
// still exists.
func carryState(fresh, old canvas.NodeData) canvas.NodeData {
	switch f := fresh.(type) {
	case canvas.LoopData:
		if o, ok := old.(canvas.LoopData); ok {
			f.Collapsed = o.Collapsed
		}
		return f
	case canvas.ConditionalData:
		o, ok := old.(canvas.ConditionalData)
		if !ok {
			return f
		}
		f.Collapsed = o.Collapsed
		for _, b := range f.Branches {
			if b.ID == o.ActiveBranchID {
				f.ActiveBranchID = o.ActiveBranchID
				break
			}
		}
		return f
	}
	return fresh
}
