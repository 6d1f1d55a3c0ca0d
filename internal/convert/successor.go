package convert

import "github.com/rendis/blockflow/internal/canvas"

// resolver answers "what comes next" questions for block nodes using edges
// only. Hidden edges count: the definition must not depend on which branch
// is on display.
type resolver struct {
	g     canvas.Graph
	idx   map[string]int
	out   map[string][]canvas.Edge
	merge map[string]*string
	busy  map[string]bool
}

func newResolver(g canvas.Graph) *resolver {
	r := &resolver{
		g:     g,
		idx:   g.Index(),
		out:   make(map[string][]canvas.Edge, len(g.Nodes)),
		merge: make(map[string]*string),
		busy:  make(map[string]bool),
	}
	for _, e := range g.Edges {
		r.out[e.Source] = append(r.out[e.Source], e)
	}
	return r
}

// ResolveLinks computes the next_block_label of node id and, for a
// conditional, the first label of each branch.
func ResolveLinks(g canvas.Graph, id string) Links {
	return newResolver(g).links(id)
}

func (r *resolver) node(id string) (canvas.Node, bool) {
	i, ok := r.idx[id]
	if !ok {
		return canvas.Node{}, false
	}
	return r.g.Nodes[i], true
}

func (r *resolver) links(id string) Links {
	n, ok := r.node(id)
	if !ok {
		return Links{}
	}
	cd, isCond := n.Data.(canvas.ConditionalData)
	if !isCond {
		return Links{Next: r.next(id)}
	}
	l := Links{
		Next:     r.mergeOf(id),
		Branches: make(map[string]*string, len(cd.Branches)),
	}
	for _, br := range cd.Branches {
		l.Branches[br.ID] = r.branchHead(n.ID, br.ID)
	}
	return l
}

// next follows edges from id past utility nodes to the first block node. A
// node inside a branch that runs off the end of it joins the enclosing
// conditional's merge point.
func (r *resolver) next(id string) *string {
	if label := r.walk(id, ""); label != nil {
		return label
	}
	n, ok := r.node(id)
	if !ok || n.Branch == nil {
		return nil
	}
	return r.mergeOf(n.Branch.ConditionalNodeID)
}

// mergeOf returns the label execution reaches after conditional condID
// finishes: the first node past the conditional that is neither one of its
// branch members nor a utility node.
func (r *resolver) mergeOf(condID string) *string {
	if v, ok := r.merge[condID]; ok {
		return v
	}
	if r.busy[condID] || len(r.busy) > canvas.MaxTraversal {
		return nil
	}
	r.busy[condID] = true
	defer delete(r.busy, condID)

	v := r.walk(condID, condID)
	if v == nil {
		if n, ok := r.node(condID); ok && n.Branch != nil {
			v = r.mergeOf(n.Branch.ConditionalNodeID)
		}
	}
	r.merge[condID] = v
	return v
}

// walk follows the first outgoing edge from id until it reaches a block node
// that is not a member of skipCond's branches. The walk stops on a revisit or
// after MaxTraversal steps.
func (r *resolver) walk(id, skipCond string) *string {
	seen := map[string]bool{id: true}
	cur := id
	for steps := 0; steps < canvas.MaxTraversal; steps++ {
		edges := r.out[cur]
		if len(edges) == 0 {
			return nil
		}
		target := edges[0].Target
		if seen[target] {
			return nil
		}
		seen[target] = true
		n, ok := r.node(target)
		if !ok {
			return nil
		}
		member := skipCond != "" && n.Branch != nil && n.Branch.ConditionalNodeID == skipCond
		if !n.IsUtility() && !member {
			label := n.Label()
			return &label
		}
		cur = target
	}
	return nil
}

// branchHead returns the first block of a branch. An empty branch, whose
// entry edge leads straight to the append node, resolves to the merge point.
func (r *resolver) branchHead(condID, branchID string) *string {
	entry, ok := r.g.ScopeUtility(condID, canvas.NodeTypeStart)
	if !ok {
		return r.mergeOf(condID)
	}
	for _, e := range r.out[entry.ID] {
		if e.Data == nil || e.Data.ConditionalBranchID != branchID {
			continue
		}
		n, ok := r.node(e.Target)
		if !ok {
			return nil
		}
		if n.IsUtility() {
			return r.mergeOf(condID)
		}
		label := n.Label()
		return &label
	}
	return r.mergeOf(condID)
}

// branchMembers lists the nodes of one branch in chain order, starting at the
// entry edge tagged with branchID.
func (r *resolver) branchMembers(condID, branchID string) []canvas.Node {
	entry, ok := r.g.ScopeUtility(condID, canvas.NodeTypeStart)
	if !ok {
		return nil
	}
	var cur string
	for _, e := range r.out[entry.ID] {
		if e.Data != nil && e.Data.ConditionalBranchID == branchID {
			cur = e.Target
			break
		}
	}
	var out []canvas.Node
	seen := map[string]bool{entry.ID: true}
	for steps := 0; cur != "" && steps < canvas.MaxTraversal; steps++ {
		if seen[cur] {
			break
		}
		seen[cur] = true
		n, ok := r.node(cur)
		if !ok || n.IsUtility() {
			break
		}
		out = append(out, n)
		cur = ""
		if edges := r.out[n.ID]; len(edges) > 0 {
			cur = edges[0].Target
		}
	}
	return out
}
