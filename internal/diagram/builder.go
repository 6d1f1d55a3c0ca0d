package diagram

import (
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/pkg/schema"
)

// LoopEntryLabel labels the edge from a loop into its body.
const LoopEntryLabel = "each"

// Build constructs a DiagramModel from a presentation graph. Containers get
// one SubGraph per child scope: the body of a loop and every branch of a
// conditional, inactive branches included. Issues in result, when given, are
// overlaid on the nodes they name.
func Build(title string, g canvas.Graph, result *schema.ValidationResult) (*DiagramModel, error) {
	if len(g.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: graph has no nodes")
	}
	if title == "" {
		title = "Workflow"
	}

	b := &builder{g: g, idx: g.Index()}
	nodes, edges := b.scope("", func(canvas.Node) bool { return true })

	model := &DiagramModel{
		Title:  title,
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(nodes, edges),
	}
	if result != nil {
		Overlay(model, result)
	}
	return model, nil
}

type builder struct {
	g   canvas.Graph
	idx map[string]int
}

// owner returns the scope n belongs to; an unknown parent counts as top level.
func (b *builder) owner(n canvas.Node) string {
	if _, ok := b.idx[n.ParentID]; ok {
		return n.ParentID
	}
	return ""
}

// scope collects the members of owner accepted by keep, and the edges between
// them. Utility markers are kept only at the top level, as Start and End.
func (b *builder) scope(owner string, keep func(canvas.Node) bool) ([]*Node, []Edge) {
	var nodes []*Node
	members := make(map[string]bool)
	for _, n := range b.g.Nodes {
		if b.owner(n) != owner || !keep(n) {
			continue
		}
		if n.IsUtility() && owner != "" {
			continue
		}
		members[n.ID] = true
		nodes = append(nodes, b.node(n))
	}

	var edges []Edge
	for _, e := range b.g.Edges {
		if members[e.Source] && members[e.Target] {
			edges = append(edges, Edge{From: e.Source, To: e.Target})
		}
	}
	return nodes, edges
}

func (b *builder) node(n canvas.Node) *Node {
	switch n.Type {
	case canvas.NodeTypeStart:
		return &Node{ID: n.ID, Label: "Start", Kind: NodeKindStart}
	case canvas.NodeTypeNodeAdder:
		return &Node{ID: n.ID, Label: "End", Kind: NodeKindEnd}
	}

	bt := schema.BlockType(n.Type)
	out := &Node{
		ID:         n.ID,
		Label:      fmt.Sprintf("%s\n(%s)", n.Label(), bt),
		BlockLabel: n.Label(),
		BlockType:  bt,
		Kind:       kindOf(bt),
	}
	switch d := n.Data.(type) {
	case canvas.LoopData:
		out.Children = append(out.Children, b.loopBody(n))
	case canvas.ConditionalData:
		active := d.ActiveBranch()
		for _, br := range d.Branches {
			out.Children = append(out.Children, b.branch(n, br, br.ID != active))
		}
	}
	return out
}

func (b *builder) loopBody(loop canvas.Node) *SubGraph {
	nodes, edges := b.scope(loop.ID, func(canvas.Node) bool { return true })
	sg := &SubGraph{Label: "body", Nodes: nodes, Edges: edges}
	if head := b.scopeHead(loop.ID, ""); head != "" {
		sg.Edges = append([]Edge{{From: loop.ID, To: head, Label: LoopEntryLabel}}, sg.Edges...)
	}
	return sg
}

func (b *builder) branch(cond canvas.Node, br canvas.BranchData, inactive bool) *SubGraph {
	nodes, edges := b.scope(cond.ID, func(n canvas.Node) bool {
		return n.Branch != nil && n.Branch.ConditionalBranchID == br.ID
	})
	label := br.ID
	if br.IsDefault {
		label += " (default)"
	}
	sg := &SubGraph{Label: label, Inactive: inactive, Nodes: nodes, Edges: edges}
	if head := b.scopeHead(cond.ID, br.ID); head != "" {
		sg.Edges = append([]Edge{{From: cond.ID, To: head, Label: br.ID}}, sg.Edges...)
	}
	return sg
}

// scopeHead returns the first block of a child scope, following the entry
// edge tagged with branchID ("" for a loop body). Empty scopes have no head.
func (b *builder) scopeHead(owner, branchID string) string {
	start, ok := b.g.ScopeUtility(owner, canvas.NodeTypeStart)
	if !ok {
		return ""
	}
	for _, e := range b.g.Outgoing(start.ID) {
		tag := ""
		if e.Data != nil {
			tag = e.Data.ConditionalBranchID
		}
		if tag != branchID {
			continue
		}
		i, ok := b.idx[e.Target]
		if !ok || b.g.Nodes[i].IsUtility() {
			return ""
		}
		return e.Target
	}
	return ""
}

func kindOf(t schema.BlockType) NodeKind {
	switch t {
	case schema.BlockTypeForLoop:
		return NodeKindLoop
	case schema.BlockTypeConditional:
		return NodeKindConditional
	case schema.BlockTypeWait:
		return NodeKindWait
	case schema.BlockTypeTextPrompt:
		return NodeKindPrompt
	case schema.BlockTypeCode:
		return NodeKindCode
	case schema.BlockTypeSendEmail, schema.BlockTypeFileURLParser, schema.BlockTypePDFParser,
		schema.BlockTypeUploadToS3, schema.BlockTypeDownloadToS3, schema.BlockTypeFileUpload,
		schema.BlockTypeHTTPRequest:
		return NodeKindData
	default:
		return NodeKindBrowser
	}
}

// buildLevels ranks the top-level nodes by longest path from the chain start.
// Edges that would close a cycle are ignored.
func buildLevels(nodes []*Node, edges []Edge) [][]string {
	order := make(map[string]int, len(nodes))
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for i, n := range nodes {
		order[n.ID] = i
		_ = g.AddVertex(n.ID)
	}
	for _, e := range edges {
		_ = g.AddEdge(e.From, e.To)
	}

	sorted, err := graph.StableTopologicalSort(g, func(a, b string) bool { return order[a] < order[b] })
	if err != nil {
		return nil
	}
	preds, err := g.PredecessorMap()
	if err != nil {
		return nil
	}

	rank := make(map[string]int, len(sorted))
	maxRank := 0
	for _, id := range sorted {
		r := 0
		for p := range preds[id] {
			r = max(r, rank[p]+1)
		}
		rank[id] = r
		maxRank = max(maxRank, r)
	}

	levels := make([][]string, maxRank+1)
	for _, id := range sorted {
		levels[rank[id]] = append(levels[rank[id]], id)
	}
	for _, level := range levels {
		sort.SliceStable(level, func(i, j int) bool { return order[level[i]] < order[level[j]] })
	}
	return levels
}

// Overlay attaches every issue of result to the node whose block label its
// path names. Errors win over warnings.
func Overlay(model *DiagramModel, result *schema.ValidationResult) {
	byLabel := make(map[string]*Node)
	Walk(model, func(n *Node) {
		if n.BlockLabel == "" {
			return
		}
		if _, dup := byLabel[n.BlockLabel]; !dup {
			byLabel[n.BlockLabel] = n
		}
	})

	for label, issues := range result.ByBlock() {
		n, ok := byLabel[label]
		if !ok {
			continue
		}
		// Errors come first, so the first issue decides the severity.
		n.Issue = &IssueOverlay{Severity: issues[0].Severity}
		for _, is := range issues {
			n.Issue.Messages = append(n.Issue.Messages, is.Message)
		}
	}
}

// Walk visits every node of the model depth-first, sub-graphs included.
func Walk(model *DiagramModel, fn func(n *Node)) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			fn(n)
			for _, sg := range n.Children {
				walk(sg.Nodes)
			}
		}
	}
	walk(model.Nodes)
}
