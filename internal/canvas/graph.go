// Package canvas holds the presentation graph edited by the visual builder:
// positioned nodes with containment, and edges that carry execution order.
// Every operation takes a Graph value and returns a new one.
package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/blockflow/pkg/schema"
)

// MaxTraversal bounds every walk over parent pointers or edge chains so a
// malformed graph cannot loop forever.
const MaxTraversal = 1000

// NodeType is the node kind. Block nodes use their block_type verbatim.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeNodeAdder NodeType = "nodeAdder"
)

// BlockNodeType maps a block kind to its node type.
func BlockNodeType(t schema.BlockType) NodeType { return NodeType(t) }

// IsUtility reports whether t is a synthetic entry/append marker.
func IsUtility(t NodeType) bool {
	return t == NodeTypeStart || t == NodeTypeNodeAdder
}

// IsContainer reports whether nodes of type t own a child scope.
func IsContainer(t NodeType) bool {
	return t == NodeType(schema.BlockTypeForLoop) || t == NodeType(schema.BlockTypeConditional)
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BranchRef tags a node or edge as belonging to one branch of a conditional.
type BranchRef struct {
	ConditionalNodeID   string `json:"conditionalNodeId"`
	ConditionalBranchID string `json:"conditionalBranchId"`
}

type Node struct {
	ID       string     `json:"id"`
	Type     NodeType   `json:"type"`
	Position Position   `json:"position"`
	ParentID string     `json:"parentId,omitempty"`
	Hidden   bool       `json:"hidden,omitempty"`
	Width    float64    `json:"width,omitempty"`
	Height   float64    `json:"height,omitempty"`
	Branch   *BranchRef `json:"branch,omitempty"`
	Data     NodeData   `json:"data"`
}

// Label returns the block label of n, or "" for utility nodes.
func (n Node) Label() string {
	if n.Data == nil {
		return ""
	}
	return n.Data.Block().Label
}

// IsUtility reports whether n is an entry/append marker.
func (n Node) IsUtility() bool { return IsUtility(n.Type) }

func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var raw struct {
		plain
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	nd, err := DecodeData(raw.plain.Type, raw.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.plain.ID, err)
	}
	*n = Node(raw.plain)
	n.Data = nd
	return nil
}

type EdgeType string

const (
	EdgeTypeDefault EdgeType = "default"
	EdgeTypeAdd     EdgeType = "edgeWithAddButton"
)

type Edge struct {
	ID     string     `json:"id"`
	Source string     `json:"source"`
	Target string     `json:"target"`
	Type   EdgeType   `json:"type"`
	Hidden bool       `json:"hidden,omitempty"`
	Data   *BranchRef `json:"data,omitempty"`
}

// Graph is an immutable snapshot of the presentation graph. Node order
// carries no meaning; edges are the only source of execution order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone copies the node and edge slices along with their branch tags.
// Node data values are copied by value.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	for i := range out.Nodes {
		if b := out.Nodes[i].Branch; b != nil {
			cp := *b
			out.Nodes[i].Branch = &cp
		}
	}
	for i := range out.Edges {
		if b := out.Edges[i].Data; b != nil {
			cp := *b
			out.Edges[i].Data = &cp
		}
	}
	return out
}

// Index maps node id to its position in g.Nodes.
func (g Graph) Index() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Children returns the direct children of parentID in node order. An empty
// parentID selects top-level nodes.
func (g Graph) Children(parentID string) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out
}

// Outgoing returns the edges leaving id, hidden ones included.
func (g Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges entering id, hidden ones included.
func (g Graph) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// ScopeUtility returns the entry (start) or append (nodeAdder) node owned by
// the scope parentID.
func (g Graph) ScopeUtility(parentID string, t NodeType) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ParentID == parentID && n.Type == t {
			return n, true
		}
	}
	return Node{}, false
}

// Depth returns the number of containers enclosing id. Dangling parent
// pointers end the climb.
func (g Graph) Depth(id string) int {
	idx := g.Index()
	return depthIndexed(g, idx, id)
}

func depthIndexed(g Graph, idx map[string]int, id string) int {
	depth := 0
	seen := map[string]bool{id: true}
	cur, ok := idx[id]
	for ok && depth < MaxTraversal {
		parent := g.Nodes[cur].ParentID
		if parent == "" || seen[parent] {
			break
		}
		seen[parent] = true
		cur, ok = idx[parent]
		if !ok {
			break
		}
		depth++
	}
	return depth
}

// Descendants returns every node contained, directly or transitively, in id.
func (g Graph) Descendants(id string) []Node {
	children := make(map[string][]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ParentID != "" {
			children[n.ParentID] = append(children[n.ParentID], i)
		}
	}
	var out []Node
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 && len(out) < len(g.Nodes) {
		cur := queue[0]
		queue = queue[1:]
		for _, i := range children[cur] {
			n := g.Nodes[i]
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, n)
			queue = append(queue, n.ID)
		}
	}
	return out
}

// Labels returns the labels of every block node.
func (g Graph) Labels() []string {
	out := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if !n.IsUtility() {
			out = append(out, n.Label())
		}
	}
	return out
}
