package diagram

import "github.com/rendis/blockflow/pkg/schema"

// NodeKind groups block types by how they are drawn.
type NodeKind string

const (
	NodeKindBrowser     NodeKind = "browser"
	NodeKindLoop        NodeKind = "loop"
	NodeKindConditional NodeKind = "conditional"
	NodeKindWait        NodeKind = "wait"
	NodeKindPrompt      NodeKind = "prompt"
	NodeKindCode        NodeKind = "code"
	NodeKindData        NodeKind = "data"
	NodeKindStart       NodeKind = "start"
	NodeKindEnd         NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one block, or the start/end marker of the top-level chain.
type Node struct {
	ID         string
	Label      string
	BlockLabel string
	BlockType  schema.BlockType
	Kind       NodeKind
	Issue      *IssueOverlay
	Children   []*SubGraph // loop body, conditional branches
}

// SubGraph holds the blocks of one child scope.
type SubGraph struct {
	Label    string
	Inactive bool
	Nodes    []*Node
	Edges    []Edge
}

// IssueOverlay carries the validation findings for a node.
type IssueOverlay struct {
	Severity schema.ValidationSeverity
	Messages []string
}

// Edge connects two nodes. Entry edges into a child scope carry the branch
// id or "each" as label.
type Edge struct {
	From  string
	To    string
	Label string
}
