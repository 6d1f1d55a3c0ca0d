package convert

import (
	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/labels"
	"github.com/rendis/blockflow/pkg/schema"
)

// NewBlockNode creates a fresh block of kind t labelled with the next free
// block_N of g. Containers come with their child scope: a loop gets an
// empty body, a conditional gets an "if" branch and a default "else" branch,
// both empty. The returned scaffold is meant for canvas.InsertNode.
func NewBlockNode(g canvas.Graph, t schema.BlockType, ids IDSource) (canvas.Node, canvas.Graph, error) {
	if ids == nil {
		ids = UUIDs()
	}
	label := labels.NewRegistry(g).Next()
	b, err := schema.NewBlock(t, label)
	if err != nil {
		return canvas.Node{}, canvas.Graph{}, err
	}

	var branches []schema.BranchCondition
	if c, ok := b.(*schema.ConditionalBlock); ok {
		c.BranchConditions = []schema.BranchCondition{
			{ID: ids(), Criteria: &schema.BranchCriteria{CriteriaType: schema.CriteriaJinja}},
			{ID: ids(), IsDefault: true},
		}
		branches = c.BranchConditions
	}

	head := ToNode(b, ids(), "")
	var scaffold canvas.Graph
	if !canvas.IsContainer(head.Type) {
		return head, scaffold, nil
	}

	start, adder := ids(), ids()
	scaffold.Nodes = []canvas.Node{
		{ID: start, Type: canvas.NodeTypeStart, ParentID: head.ID, Data: canvas.StartData{}},
		{ID: adder, Type: canvas.NodeTypeNodeAdder, ParentID: head.ID, Data: canvas.NodeAdderData{}},
	}
	if len(branches) == 0 {
		scaffold.Edges = []canvas.Edge{canvas.NewEdge(start, adder, nil)}
		return head, scaffold, nil
	}
	for _, bc := range branches {
		ref := &canvas.BranchRef{ConditionalNodeID: head.ID, ConditionalBranchID: bc.ID}
		scaffold.Edges = append(scaffold.Edges, canvas.NewEdge(start, adder, ref))
	}
	return head, scaffold, nil
}
