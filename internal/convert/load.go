package convert

import (
	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/upgrade"
	"github.com/rendis/blockflow/pkg/schema"
)

// slot is the arena entry of one block: its node id, the utility ids of the
// scope it owns (loops and conditionals), and its loop body.
type slot struct {
	id    string
	block schema.Block
	start string
	adder string
	body  []slot
}

// allot assigns every id the graph will need before any node or edge is
// built. Blocks are addressed by position from here on.
func allot(blocks schema.Blocks, ids IDSource) []slot {
	out := make([]slot, 0, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		s := slot{id: ids(), block: b}
		switch v := b.(type) {
		case *schema.ForLoopBlock:
			s.start, s.adder = ids(), ids()
			s.body = allot(v.LoopBlocks, ids)
		case *schema.ConditionalBlock:
			s.start, s.adder = ids(), ids()
		}
		out = append(out, s)
	}
	return out
}

// ToGraph builds the presentation graph of def. Definitions older than
// schema.CurrentVersion are upgraded first. Positions are left at zero; run
// the layout engine afterwards.
func ToGraph(def *schema.Definition, ids IDSource) (canvas.Graph, error) {
	if def == nil {
		return canvas.Graph{}, schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}
	if ids == nil {
		ids = UUIDs()
	}
	if def.Version < schema.CurrentVersion {
		up, err := upgrade.Upgrade(def)
		if err != nil {
			return canvas.Graph{}, err
		}
		def = up
	}

	start, adder := ids(), ids()
	slots := allot(def.Blocks, ids)

	b := &builder{index: make(map[string]int)}
	b.buildScope("", start, adder, slots)
	return canvas.ApplyVisibility(canvas.Graph{Nodes: b.nodes, Edges: b.edges}), nil
}

type builder struct {
	nodes []canvas.Node
	edges []canvas.Edge
	index map[string]int
}

func (b *builder) addNode(n canvas.Node) {
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

func (b *builder) chain(ids []string, ref *canvas.BranchRef) {
	for i := 0; i+1 < len(ids); i++ {
		b.edges = append(b.edges, canvas.NewEdge(ids[i], ids[i+1], ref))
	}
}

// scopeChain indexes one block list by label. Lookups never leave the list.
type scopeChain struct {
	slots   []slot
	byLabel map[string]int
	claimed []bool
}

func newScopeChain(slots []slot) *scopeChain {
	sc := &scopeChain{
		slots:   slots,
		byLabel: make(map[string]int, len(slots)),
		claimed: make([]bool, len(slots)),
	}
	for i, s := range slots {
		if _, dup := sc.byLabel[s.block.Base().Label]; !dup {
			sc.byLabel[s.block.Base().Label] = i
		}
	}
	return sc
}

// find returns the position of label, or -1 when it is nil or dangling.
func (sc *scopeChain) find(label *string) int {
	if label == nil {
		return -1
	}
	if i, ok := sc.byLabel[*label]; ok {
		return i
	}
	return -1
}

func (sc *scopeChain) next(i int) int {
	return sc.find(sc.slots[i].block.Base().NextBlockLabel)
}

// starts reports whether the block at i links to another block of the list,
// through its own successor or one of its branches.
func (sc *scopeChain) starts(i int) bool {
	if sc.next(i) >= 0 {
		return true
	}
	if c, ok := sc.slots[i].block.(*schema.ConditionalBlock); ok {
		for _, bc := range c.BranchConditions {
			if sc.find(bc.NextBlockLabel) >= 0 {
				return true
			}
		}
	}
	return false
}

// head picks the block the main chain starts from: the first block nothing
// points at that links onward, else the first block nothing points at. When
// every block is referenced the chain is a cycle and the first block starts
// it.
func (sc *scopeChain) head() int {
	if len(sc.slots) == 0 {
		return -1
	}
	referenced := make(map[string]bool, len(sc.slots))
	for _, s := range sc.slots {
		if l := s.block.Base().NextBlockLabel; l != nil {
			referenced[*l] = true
		}
		if c, ok := s.block.(*schema.ConditionalBlock); ok {
			for _, bc := range c.BranchConditions {
				if bc.NextBlockLabel != nil {
					referenced[*bc.NextBlockLabel] = true
				}
			}
		}
	}
	loose := -1
	for i, s := range sc.slots {
		if referenced[s.block.Base().Label] {
			continue
		}
		if sc.starts(i) {
			return i
		}
		if loose < 0 {
			loose = i
		}
	}
	if loose >= 0 {
		return loose
	}
	return 0
}

// buildScope emits the nodes of one block list with the scope's utility
// nodes, draws the main chain and the conditional branches, links blocks
// left outside both to their successors, and recurses into loop bodies.
func (b *builder) buildScope(owner, start, adder string, slots []slot) {
	b.addNode(canvas.Node{
		ID:       start,
		Type:     canvas.NodeTypeStart,
		ParentID: owner,
		Data:     canvas.StartData{WithWorkflowSettings: owner == ""},
	})
	for _, s := range slots {
		b.addNode(ToNode(s.block, s.id, owner))
	}

	// Main chain: entry, head and its successors, append.
	sc := newScopeChain(slots)
	main := []string{start}
	for i, steps := sc.head(), 0; i >= 0 && !sc.claimed[i] && steps < canvas.MaxTraversal; steps++ {
		sc.claimed[i] = true
		main = append(main, slots[i].id)
		i = sc.next(i)
	}
	main = append(main, adder)
	b.chain(main, nil)

	// Branch members are claimed by their conditional.
	for i := range slots {
		if _, ok := slots[i].block.(*schema.ConditionalBlock); ok {
			b.reconstruct(sc, i)
		}
	}

	// Blocks outside every chain keep their successor as a plain edge.
	for i, s := range slots {
		if sc.claimed[i] {
			continue
		}
		if j := sc.next(i); j >= 0 {
			b.edges = append(b.edges, canvas.NewEdge(s.id, slots[j].id, nil))
		}
	}

	b.addNode(canvas.Node{ID: adder, Type: canvas.NodeTypeNodeAdder, ParentID: owner, Data: canvas.NodeAdderData{}})

	// Loop bodies are scopes of their own.
	for _, s := range slots {
		if _, ok := s.block.(*schema.ForLoopBlock); ok {
			b.buildScope(s.id, s.start, s.adder, s.body)
		}
	}
}

// reconstruct recovers branch membership for the conditional at position ci.
// Each branch follows next_block_label from its first block until it reaches
// the conditional's own successor or a block some chain already owns.
func (b *builder) reconstruct(sc *scopeChain, ci int) {
	cs := sc.slots[ci]
	c := cs.block.(*schema.ConditionalBlock)
	b.addNode(canvas.Node{ID: cs.start, Type: canvas.NodeTypeStart, ParentID: cs.id, Data: canvas.StartData{}})
	b.addNode(canvas.Node{ID: cs.adder, Type: canvas.NodeTypeNodeAdder, ParentID: cs.id, Data: canvas.NodeAdderData{}})

	// A branch ends where the conditional's own successor begins.
	merge := sc.find(c.NextBlockLabel)
	for _, bc := range c.BranchConditions {
		ref := &canvas.BranchRef{ConditionalNodeID: cs.id, ConditionalBranchID: bc.ID}
		seq := []string{cs.start}
		i := sc.find(bc.NextBlockLabel)
		for steps := 0; i >= 0 && i != merge && i != ci && !sc.claimed[i] && steps < canvas.MaxTraversal; steps++ {
			sc.claimed[i] = true
			// Re-parent the member into the conditional.
			id := sc.slots[i].id
			n := &b.nodes[b.index[id]]
			n.ParentID = cs.id
			n.Branch = &canvas.BranchRef{ConditionalNodeID: cs.id, ConditionalBranchID: bc.ID}
			seq = append(seq, id)
			i = sc.next(i)
		}
		// Empty branches link entry straight to append.
		seq = append(seq, cs.adder)
		b.chain(seq, ref)
	}
}
