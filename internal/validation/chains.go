package validation

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"github.com/rendis/blockflow/pkg/schema"
)

// validateChains checks the next_block_label chain of every scope: a chain
// must not loop back on itself, and every block should be reachable from
// the scope's first entry block.
func validateChains(def *schema.Definition) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	checkChainScope(def.Blocks, result)
	return result
}

func checkChainScope(blocks schema.Blocks, result *schema.ValidationResult) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	var order []string
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if err := g.AddVertex(b.Base().Label); err == nil {
			order = append(order, b.Base().Label)
		}
	}

	for i, b := range blocks {
		if b == nil {
			continue
		}
		for _, target := range successors(b) {
			err := g.AddEdge(b.Base().Label, target)
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				result.AddError(blockPath(b, i), schema.ErrCodeCycleDetected,
					fmt.Sprintf("link to %q closes a cycle", target))
			}
		}
	}

	checkReachability(g, order, result)

	for _, b := range blocks {
		if loop, ok := b.(*schema.ForLoopBlock); ok {
			checkChainScope(loop.LoopBlocks, result)
		}
	}
}

// successors lists the labels b links to: its next block and, for a
// conditional, the first block of every branch.
func successors(b schema.Block) []string {
	var out []string
	if next := b.Base().NextBlockLabel; next != nil {
		out = append(out, *next)
	}
	if c, ok := b.(*schema.ConditionalBlock); ok {
		for _, bc := range c.BranchConditions {
			if bc.NextBlockLabel != nil {
				out = append(out, *bc.NextBlockLabel)
			}
		}
	}
	return out
}

// checkReachability warns about blocks the first entry block cannot reach.
// Unreachable blocks survive conversion as orphans.
func checkReachability(g graph.Graph[string, string], order []string, result *schema.ValidationResult) {
	if len(order) == 0 {
		return
	}
	preds, err := g.PredecessorMap()
	if err != nil {
		return
	}

	head := ""
	for _, label := range order {
		if len(preds[label]) == 0 {
			head = label
			break
		}
	}
	if head == "" {
		return
	}

	reached := make(map[string]bool, len(order))
	_ = graph.BFS(g, head, func(label string) bool {
		reached[label] = true
		return false
	})

	for _, label := range order {
		if !reached[label] {
			result.AddWarning(schema.BlockPath(label), schema.ErrCodeValidation,
				fmt.Sprintf("block %q is not reachable from %q", label, head))
		}
	}
}
