// Package upgrade migrates legacy definitions to the current version.
package upgrade

import (
	"fmt"

	"github.com/rendis/blockflow/pkg/schema"
)

// Upgrade returns a deep copy of def brought up to schema.CurrentVersion.
// Version 1 definitions relied on array order; every block without a
// next_block_label gets the label of its next sibling, or stays nil when it
// is last. Loop bodies are handled the same way. Upgrading an already
// current definition only clones it.
func Upgrade(def *schema.Definition) (*schema.Definition, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}
	out, err := def.Clone()
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	if out.Version >= schema.CurrentVersion {
		return out, nil
	}
	chainSiblings(out.Blocks)
	out.Version = schema.CurrentVersion
	return out, nil
}

func chainSiblings(blocks schema.Blocks) {
	for i, b := range blocks {
		if b == nil {
			continue
		}
		base := b.Base()
		if base.NextBlockLabel == nil && i+1 < len(blocks) && blocks[i+1] != nil {
			base.NextBlockLabel = schema.StrPtr(blocks[i+1].Base().Label)
		}
		if loop, ok := b.(*schema.ForLoopBlock); ok {
			chainSiblings(loop.LoopBlocks)
		}
	}
}
