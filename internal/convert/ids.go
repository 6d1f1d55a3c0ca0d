// Package convert translates between a workflow definition and its
// presentation graph. Loading builds nodes, utility markers, and edges from
// the label chain; serializing walks edges back into an ordered, nested block
// list with next_block_label recomputed.
package convert

import (
	"strconv"

	"github.com/google/uuid"
)

// IDSource hands out node ids. Every id is assigned once, up front, before
// any edge refers to it.
type IDSource func() string

// UUIDs is the default IDSource.
func UUIDs() IDSource {
	return uuid.NewString
}

// SequentialIDs returns prefix1, prefix2, ... Useful where stable ids matter,
// such as golden files and tests.
func SequentialIDs(prefix string) IDSource {
	n := 0
	return func() string {
		n++
		return prefix + strconv.Itoa(n)
	}
}
