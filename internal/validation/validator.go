// Package validation checks workflow definitions before they are persisted:
// structure against an embedded JSON Schema, then label, reference and field
// semantics, then the shape of every next_block_label chain.
package validation

import "github.com/rendis/blockflow/pkg/schema"

// Validator checks definitions for correctness.
type Validator interface {
	Validate(def *schema.Definition) *schema.ValidationResult
	ValidateDefinition(def *schema.Definition) error
}
