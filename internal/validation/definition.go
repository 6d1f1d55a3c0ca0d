package validation

import (
	"fmt"

	"github.com/rendis/blockflow/internal/upgrade"
	"github.com/rendis/blockflow/pkg/schema"
)

// DefinitionValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (labels, references, loops, branches, embedded expressions)
// 3. Chains (cycles, reachability)
type DefinitionValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewDefinitionValidator creates a DefinitionValidator.
func NewDefinitionValidator() (*DefinitionValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DefinitionValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and chain stages are skipped.
// Definitions older than schema.CurrentVersion have their chains checked
// after upgrading.
func (v *DefinitionValidator) Validate(def *schema.Definition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "definition is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := structuralResult(v.jsonSchema.ValidateDefinition(def))
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(def, v.jsonSchema))
	if !result.Valid() {
		return result
	}

	// Stage 3: Chains.
	chained := def
	if def.Version < schema.CurrentVersion {
		result.AddWarning("version", schema.ErrCodeValidation,
			fmt.Sprintf("version %d predates explicit next_block_label chains and will be upgraded", def.Version))
		up, err := upgrade.Upgrade(def)
		if err != nil {
			result.AddError("version", schema.ErrCodeValidation, err.Error())
			return result
		}
		chained = up
	}
	result.Merge(validateChains(chained))

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (v *DefinitionValidator) ValidateDefinition(def *schema.Definition) error {
	return v.Validate(def).ToError()
}

// ValidateDocument validates a raw JSON document. The decoded definition is
// returned whenever the document passes the structural stage.
func (v *DefinitionValidator) ValidateDocument(raw []byte) (*schema.Definition, *schema.ValidationResult) {
	result := structuralResult(v.jsonSchema.ValidateDocument(raw))
	if !result.Valid() {
		return nil, result
	}
	def, err := schema.ParseJSON(raw)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}
	result.Merge(v.Validate(def))
	return def, result
}

// DataSchema checks a data_schema or json_schema value on its own.
func (v *DefinitionValidator) DataSchema(value any) error {
	return v.jsonSchema.CompileDataSchema(value)
}

// structuralResult converts a JSONSchemaValidator error into a
// ValidationResult with one issue per violation.
func structuralResult(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	be, ok := err.(*schema.BlockflowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if be.Details != nil {
		if violations, ok := be.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, be.Message)
	return result
}

var _ Validator = (*DefinitionValidator)(nil)
