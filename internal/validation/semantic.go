package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/blockflow/internal/expressions"
	"github.com/rendis/blockflow/internal/labels"
	"github.com/rendis/blockflow/pkg/schema"
)

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// semanticPass holds what every block check needs: the names a block may
// reference and the checkers for embedded expressions and schemas.
type semanticPass struct {
	jsv      *JSONSchemaValidator
	criteria *expressions.CriteriaChecker
	keys     map[string]bool
	labels   map[string]int
	reported map[string]bool
	result   *schema.ValidationResult
}

// validateSemantic checks labels, parameters, references between blocks,
// loop sources, branch shapes and embedded expressions.
func validateSemantic(def *schema.Definition, jsv *JSONSchemaValidator) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	vars := expressions.DefinitionVariables(def)
	criteria, err := expressions.NewCriteriaChecker(vars)
	if err != nil {
		result.AddError("blocks", schema.ErrCodeValidation, err.Error())
		return result
	}

	p := &semanticPass{
		jsv:      jsv,
		criteria: criteria,
		keys:     make(map[string]bool, len(vars)),
		labels:   make(map[string]int),
		reported: make(map[string]bool),
		result:   result,
	}
	for _, v := range vars {
		p.keys[v] = true
	}

	p.checkParameters(def.Parameters)
	schema.Walk(def.Blocks, func(b schema.Block, _ int) bool {
		p.labels[b.Base().Label]++
		return true
	})
	p.checkScope(def.Blocks)
	return result
}

func (p *semanticPass) checkParameters(params []schema.Parameter) {
	seen := make(map[string]bool, len(params))
	for i, param := range params {
		path := fmt.Sprintf("parameters[%d].key", i)
		if param.Key == "" {
			p.result.AddError(path, schema.ErrCodeValidation, "parameter key is empty")
			continue
		}
		if seen[param.Key] {
			p.result.AddError(path, schema.ErrCodeConflict,
				fmt.Sprintf("duplicate parameter key %q", param.Key))
		}
		seen[param.Key] = true
		if param.SourceParameterKey != nil && !p.keys[*param.SourceParameterKey] {
			p.result.AddWarning(fmt.Sprintf("parameters[%d].source_parameter_key", i), schema.ErrCodeValidation,
				fmt.Sprintf("references unknown key %q", *param.SourceParameterKey))
		}
	}
}

// blockPath names a block in issue paths. Unlabelled blocks fall back to
// their position within the scope.
func blockPath(b schema.Block, i int) string {
	if l := b.Base().Label; l != "" {
		return schema.BlockPath(l)
	}
	return fmt.Sprintf("blocks[#%d]", i)
}

func (p *semanticPass) checkScope(blocks schema.Blocks) {
	inScope := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if b != nil {
			inScope[b.Base().Label] = true
		}
	}
	for i, b := range blocks {
		if b == nil {
			p.result.AddError(fmt.Sprintf("blocks[#%d]", i), schema.ErrCodeValidation, "block is null")
			continue
		}
		path := blockPath(b, i)
		label := b.Base().Label

		switch {
		case label == "":
			p.result.AddError(path+".label", schema.ErrCodeValidation, "label is empty")
		case !labels.IsValid(label):
			p.result.AddError(path+".label", schema.ErrCodeValidation,
				fmt.Sprintf("label %q is not a valid identifier", label))
		case p.labels[label] > 1 && !p.reported[label]:
			p.reported[label] = true
			p.result.AddError(path+".label", schema.ErrCodeConflict,
				fmt.Sprintf("label %q is used by %d blocks", label, p.labels[label]))
		}

		p.checkReference(path+".next_block_label", b.Base().NextBlockLabel, inScope)
		p.checkBlock(b, path, inScope)
	}
}

// checkReference reports a label that does not name a block of the same
// scope. Chains never cross a loop boundary.
func (p *semanticPass) checkReference(path string, ref *string, inScope map[string]bool) {
	if ref == nil || inScope[*ref] {
		return
	}
	if p.labels[*ref] > 0 {
		p.result.AddError(path, schema.ErrCodeValidation,
			fmt.Sprintf("%q belongs to a different scope", *ref))
		return
	}
	p.result.AddError(path, schema.ErrCodeValidation,
		fmt.Sprintf("references unknown block %q", *ref))
}

func (p *semanticPass) checkBlock(b schema.Block, path string, inScope map[string]bool) {
	p.checkParameterKeys(path, parameterKeys(b))

	switch v := b.(type) {
	case *schema.ForLoopBlock:
		p.checkLoop(v, path)
		p.checkScope(v.LoopBlocks)
	case *schema.ConditionalBlock:
		p.checkConditional(v, path, inScope)
	case *schema.TaskBlock:
		p.checkDataSchema(path+".data_schema", v.DataSchema)
	case *schema.ExtractionBlock:
		p.checkDataSchema(path+".data_schema", v.DataSchema)
	case *schema.TextPromptBlock:
		p.checkDataSchema(path+".json_schema", v.JSONSchema)
	case *schema.FileURLParserBlock:
		p.checkDataSchema(path+".json_schema", v.JSONSchema)
	case *schema.PDFParserBlock:
		p.checkDataSchema(path+".json_schema", v.JSONSchema)
	case *schema.HTTPRequestBlock:
		if v.Method != "" && !httpMethods[strings.ToUpper(v.Method)] {
			p.result.AddError(path+".method", schema.ErrCodeValidation,
				fmt.Sprintf("unsupported HTTP method %q", v.Method))
		}
		if v.URL == "" {
			p.result.AddWarning(path+".url", schema.ErrCodeValidation, "http_request has no url")
		}
	}
}

func (p *semanticPass) checkParameterKeys(path string, keys []string) {
	for i, k := range keys {
		if !p.keys[k] {
			p.result.AddWarning(fmt.Sprintf("%s.parameter_keys[%d]", path, i), schema.ErrCodeValidation,
				fmt.Sprintf("references unknown parameter %q", k))
		}
	}
}

func (p *semanticPass) checkLoop(loop *schema.ForLoopBlock, path string) {
	ref := strings.TrimSpace(schema.Deref(loop.LoopVariableReference))
	switch {
	case loop.LoopOverParameterKey == "" && ref == "":
		p.result.AddError(path+".loop_over_parameter_key", schema.ErrCodeValidation,
			"for_loop needs loop_over_parameter_key or loop_variable_reference")
	case loop.LoopOverParameterKey != "" && !p.keys[loop.LoopOverParameterKey]:
		p.result.AddWarning(path+".loop_over_parameter_key", schema.ErrCodeValidation,
			fmt.Sprintf("references unknown key %q", loop.LoopOverParameterKey))
	}
	if len(loop.LoopBlocks) == 0 {
		p.result.AddWarning(path+".loop_blocks", schema.ErrCodeValidation, "for_loop has no blocks")
	}
}

func (p *semanticPass) checkConditional(c *schema.ConditionalBlock, path string, inScope map[string]bool) {
	if len(c.BranchConditions) == 0 {
		p.result.AddWarning(path+".branch_conditions", schema.ErrCodeValidation, "conditional has no branches")
		return
	}

	ids := make(map[string]bool, len(c.BranchConditions))
	defaults := 0
	for i, bc := range c.BranchConditions {
		bpath := fmt.Sprintf("%s.branch_conditions[%d]", path, i)
		switch {
		case bc.ID == "":
			p.result.AddError(bpath+".id", schema.ErrCodeValidation, "branch id is empty")
		case ids[bc.ID]:
			p.result.AddError(bpath+".id", schema.ErrCodeConflict, fmt.Sprintf("duplicate branch id %q", bc.ID))
		}
		ids[bc.ID] = true

		if bc.IsDefault {
			defaults++
		} else {
			p.checkCriteria(bpath+".criteria", bc.Criteria)
		}
		p.checkReference(bpath+".next_block_label", bc.NextBlockLabel, inScope)
	}

	switch {
	case defaults > 1:
		p.result.AddError(path+".branch_conditions", schema.ErrCodeValidation,
			fmt.Sprintf("conditional has %d default branches", defaults))
	case defaults == 0:
		p.result.AddWarning(path+".branch_conditions", schema.ErrCodeValidation,
			"conditional has no default branch")
	}
}

// checkCriteria requires a criteria on every non-default branch. Template
// bodies are Jinja rather than expr, so a body that does not compile is only
// a warning; broken delimiters and CEL failures are errors.
func (p *semanticPass) checkCriteria(path string, c *schema.BranchCriteria) {
	if c == nil || strings.TrimSpace(c.Expression) == "" {
		p.result.AddError(path, schema.ErrCodeValidation, "non-default branch needs a criteria expression")
		return
	}
	if c.CriteriaType == "" || c.CriteriaType == schema.CriteriaJinja {
		if _, err := expressions.TemplateBodies(c.Expression); err != nil {
			p.result.AddError(path+".expression", schema.ErrCodeValidation, errMessage(err))
			return
		}
		if err := p.criteria.Check(c); err != nil {
			p.result.AddWarning(path+".expression", schema.ErrCodeValidation, errMessage(err))
		}
		return
	}
	if err := p.criteria.Check(c); err != nil {
		p.result.AddError(path+".expression", schema.ErrCodeValidation, errMessage(err))
	}
}

func (p *semanticPass) checkDataSchema(path string, value any) {
	if err := p.jsv.CompileDataSchema(value); err != nil {
		p.result.AddError(path, schema.ErrCodeMalformedField, errMessage(err))
	}
}

func errMessage(err error) string {
	if be, ok := err.(*schema.BlockflowError); ok {
		return be.Message
	}
	return err.Error()
}

// parameterKeys returns the parameter_keys of the block kinds that carry them.
func parameterKeys(b schema.Block) []string {
	switch v := b.(type) {
	case *schema.TaskBlock:
		return v.ParameterKeys
	case *schema.NavigationBlock:
		return v.ParameterKeys
	case *schema.ActionBlock:
		return v.ParameterKeys
	case *schema.ExtractionBlock:
		return v.ParameterKeys
	case *schema.LoginBlock:
		return v.ParameterKeys
	case *schema.ValidationBlock:
		return v.ParameterKeys
	case *schema.FileDownloadBlock:
		return v.ParameterKeys
	case *schema.TextPromptBlock:
		return v.ParameterKeys
	case *schema.CodeBlock:
		return v.ParameterKeys
	case *schema.HTTPRequestBlock:
		return v.ParameterKeys
	}
	return nil
}
