package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/blockflow/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	model := sampleModel(t, nil)
	output := RenderMermaid(model)

	assert.Contains(t, output, "graph TD")
	assert.Contains(t, output, "%% Scraper")

	// Shapes by kind.
	assert.Contains(t, output, `(("Start"))`)
	assert.Contains(t, output, `{"route"}`)
	assert.Contains(t, output, `[("done")]`)
	assert.Contains(t, output, `[["rows"]]`)
	assert.Contains(t, output, `(["left"])`)
	assert.Contains(t, output, `["open"]`)

	// Child scopes.
	assert.Contains(t, output, `subgraph`)
	assert.Contains(t, output, `"rows: body"`)
	assert.Contains(t, output, `"route: b (default) (inactive)"`)
	assert.Contains(t, output, "-->|each|")
	assert.Contains(t, output, "-->|a|")
	assert.Contains(t, output, "classDef error")
}

func TestRenderMermaidIssues(t *testing.T) {
	result := &schema.ValidationResult{}
	result.AddError("blocks[cell]", schema.ErrCodeValidation, "broken")

	model := sampleModel(t, result)
	cell := byBlock(t, model, "cell")

	assert.Contains(t, RenderMermaid(model), "class "+mermaidSafeID(cell.ID)+" error")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
	assert.Equal(t, "x_b__default_", mermaidSafeID("x_b (default)"))
}
