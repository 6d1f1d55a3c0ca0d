package expressions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/pkg/schema"
)

func TestNewTemplateChecker(t *testing.T) {
	c := NewTemplateChecker()
	assert.NotNil(t, c)
	assert.Equal(t, "jinja2_template", c.Name())
}

func TestTemplateBodies(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []string
	}{
		{"plain text", "always", nil},
		{"single", "{{ a > 1 }}", []string{"a > 1"}},
		{"surrounding text", "total is {{total}} units", []string{"total"}},
		{"several", "{{ a }} and {{ b.c }}", []string{"a", "b.c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TemplateBodies(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateBodies_Malformed(t *testing.T) {
	for _, tmpl := range []string{"{{ a", "ok {{ }} ok", "{{}}"} {
		_, err := TemplateBodies(tmpl)
		require.Error(t, err, tmpl)
		assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	}
}

// --- Check ---

func TestTemplate_ValidBodies(t *testing.T) {
	c := NewTemplateChecker()

	for _, expr := range []string{
		"{{ price_output.total >= 100 and in_stock }}",
		"{{ len(rows_output) > 0 }}",
		"{{ status == \"done\" || retries < 3 }}",
		"no placeholders at all",
	} {
		assert.NoError(t, c.Check(expr), expr)
	}
}

func TestTemplate_InvalidBody(t *testing.T) {
	c := NewTemplateChecker()

	err := c.Check("{{ a > }}")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	var be *schema.BlockflowError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "a >", be.Details["expression"])
}

func TestTemplate_Empty(t *testing.T) {
	c := NewTemplateChecker()
	assert.Error(t, c.Check("   "))
}

func TestTemplate_CacheReuse(t *testing.T) {
	c := NewTemplateChecker()

	require.NoError(t, c.Check("{{ x > 1 }}"))
	require.NoError(t, c.Check("before {{ x > 1 }} after"))
	assert.Len(t, c.cache, 1)
}

func TestTemplate_Concurrent(t *testing.T) {
	c := NewTemplateChecker()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Check("{{ count_output > 3 }}")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, c.cache, 1)
}
