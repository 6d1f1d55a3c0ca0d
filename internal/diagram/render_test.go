package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/pkg/schema"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatMermaid},
		{"Mermaid", FormatMermaid},
		{"ascii", FormatASCII},
		{"png", FormatImage},
		{"image", FormatImage},
		{" svg ", FormatSVG},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("gif")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRender(t *testing.T) {
	model := sampleModel(t, nil)
	ctx := context.Background()

	data, ct, err := Render(ctx, model, FormatMermaid)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
	assert.Contains(t, string(data), "graph TD")

	data, ct, err = Render(ctx, model, FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
	assert.NotEmpty(t, data)

	_, _, err = Render(ctx, model, Format("gif"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
