package diagram

import (
	"context"
	"strings"

	"github.com/rendis/blockflow/pkg/schema"
)

// Format names an output format of Render.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
	FormatImage   Format = "image"
	FormatSVG     Format = "svg"
)

// Formats lists every supported format.
var Formats = []Format{FormatMermaid, FormatASCII, FormatImage, FormatSVG}

// ParseFormat resolves a format name case-insensitively; "" is mermaid and
// "png" is image.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatMermaid, nil
	case "png":
		return FormatImage, nil
	case FormatMermaid, FormatASCII, FormatImage, FormatSVG:
		return f, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", s).
		WithDetails(map[string]any{"supported": Formats})
}

// Render draws model in format and returns the bytes with their media type.
func Render(ctx context.Context, model *DiagramModel, format Format) ([]byte, string, error) {
	switch format {
	case FormatMermaid:
		return []byte(RenderMermaid(model)), "text/plain; charset=utf-8", nil
	case FormatASCII:
		return []byte(RenderASCII(model)), "text/plain; charset=utf-8", nil
	case FormatImage:
		data, err := RenderImage(ctx, model)
		return data, "image/png", err
	case FormatSVG:
		data, err := RenderSVG(ctx, model)
		return data, "image/svg+xml", err
	}
	return nil, "", schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format)
}
