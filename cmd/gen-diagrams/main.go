// gen-diagrams renders the sample definitions under examples/ in every
// diagram format, for the README.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/blockflow/internal/diagram"
	"github.com/rendis/blockflow/internal/editor"
	"github.com/rendis/blockflow/pkg/schema"
)

var extensions = map[diagram.Format]string{
	diagram.FormatMermaid: ".mmd",
	diagram.FormatASCII:   ".txt",
	diagram.FormatImage:   ".png",
	diagram.FormatSVG:     ".svg",
}

func main() {
	if err := run(context.Background(), "examples", filepath.Join("docs", "assets")); err != nil {
		fmt.Fprintf(os.Stderr, "gen-diagrams: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, srcDir, outDir string) error {
	svc, err := editor.New(editor.Deps{})
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".json" && ext != ".yaml" && ext != ".yml") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		data, err := os.ReadFile(filepath.Join(srcDir, e.Name()))
		if err != nil {
			return err
		}
		def, err := schema.ParseAny(data)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		g, err := svc.ToGraph(def)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		model, err := diagram.Build(name, g, svc.Validate(def))
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}

		for _, format := range diagram.Formats {
			out, _, err := diagram.Render(ctx, model, format)
			if err != nil {
				// graphviz can be unavailable; the text formats still get written.
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", name, format, err)
				continue
			}
			path := filepath.Join(outDir, name+extensions[format])
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return err
			}
			fmt.Printf("written: %s (%d bytes)\n", path, len(out))
		}
	}
	return nil
}
