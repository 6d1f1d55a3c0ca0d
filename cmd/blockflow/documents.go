package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/diagram"
	"github.com/rendis/blockflow/internal/upgrade"
	"github.com/rendis/blockflow/pkg/schema"
)

// graphDocument is the file form of an editor graph.
type graphDocument struct {
	Graph      canvas.Graph       `json:"graph"`
	Parameters []schema.Parameter `json:"parameters"`
}

func newConvertCmd(a *app) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "convert <file|->",
		Short: "Convert a definition to a graph document, or a graph document back to a definition",
		Long: `convert detects its input. A file holding "nodes" or "graph" is a graph
document and is serialized to a definition; anything else is parsed as a
JSON or YAML definition and converted to a laid-out graph document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := a.newEditor()
			if err != nil {
				return err
			}

			if doc, ok, err := parseGraphDocument(data); err != nil {
				return err
			} else if ok {
				def, result, err := svc.ToDefinition(doc.Graph, doc.Parameters)
				if err != nil {
					return err
				}
				reportIssues(cmd.ErrOrStderr(), result)
				return writeDefinition(cmd, out, format, def)
			}

			def, err := schema.ParseAny(data)
			if err != nil {
				return fmt.Errorf("parse definition: %w", err)
			}
			g, err := svc.ToGraph(def)
			if err != nil {
				return err
			}
			reportIssues(cmd.ErrOrStderr(), svc.Validate(def))
			return writeJSONOutput(cmd, out, graphDocument{Graph: g, Parameters: def.Parameters})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "definition output format: json or yaml")
	return cmd
}

func newUpgradeCmd(a *app) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "upgrade <file|->",
		Short: "Upgrade a definition to the current version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := readDefinition(cmd, args[0])
			if err != nil {
				return err
			}
			up, err := upgrade.Upgrade(def)
			if err != nil {
				return err
			}
			if def.Version != up.Version {
				a.logger.Info("definition upgraded", "from", def.Version, "to", up.Version)
			}
			return writeDefinition(cmd, out, format, up)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate a definition; exits non-zero when it has errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := readDefinition(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := a.newEditor()
			if err != nil {
				return err
			}
			result := svc.Validate(def)
			if asJSON {
				if err := writeJSONOutput(cmd, "", result); err != nil {
					return err
				}
			} else {
				printIssues(cmd.OutOrStdout(), result)
			}
			if !result.Valid() {
				return fmt.Errorf("definition has %d error(s)", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the validation result as JSON")
	return cmd
}

func newDiagramCmd(a *app) *cobra.Command {
	var out, formatName, workflowID, title string
	cmd := &cobra.Command{
		Use:   "diagram [file|-]",
		Short: "Draw a definition or a stored workflow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := diagram.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if (workflowID == "") == (len(args) == 0) {
				return fmt.Errorf("pass either a file or --workflow")
			}
			if format == diagram.FormatImage && out == "" {
				return fmt.Errorf("image output needs --output")
			}

			var (
				g      canvas.Graph
				result *schema.ValidationResult
			)
			if workflowID != "" {
				svc, closeStore, err := a.openEditor(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				sess, err := svc.Load(cmd.Context(), workflowID)
				if err != nil {
					return err
				}
				g, result = sess.Graph, sess.Validation
				if title == "" {
					title = sess.Title
				}
			} else {
				def, err := readDefinition(cmd, args[0])
				if err != nil {
					return err
				}
				svc, err := a.newEditor()
				if err != nil {
					return err
				}
				if g, err = svc.ToGraph(def); err != nil {
					return err
				}
				result = svc.Validate(def)
			}

			model, err := diagram.Build(title, g, result)
			if err != nil {
				return err
			}
			data, _, err := diagram.Render(cmd.Context(), model, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&formatName, "format", "mermaid", "mermaid, ascii, image or svg")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "stored workflow to draw")
	cmd.Flags().StringVar(&title, "title", "", "diagram title")
	return cmd
}

// --- I/O helpers ---

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func readDefinition(cmd *cobra.Command, path string) (*schema.Definition, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	def, err := schema.ParseAny(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return def, nil
}

// parseGraphDocument reports whether data is a graph document, either bare
// ({"nodes": ..., "edges": ...}) or wrapped ({"graph": ..., "parameters": ...}).
func parseGraphDocument(data []byte) (graphDocument, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return graphDocument{}, false, nil
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &shape); err != nil {
		return graphDocument{}, false, nil
	}
	var doc graphDocument
	switch {
	case shape["graph"] != nil:
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return doc, false, fmt.Errorf("parse graph document: %w", err)
		}
	case shape["nodes"] != nil:
		if err := json.Unmarshal(trimmed, &doc.Graph); err != nil {
			return doc, false, fmt.Errorf("parse graph: %w", err)
		}
	default:
		return doc, false, nil
	}
	return doc, true, nil
}

func writeDefinition(cmd *cobra.Command, out, format string, def *schema.Definition) error {
	switch strings.ToLower(format) {
	case "", "json":
		return writeJSONOutput(cmd, out, def)
	case "yaml", "yml":
		data, err := schema.ToYAML(def)
		if err != nil {
			return err
		}
		return writeOutput(cmd, out, data)
	}
	return fmt.Errorf("unknown format %q (want json or yaml)", format)
}

func writeJSONOutput(cmd *cobra.Command, out string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(cmd, out, append(data, '\n'))
}

func writeOutput(cmd *cobra.Command, out string, data []byte) error {
	if out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

func printIssues(w io.Writer, result *schema.ValidationResult) {
	if result.Valid() && len(result.Warnings) == 0 {
		fmt.Fprintln(w, "valid")
		return
	}
	for _, issue := range result.Issues() {
		fmt.Fprintf(w, "%-7s %s %s: %s\n", issue.Severity, issue.Code, issue.Path, issue.Message)
	}
}

// reportIssues prints issues to w only when there are any.
func reportIssues(w io.Writer, result *schema.ValidationResult) {
	if result == nil || (result.Valid() && len(result.Warnings) == 0) {
		return
	}
	printIssues(w, result)
}
