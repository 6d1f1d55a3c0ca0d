package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/internal/convert"
	"github.com/rendis/blockflow/internal/editor"
	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/pkg/schema"
)

const sampleJSON = `{"version":2,"parameters":[],"blocks":[
	{"label":"open","block_type":"goto_url","url":"https://example.com","next_block_label":"route"},
	{"label":"route","block_type":"conditional","next_block_label":"pause","branch_conditions":[
		{"id":"yes","is_default":false,"criteria":{"criteria_type":"jinja2_template","expression":"{{ open_output }}"},"next_block_label":"left"},
		{"id":"no","is_default":true,"next_block_label":null}]},
	{"label":"left","block_type":"wait","wait_sec":1,"next_block_label":"pause"},
	{"label":"pause","block_type":"wait","wait_sec":2,"next_block_label":null}]}`

// --- Helpers ---

func newTestServer(t *testing.T) (*BlockflowServer, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	svc, err := editor.New(editor.Deps{Store: st, IDs: convert.SequentialIDs("n"), Logger: logger})
	require.NoError(t, err)
	return NewBlockflowServer(BlockflowServerDeps{Editor: svc, Logger: logger}), st
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func sampleDefinition(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(sampleJSON), &m))
	return m
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

func createSample(t *testing.T, s *BlockflowServer) string {
	t.Helper()
	result, err := s.handleCreate(context.Background(), buildRequest("blockflow.create", map[string]any{
		"title":      "Routing",
		"definition": sampleDefinition(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var created struct {
		WorkflowID string `json:"workflow_id"`
	}
	unmarshalResult(t, result, &created)
	require.NotEmpty(t, created.WorkflowID)
	return created.WorkflowID
}

type loaded struct {
	Title      string         `json:"title"`
	Graph      map[string]any `json:"graph"`
	Parameters []any          `json:"parameters"`
	Restored   bool           `json:"restored_layout"`
}

func nodeIDByLabel(t *testing.T, graph map[string]any, label string) string {
	t.Helper()
	for _, raw := range graph["nodes"].([]any) {
		n := raw.(map[string]any)
		data, _ := n["data"].(map[string]any)
		if data != nil && data["label"] == label {
			return n["id"].(string)
		}
	}
	t.Fatalf("no node labelled %s", label)
	return ""
}

// --- Tests ---

func TestCreateAndLoadTools(t *testing.T) {
	s, st := newTestServer(t)
	id := createSample(t, s)

	wf, err := st.GetWorkflow(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Routing", wf.Title)

	result, err := s.handleLoad(context.Background(), buildRequest("blockflow.load", map[string]any{"workflow_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var sess loaded
	unmarshalResult(t, result, &sess)
	assert.Equal(t, "Routing", sess.Title)
	assert.NotEmpty(t, sess.Graph["nodes"])
}

func TestCreateTool_DefinitionText(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleCreate(context.Background(), buildRequest("blockflow.create", map[string]any{
		"title": "From YAML",
		"definition_text": strings.Join([]string{
			"version: 2",
			"parameters: []",
			"blocks:",
			"  - label: pause",
			"    block_type: wait",
			"    wait_sec: 3",
			"    next_block_label: null",
		}, "\n"),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, extractText(t, result))
}

func TestCreateTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleCreate(context.Background(), buildRequest("blockflow.create", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleCreate(context.Background(), buildRequest("blockflow.create", map[string]any{
		"title": "Dup",
		"definition_text": `{"version":2,"parameters":[],"blocks":[
			{"label":"a","block_type":"wait","wait_sec":1,"next_block_label":null},
			{"label":"a","block_type":"wait","wait_sec":1,"next_block_label":null}]}`,
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	var body struct {
		Error      string                  `json:"error"`
		Validation schema.ValidationResult `json:"validation"`
	}
	unmarshalResult(t, result, &body)
	assert.Contains(t, body.Error, "create failed")
	assert.False(t, body.Validation.Valid())
}

func TestListTool(t *testing.T) {
	s, _ := newTestServer(t)
	createSample(t, s)

	result, err := s.handleList(context.Background(), buildRequest("blockflow.list", map[string]any{
		"title": "rout",
		"limit": float64(10),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var resp struct {
		Workflows []struct {
			Title  string `json:"title"`
			Blocks int    `json:"blocks"`
		} `json:"workflows"`
	}
	unmarshalResult(t, result, &resp)
	require.Len(t, resp.Workflows, 1)
	assert.Equal(t, 4, resp.Workflows[0].Blocks)
}

func TestLoadTool_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleLoad(context.Background(), buildRequest("blockflow.load", map[string]any{"workflow_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeNotFound)
}

func TestSaveTool(t *testing.T) {
	s, st := newTestServer(t)
	id := createSample(t, s)
	ctx := context.Background()

	result, err := s.handleLoad(ctx, buildRequest("blockflow.load", map[string]any{"workflow_id": id}))
	require.NoError(t, err)
	var sess loaded
	unmarshalResult(t, result, &sess)

	result, err = s.handleRename(ctx, buildRequest("blockflow.rename", map[string]any{
		"graph":   sess.Graph,
		"node_id": nodeIDByLabel(t, sess.Graph, "open"),
		"label":   "landing",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var renamed struct {
		Graph map[string]any `json:"graph"`
	}
	unmarshalResult(t, result, &renamed)

	result, err = s.handleSave(ctx, buildRequest("blockflow.save", map[string]any{
		"workflow_id": id,
		"graph":       renamed.Graph,
		"parameters":  []any{},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	wf, err := st.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, wf.Definition.Labels(), "landing")
	assert.NotContains(t, wf.Definition.Labels(), "open")
}

func TestSaveTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleSave(context.Background(), buildRequest("blockflow.save", map[string]any{"workflow_id": "wf"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "graph is required")

	result, err = s.handleSave(context.Background(), buildRequest("blockflow.save", map[string]any{
		"workflow_id": "wf",
		"graph":       map[string]any{"nodes": []any{}, "edges": []any{}},
		"parameters":  "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "invalid parameters")
}

func TestConvertTool_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleConvert(ctx, buildRequest("blockflow.convert", map[string]any{
		"direction":  "to_graph",
		"definition": sampleDefinition(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var toGraph struct {
		Graph map[string]any `json:"graph"`
	}
	unmarshalResult(t, result, &toGraph)

	result, err = s.handleConvert(ctx, buildRequest("blockflow.convert", map[string]any{
		"direction": "to_definition",
		"graph":     toGraph.Graph,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var toDef struct {
		Definition schema.Definition `json:"definition"`
	}
	unmarshalResult(t, result, &toDef)
	assert.ElementsMatch(t, []string{"open", "route", "left", "pause"}, toDef.Definition.Labels())
}

func TestConvertTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleConvert(context.Background(), buildRequest("blockflow.convert", map[string]any{"direction": "sideways"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleConvert(context.Background(), buildRequest("blockflow.convert", map[string]any{"direction": "to_graph"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "definition or definition_text is required")
}

func TestRenameTool_Conflict(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	result, err := s.handleConvert(ctx, buildRequest("blockflow.convert", map[string]any{
		"direction":  "to_graph",
		"definition": sampleDefinition(t),
	}))
	require.NoError(t, err)
	var toGraph struct {
		Graph map[string]any `json:"graph"`
	}
	unmarshalResult(t, result, &toGraph)

	result, err = s.handleRename(ctx, buildRequest("blockflow.rename", map[string]any{
		"graph":   toGraph.Graph,
		"node_id": nodeIDByLabel(t, toGraph.Graph, "open"),
		"label":   "pause",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeConflict)
}

func TestUpgradeTool(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleUpgrade(context.Background(), buildRequest("blockflow.upgrade", map[string]any{
		"definition_text": `{"version":1,"parameters":[],"blocks":[
			{"label":"a","block_type":"wait","wait_sec":1},
			{"label":"b","block_type":"wait","wait_sec":1}]}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var resp struct {
		From       int               `json:"from_version"`
		Definition schema.Definition `json:"definition"`
	}
	unmarshalResult(t, result, &resp)
	assert.Equal(t, 1, resp.From)
	assert.Equal(t, schema.CurrentVersion, resp.Definition.Version)
	assert.Equal(t, "b", schema.Deref(resp.Definition.Blocks[0].Base().NextBlockLabel))
}

func TestValidateTool(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleValidate(context.Background(), buildRequest("blockflow.validate", map[string]any{
		"definition": sampleDefinition(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var vr schema.ValidationResult
	unmarshalResult(t, result, &vr)
	assert.True(t, vr.Valid())
}

func TestDiagramTool(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSample(t, s)

	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, text string)
	}{
		{"mermaid", "mermaid", func(t *testing.T, text string) {
			assert.True(t, strings.HasPrefix(text, "graph TD"))
			assert.Contains(t, text, "Routing")
		}},
		{"ascii", "ascii", func(t *testing.T, text string) {
			assert.Contains(t, text, "pause")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleDiagram(context.Background(), buildRequest("blockflow.diagram", map[string]any{
				"workflow_id": id,
				"format":      tc.format,
			}))
			require.NoError(t, err)
			require.False(t, result.IsError, extractText(t, result))
			tc.check(t, extractText(t, result))
		})
	}
}

func TestDiagramTool_InlineImage(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleDiagram(context.Background(), buildRequest("blockflow.diagram", map[string]any{
		"definition": sampleDefinition(t),
		"format":     "image",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	png, err := base64.StdEncoding.DecodeString(extractText(t, result))
	require.NoError(t, err)
	assert.True(t, len(png) > 8 && string(png[1:4]) == "PNG")
}

func TestDiagramTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleDiagram(context.Background(), buildRequest("blockflow.diagram", map[string]any{"format": "bmp"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleDiagram(context.Background(), buildRequest("blockflow.diagram", map[string]any{"format": "mermaid"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryTool(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSample(t, s)

	result, err := s.handleQuery(context.Background(), buildRequest("blockflow.query", map[string]any{
		"workflow_id": id,
		"query":       `[.blocks[] | select(.block_type == "wait") | .label]`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var resp struct {
		Results []any `json:"results"`
	}
	unmarshalResult(t, result, &resp)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, []any{"left", "pause"}, resp.Results[0])
}

func TestQueryTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleQuery(context.Background(), buildRequest("blockflow.query", map[string]any{"query": ".blocks"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleQuery(context.Background(), buildRequest("blockflow.query", map[string]any{
		"query":      ".blocks[",
		"definition": sampleDefinition(t),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	assert.Equal(t, 5, extractInt(nil, "limit", 5))
	assert.Equal(t, 7, extractInt(map[string]any{"limit": float64(7)}, "limit", 5))
	assert.Equal(t, 9, extractInt(map[string]any{"limit": "9"}, "limit", 5))
	assert.Equal(t, 5, extractInt(map[string]any{"limit": "x"}, "limit", 5))
}
