package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/convert"
	"github.com/rendis/blockflow/internal/editor"
	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/internal/streaming"
	"github.com/rendis/blockflow/pkg/schema"
)

const sampleJSON = `{"version":2,"parameters":[],"blocks":[
	{"label":"open","block_type":"goto_url","url":"https://example.com","next_block_label":"route"},
	{"label":"route","block_type":"conditional","next_block_label":"pause","branch_conditions":[
		{"id":"yes","is_default":false,"criteria":{"criteria_type":"jinja2_template","expression":"{{ open_output }}"},"next_block_label":"left"},
		{"id":"no","is_default":true,"next_block_label":null}]},
	{"label":"left","block_type":"wait","wait_sec":1,"next_block_label":"pause"},
	{"label":"pause","block_type":"wait","wait_sec":2,"next_block_label":null}]}`

type testEnv struct {
	handler http.Handler
	store   *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	hub := streaming.NewMemoryHub()
	t.Cleanup(hub.Close)
	svc, err := editor.New(editor.Deps{Store: st, Hub: hub, IDs: convert.SequentialIDs("n"), Logger: logger})
	require.NoError(t, err)
	srv := NewServer(Deps{Editor: svc, Hub: hub, Logger: logger})
	return &testEnv{handler: srv.Handler(), store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) seed(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"title":      "Routing",
		"definition": json.RawMessage(sampleJSON),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Workflow store.Workflow `json:"workflow"`
	}](t, w)
	return resp.Workflow.ID
}

type sessionResponse struct {
	WorkflowID string                  `json:"workflow_id"`
	Title      string                  `json:"title"`
	Parameters []schema.Parameter      `json:"parameters"`
	Graph      canvas.Graph            `json:"graph"`
	Restored   bool                    `json:"restored_layout"`
	Validation schema.ValidationResult `json:"validation"`
}

func labelled(t *testing.T, g canvas.Graph, label string) canvas.Node {
	t.Helper()
	for _, n := range g.Nodes {
		if !n.IsUtility() && n.Label() == label {
			return n
		}
	}
	t.Fatalf("no node labelled %s", label)
	return canvas.Node{}
}

// --- Workflows ---

func TestCreateAndGetWorkflow(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t)

	w := env.do(t, http.MethodGet, "/api/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	wf := decode[store.Workflow](t, w)
	assert.Equal(t, "Routing", wf.Title)
	assert.Equal(t, []string{"open", "route", "left", "pause"}, wf.Definition.Labels())
}

func TestCreateWorkflow_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/workflows", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/workflows", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, schema.ErrCodeMalformedField, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"title": "Dup",
		"definition": json.RawMessage(`{"version":2,"parameters":[],"blocks":[
			{"label":"a","block_type":"wait","wait_sec":1,"next_block_label":null},
			{"label":"a","block_type":"wait","wait_sec":1,"next_block_label":null}]}`),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, schema.ErrCodeValidation, body.Code)
	require.NotNil(t, body.Validation)
	assert.False(t, body.Validation.Valid())
}

func TestListWorkflows(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/workflows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	env.seed(t)
	w = env.do(t, http.MethodPost, "/api/workflows", map[string]any{"title": "Other"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/workflows?title=rout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]store.Workflow](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Routing", list[0].Title)
}

func TestDeleteWorkflow(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t)

	w := env.do(t, http.MethodDelete, "/api/workflows/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/workflows/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, schema.ErrCodeNotFound, decode[errorBody](t, w).Code)

	w = env.do(t, http.MethodDelete, "/api/workflows/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Graph ---

func TestGraphSaveAndReload(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t)

	w := env.do(t, http.MethodGet, "/api/workflows/"+id+"/graph", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess := decode[sessionResponse](t, w)
	assert.Equal(t, "Routing", sess.Title)
	assert.False(t, sess.Restored)
	assert.ElementsMatch(t, []string{"open", "route", "left", "pause"}, sess.Graph.Labels())

	g := sess.Graph.Clone()
	pause := labelled(t, g, "pause")
	for i := range g.Nodes {
		if g.Nodes[i].ID == pause.ID {
			g.Nodes[i].Position = canvas.Position{X: 700, Y: 900}
		}
	}
	w = env.do(t, http.MethodPut, "/api/workflows/"+id+"/graph", graphPayload{Graph: g, Parameters: sess.Parameters})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/workflows/"+id+"/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reloaded := decode[sessionResponse](t, w)
	assert.True(t, reloaded.Restored)
	assert.Equal(t, canvas.Position{X: 700, Y: 900}, labelled(t, reloaded.Graph, "pause").Position)

	revs, err := env.store.ListRevisions(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestRevisionsAndRevert(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t)

	w := env.do(t, http.MethodGet, "/api/workflows/"+id+"/revisions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	sess := decode[sessionResponse](t, env.do(t, http.MethodGet, "/api/workflows/"+id+"/graph", nil))
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodPut, "/api/workflows/"+id+"/graph", graphPayload{Graph: sess.Graph, Parameters: sess.Parameters}).Code)

	w = env.do(t, http.MethodPost, "/api/graph/blocks/"+labelled(t, sess.Graph, "route").ID+"/remove",
		map[string]any{"graph": sess.Graph})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	trimmed := decode[editResponse](t, w).Graph
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodPut, "/api/workflows/"+id+"/graph", graphPayload{Graph: trimmed}).Code)

	w = env.do(t, http.MethodPost, "/api/workflows/"+id+"/revisions/1/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	restored := decode[store.Workflow](t, w)
	assert.ElementsMatch(t, []string{"open", "route", "left", "pause"}, restored.Definition.Labels())

	revs := decode[[]store.Revision](t, env.do(t, http.MethodGet, "/api/workflows/"+id+"/revisions", nil))
	require.Len(t, revs, 3)
	assert.Equal(t, int64(3), revs[2].Sequence)
	assert.Equal(t, "revert to 1", revs[2].Note)

	assert.Equal(t, http.StatusUnprocessableEntity,
		env.do(t, http.MethodPost, "/api/workflows/"+id+"/revisions/zero/restore", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/workflows/"+id+"/revisions/9/restore", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodGet, "/api/workflows/missing/revisions", nil).Code)
}

func TestSaveGraph_RejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t)

	w := env.do(t, http.MethodGet, "/api/workflows/"+id+"/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[sessionResponse](t, w).Graph.Clone()
	for i, n := range g.Nodes {
		if !n.IsUtility() && n.Label() == "left" {
			bd := n.Data.Block()
			bd.Label = "open"
			g.Nodes[i].Data = n.Data.WithBlock(bd)
		}
	}

	w = env.do(t, http.MethodPut, "/api/workflows/"+id+"/graph", graphPayload{Graph: g})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body := decode[errorBody](t, w)
	require.NotNil(t, body.Validation)
	assert.NotEmpty(t, body.Validation.Errors)
}

func TestDiagram(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t)

	w := env.do(t, http.MethodGet, "/api/workflows/"+id+"/diagram", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))

	w = env.do(t, http.MethodGet, "/api/workflows/"+id+"/diagram?format=bmp", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet, "/api/workflows/missing/diagram", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Stateless conversion ---

func TestConvertRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/convert/to-graph", sampleJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	toGraph := decode[struct {
		Graph      canvas.Graph            `json:"graph"`
		Validation schema.ValidationResult `json:"validation"`
	}](t, w)
	assert.True(t, toGraph.Validation.Valid())

	w = env.do(t, http.MethodPost, "/api/convert/to-definition", graphPayload{Graph: toGraph.Graph})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	toDef := decode[struct {
		Definition schema.Definition `json:"definition"`
	}](t, w)
	assert.ElementsMatch(t, []string{"open", "route", "left", "pause"}, toDef.Definition.Labels())
	for _, b := range toDef.Definition.Blocks {
		if b.Base().Label == "route" {
			assert.Equal(t, "pause", schema.Deref(b.Base().NextBlockLabel))
		}
	}
}

func TestConvertToGraph_Malformed(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/convert/to-graph", "{\"blocks\": [")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpgrade(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/upgrade", `{"version":1,"parameters":[],"blocks":[
		{"label":"a","block_type":"wait","wait_sec":1},
		{"label":"b","block_type":"wait","wait_sec":1}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		From       int               `json:"from_version"`
		Definition schema.Definition `json:"definition"`
	}](t, w)
	assert.Equal(t, 1, resp.From)
	assert.Equal(t, schema.CurrentVersion, resp.Definition.Version)
	assert.Equal(t, "b", schema.Deref(resp.Definition.Blocks[0].Base().NextBlockLabel))
	assert.Nil(t, resp.Definition.Blocks[1].Base().NextBlockLabel)
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/validate", sampleJSON)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[schema.ValidationResult](t, w)
	assert.True(t, result.Valid())
}

// --- Graph edits ---

func TestGraphEdits(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/convert/to-graph", sampleJSON)
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[struct {
		Graph canvas.Graph `json:"graph"`
	}](t, w).Graph

	pause := labelled(t, g, "pause")
	in := g.Incoming(pause.ID)
	require.NotEmpty(t, in)

	w = env.do(t, http.MethodPost, "/api/graph/blocks", map[string]any{
		"graph": g, "edge_id": in[0].ID, "block_type": schema.BlockTypeWait,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	added := decode[editResponse](t, w)
	n, ok := added.Graph.Node(added.NodeID)
	require.True(t, ok)
	assert.Equal(t, "block_1", n.Label())

	w = env.do(t, http.MethodPost, "/api/graph/blocks/"+pause.ID+"/duplicate", map[string]any{"graph": g})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dup := decode[editResponse](t, w)
	n, ok = dup.Graph.Node(dup.NodeID)
	require.True(t, ok)
	assert.Equal(t, "pause_2", n.Label())

	w = env.do(t, http.MethodPost, "/api/graph/blocks/"+pause.ID+"/rename", map[string]any{"graph": g, "label": "hold"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode[editResponse](t, w).Graph.Labels(), "hold")

	w = env.do(t, http.MethodPost, "/api/graph/blocks/"+pause.ID+"/rename", map[string]any{"graph": g, "label": "open"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/graph/blocks/"+labelled(t, g, "route").ID+"/remove", map[string]any{"graph": g})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.ElementsMatch(t, []string{"open", "pause"}, decode[editResponse](t, w).Graph.Labels())

	w = env.do(t, http.MethodPost, "/api/graph/blocks/missing/remove", map[string]any{"graph": g})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetActiveBranchEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/convert/to-graph", sampleJSON)
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[struct {
		Graph canvas.Graph `json:"graph"`
	}](t, w).Graph
	route := labelled(t, g, "route")

	w = env.do(t, http.MethodPost, "/api/graph/conditionals/"+route.ID+"/branch", map[string]any{"graph": g, "branch_id": "no"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, labelled(t, decode[editResponse](t, w).Graph, "left").Hidden)

	w = env.do(t, http.MethodPost, "/api/graph/conditionals/"+route.ID+"/branch", map[string]any{"graph": g, "branch_id": "maybe"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(schema.NewError(schema.ErrCodeNotFound, "x")))
	assert.Equal(t, http.StatusConflict, statusFor(schema.NewError(schema.ErrCodeConflict, "x")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(schema.NewError(schema.ErrCodeCycleDetected, "x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(schema.NewError(schema.ErrCodeUnknownBlockType, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(schema.NewError(schema.ErrCodeStore, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}
