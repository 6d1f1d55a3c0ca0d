package editor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/convert"
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

func sampleDef(t *testing.T) *schema.Definition {
	t.Helper()
	def, err := schema.ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)
	return def
}

func newService(t *testing.T, st store.Store) *Service {
	t.Helper()
	var buf bytes.Buffer
	svc, err := New(Deps{
		Store:  st,
		IDs:    convert.SequentialIDs("n"),
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	require.NoError(t, err)
	return svc
}

func nodeByLabel(t *testing.T, g canvas.Graph, label string) canvas.Node {
	t.Helper()
	for _, n := range g.Nodes {
		if !n.IsUtility() && n.Label() == label {
			return n
		}
	}
	t.Fatalf("no node labelled %s", label)
	return canvas.Node{}
}

func setPosition(g canvas.Graph, id string, pos canvas.Position) canvas.Graph {
	out := g.Clone()
	for i := range out.Nodes {
		if out.Nodes[i].ID == id {
			out.Nodes[i].Position = pos
		}
	}
	return out
}

// failingStore rejects definition updates.
type failingStore struct {
	store.Store
}

func (failingStore) UpdateWorkflow(context.Context, string, store.WorkflowUpdate) error {
	return schema.NewError(schema.ErrCodeStore, "disk full")
}

// --- Create / Load ---

func TestCreateAndLoad(t *testing.T) {
	svc := newService(t, store.NewMemoryStore())
	ctx := context.Background()

	wf, result, err := svc.Create(ctx, "Routing", sampleDef(t))
	require.NoError(t, err)
	assert.True(t, result.Valid())

	sess, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Routing", sess.Title)
	assert.Equal(t, schema.CurrentVersion, sess.Version)
	assert.False(t, sess.Upgraded)
	assert.False(t, sess.Restored)
	assert.True(t, sess.Validation.Valid())
	assert.ElementsMatch(t, []string{"open", "route", "left", "pause"}, sess.Graph.Labels())

	open, pause := nodeByLabel(t, sess.Graph, "open"), nodeByLabel(t, sess.Graph, "pause")
	assert.Less(t, open.Position.Y, pause.Position.Y)
}

func TestCreate_Empty(t *testing.T) {
	svc := newService(t, store.NewMemoryStore())
	wf, _, err := svc.Create(context.Background(), "Blank", nil)
	require.NoError(t, err)
	assert.Empty(t, wf.Definition.Blocks)
	assert.Equal(t, schema.CurrentVersion, wf.Definition.Version)
}

func TestCreate_UpgradesLegacy(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)
	def, err := schema.ParseJSON([]byte(`{"version":1,"parameters":[],"blocks":[
		{"label":"a","block_type":"wait","wait_sec":1},
		{"label":"b","block_type":"wait","wait_sec":1}]}`))
	require.NoError(t, err)

	wf, _, err := svc.Create(context.Background(), "Legacy", def)
	require.NoError(t, err)

	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.CurrentVersion, stored.Definition.Version)
	assert.Equal(t, "b", schema.Deref(stored.Definition.Blocks[0].Base().NextBlockLabel))
}

func TestCreate_RejectsInvalid(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)
	def, err := schema.ParseJSON([]byte(`{"version":2,"parameters":[],"blocks":[
		{"label":"dup","block_type":"wait","wait_sec":1,"next_block_label":null},
		{"label":"dup","block_type":"wait","wait_sec":1,"next_block_label":null}]}`))
	require.NoError(t, err)

	_, result, err := svc.Create(context.Background(), "Broken", def)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.False(t, result.Valid())

	list, err := st.ListWorkflows(context.Background(), store.WorkflowFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoad_Errors(t *testing.T) {
	svc := newService(t, store.NewMemoryStore())
	_, err := svc.Load(context.Background(), "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	bare := newService(t, nil)
	_, err = bare.Load(context.Background(), "any")
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}

// --- Save ---

func TestSave_RenameAndRestoreLayout(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)
	ctx := context.Background()
	wf, _, err := svc.Create(ctx, "Routing", sampleDef(t))
	require.NoError(t, err)
	sess, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)

	g, params, err := svc.Rename(sess.Graph, nodeByLabel(t, sess.Graph, "open").ID, "landing", sess.Parameters)
	require.NoError(t, err)
	moved := nodeByLabel(t, g, "pause")
	g = setPosition(g, moved.ID, canvas.Position{X: 999, Y: 888})

	result, err := svc.Save(ctx, wf.ID, g, params)
	require.NoError(t, err)
	assert.True(t, result.Valid())

	stored, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "landing", stored.Definition.Blocks[0].Base().Label)
	assert.Equal(t, "route", schema.Deref(stored.Definition.Blocks[0].Base().NextBlockLabel))

	revs, err := st.ListRevisions(ctx, wf.ID, 0)
	require.NoError(t, err)
	assert.Len(t, revs, 1)

	reloaded, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Restored)
	assert.Equal(t, canvas.Position{X: 999, Y: 888}, nodeByLabel(t, reloaded.Graph, "pause").Position)
}

func TestSave_RejectsInvalidGraph(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)
	ctx := context.Background()
	wf, _, err := svc.Create(ctx, "Routing", sampleDef(t))
	require.NoError(t, err)
	sess, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)

	g := sess.Graph.Clone()
	for i, n := range g.Nodes {
		if !n.IsUtility() && n.Label() == "pause" {
			bd := n.Data.Block()
			bd.Label = "not a label"
			g.Nodes[i].Data = n.Data.WithBlock(bd)
		}
	}

	result, err := svc.Save(ctx, wf.ID, g, sess.Parameters)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	require.NotNil(t, result)
	assert.False(t, result.Valid())

	stored, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Definition.Labels(), "pause")
	_, err = st.GetLayout(ctx, wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSave_StoreFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newService(t, failingStore{Store: mem})
	g, err := svc.ToGraph(sampleDef(t))
	require.NoError(t, err)

	_, err = svc.Save(context.Background(), "wf", g, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
	var bfErr *schema.BlockflowError
	require.True(t, errors.As(err, &bfErr))
	assert.Equal(t, "disk full", bfErr.Message)
}

func TestRevisionsAndRevert(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)
	ctx := context.Background()
	wf, _, err := svc.Create(ctx, "Routing", sampleDef(t))
	require.NoError(t, err)
	sess, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)

	_, err = svc.Save(ctx, wf.ID, sess.Graph, sess.Parameters)
	require.NoError(t, err)
	g, params, err := svc.Rename(sess.Graph, nodeByLabel(t, sess.Graph, "pause").ID, "hold", sess.Parameters)
	require.NoError(t, err)
	_, err = svc.Save(ctx, wf.ID, g, params)
	require.NoError(t, err)

	result, err := svc.Revert(ctx, wf.ID, 1)
	require.NoError(t, err)
	assert.True(t, result.Valid())

	stored, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Definition.Labels(), "pause")
	assert.NotContains(t, stored.Definition.Labels(), "hold")

	revs, err := svc.Revisions(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, "revert to 1", revs[2].Note)

	// The snapshot still names "hold", so the layout is recomputed.
	reloaded, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Restored)

	_, err = svc.Revert(ctx, wf.ID, 7)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = svc.Revisions(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestChangeEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	svc, err := New(Deps{
		Store:  store.NewMemoryStore(),
		Hub:    hub,
		IDs:    convert.SequentialIDs("n"),
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)
	ctx := context.Background()

	events, cancel, err := hub.Subscribe(ctx, streaming.Filter{})
	require.NoError(t, err)
	defer cancel()

	wf, _, err := svc.Create(ctx, "Routing", sampleDef(t))
	require.NoError(t, err)
	sess, err := svc.Load(ctx, wf.ID)
	require.NoError(t, err)
	_, err = svc.Save(ctx, wf.ID, sess.Graph, sess.Parameters)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, wf.ID))

	require.Len(t, events, 3)
	created, saved, deleted := <-events, <-events, <-events
	assert.Equal(t, streaming.EventWorkflowCreated, created.Type)
	assert.Equal(t, "Routing", created.Title)
	assert.Equal(t, 4, created.Blocks)
	assert.Equal(t, streaming.EventWorkflowSaved, saved.Type)
	assert.Equal(t, int64(1), saved.Revision)
	assert.Equal(t, wf.ID, deleted.WorkflowID)
	assert.Equal(t, streaming.EventWorkflowDeleted, deleted.Type)
}

// --- Graph edits ---

func TestAddBlock(t *testing.T) {
	svc := newService(t, nil)
	g, err := svc.ToGraph(sampleDef(t))
	require.NoError(t, err)

	pause := nodeByLabel(t, g, "pause")
	in := g.Incoming(pause.ID)
	require.NotEmpty(t, in)

	out, id, err := svc.AddBlock(g, in[0].ID, schema.BlockTypeWait)
	require.NoError(t, err)
	added, ok := out.Node(id)
	require.True(t, ok)
	assert.Equal(t, "block_1", added.Label())

	def, _, err := svc.ToDefinition(out, nil)
	require.NoError(t, err)
	assert.Contains(t, def.Labels(), "block_1")

	_, _, err = svc.AddBlock(g, "no-such-edge", schema.BlockTypeWait)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRemoveBlock(t *testing.T) {
	svc := newService(t, nil)
	g, err := svc.ToGraph(sampleDef(t))
	require.NoError(t, err)

	out, err := svc.RemoveBlock(g, nodeByLabel(t, g, "route").ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"open", "pause"}, out.Labels())

	def, result, err := svc.ToDefinition(out, nil)
	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.Equal(t, "pause", schema.Deref(def.Blocks[0].Base().NextBlockLabel))
}

func TestDuplicateBlock(t *testing.T) {
	svc := newService(t, nil)
	g, err := svc.ToGraph(sampleDef(t))
	require.NoError(t, err)

	out, id, err := svc.DuplicateBlock(g, nodeByLabel(t, g, "pause").ID)
	require.NoError(t, err)
	dup, ok := out.Node(id)
	require.True(t, ok)
	assert.Equal(t, "pause_2", dup.Label())

	_, _, err = svc.DuplicateBlock(g, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSetActiveBranch(t *testing.T) {
	svc := newService(t, nil)
	g, err := svc.ToGraph(sampleDef(t))
	require.NoError(t, err)
	route := nodeByLabel(t, g, "route")
	require.False(t, nodeByLabel(t, g, "left").Hidden)

	out, err := svc.SetActiveBranch(g, route.ID, "no")
	require.NoError(t, err)
	assert.True(t, nodeByLabel(t, out, "left").Hidden)

	_, err = svc.SetActiveBranch(g, route.ID, "maybe")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRename_Conflict(t *testing.T) {
	svc := newService(t, nil)
	g, err := svc.ToGraph(sampleDef(t))
	require.NoError(t, err)

	_, _, err = svc.Rename(g, nodeByLabel(t, g, "open").ID, "pause", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}
