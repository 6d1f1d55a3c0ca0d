package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/pkg/schema"
)

func TestMemoryStore_WorkflowLifecycle(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	wf := &Workflow{Title: "Invoices", Definition: sampleDefinition()}
	require.NoError(t, m.CreateWorkflow(ctx, wf))
	require.NotEmpty(t, wf.ID)

	got, err := m.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "pause"}, got.Definition.Labels())

	// Mutating the returned definition does not touch the stored copy.
	got.Definition.Blocks[0].Base().Label = "changed"
	again, err := m.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "open", again.Definition.Blocks[0].Base().Label)

	title := "Invoices v2"
	require.NoError(t, m.UpdateWorkflow(ctx, wf.ID, WorkflowUpdate{Title: &title}))
	got, err = m.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoices v2", got.Title)

	require.NoError(t, m.DeleteWorkflow(ctx, wf.ID))
	_, err = m.GetWorkflow(ctx, wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestMemoryStore_List(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for _, title := range []string{"alpha", "Alphabet", "beta"} {
		require.NoError(t, m.CreateWorkflow(ctx, &Workflow{Title: title, Definition: sampleDefinition()}))
	}

	list, err := m.ListWorkflows(ctx, WorkflowFilter{Title: "ALPHA"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = m.ListWorkflows(ctx, WorkflowFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_LayoutsAndRevisions(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	wf := &Workflow{Title: "x", Definition: sampleDefinition()}
	require.NoError(t, m.CreateWorkflow(ctx, wf))

	_, err := m.GetLayout(ctx, wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	require.NoError(t, m.SaveLayout(ctx, &Layout{WorkflowID: wf.ID, Graph: json.RawMessage(`{"nodes":[]}`)}))
	l, err := m.GetLayout(ctx, wf.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[]}`, string(l.Graph))

	for i := 0; i < 2; i++ {
		require.NoError(t, m.AppendRevision(ctx, &Revision{WorkflowID: wf.ID, Definition: json.RawMessage(`{}`)}))
	}
	revs, err := m.ListRevisions(ctx, wf.ID, 1)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, int64(2), revs[0].Sequence)

	err = m.AppendRevision(ctx, &Revision{WorkflowID: "missing", Definition: json.RawMessage(`{}`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
