package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/pkg/schema"
)

func revisionOf(t *testing.T, def schema.Definition) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(def)
	require.NoError(t, err)
	return data
}

func TestAppendAndListRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "versioned")

	for i := 0; i < 3; i++ {
		rev := &Revision{WorkflowID: wf.ID, Definition: revisionOf(t, sampleDefinition()), Note: fmt.Sprintf("save %d", i)}
		require.NoError(t, s.AppendRevision(ctx, rev))
		assert.Equal(t, int64(i+1), rev.Sequence)
	}

	revs, err := s.ListRevisions(ctx, wf.ID, 0)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, "save 0", revs[0].Note)

	revs, err = s.ListRevisions(ctx, wf.ID, 2)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, int64(3), revs[0].Sequence)
}

func TestAppendRevision_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AppendRevision(ctx, &Revision{WorkflowID: "missing", Definition: json.RawMessage(`{}`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	wf := seedWorkflow(t, s, "x")
	err = s.AppendRevision(ctx, &Revision{WorkflowID: wf.ID, Definition: json.RawMessage(`nope`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = s.AppendRevision(ctx, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestAppendRevision_ConcurrentSequences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "busy")
	body := revisionOf(t, sampleDefinition())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendRevision(ctx, &Revision{WorkflowID: wf.ID, Definition: body}))
		}()
	}
	wg.Wait()

	revs, err := s.ListRevisions(ctx, wf.ID, 0)
	require.NoError(t, err)
	require.Len(t, revs, 10)
	for i, r := range revs {
		assert.Equal(t, int64(i+1), r.Sequence)
	}
}

func TestRestoreRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "restorable")

	first := sampleDefinition()
	second := sampleDefinition()
	second.Blocks = second.Blocks[1:]
	require.NoError(t, s.AppendRevision(ctx, &Revision{WorkflowID: wf.ID, Definition: revisionOf(t, first)}))
	require.NoError(t, s.AppendRevision(ctx, &Revision{WorkflowID: wf.ID, Definition: revisionOf(t, second)}))

	def, err := RestoreRevision(ctx, s, wf.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "pause"}, def.Labels())

	def, err = RestoreRevision(ctx, s, wf.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"pause"}, def.Labels())

	_, err = RestoreRevision(ctx, s, wf.ID, 9)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRestoreRevision_Gap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "gappy")
	body := revisionOf(t, sampleDefinition())
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendRevision(ctx, &Revision{WorkflowID: wf.ID, Definition: body}))
	}
	_, err := s.DB().ExecContext(ctx, `DELETE FROM revisions WHERE workflow_id = ? AND sequence = 2`, wf.ID)
	require.NoError(t, err)

	_, err = RestoreRevision(ctx, s, wf.ID, 3)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}
