package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func sampleDefinition() schema.Definition {
	return schema.Definition{
		Version: schema.CurrentVersion,
		Blocks: schema.Blocks{
			&schema.GotoURLBlock{BlockBase: schema.BlockBase{Label: "open", NextBlockLabel: schema.StrPtr("pause")}, URL: "https://example.com"},
			&schema.WaitBlock{BlockBase: schema.BlockBase{Label: "pause"}, WaitSec: 3},
		},
	}
}

func seedWorkflow(t *testing.T, s *LibSQLStore, title string) *Workflow {
	t.Helper()
	wf := &Workflow{Title: title, Definition: sampleDefinition()}
	require.NoError(t, s.CreateWorkflow(context.Background(), wf))
	return wf
}

// --- Workflow Tests ---

func TestCreateAndGetWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := &Workflow{
		ID:          uuid.New().String(),
		Title:       "scrape invoices",
		Description: "monthly run",
		Definition:  sampleDefinition(),
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, "scrape invoices", got.Title)
	assert.Equal(t, "monthly run", got.Description)
	assert.Equal(t, schema.CurrentVersion, got.Definition.Version)
	assert.Equal(t, []string{"open", "pause"}, got.Definition.Labels())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateWorkflow_AssignsID(t *testing.T) {
	s := newTestStore(t)
	wf := seedWorkflow(t, s, "untitled")
	assert.NotEmpty(t, wf.ID)
	assert.False(t, wf.UpdatedAt.IsZero())
}

func TestCreateWorkflow_RequiresTitle(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateWorkflow(context.Background(), &Workflow{Title: "  "})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = s.CreateWorkflow(context.Background(), nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCreateWorkflow_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	wf := seedWorkflow(t, s, "first")

	err := s.CreateWorkflow(context.Background(), &Workflow{ID: wf.ID, Title: "second"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}

func TestGetWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkflow(context.Background(), "nonexistent")
	require.Error(t, err)
	bfErr, ok := err.(*schema.BlockflowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, bfErr.Code)
}

func TestUpdateWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "before")

	def := sampleDefinition()
	def.Blocks = def.Blocks[:1]
	def.Blocks[0].Base().NextBlockLabel = nil
	title := "after"
	require.NoError(t, s.UpdateWorkflow(ctx, wf.ID, WorkflowUpdate{Title: &title, Definition: &def}))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, []string{"open"}, got.Definition.Labels())
	assert.False(t, got.UpdatedAt.Before(wf.UpdatedAt))
}

func TestUpdateWorkflow_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "kept")

	title := "x"
	err := s.UpdateWorkflow(ctx, "missing", WorkflowUpdate{Title: &title})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	blank := ""
	err = s.UpdateWorkflow(ctx, wf.ID, WorkflowUpdate{Title: &blank})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	// No fields is a no-op even for unknown ids.
	assert.NoError(t, s.UpdateWorkflow(ctx, "missing", WorkflowUpdate{}))
}

func TestListWorkflows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "Invoice scraper")
	seedWorkflow(t, s, "invoice mailer")
	seedWorkflow(t, s, "login check")

	list, err := s.ListWorkflows(ctx, WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = s.ListWorkflows(ctx, WorkflowFilter{Title: "INVOICE"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListWorkflows(ctx, WorkflowFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListWorkflows(ctx, WorkflowFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "doomed")
	require.NoError(t, s.SaveLayout(ctx, &Layout{WorkflowID: wf.ID, Graph: json.RawMessage(`{"nodes":[],"edges":[]}`)}))

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))

	_, err := s.GetWorkflow(ctx, wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = s.GetLayout(ctx, wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = s.DeleteWorkflow(ctx, wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

// --- Layout Tests ---

func TestSaveAndGetLayout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "laid out")

	require.NoError(t, s.SaveLayout(ctx, &Layout{WorkflowID: wf.ID, Graph: json.RawMessage(`{"nodes":[{"id":"a"}]}`)}))
	require.NoError(t, s.SaveLayout(ctx, &Layout{WorkflowID: wf.ID, Graph: json.RawMessage(`{"nodes":[{"id":"b"}]}`)}))

	got, err := s.GetLayout(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.WorkflowID)
	assert.JSONEq(t, `{"nodes":[{"id":"b"}]}`, string(got.Graph))
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSaveLayout_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "target")

	err := s.SaveLayout(ctx, &Layout{WorkflowID: "missing", Graph: json.RawMessage(`{}`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = s.SaveLayout(ctx, &Layout{WorkflowID: wf.ID, Graph: json.RawMessage(`{broken`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = s.SaveLayout(ctx, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestGetLayout_NotFound(t *testing.T) {
	s := newTestStore(t)
	wf := seedWorkflow(t, s, "never laid out")
	_, err := s.GetLayout(context.Background(), wf.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

// --- Maintenance ---

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	// Migrate was already called in newTestStore; calling again should be a no-op.
	require.NoError(t, s.Migrate(ctx))

	var version int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, 2, version)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "initial_schema", ms[0].Name)
	assert.Equal(t, 2, ms[1].Version)
	assert.Equal(t, "revisions", ms[1].Name)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header only;\nCREATE TABLE a (x INT);\n\n-- trailing comment\nCREATE INDEX i ON a(x);")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE INDEX i")
}
