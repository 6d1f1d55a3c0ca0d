package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/blockflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return storeError("migrate", err)
	}
	return nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeError("vacuum", err)
	}
	return nil
}

// --- Workflows ---

const workflowColumns = "id, title, description, definition, created_at, updated_at"

// CreateWorkflow inserts wf. An empty ID is filled with a fresh UUID and zero
// timestamps with the current time; wf is updated in place.
func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if strings.TrimSpace(wf.Title) == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow title is required")
	}
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	wf.UpdatedAt = timeOrNow(wf.UpdatedAt)

	def, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Title, nullStr(wf.Description), string(def), wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return storeError("create workflow", err)
	}
	return nil
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			return schema.NewError(schema.ErrCodeValidation, "workflow title is required")
		}
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.Definition != nil {
		def, err := json.Marshal(update.Definition)
		if err != nil {
			return fmt.Errorf("marshal definition: %w", err)
		}
		sets = append(sets, "definition = ?")
		args = append(args, string(def))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("update workflow", err)
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	if filter.Title != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Title)+"%")
	}

	query := "SELECT " + workflowColumns + " FROM workflows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list workflows", err)
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin delete", err)
	}
	defer tx.Rollback()

	// Dependent rows go explicitly; foreign_keys may be off on remote databases.
	for _, table := range []string{"layouts", "revisions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE workflow_id = ?`, id); err != nil {
			return storeError("delete "+table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return storeError("delete workflow", err)
	}
	if err := checkRowsAffected(res, "workflow", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit delete", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var (
		description sql.NullString
		defJSON     string
	)
	if err := row.Scan(&wf.ID, &wf.Title, &description, &defJSON, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeError("scan workflow", err)
	}
	wf.Description = description.String
	if err := json.Unmarshal([]byte(defJSON), &wf.Definition); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "workflow %q holds an unreadable definition", wf.ID).WithCause(err)
	}
	return wf, nil
}

// --- Layouts ---

// SaveLayout replaces the layout snapshot of layout.WorkflowID. The workflow
// must exist.
func (s *LibSQLStore) SaveLayout(ctx context.Context, layout *Layout) error {
	if layout == nil || layout.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "layout requires a workflow id")
	}
	if !json.Valid(layout.Graph) {
		return schema.NewError(schema.ErrCodeValidation, "layout graph is not valid JSON").
			WithDetails(map[string]any{"workflow_id": layout.WorkflowID})
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, layout.WorkflowID).Scan(&exists)
	if err != nil {
		return storeError("check workflow", err)
	}
	if exists == 0 {
		return storeNotFound("workflow", layout.WorkflowID)
	}

	layout.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO layouts (workflow_id, graph, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET graph=excluded.graph, updated_at=excluded.updated_at`,
		layout.WorkflowID, string(layout.Graph), layout.UpdatedAt,
	)
	if err != nil {
		return storeError("save layout", err)
	}
	return nil
}

func (s *LibSQLStore) GetLayout(ctx context.Context, workflowID string) (*Layout, error) {
	l := &Layout{WorkflowID: workflowID}
	var graphJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT graph, updated_at FROM layouts WHERE workflow_id = ?`, workflowID,
	).Scan(&graphJSON, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("layout", workflowID)
	}
	if err != nil {
		return nil, storeError("get layout", err)
	}
	l.Graph = json.RawMessage(graphJSON)
	return l, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.BlockflowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.BlockflowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
