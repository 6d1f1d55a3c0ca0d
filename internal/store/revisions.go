package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rendis/blockflow/pkg/schema"
)

// AppendRevision appends rev to its workflow's history with the next
// per-workflow sequence number, which is written back to rev.
func (s *LibSQLStore) AppendRevision(ctx context.Context, rev *Revision) error {
	if rev == nil || rev.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "revision requires a workflow id")
	}
	if !json.Valid(rev.Definition) {
		return schema.NewError(schema.ErrCodeValidation, "revision definition is not valid JSON").
			WithDetails(map[string]any{"workflow_id": rev.WorkflowID})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin revision", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; a write-intent
	// statement takes the lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return storeError("acquire write lock", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version WHERE version = -1`); err != nil {
		return storeError("release write lock", err)
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, rev.WorkflowID).Scan(&exists); err != nil {
		return storeError("check workflow", err)
	}
	if exists == 0 {
		return storeNotFound("workflow", rev.WorkflowID)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM revisions WHERE workflow_id = ?`, rev.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return storeError("next revision sequence", err)
	}
	rev.Sequence = seq
	rev.CreatedAt = timeOrNow(rev.CreatedAt)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO revisions (workflow_id, sequence, definition, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		rev.WorkflowID, seq, string(rev.Definition), nullStr(rev.Note), rev.CreatedAt,
	)
	if err != nil {
		return storeError("insert revision", err)
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit revision", err)
	}
	return nil
}

// ListRevisions returns the revisions of workflowID with sequence > since,
// oldest first.
func (s *LibSQLStore) ListRevisions(ctx context.Context, workflowID string, since int64) ([]*Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, sequence, definition, note, created_at FROM revisions
		 WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`, workflowID, since,
	)
	if err != nil {
		return nil, storeError("list revisions", err)
	}
	defer rows.Close()

	var revs []*Revision
	for rows.Next() {
		r := &Revision{}
		var (
			defJSON string
			note    sql.NullString
		)
		if err := rows.Scan(&r.WorkflowID, &r.Sequence, &defJSON, &note, &r.CreatedAt); err != nil {
			return nil, storeError("scan revision", err)
		}
		r.Definition = json.RawMessage(defJSON)
		r.Note = note.String
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// RestoreRevision loads revision seq of workflowID as a definition.
// Histories with a sequence gap before seq are reported as STORE_ERROR.
func RestoreRevision(ctx context.Context, s Store, workflowID string, seq int64) (*schema.Definition, error) {
	revs, err := s.ListRevisions(ctx, workflowID, 0)
	if err != nil {
		return nil, err
	}
	for i, r := range revs {
		if expected := int64(i + 1); r.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"revision gap in workflow %s: expected %d, got %d", workflowID, expected, r.Sequence)
		}
		if r.Sequence == seq {
			return schema.ParseJSON(r.Definition)
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "revision %d of workflow %q not found", seq, workflowID)
}
