package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/blockflow/pkg/schema"
)

// MemoryStore is a thread-safe in-memory Store. Definitions are kept as JSON
// so callers never share block values with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]memoryWorkflow
	layouts   map[string]Layout
	revisions map[string][]Revision
}

type memoryWorkflow struct {
	wf  Workflow
	def []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]memoryWorkflow),
		layouts:   make(map[string]Layout),
		revisions: make(map[string][]Revision),
	}
}

func (m *MemoryStore) CreateWorkflow(_ context.Context, wf *Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if strings.TrimSpace(wf.Title) == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow title is required")
	}
	def, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if _, dup := m.workflows[wf.ID]; dup {
		return schema.NewErrorf(schema.ErrCodeStore, "workflow %q already exists", wf.ID)
	}
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	wf.UpdatedAt = timeOrNow(wf.UpdatedAt)
	row := *wf
	row.Definition = schema.Definition{}
	m.workflows[wf.ID] = memoryWorkflow{wf: row, def: def}
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	return row.materialize()
}

func (m *MemoryStore) UpdateWorkflow(_ context.Context, id string, update WorkflowUpdate) error {
	if update.Title == nil && update.Description == nil && update.Definition == nil {
		return nil
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow title is required")
	}
	var def []byte
	if update.Definition != nil {
		var err error
		if def, err = json.Marshal(update.Definition); err != nil {
			return fmt.Errorf("marshal definition: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.workflows[id]
	if !ok {
		return storeNotFound("workflow", id)
	}
	if update.Title != nil {
		row.wf.Title = *update.Title
	}
	if update.Description != nil {
		row.wf.Description = *update.Description
	}
	if def != nil {
		row.def = def
	}
	row.wf.UpdatedAt = time.Now().UTC()
	m.workflows[id] = row
	return nil
}

func (m *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	m.mu.RLock()
	rows := make([]memoryWorkflow, 0, len(m.workflows))
	for _, row := range m.workflows {
		if filter.Title != "" && !strings.Contains(strings.ToLower(row.wf.Title), strings.ToLower(filter.Title)) {
			continue
		}
		rows = append(rows, row)
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].wf, rows[j].wf
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	if filter.Offset > 0 && filter.Limit > 0 {
		rows = rows[min(filter.Offset, len(rows)):]
	}
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}

	out := make([]*Workflow, 0, len(rows))
	for _, row := range rows {
		wf, err := row.materialize()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(m.workflows, id)
	delete(m.layouts, id)
	delete(m.revisions, id)
	return nil
}

func (m *MemoryStore) SaveLayout(_ context.Context, layout *Layout) error {
	if layout == nil || layout.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "layout requires a workflow id")
	}
	if !json.Valid(layout.Graph) {
		return schema.NewError(schema.ErrCodeValidation, "layout graph is not valid JSON")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[layout.WorkflowID]; !ok {
		return storeNotFound("workflow", layout.WorkflowID)
	}
	layout.UpdatedAt = time.Now().UTC()
	cp := *layout
	cp.Graph = slices.Clone(layout.Graph)
	m.layouts[layout.WorkflowID] = cp
	return nil
}

func (m *MemoryStore) GetLayout(_ context.Context, workflowID string) (*Layout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layouts[workflowID]
	if !ok {
		return nil, storeNotFound("layout", workflowID)
	}
	l.Graph = slices.Clone(l.Graph)
	return &l, nil
}

func (m *MemoryStore) AppendRevision(_ context.Context, rev *Revision) error {
	if rev == nil || rev.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "revision requires a workflow id")
	}
	if !json.Valid(rev.Definition) {
		return schema.NewError(schema.ErrCodeValidation, "revision definition is not valid JSON")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[rev.WorkflowID]; !ok {
		return storeNotFound("workflow", rev.WorkflowID)
	}
	rev.Sequence = int64(len(m.revisions[rev.WorkflowID]) + 1)
	rev.CreatedAt = timeOrNow(rev.CreatedAt)
	cp := *rev
	cp.Definition = slices.Clone(rev.Definition)
	m.revisions[rev.WorkflowID] = append(m.revisions[rev.WorkflowID], cp)
	return nil
}

func (m *MemoryStore) ListRevisions(_ context.Context, workflowID string, since int64) ([]*Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Revision
	for _, r := range m.revisions[workflowID] {
		if r.Sequence > since {
			r.Definition = slices.Clone(r.Definition)
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Vacuum(context.Context) error  { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (row memoryWorkflow) materialize() (*Workflow, error) {
	wf := row.wf
	if err := json.Unmarshal(row.def, &wf.Definition); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "workflow %q holds an unreadable definition", wf.ID).WithCause(err)
	}
	return &wf, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*LibSQLStore)(nil)
)
