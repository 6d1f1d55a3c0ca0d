// Package editor ties conversion, layout, validation and persistence together
// for hosts that edit workflows: the MCP server, the HTTP API and the CLI.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/convert"
	"github.com/rendis/blockflow/internal/labels"
	"github.com/rendis/blockflow/internal/layout"
	"github.com/rendis/blockflow/internal/logging"
	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/internal/streaming"
	"github.com/rendis/blockflow/internal/upgrade"
	"github.com/rendis/blockflow/internal/validation"
	"github.com/rendis/blockflow/pkg/schema"
)

// Deps holds the dependencies of a Service. Store may be nil for hosts that
// only convert documents; the persistence operations then fail. Hub, when
// set, receives an event for every stored change.
type Deps struct {
	Store     store.Store
	Hub       streaming.Hub
	Validator *validation.DefinitionValidator
	Layout    layout.Options
	IDs       convert.IDSource
	Logger    *slog.Logger
}

// Service implements the editor operations.
type Service struct {
	store     store.Store
	hub       streaming.Hub
	validator *validation.DefinitionValidator
	layout    layout.Options
	logger    *slog.Logger

	idMu sync.Mutex
	ids  convert.IDSource
}

// Session is a workflow opened for editing.
type Session struct {
	WorkflowID  string                   `json:"workflow_id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description,omitempty"`
	Version     int                      `json:"version"`
	Upgraded    bool                     `json:"upgraded"`
	Parameters  []schema.Parameter       `json:"parameters"`
	Graph       canvas.Graph             `json:"graph"`
	Restored    bool                     `json:"restored_layout"`
	Validation  *schema.ValidationResult `json:"validation"`
}

// New creates a Service. A nil Validator is built on demand.
func New(deps Deps) (*Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := deps.Validator
	if v == nil {
		var err error
		v, err = validation.NewDefinitionValidator()
		if err != nil {
			return nil, fmt.Errorf("create validator: %w", err)
		}
	}
	ids := deps.IDs
	if ids == nil {
		ids = convert.UUIDs()
	}
	return &Service{
		store:     deps.Store,
		hub:       deps.Hub,
		validator: v,
		layout:    deps.Layout,
		logger:    logger,
		ids:       ids,
	}, nil
}

// nextID serializes access to the id source; SequentialIDs is not safe for
// concurrent use.
func (s *Service) nextID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return s.ids()
}

// publish reports a stored change. Delivery failures never fail the change.
func (s *Service) publish(ctx context.Context, ev streaming.ChangeEvent) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "change event not published",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) requireStore() error {
	if s.store == nil {
		return schema.NewError(schema.ErrCodeStore, "no store configured")
	}
	return nil
}

// --- Persistence ---

// Load opens workflow id: the stored definition is upgraded, converted and
// laid out. When a saved layout snapshot holds exactly the same block labels
// its positions, sizes and branch selections are reused.
func (s *Service) Load(ctx context.Context, id string) (*Session, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflowID(ctx, id)
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	def := &wf.Definition
	upgraded := def.Version < schema.CurrentVersion
	if upgraded {
		if def, err = upgrade.Upgrade(def); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "definition upgraded on load", slog.Int("from", wf.Definition.Version))
	}

	g, err := s.ToGraph(def)
	if err != nil {
		return nil, err
	}

	restored := false
	saved, err := s.store.GetLayout(ctx, id)
	switch {
	case err == nil:
		var prev canvas.Graph
		if uerr := json.Unmarshal(saved.Graph, &prev); uerr != nil {
			s.logger.WarnContext(ctx, "ignoring unreadable layout snapshot", slog.String("error", uerr.Error()))
			break
		}
		g, restored = RestoreLayout(g, prev)
	case !schema.IsCode(err, schema.ErrCodeNotFound):
		return nil, err
	}

	s.logger.DebugContext(ctx, "workflow loaded",
		slog.Int("nodes", len(g.Nodes)),
		slog.Bool("restored_layout", restored),
	)
	return &Session{
		WorkflowID:  wf.ID,
		Title:       wf.Title,
		Description: wf.Description,
		Version:     def.Version,
		Upgraded:    upgraded,
		Parameters:  def.Parameters,
		Graph:       g,
		Restored:    restored,
		Validation:  s.validator.Validate(def),
	}, nil
}

// Save serializes g with params, validates the result and stores it. A
// definition with validation errors is not stored; the result is returned
// together with a VALIDATION_ERROR. On success the graph is kept as the
// workflow's layout snapshot and a revision is appended.
func (s *Service) Save(ctx context.Context, id string, g canvas.Graph, params []schema.Parameter) (*schema.ValidationResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflowID(ctx, id)

	def, result, err := convert.ToDefinition(g, params, schema.CurrentVersion)
	if err != nil {
		return result, err
	}
	result.Merge(s.validator.Validate(def))
	if !result.Valid() {
		s.logger.InfoContext(ctx, "save rejected", slog.Int("errors", len(result.Errors)))
		return result, result.ToError()
	}

	if err := s.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Definition: def}); err != nil {
		return result, err
	}

	snapshot, err := json.Marshal(g)
	if err != nil {
		return result, fmt.Errorf("marshal layout: %w", err)
	}
	if err := s.store.SaveLayout(ctx, &store.Layout{WorkflowID: id, Graph: snapshot}); err != nil {
		return result, err
	}
	if err := s.record(ctx, id, def, result, ""); err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "workflow saved",
		slog.Int("blocks", len(def.Labels())),
		slog.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// record appends def to the history of id and announces the save.
func (s *Service) record(ctx context.Context, id string, def *schema.Definition, result *schema.ValidationResult, note string) error {
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal revision: %w", err)
	}
	rev := &store.Revision{WorkflowID: id, Definition: body, Note: note}
	if err := s.store.AppendRevision(ctx, rev); err != nil {
		return err
	}
	s.publish(ctx, streaming.ChangeEvent{
		WorkflowID: id,
		Type:       streaming.EventWorkflowSaved,
		Revision:   rev.Sequence,
		Blocks:     len(def.Labels()),
		Warnings:   len(result.Warnings),
	})
	return nil
}

// Revisions lists the save history of workflow id, oldest first.
func (s *Service) Revisions(ctx context.Context, id string) ([]*store.Revision, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, id, 0)
}

// Revert makes revision seq the current definition of workflow id. The
// revert is recorded as a new revision; the layout snapshot is left alone
// and Load only reuses it while the labels still match.
func (s *Service) Revert(ctx context.Context, id string, seq int64) (*schema.ValidationResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflowID(ctx, id)

	def, err := store.RestoreRevision(ctx, s.store, id, seq)
	if err != nil {
		return nil, err
	}
	if def.Version < schema.CurrentVersion {
		if def, err = upgrade.Upgrade(def); err != nil {
			return nil, err
		}
	}
	result := s.validator.Validate(def)
	if !result.Valid() {
		return result, result.ToError()
	}
	if err := s.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Definition: def}); err != nil {
		return result, err
	}
	if err := s.record(ctx, id, def, result, fmt.Sprintf("revert to %d", seq)); err != nil {
		return result, err
	}
	s.logger.InfoContext(ctx, "workflow reverted", slog.Int64("revision", seq))
	return result, nil
}

// Create stores a new workflow. A nil def starts empty; older definitions
// are upgraded first. Definitions with validation errors are rejected.
func (s *Service) Create(ctx context.Context, title string, def *schema.Definition) (*store.Workflow, *schema.ValidationResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, nil, err
	}
	if def == nil {
		def = &schema.Definition{Version: schema.CurrentVersion, Parameters: []schema.Parameter{}, Blocks: schema.Blocks{}}
	}
	if def.Version < schema.CurrentVersion {
		up, err := upgrade.Upgrade(def)
		if err != nil {
			return nil, nil, err
		}
		def = up
	}
	result := s.validator.Validate(def)
	if !result.Valid() {
		return nil, result, result.ToError()
	}

	wf := &store.Workflow{Title: title, Definition: *def}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, result, err
	}
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	s.logger.InfoContext(ctx, "workflow created", slog.String("title", title))
	s.publish(ctx, streaming.ChangeEvent{
		WorkflowID: wf.ID,
		Type:       streaming.EventWorkflowCreated,
		Title:      title,
		Blocks:     len(def.Labels()),
	})
	return wf, result, nil
}

// Get returns the stored workflow id as saved, without upgrading it.
func (s *Service) Get(ctx context.Context, id string) (*store.Workflow, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.store.GetWorkflow(ctx, id)
}

// List returns stored workflows.
func (s *Service) List(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.store.ListWorkflows(ctx, filter)
}

// Delete removes a stored workflow with its layout and history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	ctx = logging.WithWorkflowID(ctx, id)
	s.logger.InfoContext(ctx, "workflow deleted")
	s.publish(ctx, streaming.ChangeEvent{WorkflowID: id, Type: streaming.EventWorkflowDeleted})
	return nil
}

// --- Conversion ---

// ToGraph upgrades def when needed, converts it and lays it out.
func (s *Service) ToGraph(def *schema.Definition) (canvas.Graph, error) {
	if def != nil && def.Version < schema.CurrentVersion {
		up, err := upgrade.Upgrade(def)
		if err != nil {
			return canvas.Graph{}, err
		}
		def = up
	}
	g, err := convert.ToGraph(def, s.nextID)
	if err != nil {
		return canvas.Graph{}, err
	}
	return layout.Apply(g, s.layout), nil
}

// ToDefinition serializes g and validates the result. Validation issues do
// not make it fail.
func (s *Service) ToDefinition(g canvas.Graph, params []schema.Parameter) (*schema.Definition, *schema.ValidationResult, error) {
	def, result, err := convert.ToDefinition(g, params, schema.CurrentVersion)
	if err != nil {
		return nil, result, err
	}
	result.Merge(s.validator.Validate(def))
	return def, result, nil
}

// Validate runs the full validation pipeline over def.
func (s *Service) Validate(def *schema.Definition) *schema.ValidationResult {
	return s.validator.Validate(def)
}

// Relayout recomputes every visible position of g.
func (s *Service) Relayout(g canvas.Graph) canvas.Graph {
	return layout.Apply(g, s.layout)
}

// --- Graph edits ---

// Rename relabels nodeID and propagates the change into dependent fields and
// params.
func (s *Service) Rename(g canvas.Graph, nodeID, newLabel string, params []schema.Parameter) (canvas.Graph, []schema.Parameter, error) {
	out, newParams, err := labels.RenameNode(g, nodeID, newLabel, params)
	if err != nil {
		return g, params, err
	}
	return out, newParams, nil
}

// AddBlock inserts a new block of type t on edgeID and returns the laid-out
// graph with the id of the new node.
func (s *Service) AddBlock(g canvas.Graph, edgeID string, t schema.BlockType) (canvas.Graph, string, error) {
	head, scaffold, err := convert.NewBlockNode(g, t, s.nextID)
	if err != nil {
		return g, "", err
	}
	out, err := canvas.InsertNode(g, edgeID, head, scaffold)
	if err != nil {
		return g, "", err
	}
	return s.Relayout(out), head.ID, nil
}

// RemoveBlock deletes nodeID with its contents and re-lays out the graph.
func (s *Service) RemoveBlock(g canvas.Graph, nodeID string) (canvas.Graph, error) {
	out, err := canvas.RemoveNode(g, nodeID)
	if err != nil {
		return g, err
	}
	return s.Relayout(out), nil
}

// DuplicateBlock copies nodeID under a fresh id and a unique label derived
// from the original, inserted right after it.
func (s *Service) DuplicateBlock(g canvas.Graph, nodeID string) (canvas.Graph, string, error) {
	n, ok := g.Node(nodeID)
	if !ok {
		return g, "", schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	label := labels.NewRegistry(g).Unique(n.Label())
	newID := s.nextID()
	out, err := canvas.DuplicateNode(g, nodeID, newID, label)
	if err != nil {
		return g, "", err
	}
	return s.Relayout(out), newID, nil
}

// SetActiveBranch switches the visible branch of a conditional.
func (s *Service) SetActiveBranch(g canvas.Graph, condID, branchID string) (canvas.Graph, error) {
	out, err := canvas.SetActiveBranch(g, condID, branchID)
	if err != nil {
		return g, err
	}
	return s.Relayout(out), nil
}
