// Package store persists workflow definitions and their saved canvas layouts.
package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Layout snapshots
	SaveLayout(ctx context.Context, layout *Layout) error
	GetLayout(ctx context.Context, workflowID string) (*Layout, error)

	// Revision history (append-only)
	AppendRevision(ctx context.Context, rev *Revision) error
	ListRevisions(ctx context.Context, workflowID string, since int64) ([]*Revision, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
