package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/blockflow/pkg/schema"
)

// Workflow is a saved definition with its metadata.
type Workflow struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Definition  schema.Definition `json:"definition"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WorkflowUpdate carries the fields to change. Nil fields are left alone.
type WorkflowUpdate struct {
	Title       *string
	Description *string
	Definition  *schema.Definition
}

// WorkflowFilter narrows ListWorkflows. Title matches as a case-insensitive
// substring.
type WorkflowFilter struct {
	Title  string
	Limit  int
	Offset int
}

// Layout is the last saved presentation graph of a workflow, kept as raw
// JSON so the store never depends on the canvas package.
type Layout struct {
	WorkflowID string          `json:"workflow_id"`
	Graph      json.RawMessage `json:"graph"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Revision is one entry of a workflow's save history.
type Revision struct {
	WorkflowID string          `json:"workflow_id"`
	Sequence   int64           `json:"sequence"`
	Definition json.RawMessage `json:"definition"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
