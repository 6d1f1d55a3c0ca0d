// Package streaming fans workflow change events out to live subscribers,
// such as browser editors following a workflow another client is saving.
package streaming

import (
	"context"
	"time"
)

// EventType names a workflow change.
type EventType string

const (
	EventWorkflowCreated EventType = "workflow.created"
	EventWorkflowSaved   EventType = "workflow.saved"
	EventWorkflowDeleted EventType = "workflow.deleted"
)

// ChangeEvent describes one stored change to a workflow.
type ChangeEvent struct {
	WorkflowID string    `json:"workflow_id"`
	Type       EventType `json:"event_type"`
	Title      string    `json:"title,omitempty"`
	Revision   int64     `json:"revision,omitempty"`
	Blocks     int       `json:"blocks,omitempty"`
	Warnings   int       `json:"warnings,omitempty"`
	At         time.Time `json:"at"`
}

// Filter selects events for a subscriber. Zero fields match everything.
type Filter struct {
	WorkflowID string      `json:"workflow_id,omitempty"`
	Types      []EventType `json:"event_types,omitempty"`
}

// Hub is a pub/sub channel for change events.
type Hub interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(ctx context.Context, filter Filter) (<-chan ChangeEvent, func(), error)
}
