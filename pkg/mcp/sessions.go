package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry tracks which MCP sessions have a workflow open.
// Sessions are added when they load or save a workflow.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // workflowID → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]struct{})}
}

// Watch records that sessionID has workflowID open.
func (r *SessionRegistry) Watch(workflowID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[workflowID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[workflowID] = set
	}
	set[sessionID] = struct{}{}
}

// Watchers returns the sessions that have workflowID open, sorted.
func (r *SessionRegistry) Watchers(workflowID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.watchers[workflowID]))
	for sid := range r.watchers[workflowID] {
		out = append(out, sid)
	}
	slices.Sort(out)
	return out
}

// Remove drops sessionID from every workflow.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for wid, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, wid)
		}
	}
}

// Forget drops every watcher of workflowID, e.g. after it was deleted.
func (r *SessionRegistry) Forget(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, workflowID)
}
