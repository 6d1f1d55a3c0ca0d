package labels

import (
	"sort"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/pkg/schema"
)

// Registry is a snapshot of the label namespace of a graph. Utility nodes
// are not part of it.
type Registry struct {
	byLabel map[string]string
	byNode  map[string]string
}

// NewRegistry indexes every block node of g. When two nodes share a label the
// first one in node order wins; Duplicates reports the rest.
func NewRegistry(g canvas.Graph) *Registry {
	r := &Registry{
		byLabel: make(map[string]string, len(g.Nodes)),
		byNode:  make(map[string]string, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		if n.IsUtility() {
			continue
		}
		label := n.Label()
		r.byNode[n.ID] = label
		if _, taken := r.byLabel[label]; !taken {
			r.byLabel[label] = n.ID
		}
	}
	return r
}

// Has reports whether label is taken.
func (r *Registry) Has(label string) bool {
	_, ok := r.byLabel[label]
	return ok
}

// NodeID returns the node carrying label.
func (r *Registry) NodeID(label string) (string, bool) {
	id, ok := r.byLabel[label]
	return id, ok
}

// Label returns the label of node id.
func (r *Registry) Label(id string) (string, bool) {
	l, ok := r.byNode[id]
	return l, ok
}

// Labels returns every label in sorted order.
func (r *Registry) Labels() []string {
	out := make([]string, 0, len(r.byLabel))
	for l := range r.byLabel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Duplicates returns labels carried by more than one node.
func (r *Registry) Duplicates() []string {
	count := make(map[string]int, len(r.byNode))
	for _, l := range r.byNode {
		count[l]++
	}
	var out []string
	for l, c := range count {
		if c > 1 {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// Next returns a fresh block_N label.
func (r *Registry) Next() string {
	return GenerateLabel(r.Labels())
}

// Unique returns a free label derived from candidate after sanitizing it.
func (r *Registry) Unique(candidate string) string {
	return UniqueLabel(Sanitize(candidate), r.Labels())
}

// ValidateRename checks that nodeID may take candidate as its label.
func (r *Registry) ValidateRename(nodeID, candidate string) error {
	current, ok := r.byNode[nodeID]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q has no label", nodeID)
	}
	if candidate == "" {
		return schema.NewError(schema.ErrCodeValidation, "label cannot be empty").WithLabel(current)
	}
	if !IsValid(candidate) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"label %q must start with a letter or underscore and contain only letters, digits, and underscores", candidate).
			WithLabel(current)
	}
	if owner, taken := r.byLabel[candidate]; taken && owner != nodeID {
		return schema.NewErrorf(schema.ErrCodeConflict, "label %q is already in use", candidate).WithLabel(current)
	}
	return nil
}
