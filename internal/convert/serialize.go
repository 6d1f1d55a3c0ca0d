package convert

import (
	"slices"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/pkg/schema"
)

// ToDefinition serializes g into a definition. Each scope is walked from its
// entry node along edges; a conditional is followed by its branch members in
// branch order; loops recurse into their body. Scope members no walk reached
// are appended afterwards in node order. Inactive branches are serialized
// like active ones.
//
// Malformed JSON in editable fields is reported in the returned result and
// does not stop serialization. An unknown node type is returned as an error.
func ToDefinition(g canvas.Graph, params []schema.Parameter, version int) (*schema.Definition, *schema.ValidationResult, error) {
	s := &serializer{
		g:       g,
		r:       newResolver(g),
		emitted: make(map[string]bool, len(g.Nodes)),
		result:  &schema.ValidationResult{},
	}
	blocks, err := s.scope("")
	if err != nil {
		return nil, s.result, err
	}
	return &schema.Definition{
		Version:    max(version, schema.CurrentVersion),
		Parameters: slices.Clone(params),
		Blocks:     blocks,
	}, s.result, nil
}

type serializer struct {
	g       canvas.Graph
	r       *resolver
	emitted map[string]bool
	result  *schema.ValidationResult
}

// owner returns the loop whose body holds id, or "" for the top level.
// Conditionals are transparent: their members belong to the enclosing scope.
func (s *serializer) owner(id string) string {
	n, ok := s.r.node(id)
	for steps := 0; ok && n.ParentID != "" && steps < canvas.MaxTraversal; steps++ {
		parent, found := s.r.node(n.ParentID)
		if !found {
			return ""
		}
		if parent.Type == canvas.BlockNodeType(schema.BlockTypeForLoop) {
			return parent.ID
		}
		n = parent
	}
	return ""
}

func (s *serializer) scope(owner string) (schema.Blocks, error) {
	out := schema.Blocks{}

	// Follow the chain from the scope's entry.
	if start, ok := s.g.ScopeUtility(owner, canvas.NodeTypeStart); ok {
		seen := map[string]bool{start.ID: true}
		cur := start.ID
		for steps := 0; steps < canvas.MaxTraversal; steps++ {
			edges := s.r.out[cur]
			if len(edges) == 0 || seen[edges[0].Target] {
				break
			}
			cur = edges[0].Target
			seen[cur] = true
			n, ok := s.r.node(cur)
			if !ok {
				break
			}
			if n.IsUtility() {
				continue
			}
			if err := s.emit(n, &out); err != nil {
				return nil, err
			}
		}
	}

	// Sweep what the walk missed.
	for _, n := range s.g.Nodes {
		if n.IsUtility() || s.emitted[n.ID] || s.owner(n.ID) != owner {
			continue
		}
		if err := s.emit(n, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *serializer) emit(n canvas.Node, out *schema.Blocks) error {
	if s.emitted[n.ID] {
		return nil
	}
	s.emitted[n.ID] = true

	b, issues, err := ToBlock(n, s.r.links(n.ID))
	if err != nil {
		return err
	}
	for _, issue := range issues {
		s.result.AddIssue(issue)
	}
	if loop, ok := b.(*schema.ForLoopBlock); ok {
		body, err := s.scope(n.ID)
		if err != nil {
			return err
		}
		loop.LoopBlocks = body
	}
	*out = append(*out, b)

	// Branch members follow their conditional.
	if cd, ok := n.Data.(canvas.ConditionalData); ok {
		for _, br := range cd.Branches {
			for _, m := range s.r.branchMembers(n.ID, br.ID) {
				if err := s.emit(m, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
