package labels

import (
	"slices"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/pkg/schema"
)

// PropagateRename rewrites every exact "<oldLabel>_output" reference held in
// node parameter keys, loop sources, and parameter definitions. The inputs
// are not modified. Keys that merely end in "_output" are left alone.
func PropagateRename(oldLabel, newLabel string, nodes []canvas.Node, params []schema.Parameter) ([]canvas.Node, []schema.Parameter) {
	oldKey, newKey := OutputKey(oldLabel), OutputKey(newLabel)

	outNodes := make([]canvas.Node, len(nodes))
	for i, n := range nodes {
		n.Data = renameInData(n.Data, oldKey, newKey)
		outNodes[i] = n
	}

	outParams := make([]schema.Parameter, len(params))
	for i, p := range params {
		if p.Key == oldKey {
			p.Key = newKey
		}
		if p.SourceParameterKey != nil && *p.SourceParameterKey == oldKey {
			p.SourceParameterKey = schema.StrPtr(newKey)
		}
		outParams[i] = p
	}
	return outNodes, outParams
}

func renameInData(d canvas.NodeData, oldKey, newKey string) canvas.NodeData {
	switch v := d.(type) {
	case canvas.TaskData:
		v.ParameterKeys = renameKeys(v.ParameterKeys, oldKey, newKey)
		return v
	case canvas.TextPromptData:
		v.ParameterKeys = renameKeys(v.ParameterKeys, oldKey, newKey)
		return v
	case canvas.CodeData:
		v.ParameterKeys = renameKeys(v.ParameterKeys, oldKey, newKey)
		return v
	case canvas.HTTPRequestData:
		v.ParameterKeys = renameKeys(v.ParameterKeys, oldKey, newKey)
		return v
	case canvas.LoopData:
		if v.LoopValue == oldKey {
			v.LoopValue = newKey
		}
		if v.LoopVariableReference != nil && *v.LoopVariableReference == oldKey {
			v.LoopVariableReference = schema.StrPtr(newKey)
		}
		return v
	}
	return d
}

func renameKeys(keys []string, oldKey, newKey string) []string {
	if keys == nil {
		return nil
	}
	out := slices.Clone(keys)
	for i, k := range out {
		if k == oldKey {
			out[i] = newKey
		}
	}
	return out
}

// RenameNode validates newLabel against the graph's label namespace, relabels
// nodeID, and propagates the rename into dependent nodes and params.
func RenameNode(g canvas.Graph, nodeID, newLabel string, params []schema.Parameter) (canvas.Graph, []schema.Parameter, error) {
	reg := NewRegistry(g)
	if err := reg.ValidateRename(nodeID, newLabel); err != nil {
		return g, params, err
	}
	oldLabel, _ := reg.Label(nodeID)
	if oldLabel == newLabel {
		return g, params, nil
	}

	out := g.Clone()
	for i, n := range out.Nodes {
		if n.ID != nodeID {
			continue
		}
		bd := n.Data.Block()
		bd.Label = newLabel
		out.Nodes[i].Data = n.Data.WithBlock(bd)
		break
	}
	nodes, newParams := PropagateRename(oldLabel, newLabel, out.Nodes, params)
	out.Nodes = nodes
	return out, newParams, nil
}
