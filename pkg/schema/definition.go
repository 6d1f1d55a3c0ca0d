package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CurrentVersion is the definition version that carries explicit
// next_block_label chains.
const CurrentVersion = 2

// ParameterType classifies a workflow parameter.
type ParameterType string

const (
	ParameterTypeWorkflow   ParameterType = "workflow"
	ParameterTypeContext    ParameterType = "context"
	ParameterTypeOutput     ParameterType = "output"
	ParameterTypeAWSSecret  ParameterType = "aws_secret"
	ParameterTypeCredential ParameterType = "credential"
)

// Definition is the portable, persisted form of a workflow.
type Definition struct {
	Version    int         `json:"version"`
	Parameters []Parameter `json:"parameters"`
	Blocks     Blocks      `json:"blocks"`
}

// Parameter is a workflow-level input, context value, secret reference, or
// block output reference. Output parameters are keyed "<label>_output".
type Parameter struct {
	ParameterType         ParameterType `json:"parameter_type"`
	Key                   string        `json:"key"`
	Description           *string       `json:"description,omitempty"`
	WorkflowParameterType string        `json:"workflow_parameter_type,omitempty"`
	DefaultValue          any           `json:"default_value,omitempty"`
	SourceParameterKey    *string       `json:"source_parameter_key,omitempty"`
	AWSKey                string        `json:"aws_key,omitempty"`
	CredentialID          string        `json:"credential_id,omitempty"`
}

// Blocks is an ordered block list with a discriminated JSON encoding.
type Blocks []Block

// MarshalJSON encodes each block with its block_type set from its Go type.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	if bs == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range bs {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := EncodeBlock(b)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes each element through DecodeBlock.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode blocks: %w", err)
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		b, err := DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("blocks[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// EncodeBlock marshals a single block, normalizing its block_type.
func EncodeBlock(b Block) ([]byte, error) {
	if b == nil {
		return nil, NewError(ErrCodeValidation, "nil block")
	}
	b.Base().BlockType = b.Type()
	return json.Marshal(b)
}

// DecodeBlock reads the block_type discriminant and unmarshals into the
// matching concrete type. An unknown discriminant is a hard failure.
func DecodeBlock(data []byte) (Block, error) {
	var head struct {
		BlockType BlockType `json:"block_type"`
		Label     string    `json:"label"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, NewError(ErrCodeValidation, "block is not a JSON object").WithCause(err)
	}
	b, err := NewBlock(head.BlockType, head.Label)
	if err != nil {
		if be, ok := err.(*BlockflowError); ok {
			return nil, be.WithLabel(head.Label)
		}
		return nil, err
	}
	if err := json.Unmarshal(data, b); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "decode %s block: %v", head.BlockType, err).
			WithLabel(head.Label).WithCause(err)
	}
	return b, nil
}

// ParseJSON decodes a definition document.
func ParseJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Clone deep-copies a definition through its JSON encoding.
func (d *Definition) Clone() (*Definition, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone definition: %w", err)
	}
	return ParseJSON(data)
}

// Walk visits every block depth-first in declaration order, descending into
// loop bodies. depth is 0 for top-level blocks. Returning false from fn stops
// descent into that block's children.
func Walk(blocks Blocks, fn func(b Block, depth int) bool) {
	walk(blocks, 0, fn)
}

func walk(blocks Blocks, depth int, fn func(Block, int) bool) {
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if !fn(b, depth) {
			continue
		}
		if loop, ok := b.(*ForLoopBlock); ok {
			walk(loop.LoopBlocks, depth+1, fn)
		}
	}
}

// Labels returns every block label in the definition, nested ones included.
func (d *Definition) Labels() []string {
	var out []string
	Walk(d.Blocks, func(b Block, _ int) bool {
		out = append(out, b.Base().Label)
		return true
	})
	return out
}
