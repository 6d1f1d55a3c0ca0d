package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML definition. The document is normalized to JSON
// first so the block_type dispatch in DecodeBlock applies unchanged.
func ParseYAML(data []byte) (*Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	raw, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("normalize yaml: %w", err)
	}
	return ParseJSON(raw)
}

// ToYAML encodes a definition as YAML, preserving JSON field names.
func ToYAML(def *Definition) ([]byte, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// ParseAny sniffs the first non-space byte: '{' selects JSON, anything else YAML.
func ParseAny(data []byte) (*Definition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// normalizeYAML converts map[any]any nodes (possible with non-string keys)
// into map[string]any so encoding/json accepts them.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
