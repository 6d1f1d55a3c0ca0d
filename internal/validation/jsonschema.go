package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/blockflow/pkg/schema"
)

const definitionSchemaURL = "https://blockflow.dev/schemas/definition.json"

// definitionSchemaJSON is the JSON Schema of a workflow definition document.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://blockflow.dev/schemas/definition.json",
  "type": "object",
  "required": ["blocks"],
  "properties": {
    "version": {
      "type": "integer",
      "minimum": 0
    },
    "parameters": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/parameter" }
    },
    "blocks": { "$ref": "#/$defs/blocks" }
  },
  "$defs": {
    "blocks": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/block" }
    },
    "parameter": {
      "type": "object",
      "required": ["parameter_type", "key"],
      "properties": {
        "parameter_type": {
          "type": "string",
          "enum": ["workflow", "context", "output", "aws_secret", "credential"]
        },
        "key": { "type": "string", "minLength": 1 },
        "source_parameter_key": { "type": ["string", "null"] }
      }
    },
    "block": {
      "type": "object",
      "required": ["label", "block_type"],
      "properties": {
        "label": { "type": "string", "minLength": 1 },
        "block_type": {
          "type": "string",
          "enum": [
            "task", "task_v2", "navigation", "action", "extraction", "login",
            "validation", "file_download", "for_loop", "conditional", "wait",
            "text_prompt", "code", "send_email", "file_url_parser", "pdf_parser",
            "upload_to_s3", "download_to_s3", "file_upload", "http_request", "goto_url"
          ]
        },
        "continue_on_failure": { "type": "boolean" },
        "next_block_label": { "type": ["string", "null"] },
        "parameter_keys": {
          "type": ["array", "null"],
          "items": { "type": "string" }
        },
        "max_retries": { "type": "integer", "minimum": 0 },
        "wait_sec": { "type": "integer", "minimum": 0 },
        "timeout": { "type": "integer", "minimum": 0 },
        "headers": {
          "type": ["object", "null"],
          "additionalProperties": { "type": "string" }
        }
      },
      "allOf": [
        {
          "if": { "properties": { "block_type": { "const": "for_loop" } } },
          "then": {
            "properties": { "loop_blocks": { "$ref": "#/$defs/blocks" } }
          }
        },
        {
          "if": { "properties": { "block_type": { "const": "conditional" } } },
          "then": {
            "required": ["branch_conditions"],
            "properties": {
              "branch_conditions": {
                "type": "array",
                "items": { "$ref": "#/$defs/branch" }
              }
            }
          }
        }
      ]
    },
    "branch": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "is_default": { "type": "boolean" },
        "criteria": {
          "type": ["object", "null"],
          "properties": {
            "criteria_type": { "type": "string" },
            "expression": { "type": "string" }
          }
        },
        "next_block_label": { "type": ["string", "null"] }
      }
    }
  }
}`

// JSONSchemaValidator validates definition documents against the embedded
// schema and compiles user-supplied data schemas. Safe for concurrent use.
type JSONSchemaValidator struct {
	definitionSchema *jsonschema.Schema

	// mu guards the cache of compiled data schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the definition
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal definition schema: %w", err)
	}
	if err := c.AddResource(definitionSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add definition schema resource: %w", err)
	}

	defSchema, err := c.Compile(definitionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}

	return &JSONSchemaValidator{
		definitionSchema: defSchema,
		cache:            make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDefinition validates the JSON form of def.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.Definition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}

	raw, err := json.Marshal(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize definition").WithCause(err)
	}
	return v.ValidateDocument(raw)
}

// ValidateDocument validates a raw definition document before it is decoded,
// so an unknown block_type is reported with its location.
func (v *JSONSchemaValidator) ValidateDocument(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "definition is not valid JSON").WithCause(err)
	}
	if err := v.definitionSchema.Validate(doc); err != nil {
		return toBlockflowError(err)
	}
	return nil
}

// CompileDataSchema checks that value is a usable JSON Schema. Strings and
// nil are accepted as free-form descriptions.
func (v *JSONSchemaValidator) CompileDataSchema(value any) error {
	switch value.(type) {
	case nil, string:
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedField, "data schema is not JSON encodable").WithCause(err)
	}
	if _, err := v.getOrCompile(raw); err != nil {
		return schema.NewErrorf(schema.ErrCodeMalformedField, "invalid JSON Schema: %s", err.Error()).WithCause(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("blockflow://data-schema/%d", len(v.cache))

	// Fresh compiler per schema so resources never collide.
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toBlockflowError converts a jsonschema.ValidationError into a
// BlockflowError carrying every leaf violation.
func toBlockflowError(err error) *schema.BlockflowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// prefixed with their instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
