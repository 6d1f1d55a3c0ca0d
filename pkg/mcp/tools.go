package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/diagram"
	"github.com/rendis/blockflow/internal/logging"
	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/internal/upgrade"
	"github.com/rendis/blockflow/pkg/schema"
)

// handleCreate stores a new workflow.
func (s *BlockflowServer) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required"), nil
	}
	def, err := optionalDefinition(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}

	wf, result, err := s.editor.Create(ctx, title, def)
	if err != nil {
		return validationFailure("create failed", err, result)
	}
	s.captureSession(ctx, wf.ID)
	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"title":       wf.Title,
		"validation":  result,
	})
}

// handleList lists stored workflows without their definitions.
func (s *BlockflowServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	filter := store.WorkflowFilter{
		Title:  req.GetString("title", ""),
		Limit:  extractInt(args, "limit", 50),
		Offset: extractInt(args, "offset", 0),
	}
	workflows, err := s.editor.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	summaries := make([]map[string]any, 0, len(workflows))
	for _, wf := range workflows {
		summaries = append(summaries, map[string]any{
			"id":         wf.ID,
			"title":      wf.Title,
			"version":    wf.Definition.Version,
			"blocks":     len(wf.Definition.Labels()),
			"updated_at": wf.UpdatedAt,
		})
	}
	return marshalResult(map[string]any{"workflows": summaries})
}

// handleLoad opens a stored workflow as a graph.
func (s *BlockflowServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	sess, err := s.editor.Load(ctx, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	s.captureSession(ctx, workflowID)
	return marshalResult(sess)
}

// handleSave serializes a graph into the stored workflow and tells the other
// sessions that have it open.
func (s *BlockflowServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	ctx = logging.WithWorkflowID(ctx, workflowID)
	g, err := requireGraph(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params, err := parameters(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.editor.Save(ctx, workflowID, g, params)
	if err != nil {
		return validationFailure("save failed", err, result)
	}
	s.captureSession(ctx, workflowID)

	origin := ""
	if session := server.ClientSessionFromContext(ctx); session != nil {
		origin = session.SessionID()
	}
	if nerr := s.notifier.NotifyChanged(ctx, workflowID, origin, map[string]any{
		"event":       "workflow.saved",
		"workflow_id": workflowID,
	}); nerr != nil {
		s.logger.WarnContext(ctx, "change notification failed", "error", nerr)
	}

	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"validation":  result,
	})
}

// handleConvert converts between definitions and graphs without storing
// anything.
func (s *BlockflowServer) handleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	direction, err := req.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError("direction is required"), nil
	}

	switch direction {
	case "to_graph":
		def, err := requireDefinition(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		g, err := s.editor.ToGraph(def)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("conversion failed: %v", err)), nil
		}
		return marshalResult(map[string]any{
			"graph":      g,
			"parameters": def.Parameters,
			"validation": s.editor.Validate(def),
		})
	case "to_definition":
		g, err := requireGraph(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := parameters(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		def, result, err := s.editor.ToDefinition(g, params)
		if err != nil {
			return validationFailure("conversion failed", err, result)
		}
		return marshalResult(map[string]any{
			"definition": def,
			"validation": result,
		})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown direction: %s", direction)), nil
	}
}

// handleRename relabels a block node.
func (s *BlockflowServer) handleRename(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError("label is required"), nil
	}
	g, err := requireGraph(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params, err := parameters(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, newParams, err := s.editor.Rename(g, nodeID, label, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rename failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"graph":      out,
		"parameters": newParams,
	})
}

// handleUpgrade brings a definition to the current version.
func (s *BlockflowServer) handleUpgrade(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := requireDefinition(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := upgrade.Upgrade(def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("upgrade failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"from_version": def.Version,
		"definition":   out,
	})
}

// handleValidate runs the validation pipeline over a definition.
func (s *BlockflowServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := requireDefinition(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(s.editor.Validate(def))
}

// handleDiagram draws a stored workflow or an inline definition.
func (s *BlockflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	format, err := diagram.ParseFormat(name)
	if err != nil {
		return mcp.NewToolResultError("format must be ascii, mermaid, image or svg"), nil
	}

	title, g, result, err := s.resolveGraph(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model, err := diagram.Build(title, g, result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}
	data, _, err := diagram.Render(ctx, model, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	if format == diagram.FormatImage {
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleQuery runs a jq program over a stored workflow or an inline
// definition.
func (s *BlockflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	var def *schema.Definition
	if workflowID := req.GetString("workflow_id", ""); workflowID != "" {
		wf, err := s.editor.Get(ctx, workflowID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("workflow not found: %v", err)), nil
		}
		def = &wf.Definition
	} else if def, err = requireDefinition(req); err != nil {
		return mcp.NewToolResultError("one of workflow_id, definition or definition_text is required"), nil
	}

	results, err := s.query.Definition(ctx, def, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"results": results})
}

// --- Internal helpers ---

// resolveGraph loads workflow_id when given and otherwise converts the inline
// definition.
func (s *BlockflowServer) resolveGraph(ctx context.Context, req mcp.CallToolRequest) (string, canvas.Graph, *schema.ValidationResult, error) {
	if workflowID := req.GetString("workflow_id", ""); workflowID != "" {
		sess, err := s.editor.Load(ctx, workflowID)
		if err != nil {
			return "", canvas.Graph{}, nil, fmt.Errorf("workflow not found: %w", err)
		}
		return sess.Title, sess.Graph, sess.Validation, nil
	}
	def, err := requireDefinition(req)
	if err != nil {
		return "", canvas.Graph{}, nil, fmt.Errorf("one of workflow_id, definition or definition_text is required")
	}
	g, err := s.editor.ToGraph(def)
	if err != nil {
		return "", canvas.Graph{}, nil, fmt.Errorf("conversion failed: %w", err)
	}
	return "", g, s.editor.Validate(def), nil
}

// optionalDefinition reads definition or definition_text. Neither given
// yields nil.
func optionalDefinition(req mcp.CallToolRequest) (*schema.Definition, error) {
	if text := req.GetString("definition_text", ""); text != "" {
		return schema.ParseAny([]byte(text))
	}
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return schema.ParseJSON(data)
}

func requireDefinition(req mcp.CallToolRequest) (*schema.Definition, error) {
	def, err := optionalDefinition(req)
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("definition or definition_text is required")
	}
	return def, nil
}

func requireGraph(req mcp.CallToolRequest) (canvas.Graph, error) {
	raw := mcp.ParseStringMap(req, "graph", nil)
	if raw == nil {
		return canvas.Graph{}, fmt.Errorf("graph is required")
	}
	var g canvas.Graph
	if err := remarshal(raw, &g); err != nil {
		return canvas.Graph{}, fmt.Errorf("invalid graph: %w", err)
	}
	return g, nil
}

func parameters(req mcp.CallToolRequest) ([]schema.Parameter, error) {
	raw, ok := req.GetArguments()["parameters"]
	if !ok || raw == nil {
		return nil, nil
	}
	var params []schema.Parameter
	if err := remarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return params, nil
}

// remarshal converts a decoded JSON argument into v.
func remarshal(raw any, v any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// validationFailure reports err as a tool error; when a validation result is
// available it is returned alongside so the caller can fix the issues.
func validationFailure(prefix string, err error, result *schema.ValidationResult) (*mcp.CallToolResult, error) {
	if result == nil || result.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err)), nil
	}
	data, merr := json.Marshal(map[string]any{
		"error":      fmt.Sprintf("%s: %v", prefix, err),
		"validation": result,
	})
	if merr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err)), nil
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = true
	return res, nil
}

// extractInt safely extracts an integer from an argument map.
func extractInt(args map[string]any, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession records that the calling session has workflowID open.
func (s *BlockflowServer) captureSession(ctx context.Context, workflowID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Watch(workflowID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
