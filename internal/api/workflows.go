package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/internal/diagram"
	"github.com/rendis/blockflow/internal/logging"
	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/pkg/schema"
)

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.editor.List(r.Context(), store.WorkflowFilter{
		Title:  r.URL.Query().Get("title"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*store.Workflow{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title      string          `json:"title"`
		Definition json.RawMessage `json:"definition"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "title is required"))
		return
	}
	var def *schema.Definition
	if len(body.Definition) > 0 && string(body.Definition) != "null" {
		parsed, err := schema.ParseJSON(body.Definition)
		if err != nil {
			writeError(w, schema.NewErrorf(schema.ErrCodeMalformedField, "invalid definition: %v", err).WithCause(err))
			return
		}
		def = parsed
	}

	wf, result, err := s.editor.Create(r.Context(), body.Title, def)
	if err != nil {
		writeErrorWith(w, err, result)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"workflow":   wf,
		"validation": result,
	})
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.editor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := s.editor.Revisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if revs == nil {
		revs = []*store.Revision{}
	}
	writeJSON(w, http.StatusOK, revs)
}

func (s *Server) revertWorkflow(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq < 1 {
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "invalid revision %q", chi.URLParam(r, "seq")))
		return
	}
	result, err := s.editor.Revert(r.Context(), chi.URLParam(r, "id"), seq)
	if err != nil {
		writeErrorWith(w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": result})
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	sess, err := s.editor.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type graphPayload struct {
	Graph      canvas.Graph       `json:"graph"`
	Parameters []schema.Parameter `json:"parameters"`
}

func (s *Server) saveGraph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body graphPayload
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	ctx := logging.WithWorkflowID(r.Context(), id)
	result, err := s.editor.Save(ctx, id, body.Graph, body.Parameters)
	if err != nil {
		writeErrorWith(w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": result})
}

func (s *Server) getDiagram(w http.ResponseWriter, r *http.Request) {
	format, err := diagram.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.editor.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	model, err := diagram.Build(sess.Title, sess.Graph, sess.Validation)
	if err != nil {
		writeError(w, err)
		return
	}
	data, contentType, err := diagram.Render(r.Context(), model, format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
