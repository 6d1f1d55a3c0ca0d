package api

import (
	"net/http"

	"github.com/rendis/blockflow/internal/upgrade"
)

func (s *Server) convertToGraph(w http.ResponseWriter, r *http.Request) {
	def, err := readDefinition(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.editor.ToGraph(def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"graph":      g,
		"parameters": def.Parameters,
		"validation": s.editor.Validate(def),
	})
}

func (s *Server) convertToDefinition(w http.ResponseWriter, r *http.Request) {
	var body graphPayload
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	def, result, err := s.editor.ToDefinition(body.Graph, body.Parameters)
	if err != nil {
		writeErrorWith(w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"definition": def,
		"validation": result,
	})
}

func (s *Server) upgradeDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := readDefinition(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	from := def.Version
	out, err := upgrade.Upgrade(def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from_version": from,
		"definition":   out,
	})
}

func (s *Server) validateDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := readDefinition(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Validate(def))
}
