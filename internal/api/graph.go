package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/pkg/schema"
)

// editResponse is returned by every graph edit.
type editResponse struct {
	Graph      canvas.Graph       `json:"graph"`
	NodeID     string             `json:"node_id,omitempty"`
	Parameters []schema.Parameter `json:"parameters,omitempty"`
}

func (s *Server) addBlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Graph     canvas.Graph     `json:"graph"`
		EdgeID    string           `json:"edge_id"`
		BlockType schema.BlockType `json:"block_type"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	g, id, err := s.editor.AddBlock(body.Graph, body.EdgeID, body.BlockType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Graph: g, NodeID: id})
}

func (s *Server) removeBlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Graph canvas.Graph `json:"graph"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.editor.RemoveBlock(body.Graph, chi.URLParam(r, "nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Graph: g})
}

func (s *Server) duplicateBlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Graph canvas.Graph `json:"graph"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	g, id, err := s.editor.DuplicateBlock(body.Graph, chi.URLParam(r, "nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Graph: g, NodeID: id})
}

func (s *Server) renameBlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Graph      canvas.Graph       `json:"graph"`
		Label      string             `json:"label"`
		Parameters []schema.Parameter `json:"parameters"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	nodeID := chi.URLParam(r, "nodeId")
	g, params, err := s.editor.Rename(body.Graph, nodeID, body.Label, body.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Graph: g, NodeID: nodeID, Parameters: params})
}

func (s *Server) setActiveBranch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Graph    canvas.Graph `json:"graph"`
		BranchID string       `json:"branch_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.editor.SetActiveBranch(body.Graph, chi.URLParam(r, "nodeId"), body.BranchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Graph: g})
}
