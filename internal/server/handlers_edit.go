package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentboard-ai/agentboard/pkg/types"
)

// StartEditRequest represents the request body for starting an inline edit.
type StartEditRequest struct {
	Selection   string `json:"selection"`
	Instruction string `json:"instruction"`
}

// startEdit handles POST /edit/{editID}
func (s *Server) startEdit(w http.ResponseWriter, r *http.Request) {
	editID := chi.URLParam(r, "editID")

	var req StartEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if req.Instruction == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "instruction is required")
		return
	}

	s.edits.Start(editID, req.Selection, req.Instruction)

	writeJSON(w, http.StatusAccepted, map[string]string{"key": editID})
}

// cancelEdit handles DELETE /edit/{editID}
func (s *Server) cancelEdit(w http.ResponseWriter, r *http.Request) {
	editID := chi.URLParam(r, "editID")

	if !s.edits.Cancel(editID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No running edit under key")
		return
	}

	writeSuccess(w)
}

// getEditStatus handles GET /edit/{editID}/status
func (s *Server) getEditStatus(w http.ResponseWriter, r *http.Request) {
	editID := chi.URLParam(r, "editID")

	status, ok := s.edits.Status(editID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No running edit under key")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// getEditLogs handles GET /edit/{editID}/logs
func (s *Server) getEditLogs(w http.ResponseWriter, r *http.Request) {
	editID := chi.URLParam(r, "editID")

	entries, err := s.edits.Logs(r.Context(), editID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if entries == nil {
		entries = []types.LogEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
