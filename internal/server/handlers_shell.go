package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentboard-ai/agentboard/pkg/types"
)

// StartShellRequest represents the request body for starting a shell session.
type StartShellRequest struct {
	Command   string `json:"command"`
	Directory string `json:"directory,omitempty"`
}

// listShells handles GET /shell
func (s *Server) listShells(w http.ResponseWriter, r *http.Request) {
	keys := s.shells.Keys()

	statuses := make([]types.SessionStatus, 0, len(keys))
	for _, key := range keys {
		if st, ok := s.shells.Status(key); ok {
			statuses = append(statuses, st)
		}
	}

	writeJSON(w, http.StatusOK, statuses)
}

// startShell handles POST /shell/{shellID}
func (s *Server) startShell(w http.ResponseWriter, r *http.Request) {
	shellID := chi.URLParam(r, "shellID")

	var req StartShellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if req.Command == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "command is required")
		return
	}

	if err := s.shells.Start(shellID, req.Command, req.Directory); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"key": shellID})
}

// stopShell handles DELETE /shell/{shellID}
func (s *Server) stopShell(w http.ResponseWriter, r *http.Request) {
	shellID := chi.URLParam(r, "shellID")

	if !s.shells.Stop(shellID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No running shell under key")
		return
	}

	writeSuccess(w)
}

// getShellStatus handles GET /shell/{shellID}/status
func (s *Server) getShellStatus(w http.ResponseWriter, r *http.Request) {
	shellID := chi.URLParam(r, "shellID")

	status, ok := s.shells.Status(shellID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No running shell under key")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// getShellLogs handles GET /shell/{shellID}/logs
func (s *Server) getShellLogs(w http.ResponseWriter, r *http.Request) {
	shellID := chi.URLParam(r, "shellID")

	entries, err := s.shells.Logs(r.Context(), shellID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if entries == nil {
		entries = []types.LogEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
