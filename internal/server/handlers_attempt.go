package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

// StartAttemptRequest represents the request body for starting an attempt.
type StartAttemptRequest struct {
	Prompt    string   `json:"prompt"`
	Directory string   `json:"directory,omitempty"`
	Env       []string `json:"env,omitempty"`
}

// AnswerRequest represents the request body for answering a pending question.
type AnswerRequest struct {
	Answers types.Answer `json:"answers"`
}

// listAttempts handles GET /attempt
func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	keys := s.attempts.Keys()

	statuses := make([]types.SessionStatus, 0, len(keys))
	for _, key := range keys {
		if st, ok := s.attempts.Status(key); ok {
			statuses = append(statuses, st)
		}
	}

	writeJSON(w, http.StatusOK, statuses)
}

// startAttempt handles POST /attempt/{attemptID}
//
// Starting under a key that already has a live session supersedes it: the
// prior run is cancelled and the new one takes over. The response reports
// acceptance, not completion; progress arrives over /event.
func (s *Server) startAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	var req StartAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	s.attempts.Start(attemptID, adapter.Request{
		Dir:    req.Directory,
		Env:    req.Env,
		Prompt: req.Prompt,
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"key": attemptID})
}

// cancelAttempt handles DELETE /attempt/{attemptID}
func (s *Server) cancelAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	if !s.attempts.Cancel(attemptID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No running attempt under key")
		return
	}

	writeSuccess(w)
}

// getAttemptStatus handles GET /attempt/{attemptID}/status
func (s *Server) getAttemptStatus(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	status, ok := s.attempts.Status(attemptID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No running attempt under key")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// answerAttempt handles POST /attempt/{attemptID}/answer
func (s *Server) answerAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if !s.attempts.SubmitAnswer(r.Context(), attemptID, req.Answers) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No attempt awaiting an answer under key")
		return
	}

	writeSuccess(w)
}

// getAttemptLogs handles GET /attempt/{attemptID}/logs
func (s *Server) getAttemptLogs(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	entries, err := s.store.ListByKey(r.Context(), attemptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Ensure we return an empty array [] instead of null
	if entries == nil {
		entries = []types.LogEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
