package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// UploadResponse represents an upload staging session.
type UploadResponse struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"createdAt"`
}

// createUpload handles POST /upload
func (s *Server) createUpload(w http.ResponseWriter, r *http.Request) {
	session, err := s.uploads.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		ID:        session.ID,
		Dir:       session.Dir,
		CreatedAt: session.CreatedAt,
	})
}

// getUpload handles GET /upload/{uploadID}
func (s *Server) getUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	session, ok := s.uploads.Get(uploadID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No staging session under id")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		ID:        session.ID,
		Dir:       session.Dir,
		CreatedAt: session.CreatedAt,
	})
}

// touchUpload handles POST /upload/{uploadID}/touch
func (s *Server) touchUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	if !s.uploads.Touch(uploadID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No staging session under id")
		return
	}

	writeSuccess(w)
}

// listUploadFiles handles GET /upload/{uploadID}/files
func (s *Server) listUploadFiles(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	pattern := r.URL.Query().Get("pattern")

	files, err := s.uploads.ListFiles(uploadID, pattern)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	if files == nil {
		files = []string{}
	}

	writeJSON(w, http.StatusOK, files)
}

// releaseUpload handles POST /upload/{uploadID}/release
//
// Release hands the staging directory to the caller and drops the session;
// the files stay on disk and the sweep no longer sees them.
func (s *Server) releaseUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	dir, ok := s.uploads.Release(uploadID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No staging session under id")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"dir": dir})
}

// cancelUpload handles DELETE /upload/{uploadID}
func (s *Server) cancelUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	if !s.uploads.Cancel(uploadID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No staging session under id")
		return
	}

	writeSuccess(w)
}
