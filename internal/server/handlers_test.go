package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/agentboard-ai/agentboard/internal/config"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logstore"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	appCfg := config.Default()
	appCfg.LogDir = t.TempDir()
	appCfg.UploadDir = t.TempDir()
	// A bash stand-in for the agent CLI, speaking the JSON-line protocol.
	appCfg.AgentCommand = []string{"bash", "-c", `read prompt
echo '{"type":"message","text":"ok"}'
echo '{"type":"result","status":"success"}'`}

	store := logstore.NewFileStore(appCfg.LogDir)
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	srv, err := New(DefaultConfig(), appCfg, store, bus)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		srv.attempts.Close()
		srv.shells.Close()
		srv.edits.Close()
		srv.uploads.Close()
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestListAttempts_Empty(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "GET", "/attempt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var statuses []types.SessionStatus
	if err := json.NewDecoder(w.Body).Decode(&statuses); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(statuses) != 0 {
		t.Errorf("Expected empty list, got %d", len(statuses))
	}
}

func TestStartAttempt_RequiresPrompt(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "POST", "/attempt/task-1", StartAttemptRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestStartAttempt_RunsToCompletion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash required")
	}
	srv := setupTestServer(t)

	completed := make(chan struct{})
	unsub := srv.bus.Subscribe("task-1", func(e event.Event) {
		if e.Type == event.SessionCompleted {
			close(completed)
		}
	})
	defer unsub()

	w := doJSON(t, srv, "POST", "/attempt/task-1", StartAttemptRequest{Prompt: "fix the bug"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("attempt never completed")
	}

	// Logs for the finished attempt stay queryable.
	w = doJSON(t, srv, "GET", "/attempt/task-1/logs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var entries []types.LogEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("Expected progress and result entries, got %d", len(entries))
	}
}

func TestAttemptStatus_NotFound(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "GET", "/attempt/absent/status", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestCancelAttempt_NotFound(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "DELETE", "/attempt/absent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAnswerAttempt_NoPendingQuestion(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "POST", "/attempt/absent/answer", AnswerRequest{Answers: types.Answer{"q": {"a"}}})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestStartShell_RejectsBadScript(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "POST", "/shell/shell-1", StartShellRequest{Command: `echo "unterminated`})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestUploadLifecycle(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "POST", "/upload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if created.ID == "" || created.Dir == "" {
		t.Fatalf("Incomplete upload response: %+v", created)
	}

	w = doJSON(t, srv, "POST", "/upload/"+created.ID+"/touch", nil)
	if w.Code != http.StatusOK {
		t.Errorf("touch: expected 200, got %d", w.Code)
	}

	w = doJSON(t, srv, "GET", "/upload/"+created.ID+"/files", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("files: expected 200, got %d", w.Code)
	}
	var files []string
	json.NewDecoder(w.Body).Decode(&files)
	if len(files) != 0 {
		t.Errorf("fresh staging dir lists %v", files)
	}

	w = doJSON(t, srv, "POST", "/upload/"+created.ID+"/release", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("release: expected 200, got %d", w.Code)
	}

	// After release the session is gone.
	w = doJSON(t, srv, "GET", "/upload/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after release, got %d", w.Code)
	}
}

func TestUpload_CancelUnknown(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "DELETE", "/upload/absent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestErrorResponseShape(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, "GET", "/attempt/absent/status", nil)

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("Expected %s, got %s", ErrCodeNotFound, resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("Error message empty")
	}
}
