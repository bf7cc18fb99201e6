package shell

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string][]types.LogEntry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]types.LogEntry)}
}

func (m *memStore) Append(ctx context.Context, key string, kind types.LogEntryKind, payload json.RawMessage) (types.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := types.LogEntry{
		SessionKey: key,
		SequenceNo: int64(len(m.entries[key]) + 1),
		Kind:       kind,
		Payload:    payload,
		CreatedAt:  time.Now().UnixMilli(),
	}
	m.entries[key] = append(m.entries[key], entry)
	return entry, nil
}

func (m *memStore) ListByKey(ctx context.Context, key string) ([]types.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.LogEntry(nil), m.entries[key]...), nil
}

func newTestManager(t *testing.T) (*Manager, *memStore, *event.Bus) {
	t.Helper()
	store := newMemStore()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	m := NewManager(Options{Store: store, Bus: bus})
	t.Cleanup(m.Close)
	return m, store, bus
}

func waitFor(t *testing.T, ch <-chan event.Event, typ event.EventType, key string) event.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ && e.SessionKey == key {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on %q", typ, key)
		}
	}
}

func collect(bus *event.Bus) (<-chan event.Event, func()) {
	ch := make(chan event.Event, 64)
	unsub := bus.SubscribeAll(func(e event.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	return ch, unsub
}

func TestManager_RunsCommandToExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash semantics")
	}
	m, store, bus := newTestManager(t)
	ch, unsub := collect(bus)
	defer unsub()

	if err := m.Start("shell-1", "echo hello", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	e := waitFor(t, ch, event.ShellExited, "shell-1")
	if data, ok := e.Data.(event.ShellExitedData); !ok || data.ExitCode != 0 {
		t.Errorf("unexpected exit data: %+v", e.Data)
	}
	waitFor(t, ch, event.SessionCompleted, "shell-1")

	entries, _ := store.ListByKey(context.Background(), "shell-1")
	var sawCommand, sawOutput bool
	for _, entry := range entries {
		var tagged struct {
			Type string `json:"type"`
			Line string `json:"line"`
		}
		json.Unmarshal(entry.Payload, &tagged)
		if tagged.Type == "command" {
			sawCommand = true
		}
		if tagged.Line == "hello" {
			sawOutput = true
		}
	}
	if !sawCommand {
		t.Error("transcript missing the command header")
	}
	if !sawOutput {
		t.Error("transcript missing the command output")
	}
}

func TestManager_NonzeroExitFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash semantics")
	}
	m, _, bus := newTestManager(t)
	ch, unsub := collect(bus)
	defer unsub()

	if err := m.Start("shell-1", "exit 3", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, ch, event.SessionFailed, "shell-1")
	if m.IsRunning("shell-1") {
		t.Error("failed shell still registered")
	}
}

func TestManager_RejectsUnparseableCommand(t *testing.T) {
	m, store, _ := newTestManager(t)

	if err := m.Start("shell-1", `echo "unterminated`, ""); err == nil {
		t.Fatal("expected parse error")
	}
	if m.IsRunning("shell-1") {
		t.Error("rejected command left a session behind")
	}

	entries, _ := store.ListByKey(context.Background(), "shell-1")
	if len(entries) != 0 {
		t.Errorf("rejected command wrote %d log entries", len(entries))
	}
}

func TestManager_StopCancelsLongRunningCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash semantics")
	}
	m, _, bus := newTestManager(t)
	ch, unsub := collect(bus)
	defer unsub()

	if err := m.Start("shell-1", "sleep 30", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, ch, event.SessionRunning, "shell-1")

	if !m.Stop("shell-1") {
		t.Fatal("Stop returned false for a running shell")
	}

	waitFor(t, ch, event.SessionCancelled, "shell-1")
	if m.IsRunning("shell-1") {
		t.Error("cancelled shell still registered")
	}
}

func TestManager_StopUnknownKeyIsNoOp(t *testing.T) {
	m, _, _ := newTestManager(t)

	if m.Stop("absent") {
		t.Error("Stop reported true for unknown key")
	}
}
