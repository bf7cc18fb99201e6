// Package shell manages background shell sessions: long-running commands
// whose output streams into the session log and whose exit code becomes the
// terminal record. Shells live until the process exits or the caller stops
// them; there is no idle sweep.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logstore"
	"github.com/agentboard-ai/agentboard/internal/session"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

// Options configures the shell manager.
type Options struct {
	Store   logstore.Store
	Bus     *event.Bus
	Invoker adapter.Invoker
	Now     func() time.Time
}

// Manager runs background shell sessions on the shared registry/pump core.
type Manager struct {
	registry *session.Registry
	store    logstore.Store
	bus      *event.Bus
}

// NewManager creates the shell session manager.
func NewManager(opts Options) *Manager {
	invoker := opts.Invoker
	if invoker == nil {
		invoker = adapter.NewShellCommand()
	}

	m := &Manager{store: opts.Store, bus: opts.Bus}
	m.registry = session.NewRegistry(session.Options{
		Name:     "shell",
		Store:    opts.Store,
		Bus:      opts.Bus,
		Invoker:  invoker,
		Finalize: m.finalize,
		Now:      opts.Now,
	})
	return m
}

// commandEntry is the transcript header recording what a shell session ran.
type commandEntry struct {
	Type     string   `json:"type"`
	Script   string   `json:"script"`
	Commands []string `json:"commands"`
}

// Start launches a command under key. The script must parse as bash; an
// existing session under the same key is superseded.
func (m *Manager) Start(key, command, dir string) error {
	names, err := commandNames(command)
	if err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	// Record what is about to run so the transcript is self-describing.
	if payload, err := json.Marshal(commandEntry{Type: "command", Script: command, Commands: names}); err == nil {
		if entry, err := m.store.Append(context.Background(), key, types.EntryStructured, payload); err == nil {
			m.bus.Publish(event.Event{
				Type:       event.LogAppended,
				SessionKey: key,
				Data:       event.LogAppendedData{Entry: entry},
			})
		}
	}

	m.registry.Start(key, adapter.Request{Prompt: command, Dir: dir})
	return nil
}

// Stop cancels a running shell. Returns false when none exists under key.
func (m *Manager) Stop(key string) bool {
	return m.registry.Cancel(key)
}

// IsRunning reports whether a shell is live under key.
func (m *Manager) IsRunning(key string) bool {
	return m.registry.IsRunning(key)
}

// Status returns a snapshot of the shell session under key.
func (m *Manager) Status(key string) (types.SessionStatus, bool) {
	return m.registry.Status(key)
}

// Logs returns the recorded output for a shell session.
func (m *Manager) Logs(ctx context.Context, key string) ([]types.LogEntry, error) {
	return m.store.ListByKey(ctx, key)
}

// Keys lists live shell sessions.
func (m *Manager) Keys() []string {
	return m.registry.Keys()
}

// Close cancels all live shells.
func (m *Manager) Close() {
	m.registry.Close()
}

// finalize publishes the exit record for a shell that ended cleanly.
// Nonzero exits surface through the failed terminal path instead.
func (m *Manager) finalize(key, _ string, term adapter.Terminal) {
	m.bus.Publish(event.Event{
		Type:       event.ShellExited,
		SessionKey: key,
		Data:       event.ShellExitedData{ExitCode: term.ExitCode},
	})
}
