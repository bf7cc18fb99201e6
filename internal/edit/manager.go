// Package edit manages inline code-edit sessions: short-lived streaming
// queries over a code selection whose final result is synthesized by diffing
// the generated text against the original.
package edit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logstore"
	"github.com/agentboard-ai/agentboard/internal/session"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

// DefaultIdleTimeout evicts edit sessions abandoned mid-stream, e.g. when
// the browser tab that started one is closed.
const DefaultIdleTimeout = 5 * time.Minute

// editPrompt is the wire shape of the instruction delivered to the adapter.
type editPrompt struct {
	Instruction string `json:"instruction"`
	Selection   string `json:"selection"`
}

// resultEntry is the structured log payload recording the finalized edit.
type resultEntry struct {
	Type      string `json:"type"`
	Result    string `json:"result"`
	Diff      string `json:"diff,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Options configures the edit manager.
type Options struct {
	Store         logstore.Store
	Bus           *event.Bus
	Invoker       adapter.Invoker
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// Manager runs inline edit sessions on the shared registry/pump core with an
// idle sweep and a diff finalizer.
type Manager struct {
	registry *session.Registry
	sweeper  *session.Sweeper
	store    logstore.Store
	bus      *event.Bus

	mu        sync.Mutex
	originals map[string]string
}

// NewManager creates the edit session manager.
func NewManager(opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}

	m := &Manager{
		store:     opts.Store,
		bus:       opts.Bus,
		originals: make(map[string]string),
	}
	m.registry = session.NewRegistry(session.Options{
		Name:        "edit",
		Store:       opts.Store,
		Bus:         opts.Bus,
		Invoker:     opts.Invoker,
		IdleTimeout: opts.IdleTimeout,
		Finalize:    m.finalize,
		Now:         opts.Now,
	})
	m.sweeper = session.NewSweeper(opts.SweepInterval, func() {
		for _, key := range m.registry.EvictIdle() {
			m.forget(key)
		}
	})
	return m
}

// Start begins an edit session over a code selection. An existing session
// under the same key is superseded.
func (m *Manager) Start(key, selection, instruction string) {
	m.mu.Lock()
	m.originals[key] = selection
	m.mu.Unlock()

	prompt, _ := json.Marshal(editPrompt{Instruction: instruction, Selection: selection})
	m.registry.Start(key, adapter.Request{Prompt: string(prompt)})
}

// Cancel aborts an edit session. Returns false when none exists.
func (m *Manager) Cancel(key string) bool {
	ok := m.registry.Cancel(key)
	if ok {
		m.forget(key)
	}
	return ok
}

// IsRunning reports whether an edit session is live under key.
func (m *Manager) IsRunning(key string) bool {
	return m.registry.IsRunning(key)
}

// Status returns a snapshot of the session under key.
func (m *Manager) Status(key string) (types.SessionStatus, bool) {
	return m.registry.Status(key)
}

// Logs returns the recorded entries for an edit session.
func (m *Manager) Logs(ctx context.Context, key string) ([]types.LogEntry, error) {
	return m.store.ListByKey(ctx, key)
}

// Close stops the sweeper and cancels all live sessions.
func (m *Manager) Close() {
	m.sweeper.Stop()
	m.registry.Close()
}

// finalize diffs the accumulated stream against the original selection and
// publishes the synthesized result.
func (m *Manager) finalize(key, buffer string, term adapter.Terminal) {
	m.mu.Lock()
	original := m.originals[key]
	delete(m.originals, key)
	m.mu.Unlock()

	diff, additions, deletions := buildDiff(original, buffer)

	if payload, err := json.Marshal(resultEntry{
		Type:      "edit_result",
		Result:    buffer,
		Diff:      diff,
		Additions: additions,
		Deletions: deletions,
	}); err == nil {
		if entry, err := m.store.Append(context.Background(), key, types.EntryStructured, payload); err == nil {
			m.bus.Publish(event.Event{
				Type:       event.LogAppended,
				SessionKey: key,
				Data:       event.LogAppendedData{Entry: entry},
			})
		}
	}

	m.bus.Publish(event.Event{
		Type:       event.EditFinalized,
		SessionKey: key,
		Data: event.EditFinalizedData{
			Result:    buffer,
			Diff:      diff,
			Additions: additions,
			Deletions: deletions,
		},
	})
}

// forget drops the cached original for a key that will never finalize.
func (m *Manager) forget(key string) {
	m.mu.Lock()
	delete(m.originals, key)
	m.mu.Unlock()
}
