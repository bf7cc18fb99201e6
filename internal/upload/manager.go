// Package upload manages ephemeral staging sessions for uploaded project
// archives. A staging session owns a scratch directory of extracted files;
// callers either claim the directory or the sweep deletes it after the idle
// timeout, so abandoned uploads never accumulate on disk.
package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logging"
	"github.com/agentboard-ai/agentboard/internal/session"
)

// DefaultIdleTimeout evicts staging sessions never claimed or touched.
const DefaultIdleTimeout = time.Hour

// Session is one staged upload.
type Session struct {
	ID        string
	Dir       string
	CreatedAt time.Time

	lastActive time.Time
}

// Options configures the upload manager.
type Options struct {
	// BaseDir is the root under which staging directories are created.
	BaseDir       string
	Bus           *event.Bus
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// Manager tracks staged upload directories with the same registry-and-sweep
// pattern as the live session variants, minus the adapter: there is no
// process to pump, only files to reclaim.
type Manager struct {
	baseDir string
	bus     *event.Bus
	idle    time.Duration
	now     func() time.Time
	sweeper *session.Sweeper

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates the upload staging manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}

	m := &Manager{
		baseDir:  opts.BaseDir,
		bus:      opts.Bus,
		idle:     opts.IdleTimeout,
		now:      opts.Now,
		sessions: make(map[string]*Session),
	}
	m.sweeper = session.NewSweeper(opts.SweepInterval, m.evictIdle)
	return m, nil
}

// Create registers a new staging session and returns it. The caller extracts
// uploaded files into Session.Dir.
func (m *Manager) Create() (*Session, error) {
	id := uuid.New().String()
	dir := filepath.Join(m.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	now := m.now()
	s := &Session{ID: id, Dir: dir, CreatedAt: now, lastActive: now}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s, nil
}

// Get returns the staging session under id, refreshing its idle clock.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastActive = m.now()
	return s, true
}

// Touch refreshes the idle clock. Returns false when no session exists.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// ListFiles returns the staged files matching a doublestar pattern,
// relative to the staging directory and sorted. An empty pattern lists
// everything.
func (m *Manager) ListFiles(id, pattern string) ([]string, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("no staging session %q", id)
	}
	if pattern == "" {
		pattern = "**"
	}

	var files []string
	err := filepath.WalkDir(s.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		match, err := doublestar.Match(pattern, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if match {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list staged files: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// Release removes the session and hands ownership of the staged directory
// to the caller; the files are not deleted. Returns false when no session
// exists.
func (m *Manager) Release(id string) (string, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return "", false
	}
	return s.Dir, true
}

// Cancel removes the session and deletes its staged files. Returns false
// when no session exists, which is a no-op rather than an error.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.discard(s)
	return true
}

// Close stops the sweeper and deletes every staged directory.
func (m *Manager) Close() {
	m.sweeper.Stop()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		delete(m.sessions, id)
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.discard(s)
	}
}

// evictIdle deletes staging sessions idle past the timeout.
func (m *Manager) evictIdle() {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if s.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, s)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		m.discard(s)
		m.bus.Publish(event.Event{Type: event.UploadEvicted, SessionKey: s.ID})
		logging.Info().Str("uploadID", s.ID).Msg("evicted idle upload staging session")
	}
}

// discard deletes a session's staged files.
func (m *Manager) discard(s *Session) {
	if err := os.RemoveAll(s.Dir); err != nil {
		logging.Warn().Str("uploadID", s.ID).Err(err).Msg("failed to delete staged files")
	}
}
