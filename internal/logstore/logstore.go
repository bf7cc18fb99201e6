// Package logstore provides the durable append-only record of session output.
//
// The file-backed implementation writes one JSON line per entry under a
// per-session-key file. Appends are strictly ordered by store-assigned
// sequence numbers; the store never reorders entries.
package logstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/agentboard-ai/agentboard/internal/logging"
	"github.com/agentboard-ai/agentboard/pkg/types"
)

const (
	// lockInitialInterval is the initial interval between lock attempts.
	lockInitialInterval = 5 * time.Millisecond
	// lockMaxInterval is the maximum interval between lock attempts.
	lockMaxInterval = 250 * time.Millisecond
	// lockMaxElapsedTime bounds how long one append waits for the file lock.
	lockMaxElapsedTime = 5 * time.Second
)

// ErrLockTimeout is returned when the per-key append lock cannot be acquired.
var ErrLockTimeout = errors.New("logstore: timed out acquiring append lock")

// Store is the boundary contract the orchestration core appends through.
// Implementations must tolerate concurrent writers from independent sessions.
type Store interface {
	// Append durably records one entry for a session key and returns the
	// entry with its store-assigned sequence number.
	Append(ctx context.Context, sessionKey string, kind types.LogEntryKind, payload json.RawMessage) (types.LogEntry, error)
	// ListByKey returns all entries for a session key in append order.
	ListByKey(ctx context.Context, sessionKey string) ([]types.LogEntry, error)
}

// FileStore is a file-based Store writing JSON lines per session key.
type FileStore struct {
	basePath string

	mu    sync.Mutex
	seqs  map[string]int64
	locks map[string]*fileLock
}

// NewFileStore creates a FileStore rooted at basePath.
func NewFileStore(basePath string) *FileStore {
	return &FileStore{
		basePath: basePath,
		seqs:     make(map[string]int64),
		locks:    make(map[string]*fileLock),
	}
}

// Append writes one entry for sessionKey. The sequence number is assigned
// here, monotonically per key, and survives process restarts by recounting
// the existing file on first touch.
func (s *FileStore) Append(ctx context.Context, sessionKey string, kind types.LogEntryKind, payload json.RawMessage) (types.LogEntry, error) {
	path := s.pathFor(sessionKey)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.LogEntry{}, fmt.Errorf("failed to create log directory: %w", err)
	}

	lock := s.lockFor(path)
	if err := acquire(ctx, lock); err != nil {
		return types.LogEntry{}, err
	}
	defer lock.Unlock()

	seq, err := s.nextSeq(sessionKey, path)
	if err != nil {
		return types.LogEntry{}, err
	}

	entry := types.LogEntry{
		ID:         ulid.Make().String(),
		SessionKey: sessionKey,
		SequenceNo: seq,
		Kind:       kind,
		Payload:    payload,
		CreatedAt:  time.Now().UnixMilli(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return types.LogEntry{}, fmt.Errorf("failed to marshal entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return types.LogEntry{}, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return types.LogEntry{}, fmt.Errorf("failed to append entry: %w", err)
	}

	s.mu.Lock()
	s.seqs[sessionKey] = seq + 1
	s.mu.Unlock()

	return entry, nil
}

// ListByKey returns all entries for sessionKey in append order. A key with no
// recorded output yields an empty slice. Corrupt lines (e.g. a torn write
// from a crashed process) are skipped, not fatal.
func (s *FileStore) ListByKey(ctx context.Context, sessionKey string) ([]types.LogEntry, error) {
	f, err := os.Open(s.pathFor(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.LogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var entries []types.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry types.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			logging.Warn().
				Str("sessionKey", sessionKey).
				Err(err).
				Msg("skipping corrupt log line")
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if entries == nil {
		entries = []types.LogEntry{}
	}
	return entries, nil
}

// nextSeq returns the next sequence number for a key (1-based), initializing
// from the on-disk line count the first time a key is touched.
func (s *FileStore) nextSeq(sessionKey, path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.seqs[sessionKey]; ok {
		return seq, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to read log file: %w", err)
	}

	var count int64
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
	}
	return count + 1, nil
}

func (s *FileStore) lockFor(path string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = newFileLock(path)
		s.locks[path] = lock
	}
	return lock
}

// pathFor maps an opaque session key onto a safe file path.
func (s *FileStore) pathFor(sessionKey string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, sessionKey)
	return filepath.Join(s.basePath, safe+".jsonl")
}

// acquire takes the append lock with exponential backoff and jitter so
// contending writers back off instead of spinning.
func acquire(ctx context.Context, lock *fileLock) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockInitialInterval
	b.MaxInterval = lockMaxInterval
	b.MaxElapsedTime = lockMaxElapsedTime
	b.RandomizationFactor = 0.5

	return backoff.Retry(func() error {
		if lock.TryLock() {
			return nil
		}
		return ErrLockTimeout
	}, backoff.WithContext(b, ctx))
}
