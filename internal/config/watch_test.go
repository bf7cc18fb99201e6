package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logLevel": "info"}`), 0644))

	loaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		loaded <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	// Give the watcher a moment to register before the change.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"logLevel": "debug"}`), 0644))

	select {
	case cfg := <-loaded:
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reloaded the config")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	loaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		loaded <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))

	select {
	case <-loaded:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_SkipsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 1234}`), 0644))

	loaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		loaded <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	// A broken write must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte(`{"port": `), 0644))

	select {
	case <-loaded:
		t.Fatal("broken config reached the callback")
	case <-time.After(300 * time.Millisecond):
	}
}
