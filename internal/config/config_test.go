package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 4310, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeoutInlineEdit.Std())
	assert.Equal(t, time.Hour, cfg.IdleTimeoutUpload.Std())
	assert.Equal(t, time.Minute, cfg.SweepInterval.Std())
	assert.Equal(t, 3*time.Second, cfg.GracePeriod.Std())
}

func TestLoadFile_JSONC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.jsonc")
	content := `{
	// dashboard settings
	"port": 9999,
	"logLevel": "debug",
	"agentCommand": ["my-agent", "--stream"],
	"idleTimeoutInlineEdit": "10m"
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"my-agent", "--stream"}, cfg.AgentCommand)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeoutInlineEdit.Std())
	// Untouched fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, time.Hour, cfg.IdleTimeoutUpload.Std())
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.yaml")
	content := `
port: 8123
logLevel: warn
gracePeriod: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod.Std())
}

func TestLoadFile_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sweepInterval": "not-a-duration"}`), 0644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoad_DirectoryFileOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 7001}`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "agentboard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 7001, "logLevel": "debug"}`), 0644))

	t.Setenv("AGENTBOARD_PORT", "7002")
	t.Setenv("AGENTBOARD_AGENT_COMMAND", "agent --json")
	t.Setenv("AGENTBOARD_GRACE_PERIOD", "9s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7002, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"agent", "--json"}, cfg.AgentCommand)
	assert.Equal(t, 9*time.Second, cfg.GracePeriod.Std())
}

func TestLoad_MissingFilesAreFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
}

func TestLoad_ExplicitConfigEnvFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"logLevel": "error"}`), 0644))

	t.Setenv("AGENTBOARD_CONFIG", path)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestDuration_UnmarshalJSONNumber(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte("1500000000")))
	assert.Equal(t, 1500*time.Millisecond, d.Std())
}
