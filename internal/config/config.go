// Package config loads agentboard server configuration from JSONC or YAML
// files with environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "5m".
type Duration time.Duration

// UnmarshalJSON parses a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration: %s", data)
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the server configuration.
type Config struct {
	// Host and Port are the HTTP listen address.
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// LogLevel is a zerolog level name; LogPretty enables console output.
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogPretty bool   `json:"logPretty" yaml:"logPretty"`

	// LogDir is where session logs are stored.
	LogDir string `json:"logDir" yaml:"logDir"`
	// UploadDir is the root for upload staging directories.
	UploadDir string `json:"uploadDir" yaml:"uploadDir"`

	// AgentCommand is the argv of the agent CLI to spawn for attempts.
	AgentCommand []string `json:"agentCommand" yaml:"agentCommand"`

	// IdleTimeoutInlineEdit evicts abandoned inline-edit sessions.
	IdleTimeoutInlineEdit Duration `json:"idleTimeoutInlineEdit" yaml:"idleTimeoutInlineEdit"`
	// IdleTimeoutUpload evicts unclaimed upload staging sessions.
	IdleTimeoutUpload Duration `json:"idleTimeoutUpload" yaml:"idleTimeoutUpload"`
	// SweepInterval is how often idle sessions are swept. It should stay
	// shorter than the shortest idle timeout.
	SweepInterval Duration `json:"sweepInterval" yaml:"sweepInterval"`
	// GracePeriod bounds graceful close before hard abort.
	GracePeriod Duration `json:"gracePeriod" yaml:"gracePeriod"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".agentboard")
	return &Config{
		Host:                  "127.0.0.1",
		Port:                  4310,
		LogLevel:              "info",
		LogDir:                filepath.Join(base, "logs"),
		UploadDir:             filepath.Join(base, "uploads"),
		IdleTimeoutInlineEdit: Duration(5 * time.Minute),
		IdleTimeoutUpload:     Duration(time.Hour),
		SweepInterval:         Duration(time.Minute),
		GracePeriod:           Duration(3 * time.Second),
	}
}

// Load builds the configuration from (in priority order) defaults, config
// files found in the working directory and home, the AGENTBOARD_CONFIG file,
// and environment variables.
func Load(directory string) (*Config, error) {
	cfg := Default()

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".agentboard", "agentboard.json"),
			filepath.Join(home, ".agentboard", "agentboard.jsonc"),
			filepath.Join(home, ".agentboard", "agentboard.yaml"),
		)
	}
	if directory != "" {
		paths = append(paths,
			filepath.Join(directory, "agentboard.json"),
			filepath.Join(directory, "agentboard.jsonc"),
			filepath.Join(directory, "agentboard.yaml"),
		)
	}
	if p := os.Getenv("AGENTBOARD_CONFIG"); p != "" {
		paths = append(paths, p)
	}

	for _, path := range paths {
		if err := loadFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFile loads a single config file over defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		// JSONC comments are stripped before parsing.
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
}

// applyEnvOverrides applies AGENTBOARD_* environment variables, which win
// over every file source.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTBOARD_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AGENTBOARD_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("AGENTBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTBOARD_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("AGENTBOARD_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("AGENTBOARD_AGENT_COMMAND"); v != "" {
		cfg.AgentCommand = strings.Fields(v)
	}
	for env, dst := range map[string]*Duration{
		"AGENTBOARD_IDLE_TIMEOUT_INLINE_EDIT": &cfg.IdleTimeoutInlineEdit,
		"AGENTBOARD_IDLE_TIMEOUT_UPLOAD":      &cfg.IdleTimeoutUpload,
		"AGENTBOARD_SWEEP_INTERVAL":           &cfg.SweepInterval,
		"AGENTBOARD_GRACE_PERIOD":             &cfg.GracePeriod,
	} {
		if v := os.Getenv(env); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				*dst = Duration(parsed)
			}
		}
	}
}
