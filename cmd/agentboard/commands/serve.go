package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentboard-ai/agentboard/internal/config"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logging"
	"github.com/agentboard-ai/agentboard/internal/logstore"
	"github.com/agentboard-ai/agentboard/internal/server"
)

var (
	servePort int
	serveHost string
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentboard server",
	Long: `Start the agentboard HTTP server.

The server exposes attempt, shell, edit, and upload endpoints plus an
SSE event stream for the dashboard.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	appCfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		appCfg.Port = servePort
	}
	if serveHost != "" {
		appCfg.Host = serveHost
	}
	if logLevel != "" {
		appCfg.LogLevel = logLevel
	}
	if logPretty {
		appCfg.LogPretty = true
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(appCfg.LogLevel),
		Pretty: appCfg.LogPretty,
	})

	logging.Info().
		Str("version", Version).
		Str("directory", workDir).
		Msg("starting agentboard server")

	if err := os.MkdirAll(appCfg.LogDir, 0o755); err != nil {
		return err
	}

	store := logstore.NewFileStore(appCfg.LogDir)
	bus := event.NewBus()

	serverConfig := server.DefaultConfig()
	serverConfig.Host = appCfg.Host
	serverConfig.Port = appCfg.Port

	srv, err := server.New(serverConfig, appCfg, store, bus)
	if err != nil {
		return err
	}

	// Live-reload the log level when the config file changes
	watcher := watchConfig(workDir)
	if watcher != nil {
		defer watcher.Stop()
	}

	// Start server in goroutine
	go func() {
		logging.Info().
			Str("host", appCfg.Host).
			Int("port", appCfg.Port).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	bus.Close()

	logging.Info().Msg("server stopped")
	return nil
}

// watchConfig watches the first config file present and reapplies the log
// level on change. Returns nil when no config file exists.
func watchConfig(workDir string) *config.Watcher {
	candidates := []string{
		filepath.Join(workDir, "agentboard.json"),
		filepath.Join(workDir, "agentboard.jsonc"),
		filepath.Join(workDir, "agentboard.yaml"),
	}
	if p := os.Getenv("AGENTBOARD_CONFIG"); p != "" {
		candidates = append([]string{p}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		w, err := config.NewWatcher(path, func(cfg *config.Config) {
			logging.Init(logging.Config{
				Level:  logging.ParseLevel(cfg.LogLevel),
				Pretty: cfg.LogPretty,
			})
			logging.Info().Str("level", cfg.LogLevel).Msg("log level reloaded")
		})
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("failed to watch config file")
			return nil
		}
		return w
	}
	return nil
}
