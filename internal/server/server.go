// Package server provides the HTTP server for the agentboard API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentboard-ai/agentboard/internal/adapter"
	"github.com/agentboard-ai/agentboard/internal/config"
	"github.com/agentboard-ai/agentboard/internal/edit"
	"github.com/agentboard-ai/agentboard/internal/event"
	"github.com/agentboard-ai/agentboard/internal/logstore"
	"github.com/agentboard-ai/agentboard/internal/session"
	"github.com/agentboard-ai/agentboard/internal/shell"
	"github.com/agentboard-ai/agentboard/internal/upload"
)

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         4310,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	appCfg   *config.Config
	store    logstore.Store
	bus      *event.Bus
	attempts *session.Registry
	shells   *shell.Manager
	edits    *edit.Manager
	uploads  *upload.Manager
}

// New creates a new Server instance wired to the given log store and bus.
func New(cfg *Config, appCfg *config.Config, store logstore.Store, bus *event.Bus) (*Server, error) {
	r := chi.NewRouter()

	agentInvoker := adapter.NewAgentCLI(appCfg.AgentCommand)

	attempts := session.NewRegistry(session.Options{
		Name:        "attempt",
		Store:       store,
		Bus:         bus,
		Invoker:     agentInvoker,
		GracePeriod: appCfg.GracePeriod.Std(),
	})

	shells := shell.NewManager(shell.Options{
		Store: store,
		Bus:   bus,
	})

	edits := edit.NewManager(edit.Options{
		Store:         store,
		Bus:           bus,
		Invoker:       agentInvoker,
		IdleTimeout:   appCfg.IdleTimeoutInlineEdit.Std(),
		SweepInterval: appCfg.SweepInterval.Std(),
	})

	uploads, err := upload.NewManager(upload.Options{
		BaseDir:       appCfg.UploadDir,
		Bus:           bus,
		IdleTimeout:   appCfg.IdleTimeoutUpload.Std(),
		SweepInterval: appCfg.SweepInterval.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upload manager: %w", err)
	}

	s := &Server{
		config:   cfg,
		router:   r,
		appCfg:   appCfg,
		store:    store,
		bus:      bus,
		attempts: attempts,
		shells:   shells,
		edits:    edits,
		uploads:  uploads,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Logging
	s.router.Use(middleware.Logger)

	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Real IP
	s.router.Use(middleware.RealIP)

	// CORS
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and the session managers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	s.attempts.Close()
	s.shells.Close()
	s.edits.Close()
	s.uploads.Close()

	return err
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
