// Package api provides the HTTP API server for mboxvault.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/wesm/mboxvault/internal/config"
	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/query"
	"github.com/wesm/mboxvault/internal/scheduler"
	"github.com/wesm/mboxvault/internal/store"
)

// Archive defines the store operations the API needs beyond searching.
type Archive interface {
	ToggleFlag(ctx context.Context, id int64, flag store.Flag) (bool, error)
	AddTag(ctx context.Context, id int64, tag string) (bool, error)
	BulkAction(ctx context.Context, ids []int64, op store.BulkOp, value string) (int64, error)
	UnreadCounts(ctx context.Context) (map[string]int64, error)
	ListFolders(ctx context.Context) ([]store.Folder, error)
	ListSearchHistory(ctx context.Context, limit int) ([]store.SearchEntry, error)
	GetStats(ctx context.Context) (*store.Stats, error)
}

// ImportFunc imports one mbox file (or Takeout zip) into the archive.
type ImportFunc func(ctx context.Context, path string) (*importer.Summary, error)

// ImportScheduler defines the scheduler operations the API needs.
type ImportScheduler interface {
	TriggerImport(path string) error
	Status() []ImportStatus
	IsRunning() bool
}

// ImportStatus is an alias for scheduler.ImportStatus.
type ImportStatus = scheduler.ImportStatus

// Deps are the collaborators behind the routes. A nil dependency makes its
// routes answer 503.
type Deps struct {
	Engine    query.Engine
	Archive   Archive
	Import    ImportFunc
	Scheduler ImportScheduler
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	deps        Deps
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	// CORS middleware (config-driven; disabled when no origins configured)
	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	// Rate limiting (10 req/sec with burst of 20)
	s.rateLimiter = NewRateLimiter(10, 20)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Post("/search", s.handleSearch)
			r.Get("/email/{id}", s.handleGetEmail)
			r.Post("/email/{id}/toggle/{flag}", s.handleToggle)
			r.Post("/tag", s.handleTag)
			r.Post("/bulk", s.handleBulk)
			r.Get("/unread", s.handleUnread)
			r.Get("/folders", s.handleFolders)
			r.Get("/history", s.handleHistory)
			r.Get("/stats", s.handleStats)

			r.Get("/scheduler/status", s.handleSchedulerStatus)
			r.Post("/scheduler/trigger", s.handleTriggerImport)
		})

		// Imports and exports can outlast the request timeout.
		r.Post("/import", s.handleImport)
		r.Post("/export/{format}", s.handleExport)
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key configured
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		key = strings.TrimPrefix(key, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
