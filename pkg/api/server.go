// Package api is the ControlAPI HTTP surface: a thin adapter that
// validates inputs, forwards to SuperVM, and serializes responses (spec
// §4.9, §6.1). It never contains scheduling logic itself.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetctl/supervm/pkg/log"
	"github.com/fleetctl/supervm/pkg/metrics"
	"github.com/fleetctl/supervm/pkg/supervm"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// DefaultMaxRequestBytes bounds request bodies.
const DefaultMaxRequestBytes = 1 << 20 // 1 MiB

// DefaultRequestTimeout bounds how long one HTTP request may run.
const DefaultRequestTimeout = 30 * time.Second

// Config tunes the Server.
type Config struct {
	Addr             string
	MaxRequestBytes  int64
	RequestTimeout   time.Duration
	AllowedOrigin    string
}

// DefaultConfig returns sane defaults, permissive CORS for the dashboard
// origin.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxRequestBytes: DefaultMaxRequestBytes,
		RequestTimeout:  DefaultRequestTimeout,
		AllowedOrigin:   "*",
	}
}

// Server is the ControlAPI HTTP server.
type Server struct {
	vm     *supervm.SuperVM
	cfg    Config
	router *mux.Router
	logger zerolog.Logger
}

// New builds a Server wired to vm.
func New(vm *supervm.SuperVM, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = def.MaxRequestBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = def.AllowedOrigin
	}

	s := &Server{
		vm:     vm,
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the http.Handler to serve.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving the ControlAPI until ctx is cancelled, then
// drains in-flight requests before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("control API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestSizeLimitMiddleware)
	r.Use(s.timeoutMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/super-vm/status", s.handleSuperVMStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/super-vm/resources", s.handleResources).Methods(http.MethodGet)
	r.HandleFunc("/api/super-vm/metrics", s.handlePerformanceMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/super-vm/render", s.handleRender).Methods(http.MethodPost)
	r.HandleFunc("/api/super-vm/process", s.handleProcess).Methods(http.MethodPost)
	r.HandleFunc("/api/super-vm/browser", s.handleBrowser).Methods(http.MethodPost)
	r.HandleFunc("/api/super-vm/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/super-vm/scale", s.handleScale).Methods(http.MethodPost)

	r.HandleFunc("/api/nodes", s.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/{id}", s.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/{id}/drain", s.handleDrainNode).Methods(http.MethodPost)
	r.HandleFunc("/api/nodes/{id}/undrain", s.handleUndrainNode).Methods(http.MethodPost)

	r.HandleFunc("/api/tasks", s.handleListTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)

	r.HandleFunc("/api/events", s.handleEventStream).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}
