// Package server is the HTTP front end: it turns requests into pool
// submissions and results into JSON responses.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/journal"
	"github.com/cryguy/titan/internal/metrics"
	"github.com/cryguy/titan/internal/pool"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	requestIDHeader   = "X-Request-Id"
)

// Submitter is the part of *pool.Manager the server needs.
type Submitter interface {
	Submit(ctx context.Context, inv core.Invocation) (core.Result, error)
	Stats() pool.Stats
}

// Server wraps the chi router and its dependencies.
type Server struct {
	router  *chi.Mux
	pool    Submitter
	journal *journal.Journal
	metrics *metrics.Metrics
	log     logr.Logger
	addr    string
	maxBody int64
}

// Option configures a Server.
type Option func(*Server)

// WithJournal records every action submission and serves GET /journal.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithMetrics instruments requests and serves GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxBodyBytes bounds request bodies and WebSocket messages.
func WithMaxBodyBytes(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = int64(n)
		}
	}
}

// New creates and configures a Server listening on addr once Run is called.
func New(addr string, p Submitter, log logr.Logger, opts ...Option) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		pool:    p,
		log:     log,
		addr:    addr,
		maxBody: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(requestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
	if s.journal != nil {
		s.router.Get("/journal", s.handleJournal)
	}
	s.router.Get("/ws/{action}", s.handleWebSocket)
	s.router.HandleFunc("/{action}", s.handleAction)
	s.router.HandleFunc("/{action}/*", s.handleAction)
}

// Handler returns the router wrapped for HTTP/2 over cleartext.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.router, &http2.Server{})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.log.Info("server stopped")
	return nil
}

// requestID reuses an incoming X-Request-Id or mints a UUID, and exposes it
// through middleware.GetReqID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.V(1).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
