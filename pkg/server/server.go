package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
)

const (
	// DefaultShutdownTimeout bounds graceful shutdown in ListenAndServe.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultCleanupInterval is how often idle sessions are swept.
	DefaultCleanupInterval = 30 * time.Second

	defaultTracerName = "tablestate/server"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records session, watcher and table metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithGatherer sets the registry served on /metrics.
// Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithBackend sets the local bucket backend shared by all sessions.
// Defaults to an in-memory backend.
func WithBackend(b localbucket.Backend) Option {
	return func(s *Server) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithCheckOrigin sets the websocket origin check of the watch endpoint.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// WithCleanupInterval sets how often idle sessions are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// Server hosts the tables declared in a configuration over HTTP.
//
// Every browser (identified by a client cookie) gets one session per table.
// A session owns the table state, its URL bucket and its local bucket. The
// watch endpoint streams state snapshots and URL navigations over a
// websocket.
type Server struct {
	cfg             *config.Config
	backend         localbucket.Backend
	sessions        *SessionManager
	upgrader        websocket.Upgrader
	router          chi.Router
	httpServer      *http.Server
	cleanupInterval time.Duration

	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a server for cfg. The session sweeper starts immediately;
// call Shutdown to stop it.
func New(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.New()
	}

	s := &Server{
		cfg:             cfg,
		backend:         localbucket.NewMemoryBackend(),
		cleanupInterval: DefaultCleanupInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		gatherer: prometheus.DefaultGatherer,
		tracer:   otel.Tracer(defaultTracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	s.sessions = NewSessionManager(SessionManagerConfig{
		TTL:             cfg.SessionTTLDuration(),
		CleanupInterval: s.cleanupInterval,
		Open:            s.openSession,
		Logger:          s.logger,
		Metrics:         s.metrics,
	})
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.cfg.Address())
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.sessions.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the HTTP listener, if any, and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down", "active_sessions", s.sessions.Count())

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.sessions.Shutdown()
	return err
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(s.traceRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Count()})
	})
	if s.cfg.Server.Metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/tables", func(r chi.Router) {
		r.Get("/", s.handleListTables)
		r.Route("/{table}", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Post("/state/{slice}", s.handleSetSlice)
			r.Post("/reset-pagination", s.handleResetPagination)
			r.Post("/sync", s.handleSync)
			r.Post("/columns/{column}", s.handleColumnOptions)
			r.Delete("/persisted/{bucket}", s.handleClearPersisted)
			r.Delete("/session", s.handleCloseSession)
			r.Get("/watch", s.handleWatch)
		})
	})
	return r
}
