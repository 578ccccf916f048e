// Package http exposes the exam bridge to the frontend: a single action
// pipeline endpoint plus health, readiness and metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/application/command"
	"github.com/vstep-dao/vstep-hub/internal/application/query"
	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/internal/interface/http/handlers"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes caps a pipeline request body.
	MaxBodyBytes int64

	// PurchaseSize is the number of attempts granted by confirm_purchase.
	PurchaseSize int

	// AllowedOrigins lists the origins allowed to call the api. Empty allows
	// every origin.
	AllowedOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxBodyBytes:   1 << 20,
		PurchaseSize:   5,
		AllowedOrigins: []string{"*"},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// The pipeline depends only on these narrow views of the application handlers.
type (
	ContentUploader interface {
		Handle(ctx context.Context, cmd command.UploadContentCommand) (*command.UploadContentResult, error)
	}
	ExamFetcher interface {
		Handle(ctx context.Context, contentHash string) (*query.FetchExamResult, error)
	}
	CatalogLister interface {
		Handle(ctx context.Context) ([]exam.Summary, error)
	}
	ExamSubmitter interface {
		Handle(ctx context.Context, cmd command.SubmitExamCommand) (*command.SubmissionOutcome, error)
	}
	AccountRegistrar interface {
		Handle(ctx context.Context, cmd command.RegisterOrLoginCommand) (*command.RegisterOrLoginResult, error)
	}
	ProfileReader interface {
		Handle(ctx context.Context, userID string) (*query.ProfileView, error)
	}
	AttemptGranter interface {
		Handle(ctx context.Context, cmd command.GrantAttemptsCommand) (*command.GrantAttemptsResult, error)
	}
	LeaderboardReader interface {
		Handle(ctx context.Context, q query.GetLeaderboardQuery) ([]account.Standing, error)
	}
	StatsReader interface {
		Handle(ctx context.Context) (*query.AdminStats, error)
	}
)

// Dependencies contains everything the request layer calls.
type Dependencies struct {
	UploadContent  ContentUploader
	FetchExam      ExamFetcher
	ListExams      CatalogLister
	SubmitExam     ExamSubmitter
	RegisterOrLog  AccountRegistrar
	GetProfile     ProfileReader
	GrantAttempts  AttemptGranter
	GetLeaderboard LeaderboardReader
	GetAdminStats  StatsReader

	Readiness *handlers.ReadinessChecker

	// Gatherer serves /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	actions    map[string]actionFunc
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	running bool
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.PurchaseSize <= 0 {
		config.PurchaseSize = defaults.PurchaseSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if deps.Readiness == nil {
		deps.Readiness = handlers.NewReadinessChecker("")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:  config,
		deps:    deps,
		logger:  logger.OrNop(deps.Logger).Named("http"),
		metrics: deps.Metrics,
	}
	s.actions = s.registerActions()
	s.router = s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequestSize(s.config.MaxBodyBytes))
		api.Post("/execute", s.handleExecute)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Readiness.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", r.RemoteAddr),
			logger.RequestID(middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
					logger.RequestID(middleware.GetReqID(r.Context())),
				)
				writeFailure(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", zap.String("addr", s.config.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
