package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/helixtrade/curator/internal/config"
	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/modules/asymmetry"
	"github.com/helixtrade/curator/internal/modules/curation"
	"github.com/helixtrade/curator/internal/modules/feedback"
	"github.com/helixtrade/curator/internal/modules/lessons"
	"github.com/helixtrade/curator/internal/modules/mining"
	"github.com/helixtrade/curator/internal/modules/portfolio"
)

// Handlers bundles the per-module HTTP handlers wired into the router
type Handlers struct {
	Curation  *curation.Handlers
	Portfolio *portfolio.Handlers
	Mining    *mining.Handlers
	Lessons   *lessons.Handlers
	Feedback  *feedback.Handlers
	Asymmetry *asymmetry.Handlers
	System    *SystemHandlers
}

// Config holds server configuration
type Config struct {
	Port     int
	Log      zerolog.Logger
	DB       *database.DB
	Config   *config.Config
	Handlers Handlers
	DevMode  bool
}

// Server represents the HTTP server
type Server struct {
	router       *chi.Mux
	server       *http.Server
	log          zerolog.Logger
	db           *database.DB
	cfg          *config.Config
	handlers     Handlers
	evaluateRate *rate.Limiter
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	perSec := cfg.Config.EvaluateRatePerSec
	if perSec <= 0 {
		perSec = 10
	}

	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		db:           cfg.DB,
		cfg:          cfg.Config,
		handlers:     cfg.Handlers,
		evaluateRate: rate.NewLimiter(rate.Limit(perSec), perSec*2),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.System.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handlers.System.HandleStatus)
			r.Post("/jobs/{name}/run", s.handlers.System.HandleRunJob)
		})

		r.Route("/curation", func(r chi.Router) {
			r.With(s.rateLimit).Post("/evaluate", s.handlers.Curation.HandleEvaluate)
			r.Get("/decisions", s.handlers.Curation.HandleGetDecisions)
			r.Get("/decisions/{id}", s.handlers.Curation.HandleGetDecision)
			r.Get("/stats", s.handlers.Curation.HandleStats)
		})

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlers.Portfolio.HandleGetSnapshot)
			r.Put("/positions", s.handlers.Portfolio.HandleUpsertPosition)
			r.Post("/prices", s.handlers.Portfolio.HandleAppendPrice)
		})

		r.Post("/outcomes", s.handlers.Feedback.HandleRecordOutcome)
		r.Post("/metrics", s.handlers.Asymmetry.HandleRecordMetrics)
		r.Get("/braids", s.handlers.Mining.HandleGetBraids)

		r.Route("/lessons", func(r chi.Router) {
			r.Get("/", s.handlers.Lessons.HandleGetLessons)
			r.Get("/history", s.handlers.Lessons.HandleGetHistory)
		})
	})
}

// rateLimit throttles the evaluate endpoint. Plan evaluation fans out
// to every curator, so untamed bursts multiply load quickly.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.evaluateRate.Allow() {
			http.Error(w, "Too many evaluation requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
