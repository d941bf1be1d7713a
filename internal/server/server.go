// Package server provides the HTTP server and routing for Pulse.
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

	"github.com/aristath/pulse/internal/config"
	"github.com/aristath/pulse/internal/database"
	"github.com/aristath/pulse/internal/events"
	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
)

// Config holds server configuration.
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	JobsDB      *database.DB
	SentimentDB *database.DB
	CacheDB     *database.DB
	JobService  *jobs.Service
	Sentiment   *sentiment.Repository
	Bus         *events.Bus
	Port        int
	DevMode     bool
}

// Server represents the HTTP server.
type Server struct {
	router            *chi.Mux
	server            *http.Server
	log               zerolog.Logger
	jobHandlers       *JobHandlers
	sentimentHandlers *SentimentHandlers
	systemHandlers    *SystemHandlers
	eventsStream      *EventsStreamHandler
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		log:               cfg.Log.With().Str("component", "server").Logger(),
		jobHandlers:       NewJobHandlers(cfg.JobService, cfg.Log),
		sentimentHandlers: NewSentimentHandlers(cfg.Sentiment, cfg.Log),
		systemHandlers:    NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.JobsDB, cfg.SentimentDB, cfg.CacheDB, cfg.JobService),
		eventsStream:      NewEventsStreamHandler(cfg.Bus, cfg.Log),
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
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (before API routing)
	s.router.Get("/health", s.systemHandlers.HandleLiveness)

	s.router.Route("/api", func(r chi.Router) {
		// Event stream (SSE) - no timeout middleware on this subtree
		r.Get("/events/stream", s.eventsStream.ServeHTTP)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.jobHandlers.HandleSubmit)
			r.Get("/", s.jobHandlers.HandleList)
			r.Get("/types", s.jobHandlers.HandleTypes)
			r.Get("/{jobID}", s.jobHandlers.HandleStatus)
			r.Get("/{jobID}/logs", s.jobHandlers.HandleLogs)
			r.Post("/{jobID}/start", s.jobHandlers.HandleControl(jobs.ActionStart))
			r.Post("/{jobID}/pause", s.jobHandlers.HandleControl(jobs.ActionPause))
			r.Post("/{jobID}/cancel", s.jobHandlers.HandleControl(jobs.ActionCancel))
		})

		r.Route("/sentiment", func(r chi.Router) {
			r.Get("/latest", s.sentimentHandlers.HandleLatest)
			r.Get("/history", s.sentimentHandlers.HandleHistory)
			r.Get("/{date}", s.sentimentHandlers.HandleByDate)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleHealth)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
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
