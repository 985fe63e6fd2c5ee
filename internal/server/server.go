package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/internal/events"
	"github.com/me/meetup/internal/notify"
	"github.com/me/meetup/internal/ratelimit"
	"github.com/me/meetup/internal/scheduler"
)

// Server is the meetup REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	events    *events.Service
	scheduler scheduler.Scheduler
	notifier  notify.Notifier             // optional; refreshes home views after user actions
	limiter   *ratelimit.KeyedRateLimiter // optional; throttles user actions per client
	clock     clock.Clock
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithNotifier publishes a fresh home view after every user action.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

// WithRateLimiter throttles accept, decline and opt-out requests per client IP.
func WithRateLimiter(l *ratelimit.KeyedRateLimiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithClock overrides the clock used for timing manual ticks.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// New creates a new Server with all routes registered.
// sched may be nil, in which case manual ticks are unavailable.
func New(svc *events.Service, sched scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		events:    svc,
		scheduler: sched,
		clock:     clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Events
		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEvent)
				r.With(s.rateLimit).Post("/accept", s.handleAccept)
				r.With(s.rateLimit).Post("/decline", s.handleDecline)
			})
		})

		// Users
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/events", s.handleUserEvents)
			r.With(s.rateLimit).Post("/opt-out", s.handleOptOut)
			r.With(s.rateLimit).Post("/opt-in", s.handleOptIn)
		})

		// Admin
		r.Post("/admin/tick", s.handleTick)
	})
}
