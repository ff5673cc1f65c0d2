// Package api provides the HTTP surface: the federated search
// endpoints, the library catalog listing, health reporting, and the
// Prometheus exposition endpoint.
package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
	"github.com/arguspanoptes/argus-server/internal/search"
	"github.com/arguspanoptes/argus-server/internal/service"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	systems []*domain.LibrarySystem
	search  *service.SearchService
	jobs    *service.JobService
	health  *service.HealthService
	index   *search.SystemIndex
	metrics *metrics.Metrics

	router *chi.Mux
	api    huma.API
	log    *logger.Logger
}

// Options carries the server's collaborators and tunables.
type Options struct {
	Systems []*domain.LibrarySystem
	Search  *service.SearchService
	Jobs    *service.JobService
	Health  *service.HealthService
	Index   *search.SystemIndex
	Metrics *metrics.Metrics
	Logger  *logger.Logger

	// RateLimitRPM bounds inbound requests per client IP per minute.
	// Zero disables the limiter.
	RateLimitRPM int
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(opts Options) *Server {
	s := &Server{
		systems: opts.Systems,
		search:  opts.Search,
		jobs:    opts.Jobs,
		health:  opts.Health,
		index:   opts.Index,
		metrics: opts.Metrics,
		router:  chi.NewRouter(),
		log:     opts.Logger.WithComponent("api"),
	}

	s.setupMiddleware(opts.RateLimitRPM)

	config := huma.DefaultConfig("Argus API", "1.0.0")
	s.api = humachi.New(s.router, config)
	RegisterErrorHandler()

	s.registerSearchRoutes()
	s.registerLibraryRoutes()
	s.registerHealthRoutes()
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API for tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(rateLimitRPM int) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if rateLimitRPM > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(rateLimitRPM), s.log))
	}
}
