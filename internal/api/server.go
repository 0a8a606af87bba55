// Package api exposes the registry over HTTP for the registration form
// and the operations dashboard.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Config tunes the HTTP surface.
type Config struct {
	// RateLimitRPS caps the matcher endpoints, which scan the company
	// table. Zero disables limiting.
	RateLimitRPS float64

	// CORSOrigins lists allowed origins for the browser form. Empty
	// allows none.
	CORSOrigins []string
}

// Server wires the registry service into a chi router.
type Server struct {
	svc Service
	cfg Config
}

// NewServer creates a Server.
func NewServer(svc Service, cfg Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.Post("/", s.handleRegister)
			r.Get("/", s.handleListCompanies)
			r.Get("/{id}", s.handleGetCompany)
			r.Post("/{id}/approve", s.handleApproveCompany)
			r.Post("/{id}/reject", s.handleRejectCompany)
		})

		r.Route("/match", func(r chi.Router) {
			if s.cfg.RateLimitRPS > 0 {
				limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimitRPS), int(s.cfg.RateLimitRPS)+1)
				r.Use(rateLimit(limiter))
			}
			r.Post("/name", s.handleMatchName)
			r.Get("/abn/{abn}", s.handleMatchABN)
		})

		r.Route("/access-requests", func(r chi.Router) {
			r.Post("/", s.handleSubmitRequest)
			r.Get("/", s.handleListRequests)
			r.Post("/{id}/approve", s.handleApproveRequest)
			r.Post("/{id}/deny", s.handleDenyRequest)
		})

		r.Get("/stats", s.handleStats)
	})

	return r
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewHTTPServer builds an http.Server around the router.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
