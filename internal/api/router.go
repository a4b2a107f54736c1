package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the dependency probes behind /api/health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
	}
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			// Public routes, throttled per client IP
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimitMiddleware)
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)
				r.Post("/refresh", s.handleRefresh)
				r.Post("/refresh-from-cookie", s.handleRefreshFromCookie)
			})

			// Authenticated routes
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/logout", s.handleLogout)
				r.Get("/profile", s.handleProfile)
				r.Get("/activity", s.handleActivity)
			})
		})
	})

	if s.metrics != nil && s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metrics.Handler())
	}

	return r
}

// healthView is the body of GET /api/health.
type healthView struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth reports the service status and each dependency's health.
// An unhealthy account store makes the whole service unavailable; optional
// dependencies only degrade it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	view := healthView{Status: "ok", Version: s.version, Components: make(map[string]string, len(s.health))}
	status := http.StatusOK
	for name, checker := range s.health {
		if err := checker.HealthCheck(ctx); err != nil {
			view.Components[name] = "unhealthy"
			s.logger.Warn("health check failed", "component", name, "error", err)
			if name == "database" {
				view.Status = "unavailable"
				status = http.StatusServiceUnavailable
			} else if view.Status == "ok" {
				view.Status = "degraded"
			}
			continue
		}
		view.Components[name] = "healthy"
	}

	writeJSON(w, status, Envelope{
		Success:   status == http.StatusOK,
		Message:   view.Status,
		Data:      view,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
