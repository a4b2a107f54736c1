// Package api provides the HTTP session API for authd.
//
// It exposes registration, login, token refresh, logout and profile
// endpoints over the auth package, plus health and Prometheus metrics.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/audit"
	"github.com/HLeNam/user-registration-system-backend/internal/auth"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/config"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every backing dependency the health
// endpoint reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Security      config.SecurityConfig
	MetricsConfig config.MetricsConfig
	Logger        *logging.Logger
	Service       *auth.Service
	Authenticator *auth.Authenticator
	AuditRepo     audit.Repository
	Metrics       *Metrics // optional: created when nil and metrics are enabled

	// Store is required; MQTT and InfluxDB are reported when set.
	Store    HealthChecker
	MQTT     HealthChecker
	InfluxDB HealthChecker

	// Now returns the current time in epoch seconds. It must agree with the
	// token codec's clock so cookie lifetimes match token expiries.
	Now func() int64

	Version string
}

// Server is the HTTP API server for authd.
type Server struct {
	cfg           config.APIConfig
	secCfg        config.SecurityConfig
	metricsCfg    config.MetricsConfig
	logger        *logging.Logger
	service       *auth.Service
	authenticator *auth.Authenticator
	auditRepo     audit.Repository
	metrics       *Metrics
	health        map[string]HealthChecker
	limiter       *rateLimiter
	now           func() int64
	version       string
	server        *http.Server
	cancel        context.CancelFunc // stops the rate limiter sweeper on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store health checker is required")
	}

	s := &Server{
		cfg:           deps.Config,
		secCfg:        deps.Security,
		metricsCfg:    deps.MetricsConfig,
		logger:        deps.Logger,
		service:       deps.Service,
		authenticator: deps.Authenticator,
		auditRepo:     deps.AuditRepo,
		metrics:       deps.Metrics,
		health:        map[string]HealthChecker{"database": deps.Store},
		now:           deps.Now,
		version:       deps.Version,
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().Unix() }
	}
	if deps.MQTT != nil {
		s.health["mqtt"] = deps.MQTT
	}
	if deps.InfluxDB != nil {
		s.health["influxdb"] = deps.InfluxDB
	}
	if s.metrics == nil && s.metricsCfg.Enabled {
		s.metrics = NewMetrics()
	}
	if rl := s.secCfg.RateLimit; rl.Enabled {
		s.limiter = newRateLimiter(rl.RequestsPerMinute, rl.Burst)
	}

	if s.secCfg.Cookie.UsesCookies() && strings.EqualFold(s.secCfg.Cookie.SameSite, "none") {
		s.logger.Warn("cookie transport with SameSite=None has no CSRF protection on mutating routes",
			"transport", s.secCfg.Cookie.Transport,
		)
	}

	return s, nil
}

// Handler returns the fully wired router. Used by Start and by tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.limiter != nil {
		go s.limiter.run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
