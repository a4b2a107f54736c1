package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/HLeNam/user-registration-system-backend/internal/audit"
	"github.com/HLeNam/user-registration-system-backend/internal/auth"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/config"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/database"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/logging"
	_ "github.com/HLeNam/user-registration-system-backend/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "Passw0rd1"
	accessTTL    = 900
	renewalTTL   = 604800
)

// testClock is a settable clock in whole seconds.
type testClock struct {
	now atomic.Int64
}

func (c *testClock) Now() time.Time    { return time.Unix(c.now.Load(), 0) }
func (c *testClock) Set(sec int64)     { c.now.Store(sec) }
func (c *testClock) Advance(sec int64) { c.now.Add(sec) }
func (c *testClock) Unix() int64       { return c.now.Load() }

// testEnv is a fully wired server over a temporary SQLite database.
type testEnv struct {
	srv     *Server
	handler http.Handler
	db      *database.DB
	clock   *testClock
	metrics *Metrics
}

type envOption func(*config.SecurityConfig)

func withTransport(transport string) envOption {
	return func(c *config.SecurityConfig) { c.Cookie.Transport = transport }
}

func withRateLimit(perMinute, burst int) envOption {
	return func(c *config.SecurityConfig) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, Burst: burst}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Dialect:     database.DialectSQLite,
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	sec := config.SecurityConfig{
		JWT: config.JWTConfig{
			Secret:          testSecret,
			Issuer:          "authd-test",
			Audience:        "authd-test-clients",
			AccessTokenTTL:  accessTTL,
			RefreshTokenTTL: renewalTTL,
			MinRotationTTL:  60,
		},
		Cookie: config.CookieConfig{
			Transport:   config.TransportBoth,
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Secure:      true,
			SameSite:    "lax",
		},
	}
	for _, opt := range opts {
		opt(&sec)
	}

	clock := &testClock{}
	clock.Set(1_700_000_000)

	codec, err := auth.NewCodec(sec.JWT.Secret, sec.JWT.Issuer, sec.JWT.Audience, auth.WithClock(clock.Now))
	require.NoError(t, err)

	log := logging.Nop()
	metrics := NewMetrics()
	auditRepo := audit.NewSQLRepository(db)
	recorder := audit.NewRecorder(log,
		audit.WithWriter("audit_log", audit.NewRepositoryWriter(auditRepo, audit.SourceAPI)),
		audit.WithWriter("metrics", metrics),
	)
	t.Cleanup(recorder.Close)

	store := auth.NewAccountRepository(db)
	manager, err := auth.NewManager(store, codec, auth.LifecycleConfig{
		AccessTTL:      int64(sec.JWT.AccessTokenTTL),
		RenewalTTL:     int64(sec.JWT.RefreshTokenTTL),
		MinRotationTTL: int64(sec.JWT.MinRotationTTL),
	}, auth.WithEventSink(recorder), auth.WithLogger(log))
	require.NoError(t, err)

	hasher, err := auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	service, err := auth.NewService(store, hasher, manager, recorder)
	require.NoError(t, err)

	authenticator := auth.NewAuthenticator(codec, store,
		auth.WithSources(sec.Cookie.UsesHeader(), sec.Cookie.UsesCookies()))

	srv, err := New(Deps{
		Config:        config.APIConfig{Host: "127.0.0.1", Port: 0},
		Security:      sec,
		MetricsConfig: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Logger:        log,
		Service:       service,
		Authenticator: authenticator,
		AuditRepo:     auditRepo,
		Metrics:       metrics,
		Store:         db,
		Now:           codec.Now,
		Version:       "test",
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, handler: srv.Handler(), db: db, clock: clock, metrics: metrics}
}

// request is a test HTTP request description.
type request struct {
	method  string
	path    string
	body    any
	bearer  string
	cookies []*http.Cookie
	remote  string
}

func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	if req.remote != "" {
		r.RemoteAddr = req.remote
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

// envelope mirrors Envelope with raw data for per-test decoding.
type envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Data      json.RawMessage     `json:"data"`
	Errors    map[string][]string `json:"errors"`
	Code      string              `json:"code"`
	Timestamp string              `json:"timestamp"`
	Path      string              `json:"path"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &v))
	return v
}

// register creates an account over HTTP and returns the session body.
func (e *testEnv) register(t *testing.T, email string) (sessionView, *httptest.ResponseRecorder) {
	t.Helper()
	rec := e.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   map[string]string{"email": email, "password": testPassword},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[sessionView](t, rec), rec
}

// cookieByName returns the named Set-Cookie from a response, or nil.
func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
