package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HLeNam/user-registration-system-backend/internal/audit"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/config"
)

func TestRegister_IssuesCredentialsAndCookies(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Unix()

	session, rec := env.register(t, "  New.User@Example.com ")

	assert.Equal(t, "new.user@example.com", session.Account.Email)
	assert.NotEmpty(t, session.Account.ID)
	assert.NotEmpty(t, session.Credentials.AccessToken)
	assert.NotEmpty(t, session.Credentials.RefreshToken)
	assert.Equal(t, now+accessTTL, session.Credentials.AccessTokenExpiresAt)
	assert.Equal(t, now+renewalTTL, session.Credentials.RefreshTokenExpiresAt)
	assert.Equal(t, now, session.Credentials.RefreshTokenIssuedAt)

	access := cookieByName(rec, "access_token")
	require.NotNil(t, access)
	assert.Equal(t, session.Credentials.AccessToken, access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, accessTTL, access.MaxAge)

	renewal := cookieByName(rec, "refresh_token")
	require.NotNil(t, renewal)
	assert.Equal(t, renewalTTL, renewal.MaxAge)
	assert.Equal(t, now+renewalTTL, renewal.Expires.Unix())
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		body      map[string]string
		wantField string
	}{
		{"missing email", map[string]string{"password": testPassword}, "email"},
		{"invalid email", map[string]string{"email": "not-an-email", "password": testPassword}, "email"},
		{"short password", map[string]string{"email": "a@x.com", "password": "Ab1"}, "password"},
		{"no upper case", map[string]string{"email": "a@x.com", "password": "passw0rd"}, "password"},
		{"no lower case", map[string]string{"email": "a@x.com", "password": "PASSW0RD"}, "password"},
		{"no digit", map[string]string{"email": "a@x.com", "password": "Password"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: tt.body})

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, ErrCodeValidation, body.Code)
			assert.NotEmpty(t, body.Errors[tt.wantField], "errors: %v", body.Errors)
		})
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: "not an object"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeBadRequest, decodeEnvelope(t, rec).Code)
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com")

	rec := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   map[string]string{"email": "A@X.com", "password": testPassword},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, ErrCodeConflict, body.Code)
	assert.Equal(t, []string{"email 'a@x.com' is already taken"}, body.Errors["email"])
	assert.Nil(t, cookieByName(rec, "access_token"))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com")

	unknown := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": "ghost@x.com", "password": testPassword},
	})
	wrong := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": "a@x.com", "password": "Wrong0ne"},
	})

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	u, w := decodeEnvelope(t, unknown), decodeEnvelope(t, wrong)
	assert.Equal(t, ErrCodeInvalidCredentials, u.Code)
	assert.Equal(t, u.Code, w.Code)
	assert.Equal(t, u.Message, w.Message)
	assert.Equal(t, u.Errors, w.Errors)
}

// TestSessionLifecycle_EndToEnd walks register, profile, rotation, replay,
// logout and post-logout refresh through the router.
func TestSessionLifecycle_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	t0 := env.clock.Unix()

	reg, _ := env.register(t, "a@x.com")

	rec := env.do(t, request{method: http.MethodGet, path: "/api/auth/profile", bearer: reg.Credentials.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, reg.Account.ID, decodeData[accountView](t, rec).ID)

	env.clock.Advance(100)
	rec = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": reg.Credentials.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decodeData[credentialsView](t, rec)
	assert.NotEqual(t, reg.Credentials.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, t0+renewalTTL, rotated.RefreshTokenExpiresAt, "rotation must keep the ceiling")
	assert.Equal(t, t0, rotated.RefreshTokenIssuedAt)
	assert.Equal(t, t0+100+accessTTL, rotated.AccessTokenExpiresAt)
	assert.Equal(t, int(renewalTTL-100), cookieByName(rec, "refresh_token").MaxAge)

	// Replaying the superseded token fails.
	rec = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": reg.Credentials.RefreshToken},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeRenewal, decodeEnvelope(t, rec).Code)

	rec = env.do(t, request{method: http.MethodPost, path: "/api/auth/logout", bearer: rotated.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := cookieByName(rec, "refresh_token")
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	rec = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": rotated.RefreshToken},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeRenewal, decodeEnvelope(t, rec).Code)
}

func TestRefresh_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/api/auth/refresh"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, ErrCodeValidation, body.Code)
	assert.NotEmpty(t, body.Errors["refreshToken"])
}

func TestRefresh_FallsBackToCookie(t *testing.T) {
	env := newTestEnv(t)
	_, regRec := env.register(t, "a@x.com")

	rec := env.do(t, request{
		method:  http.MethodPost,
		path:    "/api/auth/refresh",
		cookies: []*http.Cookie{cookieByName(regRec, "refresh_token")},
	})

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshFromCookie(t *testing.T) {
	env := newTestEnv(t, withTransport(config.TransportCookie))
	_, regRec := env.register(t, "a@x.com")

	rec := env.do(t, request{method: http.MethodPost, path: "/api/auth/refresh-from-cookie"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeRenewal, decodeEnvelope(t, rec).Code)

	rec = env.do(t, request{
		method:  http.MethodPost,
		path:    "/api/auth/refresh-from-cookie",
		cookies: []*http.Cookie{cookieByName(regRec, "refresh_token")},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Cookie-only transport keeps token strings out of the body.
	creds := decodeData[credentialsView](t, rec)
	assert.Empty(t, creds.AccessToken)
	assert.Empty(t, creds.RefreshToken)
	assert.NotZero(t, creds.RefreshTokenExpiresAt)
	require.NotNil(t, cookieByName(rec, "refresh_token"))
	assert.NotEqual(t, cookieByName(regRec, "refresh_token").Value, cookieByName(rec, "refresh_token").Value)
}

func TestRefresh_PastCeilingClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	reg, _ := env.register(t, "a@x.com")

	// Rotate close to the ceiling so the floor TTL outlives it.
	env.clock.Advance(renewalTTL - 10)
	rec := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": reg.Credentials.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	late := decodeData[credentialsView](t, rec)

	env.clock.Advance(20)
	rec = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		body:   map[string]string{"refreshToken": late.RefreshToken},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeRenewalExpired, decodeEnvelope(t, rec).Code)
	cleared := cookieByName(rec, "access_token")
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestRefreshFromCookie_UnrotatedTokenAtCeiling(t *testing.T) {
	env := newTestEnv(t, withTransport(config.TransportCookie))
	_, regRec := env.register(t, "a@x.com")

	env.clock.Advance(renewalTTL)
	rec := env.do(t, request{
		method:  http.MethodPost,
		path:    "/api/auth/refresh-from-cookie",
		cookies: []*http.Cookie{cookieByName(regRec, "refresh_token")},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.Equal(t, ErrCodeRenewalExpired, decodeEnvelope(t, rec).Code)
	for _, name := range []string{"access_token", "refresh_token"} {
		cleared := cookieByName(rec, name)
		require.NotNil(t, cleared, name)
		assert.Negative(t, cleared.MaxAge, name)
	}
}

func TestProtectedRoutes_RejectBadTokens(t *testing.T) {
	env := newTestEnv(t)
	reg, _ := env.register(t, "a@x.com")

	tests := []struct {
		name     string
		bearer   string
		wantCode string
	}{
		{"no token", "", ErrCodeUnauthorized},
		{"garbage", "not.a.jwt", ErrCodeUnauthorized},
		{"renewal token", reg.Credentials.RefreshToken, ErrCodeWrongTokenType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, request{method: http.MethodGet, path: "/api/auth/profile", bearer: tt.bearer})

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.wantCode, decodeEnvelope(t, rec).Code)
		})
	}
}

func TestProtectedRoutes_ExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t)
	reg, _ := env.register(t, "a@x.com")

	env.clock.Advance(accessTTL)
	rec := env.do(t, request{method: http.MethodGet, path: "/api/auth/profile", bearer: reg.Credentials.AccessToken})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeEnvelope(t, rec).Code)
}

func TestTransport_Sources(t *testing.T) {
	t.Run("header mode ignores cookies", func(t *testing.T) {
		env := newTestEnv(t, withTransport(config.TransportHeader))
		reg, regRec := env.register(t, "a@x.com")
		assert.Nil(t, cookieByName(regRec, "access_token"))

		rec := env.do(t, request{
			method:  http.MethodGet,
			path:    "/api/auth/profile",
			cookies: []*http.Cookie{{Name: "access_token", Value: reg.Credentials.AccessToken}},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie mode ignores header", func(t *testing.T) {
		env := newTestEnv(t, withTransport(config.TransportCookie))
		_, regRec := env.register(t, "a@x.com")
		access := cookieByName(regRec, "access_token")
		require.NotNil(t, access)

		rec := env.do(t, request{method: http.MethodGet, path: "/api/auth/profile", bearer: access.Value})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = env.do(t, request{method: http.MethodGet, path: "/api/auth/profile", cookies: []*http.Cookie{access}})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("both prefers header", func(t *testing.T) {
		env := newTestEnv(t)
		a, _ := env.register(t, "a@x.com")
		b, _ := env.register(t, "b@x.com")

		rec := env.do(t, request{
			method:  http.MethodGet,
			path:    "/api/auth/profile",
			bearer:  a.Credentials.AccessToken,
			cookies: []*http.Cookie{{Name: "access_token", Value: b.Credentials.AccessToken}},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, a.Account.ID, decodeData[accountView](t, rec).ID)
	})
}

func TestActivity_ListsCallerEventsOnly(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.register(t, "a@x.com")
	env.register(t, "b@x.com")

	env.clock.Advance(1)
	rec := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": "a@x.com", "password": testPassword},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, request{method: http.MethodGet, path: "/api/auth/activity", bearer: a.Credentials.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeData[audit.ListResult](t, rec)
	require.Equal(t, 2, result.Total)
	assert.Equal(t, "login", result.Logs[0].Action)
	assert.Equal(t, "registered", result.Logs[1].Action)
	for _, log := range result.Logs {
		assert.Equal(t, a.Account.ID, log.AccountID)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/api/auth/activity?limit=-1", bearer: a.Credentials.AccessToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
