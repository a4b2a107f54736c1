package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/auth"
)

// sameSite converts the configured SameSite name. Unknown values fall back to Lax.
func (s *Server) sameSite() http.SameSite {
	switch strings.ToLower(s.secCfg.Cookie.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// tokenCookie builds a session cookie whose lifetime ends at expiresAt (epoch seconds).
func (s *Server) tokenCookie(name, value string, expiresAt int64) *http.Cookie {
	maxAge := int(expiresAt - s.now())
	if maxAge <= 0 {
		// MaxAge 0 would mean "no Max-Age attribute"; a negative value deletes.
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.secCfg.Cookie.Domain,
		MaxAge:   maxAge,
		Expires:  time.Unix(expiresAt, 0).UTC(),
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: s.sameSite(),
	}
}

// setCredentialCookies hands both tokens to the client as cookies when
// cookie transport is enabled.
func (s *Server) setCredentialCookies(w http.ResponseWriter, creds *auth.IssuedCredentials) {
	if !s.secCfg.Cookie.UsesCookies() {
		return
	}
	http.SetCookie(w, s.tokenCookie(s.secCfg.Cookie.AccessName, creds.AccessToken, creds.AccessTokenExpiresAt))
	http.SetCookie(w, s.tokenCookie(s.secCfg.Cookie.RefreshName, creds.RefreshToken, creds.RefreshTokenExpiresAt))
}

// clearCredentialCookies expires both session cookies.
func (s *Server) clearCredentialCookies(w http.ResponseWriter) {
	if !s.secCfg.Cookie.UsesCookies() {
		return
	}
	for _, name := range []string{s.secCfg.Cookie.AccessName, s.secCfg.Cookie.RefreshName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   s.secCfg.Cookie.Domain,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0).UTC(),
			HttpOnly: true,
			Secure:   s.secCfg.Cookie.Secure,
			SameSite: s.sameSite(),
		})
	}
}

// refreshCookie returns the renewal token cookie value, or "".
func (s *Server) refreshCookie(r *http.Request) string {
	if !s.secCfg.Cookie.UsesCookies() {
		return ""
	}
	c, err := r.Cookie(s.secCfg.Cookie.RefreshName)
	if err != nil {
		return ""
	}
	return c.Value
}

// credentialsView is what the response body carries for issued credentials.
// Token strings are omitted under cookie-only transport.
type credentialsView struct {
	AccessToken           string `json:"accessToken,omitempty"`
	AccessTokenExpiresAt  int64  `json:"accessTokenExpiresAt"`
	RefreshToken          string `json:"refreshToken,omitempty"`
	RefreshTokenExpiresAt int64  `json:"refreshTokenExpiresAt"`
	RefreshTokenIssuedAt  int64  `json:"refreshTokenIssuedAt"`
}

func (s *Server) credentialsBody(creds *auth.IssuedCredentials) credentialsView {
	view := credentialsView{
		AccessTokenExpiresAt:  creds.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: creds.RefreshTokenExpiresAt,
		RefreshTokenIssuedAt:  creds.RefreshTokenIssuedAt,
	}
	if s.secCfg.Cookie.UsesHeader() {
		view.AccessToken = creds.AccessToken
		view.RefreshToken = creds.RefreshToken
	}
	return view
}

// requestCarrier exposes a request's token sources to the authenticator.
type requestCarrier struct {
	r          *http.Request
	cookieName string
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func (c requestCarrier) BearerToken() string {
	h := c.r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// CookieToken returns the access token cookie value.
func (c requestCarrier) CookieToken() string {
	if c.cookieName == "" {
		return ""
	}
	ck, err := c.r.Cookie(c.cookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
