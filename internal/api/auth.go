package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/auth"
)

// accountView is the public shape of an account.
type accountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newAccountView(a *auth.Account) accountView {
	return accountView{ID: a.ID, Email: a.Email, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

// sessionView is the body of a successful register or login.
type sessionView struct {
	Account     accountView     `json:"account"`
	Credentials credentialsView `json:"credentials"`
}

// decodeBody decodes a JSON request body into v. An empty body is allowed
// when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// handleRegister creates an account and signs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		s.writeValidation(w, r, err)
		return
	}

	session, err := s.service.Register(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrDuplicateAccount) {
		writeError(w, r, http.StatusConflict, ErrCodeConflict, auth.ErrDuplicateAccount.Error(), map[string][]string{
			"email": {fmt.Sprintf("email '%s' is already taken", auth.NormalizeEmail(req.Email))},
		})
		return
	}
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.setCredentialCookies(w, session.Credentials)
	writeSuccess(w, r, http.StatusCreated, "registration successful", sessionView{
		Account:     newAccountView(session.Account),
		Credentials: s.credentialsBody(session.Credentials),
	})
}

// handleLogin exchanges email and password for credentials.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		s.writeValidation(w, r, err)
		return
	}

	session, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.setCredentialCookies(w, session.Credentials)
	writeSuccess(w, r, http.StatusOK, "login successful", sessionView{
		Account:     newAccountView(session.Account),
		Credentials: s.credentialsBody(session.Credentials),
	})
}

// handleRefresh rotates the renewal token from the body, falling back to
// the renewal cookie when the body omits it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken = s.refreshCookie(r)
	}
	if err := req.Validate(); err != nil {
		s.writeValidation(w, r, err)
		return
	}

	s.rotate(w, r, req.RefreshToken)
}

// handleRefreshFromCookie rotates the renewal token held in the cookie only.
func (s *Server) handleRefreshFromCookie(w http.ResponseWriter, r *http.Request) {
	token := s.refreshCookie(r)
	if token == "" {
		s.writeAuthError(w, r, auth.ErrUnauthorizedRenewal)
		return
	}
	s.rotate(w, r, token)
}

func (s *Server) rotate(w http.ResponseWriter, r *http.Request, token string) {
	creds, err := s.service.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrRenewalExpired) {
			// Terminal: the cookies can never be used again.
			s.clearCredentialCookies(w)
		}
		s.writeAuthError(w, r, err)
		return
	}

	s.setCredentialCookies(w, creds)
	writeSuccess(w, r, http.StatusOK, "token refreshed", s.credentialsBody(creds))
}

// handleLogout revokes the caller's renewal token and clears the cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	account := auth.AccountFromContext(r.Context())

	err := s.service.Logout(r.Context(), account.ID)
	if errors.Is(err, auth.ErrAccountNotFound) {
		err = auth.ErrUnauthenticated
	}
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.clearCredentialCookies(w)
	writeSuccess(w, r, http.StatusOK, "logout successful", nil)
}

// handleProfile returns the caller's account.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())

	account, err := s.service.Profile(r.Context(), caller.ID)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "profile retrieved", newAccountView(account))
}

// writeValidation renders a Validate() failure.
func (s *Server) writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	fields, ok := fieldErrors(err)
	if !ok {
		s.writeAuthError(w, r, err)
		return
	}
	writeValidationError(w, r, fields)
}
