package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/auth"
)

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeWrongTokenType     = "wrong_token_type"
	ErrCodeRenewal            = "unauthorised_renewal"
	ErrCodeRenewalExpired     = "renewal_expired"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeNotFound           = "not_found"
	ErrCodeMethodNotAllow     = "method_not_allowed"
	ErrCodeInternal           = "internal_error"
)

// Envelope is the shape of every JSON response.
type Envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Data      any                 `json:"data,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Code      string              `json:"code,omitempty"`
	Timestamp string              `json:"timestamp"`
	Path      string              `json:"path"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeSuccess writes a success envelope.
func writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeJSON(w, status, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

// writeError writes a failure envelope. fields may be nil.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, fields map[string][]string) {
	writeJSON(w, status, Envelope{
		Success:   false,
		Message:   message,
		Errors:    fields,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

// writeValidationError writes a 400 with per-field messages.
func writeValidationError(w http.ResponseWriter, r *http.Request, fields map[string][]string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeValidation, "validation failed", fields)
}

// writeInternalError writes a 500 error response. The message is always generic.
func writeInternalError(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal server error", nil)
}

// authErrorStatus maps the auth taxonomy onto HTTP. ok is false for errors
// outside the taxonomy, which are internal failures.
func authErrorStatus(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeInvalidCredentials, true
	case errors.Is(err, auth.ErrWrongType):
		return http.StatusUnauthorized, ErrCodeWrongTokenType, true
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrCodeUnauthorized, true
	case errors.Is(err, auth.ErrRenewalExpired):
		return http.StatusUnauthorized, ErrCodeRenewalExpired, true
	case errors.Is(err, auth.ErrUnauthorizedRenewal):
		return http.StatusUnauthorized, ErrCodeRenewal, true
	case errors.Is(err, auth.ErrDuplicateAccount):
		return http.StatusConflict, ErrCodeConflict, true
	default:
		return http.StatusInternalServerError, ErrCodeInternal, false
	}
}

// writeAuthError renders an error from the auth package. Errors outside the
// taxonomy are logged with the request id and answered with a generic 500.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, ok := authErrorStatus(err)
	if !ok {
		s.logger.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, r)
		return
	}

	// Sentinel messages are written for clients; wrapped causes are not.
	message := rootMessage(err)
	writeError(w, r, status, code, message, nil)
}

// rootMessage returns the message of the taxonomy sentinel inside err.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		auth.ErrInvalidCredentials,
		auth.ErrWrongType,
		auth.ErrUnauthenticated,
		auth.ErrRenewalExpired,
		auth.ErrUnauthorizedRenewal,
		auth.ErrDuplicateAccount,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal server error"
}
