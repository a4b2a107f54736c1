// Package api implements the HTTP session API for authd.
//
// This package provides:
//   - Session endpoints under /api/auth (register, login, refresh, logout, profile, activity)
//   - Token transport as bearer header, HttpOnly cookies, or both
//   - Middleware stack (request ID, logging, recovery, metrics, CORS, body limit)
//   - Per-client rate limiting on the public routes
//   - Health and Prometheus metrics endpoints
//
// # Responses
//
// Every body is an envelope: {success, message, data, errors, code, timestamp, path}.
// Errors from the auth package map to fixed status codes and codes; anything
// outside that taxonomy is logged with the request ID and answered with a
// generic 500.
//
// # Security
//
// Cookie transport sets HttpOnly cookies with the configured SameSite mode.
// There is no CSRF token: cookie-authenticated mutating routes rely on
// SameSite, and the server warns at start when SameSite is None.
package api
