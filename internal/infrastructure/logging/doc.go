// Package logging provides structured logging for authd.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version attributes:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log passwords, password hashes, signing secrets or token strings.
// Account ids and request ids are the identifiers to log.
package logging
