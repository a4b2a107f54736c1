// Package config handles loading and validating authd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with AUTHD_* environment variables
//   - Validation of required fields and security constraints
//
// Security Considerations:
//   - The JWT secret must be set via AUTHD_JWT_SECRET and be at least 32 characters
//   - Cookie transport with SameSite=none requires Secure cookies
//
// Usage:
//
//	cfg, err := config.Load("configs/authd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
