// Package config provides configuration loading and validation for sluice.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (SLUICE_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = config.WithContext(ctx, cfg)
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// Scalar keys map to environment variables with the SLUICE_ prefix:
//   - server.port → SLUICE_SERVER_PORT
//   - static.root → SLUICE_STATIC_ROOT
//   - stream.close_timeout → SLUICE_STREAM_CLOSE_TIMEOUT
//
// The proxy backend list can only be set from a file.
//
// # Configuration Structure
//
//   - Server: port, mode (static/spa/proxy) and an optional TLS pair
//   - Static: root directory, redirect statuses, range window, content table file
//   - Proxy: dial timeout and the authority to backend list
//   - Stream: high-water mark and watchdog durations
//   - CORS: cross-origin resource sharing settings
//   - Log: level and format
//   - Env: dev or prod
package config
