// Package log builds the application's slog logger.
//
// Every record passes through SecureHandler, which masks Tor control
// credentials and wallet secrets before they are written:
//   - attributes named like a credential (cookie, password, auth, seed, ...)
//   - raw control cookies (64 hex characters) and AUTHENTICATE lines
//   - HashedControlPassword values and pluggable transport bridge lines
//   - byte slice attributes, which is how cookies are held in memory
//
// Masking applies at every level, so verbose logs can be shared.
//
// # Usage
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Debug("authenticating", "cookie", cookie) // cookie=***REDACTED***
//	slog.SetDefault(logger)
package log
