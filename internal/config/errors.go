package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoDataDir is returned when no Tor data directory is set.
	ErrNoDataDir = errors.New("no data directory specified")

	// ErrInvalidProxyPort is returned when the SOCKS port is outside 1-65535.
	ErrInvalidProxyPort = errors.New("invalid proxy port: must be between 1 and 65535")

	// ErrInvalidControlPort is returned when the control port is outside 1-65535.
	ErrInvalidControlPort = errors.New("invalid control port: must be between 1 and 65535")

	// ErrPortConflict is returned when the SOCKS and control ports are equal.
	ErrPortConflict = errors.New("proxy port and control port must differ")

	// ErrNoControlHost is returned when the control host is empty.
	ErrNoControlHost = errors.New("no control host specified")

	// ErrInvalidCookiePath is returned when the cookie path is empty or
	// absolute. It must be relative to the data directory.
	ErrInvalidCookiePath = errors.New("invalid cookie path: must be relative to the data directory")

	// ErrInvalidConnectTimeout is returned when the connect timeout is not positive.
	ErrInvalidConnectTimeout = errors.New("invalid connect timeout: must be positive")

	// ErrInvalidRetryDelay is returned when the retry delay is negative.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: must be non-negative")

	// ErrInvalidPollInterval is returned when the poll interval is not positive.
	ErrInvalidPollInterval = errors.New("invalid poll interval: must be positive")

	// ErrInvalidTimeout is returned when the dial or query timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: dial and query timeouts must be positive")
)
