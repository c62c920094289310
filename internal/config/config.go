package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Ports and the cookie path match what the wallet's native bridge passes to
// the supervisor; the timing values are the supervisor's retry and health
// check policy.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "ironbelly-tor"

	// DefaultProxyPort is the SOCKS port Tor is told to listen on.
	DefaultProxyPort = 39059

	// DefaultControlHost is the control port bind address. Loopback only:
	// the control port must never be reachable from the network.
	DefaultControlHost = "127.0.0.1"

	// DefaultControlPort is the control port Tor is told to listen on.
	DefaultControlPort = 39069

	// DefaultCookieFilePath is the control auth cookie, relative to DataDir.
	DefaultCookieFilePath = "data/control_auth_cookie"

	// DefaultConnectTimeout bounds the whole connect/authenticate window
	// across all attempts, not any single attempt.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultRetryDelay is the pause between connect attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultPollInterval is the period of bootstrap-phase health checks.
	DefaultPollInterval = 5 * time.Second

	// DefaultDialTimeout caps one TCP connect to the control port.
	DefaultDialTimeout = 2 * time.Second

	// DefaultQueryTimeout caps one control command round trip.
	DefaultQueryTimeout = 10 * time.Second

	// DefaultBinaryName is looked up on PATH when BinaryPath is empty.
	DefaultBinaryName = "tor"
)

// Config holds every setting of the Tor proxy supervisor.
// It is built once, from defaults, the config file and CLI flags, and is
// not modified after the supervisor is constructed.
type Config struct {
	// DataDir is the Tor working directory. torrc, the GeoIP files and the
	// cookie all live under it.
	DataDir string

	// ProxyPort is the SOCKS listen port.
	ProxyPort int

	// ControlHost and ControlPort are the control port listen address.
	ControlHost string
	ControlPort int

	// CookieFilePath is the control auth cookie path relative to DataDir.
	CookieFilePath string

	// BinaryPath is the Tor executable. Empty means DefaultBinaryName on PATH.
	BinaryPath string

	// ResourceDir holds geoip and geoip6 to install into DataDir.
	// Empty skips GeoIP installation.
	ResourceDir string

	// Bridges are bridge lines written to a generated torrc. When non-empty
	// the torrc also sets UseBridges 1.
	Bridges []string

	// ConnectTimeout bounds connection establishment across all attempts.
	ConnectTimeout time.Duration

	// RetryDelay is the pause between failed connect attempts.
	RetryDelay time.Duration

	// PollInterval is the period between health checks once authenticated.
	PollInterval time.Duration

	// DialTimeout caps a single TCP connect to the control port.
	DialTimeout time.Duration

	// QueryTimeout caps a single control command round trip.
	QueryTimeout time.Duration

	// JournalDir is where the state journal database is kept.
	// Empty disables the journal.
	JournalDir string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// ConfigFilePath is the YAML file the values were loaded from, if any.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		DataDir:        XDGDataDir(),
		ProxyPort:      DefaultProxyPort,
		ControlHost:    DefaultControlHost,
		ControlPort:    DefaultControlPort,
		CookieFilePath: DefaultCookieFilePath,
		ConnectTimeout: DefaultConnectTimeout,
		RetryDelay:     DefaultRetryDelay,
		PollInterval:   DefaultPollInterval,
		DialTimeout:    DefaultDialTimeout,
		QueryTimeout:   DefaultQueryTimeout,
		JournalDir:     XDGStateDir(),
	}
}

// ControlAddr returns the control port address as host:port.
func (c *Config) ControlAddr() string {
	return net.JoinHostPort(c.ControlHost, strconv.Itoa(c.ControlPort))
}

// SocksAddr returns the SOCKS address as host:port. Tor binds the SOCKS
// port on loopback, the same host as the control port.
func (c *Config) SocksAddr() string {
	return net.JoinHostPort(c.ControlHost, strconv.Itoa(c.ProxyPort))
}

// CookiePath returns the absolute path of the control auth cookie.
func (c *Config) CookiePath() string {
	return filepath.Join(c.DataDir, c.CookieFilePath)
}

// TorrcPath returns the torrc passed to Tor with -f.
func (c *Config) TorrcPath() string {
	return filepath.Join(c.DataDir, "torrc")
}

// XDGDataDir returns the default Tor data directory.
// On Linux: ~/.local/share/ironbelly-tor
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGStateDir returns the default journal directory.
// On Linux: ~/.local/state/ironbelly-tor
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// XDGConfigDir returns the XDG config directory.
// On Linux: ~/.config/ironbelly-tor
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if !validPort(c.ProxyPort) {
		return ErrInvalidProxyPort
	}
	if !validPort(c.ControlPort) {
		return ErrInvalidControlPort
	}
	if c.ProxyPort == c.ControlPort {
		return ErrPortConflict
	}
	if c.ControlHost == "" {
		return ErrNoControlHost
	}
	if c.CookieFilePath == "" || filepath.IsAbs(c.CookieFilePath) {
		return ErrInvalidCookiePath
	}
	if c.ConnectTimeout <= 0 {
		return ErrInvalidConnectTimeout
	}
	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.DialTimeout <= 0 || c.QueryTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
