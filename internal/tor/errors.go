package tor

import "errors"

// Control protocol errors.
// Callers match these with errors.Is; the wrapped error carries the detail.
var (
	// ErrConnection is returned when the control port cannot be reached.
	ErrConnection = errors.New("tor control: cannot connect")

	// ErrAuth is returned when Tor rejects the authentication cookie,
	// or when the cookie is empty.
	ErrAuth = errors.New("tor control: authentication rejected")

	// ErrProtocol is returned for malformed or unexpected replies and for
	// connections that drop in the middle of a command.
	ErrProtocol = errors.New("tor control: protocol error")
)

// SOCKS proxy errors, returned by ProxyStatus.Error.
var (
	// ErrProxyNotTor is returned when the address answers but does not
	// behave like a Tor SOCKS5 port.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection can be made.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the handshake does not finish in time.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when an address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrOnionUnreachable is returned by SocksProbe.Reach when no
	// connection to the onion service could be made.
	ErrOnionUnreachable = errors.New("onion service unreachable")
)

// ProxyStatus is the outcome of a SOCKS5 probe.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the port speaks SOCKS5 the way Tor does.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates something else is listening.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates nothing is listening.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the port accepted but never answered.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the sentinel error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
