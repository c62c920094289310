package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds a SOCKS5 probe. The probe only exercises the
// local listener, never a circuit, so it can be short.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5TestOnion is a non-existent v3 onion used for the CONNECT probe.
	// Tor answers with a failure code, which is enough to prove it parsed
	// the request.
	socks5TestOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// SocksProbe checks and dials through the supervised proxy's SOCKS port.
type SocksProbe struct {
	address string
	dialer  proxy.Dialer
}

// NewSocksProbe validates address ("host:port") and prepares a SOCKS5
// dialer for it. No connection is made.
func NewSocksProbe(address string) (*SocksProbe, error) {
	if !isValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require auth by default.
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &SocksProbe{address: address, dialer: dialer}, nil
}

// isValidProxyAddress reports whether address is host:port with a
// non-empty host and a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Address returns the probed SOCKS address.
func (p *SocksProbe) Address() string {
	return p.address
}

// Dialer returns a dialer that routes connections through Tor.
func (p *SocksProbe) Dialer() proxy.Dialer {
	return p.dialer
}

// CheckConnection performs a SOCKS5 greeting and a CONNECT to a fake
// onion address and classifies the result. Any well-formed CONNECT reply,
// including failure codes, counts as OK.
func (p *SocksProbe) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: offer "no authentication" only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}
	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return classifyReadError(err)
	}
	if greeting[0] != socks5Version || greeting[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomID, byte(len(socks5TestOnion))}
	req = append(req, socks5TestOnion...)
	req = append(req, 0x00, 80)
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	// version + reply + reserved + address type
	resp := make([]byte, 4)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return classifyReadError(err)
	}
	if resp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// classifyReadError maps a handshake read failure to a status.
func classifyReadError(err error) ProxyStatus {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
