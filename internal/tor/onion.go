package tor

import (
	"context"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/proxy"
)

// Onion address constants.
const (
	// OnionSuffix is the suffix of every onion address.
	OnionSuffix = ".onion"

	// OnionV3TotalLength is the length of a v3 address including the suffix.
	OnionV3TotalLength = 62

	// DefaultOnionPort is the virtual port wallet listeners publish.
	DefaultOnionPort = 80

	onionV3Version = 0x03
	ed25519KeySize = 32
)

// onionV3Pattern matches 56 base32 characters plus the suffix.
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is hashed ahead of the key when computing the checksum.
var checksumPrefix = []byte(".onion checksum")

// ErrInvalidOnionAddress is returned for addresses that are not valid v3
// onion addresses, including ones with a bad checksum.
var ErrInvalidOnionAddress = errors.New("invalid onion address")

// IsValidV3Address reports whether address is a v3 onion address with a
// correct checksum. Case is ignored.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	// pubkey (32) | checksum (2) | version (1)
	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}
	if decoded[34] != onionV3Version {
		return false
	}
	sum := onionChecksum(decoded[:32], onionV3Version)
	return decoded[32] == sum[0] && decoded[33] == sum[1]
}

// onionChecksum returns the first two bytes of
// SHA3-256(".onion checksum" | pubkey | version).
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	hash := sha3.Sum256(data)
	return hash[:2]
}

// OnionAddressFromKey returns the v3 onion address of an ed25519 public
// key, which is how a wallet's listener address is derived.
func OnionAddressFromKey(pubkey []byte) (string, error) {
	if len(pubkey) != ed25519KeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidOnionAddress, ed25519KeySize, len(pubkey))
	}

	data := make([]byte, 35)
	copy(data, pubkey)
	copy(data[32:], onionChecksum(pubkey, onionV3Version))
	data[34] = onionV3Version

	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

// ParseOnionTarget normalizes a peer address into host and port. It
// accepts an optional http(s) scheme, a missing ".onion" suffix, a port
// and a trailing path, e.g. "http://<56 chars>.onion:8080/v2/foreign".
// A hex-encoded ed25519 public key in place of the address is converted
// with OnionAddressFromKey. The port defaults to DefaultOnionPort.
func ParseOnionTarget(target string) (host string, port int, err error) {
	s := strings.ToLower(strings.TrimSpace(target))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#"); i != -1 {
		s = s[:i]
	}

	host, port = s, DefaultOnionPort
	if h, p, splitErr := net.SplitHostPort(s); splitErr == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return "", 0, fmt.Errorf("%w: bad port in %q", ErrInvalidOnionAddress, target)
		}
		host, port = h, n
	}

	if len(host) == hex.EncodedLen(ed25519KeySize) {
		if key, decodeErr := hex.DecodeString(host); decodeErr == nil {
			if host, err = OnionAddressFromKey(key); err != nil {
				return "", 0, err
			}
		}
	}
	if !strings.HasSuffix(host, OnionSuffix) {
		host += OnionSuffix
	}
	if !IsValidV3Address(host) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidOnionAddress, target)
	}
	return host, port, nil
}

// Reach opens a connection to an onion service through the proxy and
// closes it. It fails when the address is invalid or Tor cannot build a
// circuit to the service before ctx ends.
func (p *SocksProbe) Reach(ctx context.Context, target string) error {
	return Reach(ctx, p.dialer, target)
}

// Reach is SocksProbe.Reach for any SOCKS dialer, such as the one a
// supervisor hands out for its proxy.
func Reach(ctx context.Context, d proxy.Dialer, target string) error {
	host, port, err := ParseOnionTarget(target)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var conn net.Conn
	if cd, ok := d.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOnionUnreachable, addr, err)
	}
	return conn.Close()
}
