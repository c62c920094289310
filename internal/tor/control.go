package tor

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultQueryTimeout bounds every command round trip on the control port.
// A Tor process that stops answering would otherwise block the caller
// forever on an authenticated connection.
const DefaultQueryTimeout = 10 * time.Second

// replyOK is the control protocol success code.
const replyOK = 250

// ControlConn is a synchronous client for Tor's control protocol.
// It owns one TCP connection; commands are serialized, so a ControlConn may
// be shared between goroutines, but a slow command delays the others.
//
// Design decision: We implement the protocol directly over net/textproto
// instead of using a Tor controller library because the supervisor needs
// exactly three commands and must authenticate with a cookie file at a
// configured path, not one discovered from a daemon the library launched.
type ControlConn struct {
	conn         net.Conn
	reader       *textproto.Reader
	queryTimeout time.Duration

	// mu serializes command/reply round trips.
	mu sync.Mutex
}

// ControlOption configures a ControlConn.
type ControlOption func(*ControlConn)

// WithQueryTimeout sets the read/write deadline applied to each command.
// Zero or negative disables the deadline.
func WithQueryTimeout(timeout time.Duration) ControlOption {
	return func(c *ControlConn) {
		c.queryTimeout = timeout
	}
}

// DialControl connects to the control port at address ("host:port").
// The context bounds the connection attempt only.
func DialControl(ctx context.Context, address string, opts ...ControlOption) (*ControlConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, address, err)
	}
	return NewControlConn(conn, opts...), nil
}

// NewControlConn wraps an established connection.
func NewControlConn(conn net.Conn, opts ...ControlOption) *ControlConn {
	c := &ControlConn{
		conn:         conn,
		reader:       textproto.NewReader(bufio.NewReader(conn)),
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate presents the raw bytes of the control auth cookie.
func (c *ControlConn) Authenticate(cookie []byte) error {
	if len(cookie) == 0 {
		return fmt.Errorf("%w: empty cookie", ErrAuth)
	}

	rep, err := c.roundTrip("AUTHENTICATE " + hex.EncodeToString(cookie))
	if err != nil {
		return err
	}
	if rep.code != replyOK {
		return fmt.Errorf("%w: %d %s", ErrAuth, rep.code, rep.text())
	}
	return nil
}

// GetInfo returns the value Tor reports for key.
func (c *ControlConn) GetInfo(key string) (string, error) {
	rep, err := c.roundTrip("GETINFO " + key)
	if err != nil {
		return "", err
	}
	if rep.code != replyOK {
		return "", fmt.Errorf("%w: GETINFO %s: %d %s", ErrProtocol, key, rep.code, rep.text())
	}

	prefix := key + "="
	for _, line := range rep.lines {
		if !strings.HasPrefix(line.text, prefix) {
			continue
		}
		if line.data != nil {
			return strings.Join(line.data, "\n"), nil
		}
		return strings.TrimPrefix(line.text, prefix), nil
	}
	return "", fmt.Errorf("%w: GETINFO %s: key missing from reply", ErrProtocol, key)
}

// BootstrapPhase returns the raw status/bootstrap-phase value.
// Use ParseBootstrapPhase to interpret it.
func (c *ControlConn) BootstrapPhase() (string, error) {
	return c.GetInfo(BootstrapPhaseKey)
}

// SignalShutdown asks Tor to shut down. It returns once Tor acknowledges
// the signal and does not wait for the process to exit.
func (c *ControlConn) SignalShutdown() error {
	rep, err := c.roundTrip("SIGNAL SHUTDOWN")
	if err != nil {
		return err
	}
	if rep.code != replyOK {
		return fmt.Errorf("%w: SIGNAL SHUTDOWN: %d %s", ErrProtocol, rep.code, rep.text())
	}
	return nil
}

// Close closes the underlying connection.
func (c *ControlConn) Close() error {
	return c.conn.Close()
}

// reply is one synchronous control protocol reply.
type reply struct {
	code  int
	lines []replyLine
}

// replyLine is a reply line; data is set for "NNN+" lines that carry a
// dot-terminated data block.
type replyLine struct {
	text string
	data []string
}

// text returns the reply lines joined for error messages.
func (r reply) text() string {
	parts := make([]string, 0, len(r.lines))
	for _, l := range r.lines {
		parts = append(parts, l.text)
	}
	return strings.Join(parts, "; ")
}

// roundTrip sends one command line and reads its reply.
func (c *ControlConn) roundTrip(command string) (reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queryTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.queryTimeout)); err != nil {
			return reply{}, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		defer c.conn.SetDeadline(time.Time{}) //nolint:errcheck // connection may already be closed
	}

	if _, err := c.conn.Write([]byte(command + "\r\n")); err != nil {
		return reply{}, fmt.Errorf("%w: write: %w", ErrProtocol, err)
	}
	return c.readReply()
}

// readReply reads lines until the final "NNN " line. Asynchronous event
// lines (6xx) are skipped since this client never subscribes to events.
func (c *ControlConn) readReply() (reply, error) {
	var rep reply
	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			return reply{}, fmt.Errorf("%w: read: %w", ErrProtocol, err)
		}
		if len(line) < 4 {
			return reply{}, fmt.Errorf("%w: short reply line %q", ErrProtocol, line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return reply{}, fmt.Errorf("%w: bad status code in %q", ErrProtocol, line)
		}
		sep, text := line[3], line[4:]

		if code/100 == 6 {
			if sep == '+' {
				if _, err := c.reader.ReadDotLines(); err != nil {
					return reply{}, fmt.Errorf("%w: read event: %w", ErrProtocol, err)
				}
			}
			continue
		}

		if rep.code == 0 {
			rep.code = code
		} else if code != rep.code {
			return reply{}, fmt.Errorf("%w: mixed status codes %d and %d", ErrProtocol, rep.code, code)
		}

		switch sep {
		case ' ':
			rep.lines = append(rep.lines, replyLine{text: text})
			return rep, nil
		case '-':
			rep.lines = append(rep.lines, replyLine{text: text})
		case '+':
			data, err := c.reader.ReadDotLines()
			if err != nil {
				return reply{}, fmt.Errorf("%w: read data: %w", ErrProtocol, err)
			}
			if data == nil {
				data = []string{}
			}
			rep.lines = append(rep.lines, replyLine{text: text, data: data})
		default:
			return reply{}, fmt.Errorf("%w: bad separator in %q", ErrProtocol, line)
		}
	}
}
