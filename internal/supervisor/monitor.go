package supervisor

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/i1skn/ironbelly-sub000/internal/config"
	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// minDialTimeout is the smallest dial timeout used when the connect window
// is almost exhausted.
const minDialTimeout = 50 * time.Millisecond

// ControlSession is the part of the control protocol the supervisor uses.
// *tor.ControlConn implements it.
type ControlSession interface {
	Authenticate(cookie []byte) error
	BootstrapPhase() (string, error)
	SignalShutdown() error
	Close() error
}

// DialFunc opens a control connection to address.
type DialFunc func(ctx context.Context, address string) (ControlSession, error)

// BootstrapParser interprets a status/bootstrap-phase value.
type BootstrapParser func(raw string) (tor.BootstrapStatus, bool)

// dialControl is the default DialFunc.
func dialControl(queryTimeout time.Duration) DialFunc {
	return func(ctx context.Context, address string) (ControlSession, error) {
		conn, err := tor.DialControl(ctx, address, tor.WithQueryTimeout(queryTimeout))
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// monitor connects to the control port, authenticates and polls bootstrap
// progress for one run. publish is the run's gated publisher.
type monitor struct {
	cfg     *config.Config
	dial    DialFunc
	parse   BootstrapParser
	publish func(tor.State) bool
	logger  *slog.Logger

	// connMu guards conn, the authenticated session, so Shutdown can use it
	// while the poll loop owns it.
	connMu sync.Mutex
	conn   ControlSession
}

// run blocks until the run fails or ctx is canceled. It returns the
// terminal error, or nil if ctx ended the run.
func (m *monitor) run(ctx context.Context) error {
	conn, err := m.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if !m.attach(ctx, conn) {
		return nil
	}
	defer m.detach()

	return m.poll(ctx, conn)
}

// connect retries until a session is authenticated or ConnectTimeout has
// elapsed since the first attempt began.
func (m *monitor) connect(ctx context.Context) (ControlSession, error) {
	startedAt := time.Now()

	for attempt := 1; ; attempt++ {
		conn, err := m.attempt(ctx, startedAt)
		if err == nil {
			m.logger.Debug("tor control authenticated", "attempt", attempt, "elapsed", time.Since(startedAt))
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		elapsed := time.Since(startedAt)
		if elapsed > m.cfg.ConnectTimeout {
			return nil, fmt.Errorf("%w after %d attempts (%s): %w", ErrConnectTimeout, attempt, elapsed.Round(time.Millisecond), err)
		}
		m.logger.Debug("tor control not ready, retrying", "attempt", attempt, "error", err)

		timer := time.NewTimer(m.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt makes one connect-and-authenticate attempt. Both steps end
// when the connect window does; the dial is further bounded by DialTimeout.
func (m *monitor) attempt(ctx context.Context, startedAt time.Time) (ControlSession, error) {
	remaining := max(m.cfg.ConnectTimeout-time.Since(startedAt), minDialTimeout)
	windowCtx, cancelWindow := context.WithTimeout(ctx, remaining)
	defer cancelWindow()

	dialCtx, cancelDial := context.WithTimeout(windowCtx, m.cfg.DialTimeout)
	defer cancelDial()

	conn, err := m.dial(dialCtx, m.cfg.ControlAddr())
	if err != nil {
		return nil, err
	}

	// The cookie is rewritten by every Tor start, so it is read per attempt.
	cookie, err := os.ReadFile(m.cfg.CookiePath())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: read cookie: %w", tor.ErrAuth, err)
	}
	m.logger.Debug("authenticating to tor control port", "fingerprint", cookieFingerprint(cookie))

	// Closing the session unblocks an AUTHENTICATE that Tor never answers.
	stop := context.AfterFunc(windowCtx, func() { _ = conn.Close() })
	err = conn.Authenticate(cookie)
	if !stop() {
		if err == nil {
			err = windowCtx.Err()
		}
		return nil, fmt.Errorf("%w: authenticate: %w", tor.ErrConnection, err)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// poll queries bootstrap progress immediately, then every PollInterval.
// The first failure ends the loop with ErrHealthCheck.
func (m *monitor) poll(ctx context.Context, conn ControlSession) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		raw, err := conn.BootstrapPhase()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHealthCheck, err)
		}

		status, ok := m.parse(raw)
		if !ok {
			return fmt.Errorf("%w: %w: unparseable bootstrap phase %q", ErrHealthCheck, tor.ErrProtocol, raw)
		}
		if m.publish(tor.Running(status)) {
			m.logger.Info("tor bootstrap progress", "progress", status.Progress, "tag", status.Tag)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// attach records conn as the authenticated session. It closes conn and
// returns false if the run was canceled meanwhile.
func (m *monitor) attach(ctx context.Context, conn ControlSession) bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if ctx.Err() != nil {
		_ = conn.Close()
		return false
	}
	m.conn = conn
	return true
}

func (m *monitor) detach() {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// signalShutdown sends SIGNAL SHUTDOWN on the authenticated session.
// It reports false if there is no such session.
func (m *monitor) signalShutdown() (bool, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		return false, nil
	}
	return true, m.conn.SignalShutdown()
}

// cookieFingerprint identifies a cookie in logs without revealing it.
func cookieFingerprint(cookie []byte) string {
	sum := sha3.Sum256(cookie)
	return hex.EncodeToString(sum[:8])
}
