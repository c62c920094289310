package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/i1skn/ironbelly-sub000/internal/config"
	"github.com/i1skn/ironbelly-sub000/internal/journal"
	"github.com/i1skn/ironbelly-sub000/internal/supervisor"
	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// shutdownGrace is how long run waits for Tor to exit after asking it to.
const shutdownGrace = 10 * time.Second

// flushTimeout bounds the wait for the final state to be recorded.
const flushTimeout = 2 * time.Second

// subscriberID identifies the CLI's state subscription.
const subscriberID = "cli"

// errProxyFailed is returned by run when the proxy fails on its own.
var errProxyFailed = errors.New("tor proxy failed")

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch Tor and report its state until interrupted",
		Long: `Run installs the GeoIP files and torrc into the data directory, launches
tor and follows its bootstrap over the control port.

Every state change is printed and recorded in the journal. Ctrl-C asks Tor
to shut down over the control port. The command exits non-zero when Tor
fails or exits on its own. With --reach, once bootstrapping is complete, it
connects to a peer's onion service through the proxy and prints the outcome.

Examples:
  # Run with defaults (tor from PATH, XDG data directory)
  ironbelly-tor run

  # Use a specific tor binary and bridges
  ironbelly-tor run --tor /opt/tor/bin/tor \
    --bridge "obfs4 192.0.2.1:443 FINGERPRINT cert=... iat-mode=0"

  # Give a slow network more time to reach the control port
  ironbelly-tor run --connect-timeout 30s

  # Report when a peer's wallet listener becomes reachable
  ironbelly-tor run --reach http://<address>.onion/v2/foreign`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	addProxyFlags(cmd)
	cmd.Flags().String("tor", "",
		"Path to the tor binary (default: tor on PATH)")
	cmd.Flags().String("resource-dir", "",
		"Directory holding geoip and geoip6 files")
	cmd.Flags().StringArray("bridge", nil,
		"Bridge line, repeatable (enables UseBridges)")
	cmd.Flags().Duration("connect-timeout", config.DefaultConnectTimeout,
		"Give up reaching the control port after this long")
	cmd.Flags().Duration("poll-interval", config.DefaultPollInterval,
		"Interval between bootstrap status polls")
	cmd.Flags().String("journal-dir", "",
		"Directory of the state journal (default: XDG state directory)")
	cmd.Flags().Bool("no-journal", false,
		"Do not record state transitions")
	addReachFlags(cmd)

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd)

	peer, err := reachFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runProxy(ctx, cfg, logger, cmd.OutOrStdout(), peer)
}

// runProxy supervises one Tor run until ctx is canceled or the proxy
// fails. A peer with a target is dialed once Tor is bootstrapped. Extra
// options replace the supervisor's launcher, resources or dialer.
func runProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, peer reachOptions, opts ...supervisor.Option) error {
	var jrnl *journal.Journal
	if cfg.JournalDir != "" {
		j, err := journal.Open(cfg.JournalDir, journal.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		jrnl = j
	}

	sup := supervisor.New(cfg, append([]supervisor.Option{supervisor.WithLogger(logger)}, opts...)...)

	rec := newStateRecorder(sup, cfg.SocksAddr(), jrnl, out, logger)
	sup.Subscribe(subscriberID, rec.observe)
	defer sup.Unsubscribe(subscriberID)

	if err := sup.Start(ctx); err != nil {
		return err
	}

	// The process exit always publishes Failed; waiting for it keeps the
	// journal open until the last transition is recorded.
	defer rec.waitFailed(flushTimeout)

	if peer.target != "" {
		peerCtx, cancelPeer := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			reachPeer(peerCtx, sup, rec, peer, logger)
		}()
		defer wg.Wait()
		defer cancelPeer()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, stopping tor")
		return stopProxy(sup, logger)
	case <-rec.failed:
		err := fmt.Errorf("%w: %s", errProxyFailed, rec.reason())
		if stopErr := stopProxy(sup, logger); stopErr != nil {
			logger.Warn("failed to stop tor", "error", stopErr)
		}
		return err
	case <-sup.Done():
		// Failed is published before the run ends, but delivery is
		// asynchronous.
		rec.waitFailed(flushTimeout)
		return fmt.Errorf("%w: %s: %w", errProxyFailed, rec.reason(), sup.Err())
	}
}

// reachPeer waits for the first complete bootstrap and then dials the peer
// through the supervised proxy.
func reachPeer(ctx context.Context, sup *supervisor.Supervisor, rec *stateRecorder, peer reachOptions, logger *slog.Logger) {
	select {
	case <-rec.ready:
	case <-ctx.Done():
		return
	}

	d, err := sup.SocksDialer()
	if err != nil {
		logger.Warn("no SOCKS dialer for peer", "peer", peer.target, "error", err)
		return
	}
	if err := peer.reach(ctx, d); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("peer unreachable", "peer", peer.target, "error", err)
		fmt.Fprintf(rec.out, "peer %s unreachable: %v\n", peer.target, err)
		return
	}
	fmt.Fprintf(rec.out, "peer %s reachable\n", peer.target)
}

// stopProxy shuts Tor down and waits for it to exit.
func stopProxy(sup *supervisor.Supervisor, logger *slog.Logger) error {
	if err := sup.Shutdown(); err != nil {
		return err
	}
	select {
	case <-sup.Done():
		logger.Debug("tor exited", "run_id", sup.RunID(), "reason", sup.Err())
		return nil
	case <-time.After(shutdownGrace):
		return fmt.Errorf("tor did not exit within %s", shutdownGrace)
	}
}

// stateRecorder prints and journals every state the supervisor publishes.
type stateRecorder struct {
	sup       *supervisor.Supervisor
	socksAddr string
	journal   *journal.Journal
	out       io.Writer
	logger    *slog.Logger

	// ready is closed on the first complete bootstrap.
	ready     chan struct{}
	readyOnce sync.Once
	// failed is closed on the first Failed state.
	failed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	last tor.State
	// beforeFailure is the state the run was in when it failed.
	beforeFailure tor.State
}

func newStateRecorder(sup *supervisor.Supervisor, socksAddr string, j *journal.Journal, out io.Writer, logger *slog.Logger) *stateRecorder {
	return &stateRecorder{
		sup:       sup,
		socksAddr: socksAddr,
		journal:   j,
		out:       out,
		logger:    logger,
		ready:     make(chan struct{}),
		failed:    make(chan struct{}),
	}
}

func (r *stateRecorder) observe(st tor.State) {
	// The replayed initial state says nothing about a run.
	if st.Kind == tor.KindNotReady {
		return
	}

	now := time.Now()
	r.mu.Lock()
	prev := r.last
	r.last = st
	if st.Kind == tor.KindFailed {
		r.beforeFailure = prev
	}
	r.mu.Unlock()

	fmt.Fprintf(r.out, "%s  %-12s %s\n", now.Format(time.TimeOnly), st.Status(), describe(st))
	if st.Kind == tor.KindRunning && st.Bootstrap.Done() && !(prev.Kind == tor.KindRunning && prev.Bootstrap.Done()) {
		fmt.Fprintf(r.out, "SOCKS proxy ready at %s\n", r.socksAddr)
		r.readyOnce.Do(func() { close(r.ready) })
	}

	if r.journal != nil {
		if runID := r.sup.RunID(); runID != "" {
			// Recording must not outlive the journal, which run closes on return.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.journal.Record(ctx, runID, st, now); err != nil {
				r.logger.Warn("failed to record state", "state", st.String(), "error", err)
			}
			cancel()
		}
	}

	if st.Kind == tor.KindFailed {
		r.once.Do(func() { close(r.failed) })
	}
}

// reason describes the state the run failed in.
func (r *stateRecorder) reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return "failed while " + r.beforeFailure.String()
}

// waitFailed waits up to timeout for a Failed state to be handled.
func (r *stateRecorder) waitFailed(timeout time.Duration) {
	select {
	case <-r.failed:
	case <-time.After(timeout):
	}
}

// describe returns the detail column for a state.
func describe(st tor.State) string {
	if st.Kind != tor.KindRunning {
		return st.Kind.String()
	}
	b := st.Bootstrap
	s := b.String()
	if b.Summary != "" {
		s += " " + b.Summary
	}
	if b.Warning != "" {
		s += " [warning: " + b.Warning + "]"
	}
	return s
}
