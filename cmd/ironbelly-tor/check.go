package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
	"github.com/spf13/cobra"
	"golang.org/x/net/proxy"

	"github.com/i1skn/ironbelly-sub000/internal/config"
	"github.com/i1skn/ironbelly-sub000/internal/report"
	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// errCheckFailed is returned when check finds Tor unhealthy, so scripts
// can rely on the exit status.
var errCheckFailed = errors.New("tor proxy check failed")

// defaultReachTimeout covers building a rendezvous circuit, which often
// takes tens of seconds.
const defaultReachTimeout = 60 * time.Second

// reachOptions names a peer to connect to through the proxy.
type reachOptions struct {
	target  string
	timeout time.Duration
}

// addReachFlags adds the flags read by reachFlags.
func addReachFlags(cmd *cobra.Command) {
	cmd.Flags().String("reach", "", "Onion address or hex public key of a peer to connect to through the proxy")
	cmd.Flags().Duration("reach-timeout", defaultReachTimeout, "How long to wait for a circuit to the peer")
}

// reachFlags reads and validates the reach flags.
func reachFlags(cmd *cobra.Command) (reachOptions, error) {
	var opts reachOptions
	opts.target, _ = cmd.Flags().GetString("reach")
	opts.timeout, _ = cmd.Flags().GetDuration("reach-timeout")
	if opts.target != "" {
		if _, _, err := tor.ParseOnionTarget(opts.target); err != nil {
			return reachOptions{}, err
		}
	}
	return opts, nil
}

// reach dials the peer through d within the reach timeout.
func (o reachOptions) reach(ctx context.Context, d proxy.Dialer) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return tor.Reach(ctx, d, o.target)
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a running Tor's SOCKS and control ports",
		Long: `Check probes a Tor that is already running, for example one started by
"ironbelly-tor run" or by the wallet.

It performs a SOCKS5 handshake on the proxy port, then authenticates on the
control port with the cookie file and reads the bootstrap phase. With --reach
it also opens a connection to a peer's onion service through the proxy. The
command exits non-zero unless both ports answer, bootstrapping is complete
and the peer, if given, was reached. With --wait it first waits for Tor to
answer PROTOCOLINFO and write its cookie file.

Examples:
  # Check the default ports
  ironbelly-tor check

  # Check a Tor with a different data directory, as Markdown
  ironbelly-tor check --data-dir /var/lib/ironbelly-tor --markdown

  # Also check that a peer's wallet listener is reachable
  ironbelly-tor check --reach http://<address>.onion/v2/foreign

  # Right after starting Tor, give it time to open the control port
  ironbelly-tor check --wait 30s`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	addProxyFlags(cmd)
	addFormatFlags(cmd)
	cmd.Flags().Duration("wait", 0, "Wait up to this long for the control port and cookie to appear")
	addReachFlags(cmd)

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd)

	w, err := newReportWriter(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	opts, err := reachFlags(cmd)
	if err != nil {
		return err
	}

	if wait, _ := cmd.Flags().GetDuration("wait"); wait > 0 {
		logger.Debug("waiting for control port", "address", cfg.ControlAddr(), "timeout", wait)
		if err := tornago.WaitForControlPort(cfg.ControlAddr(), wait); err != nil {
			logger.Warn("control port did not come up", "address", cfg.ControlAddr(), "error", err)
		}
	}

	result := checkProxy(cmd.Context(), cfg, logger, opts)
	if _, err := w.WriteCheck(result); err != nil {
		return fmt.Errorf("failed to write check result: %w", err)
	}
	if !result.OK() {
		return errCheckFailed
	}
	return nil
}

// checkProxy probes the SOCKS port, then the control port, then the peer.
func checkProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts reachOptions) *report.CheckResult {
	result := &report.CheckResult{
		SocksAddr:   cfg.SocksAddr(),
		SocksStatus: tor.ProxyStatusCannotConnect,
		ControlAddr: cfg.ControlAddr(),
		Reach:       opts.target,
		CheckedAt:   time.Now(),
	}

	probe, err := tor.NewSocksProbe(result.SocksAddr)
	if err != nil {
		logger.Warn("invalid SOCKS address", "address", result.SocksAddr, "error", err)
	} else {
		result.SocksStatus = probe.CheckConnection(ctx)
		logger.Debug("SOCKS probe finished", "address", result.SocksAddr, "status", result.SocksStatus.String())
	}

	if err := checkControl(ctx, cfg, result); err != nil {
		logger.Warn("control port check failed", "address", result.ControlAddr, "error", err)
		result.ControlError = err.Error()
	}

	if opts.target == "" {
		return result
	}
	if probe == nil || result.SocksStatus != tor.ProxyStatusOK {
		result.ReachError = "SOCKS port is not usable"
		return result
	}
	if err := opts.reach(ctx, probe.Dialer()); err != nil {
		logger.Warn("peer unreachable", "peer", opts.target, "error", err)
		result.ReachError = err.Error()
		return result
	}
	logger.Debug("peer reached", "peer", opts.target)
	result.Reached = true
	return result
}

// checkControl authenticates with the cookie file and reads the bootstrap
// phase into result.
func checkControl(ctx context.Context, cfg *config.Config, result *report.CheckResult) error {
	client, err := tornago.NewControlClient(result.ControlAddr, tornago.ControlAuthFromCookie(cfg.CookiePath()), cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", tor.ErrConnection, err)
	}
	defer client.Close()

	if err := client.Authenticate(); err != nil {
		return fmt.Errorf("%w: %w", tor.ErrAuth, err)
	}
	result.Authenticated = true

	raw, err := client.GetInfo(ctx, tor.BootstrapPhaseKey)
	if err != nil {
		return fmt.Errorf("%w: %w", tor.ErrProtocol, err)
	}
	status, ok := tor.ParseBootstrapPhase(raw)
	if !ok {
		return fmt.Errorf("%w: unparsable bootstrap phase %q", tor.ErrProtocol, raw)
	}
	result.Bootstrap = &status
	return nil
}
