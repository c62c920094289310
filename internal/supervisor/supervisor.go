package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/i1skn/ironbelly-sub000/internal/broadcast"
	"github.com/i1skn/ironbelly-sub000/internal/config"
	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// Supervisor owns one Tor process at a time and broadcasts its state.
// The zero value is not usable; create one with New.
type Supervisor struct {
	cfg       *config.Config
	logger    *slog.Logger
	launcher  Launcher
	resources ResourceLocator
	dial      DialFunc
	parse     BootstrapParser

	states *broadcast.Broadcaster[tor.State]

	// mu serializes Start and Shutdown and guards run.
	mu  sync.Mutex
	run *run
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithLauncher replaces the os/exec based launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		s.launcher = l
	}
}

// WithResources replaces the filesystem ResourceLocator.
func WithResources(r ResourceLocator) Option {
	return func(s *Supervisor) {
		s.resources = r
	}
}

// WithDialer replaces how control connections are opened.
func WithDialer(dial DialFunc) Option {
	return func(s *Supervisor) {
		s.dial = dial
	}
}

// WithBootstrapParser replaces tor.ParseBootstrapPhase.
func WithBootstrapParser(parse BootstrapParser) Option {
	return func(s *Supervisor) {
		s.parse = parse
	}
}

// New creates a Supervisor for cfg. cfg must not be modified afterwards.
// The state starts at NotReady.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: slog.Default(),
		dial:   dialControl(cfg.QueryTimeout),
		parse:  tor.ParseBootstrapPhase,
		states: broadcast.NewWithValue(tor.NotReady),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resources == nil {
		s.resources = NewFileResources(cfg)
	}
	if s.launcher == nil {
		s.launcher = &ExecLauncher{Logger: s.logger, Dir: cfg.DataDir}
	}
	return s
}

// StopGrace is how long a process gets to exit after an interrupt before
// it is killed, once the monitor has given up on it.
const StopGrace = 5 * time.Second

// run is one Start: a process and the monitor attached to it.
type run struct {
	id      string
	cancel  context.CancelFunc
	gate    *gate
	monitor *monitor
	proc    Process
	exited  chan struct{}
	done    chan struct{}
	err     error
	// monitorErr is why the monitor gave up. It outranks the process exit
	// that terminate causes.
	monitorErr error
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// gate is a run's publisher. Once closed it drops monitor publishes, so
// nothing from a stopped run reaches subscribers.
type gate struct {
	mu      sync.Mutex
	stopped bool
	states  *broadcast.Broadcaster[tor.State]
}

func (g *gate) publish(st tor.State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	return g.states.PublishChanged(st)
}

func (g *gate) close() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
}

// closed reports whether the run is stopping: Shutdown was called or the
// monitor published its terminal Failed.
func (g *gate) closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// closeWith closes the gate and publishes a final state regardless of an
// earlier close.
func (g *gate) closeWith(st tor.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	g.states.PublishChanged(st)
}

// Start installs resources, launches Tor and starts monitoring it. It
// returns once the process has been started; progress is reported through
// subscribers. ctx bounds the launch only, not the life of the process.
//
// Start returns ErrAlreadyRunning while a run is active. A run that is
// already stopping, after Shutdown or Failed, is waited for first.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.run; r != nil && !r.finished() {
		if !r.gate.closed() {
			return ErrAlreadyRunning
		}
		if err := r.wait(ctx, 2*StopGrace); err != nil {
			return err
		}
	}

	binary, err := s.prepare()
	if err != nil {
		s.logger.Error("tor resources unavailable", "error", err)
		s.states.PublishChanged(tor.Failed)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:     uuid.NewString(),
		cancel: cancel,
		gate:   &gate{states: s.states},
		exited: make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.monitor = &monitor{
		cfg:     s.cfg,
		dial:    s.dial,
		parse:   s.parse,
		publish: r.gate.publish,
		logger:  s.logger.With("run_id", r.id),
	}

	r.gate.publish(tor.Initializing)

	args := Args(s.cfg)
	proc, err := s.launcher.Launch(ctx, binary, args)
	if err != nil {
		cancel()
		r.gate.closeWith(tor.Failed)
		s.logger.Error("failed to launch tor", "binary", binary, "error", err)
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	r.proc = proc
	s.run = r
	s.logger.Info("tor launched", "run_id", r.id, "pid", proc.Pid(), "socks", s.cfg.SocksAddr(), "control", s.cfg.ControlAddr())

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		waitErr := proc.Wait()
		close(r.exited)
		r.gate.closeWith(tor.Failed)
		s.logger.Warn("tor process exited", "run_id", r.id, "error", waitErr)
		if waitErr != nil {
			return fmt.Errorf("%w: %w", ErrSubprocessExit, waitErr)
		}
		return ErrSubprocessExit
	})
	g.Go(func() error {
		err := r.monitor.run(gctx)
		// A closed gate means Shutdown or the process exit already ended
		// the run, and the session error is a consequence of that.
		if err == nil || r.gate.closed() {
			return nil
		}
		r.monitorErr = err
		r.gate.closeWith(tor.Failed)
		s.logger.Error("tor control failed, stopping tor", "run_id", r.id, "error", err)
		r.terminate(s.logger)
		return err
	})
	go func() {
		r.err = g.Wait()
		if r.monitorErr != nil {
			r.err = r.monitorErr
		}
		cancel()
		close(r.done)
	}()
	return nil
}

// terminate interrupts the process and kills it if it has not exited
// after StopGrace.
func (r *run) terminate(logger *slog.Logger) {
	if err := r.proc.Signal(os.Interrupt); err != nil {
		logger.Warn("failed to interrupt tor", "run_id", r.id, "error", err)
	}

	timer := time.NewTimer(StopGrace)
	defer timer.Stop()
	select {
	case <-r.exited:
	case <-timer.C:
		logger.Warn("tor did not exit after interrupt, killing it", "run_id", r.id)
		if err := r.proc.Signal(os.Kill); err != nil {
			logger.Warn("failed to kill tor", "run_id", r.id, "error", err)
		}
	}
}

// wait blocks until the run has ended, ctx is done or timeout elapses.
func (r *run) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrAlreadyRunning
	}
}

// prepare installs static resources and locates the binary.
func (s *Supervisor) prepare() (string, error) {
	if err := s.resources.InstallStaticResources(); err != nil {
		return "", resourceError(err)
	}
	binary, err := s.resources.LocateProxyBinary()
	if err != nil {
		return "", resourceError(err)
	}
	return binary, nil
}

func resourceError(err error) error {
	if errors.Is(err, ErrResource) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrResource, err)
}

// Shutdown stops the current run. If the control connection is
// authenticated Tor is asked to shut down over it; otherwise the process is
// interrupted. Shutdown does not wait for the process to exit (see Done)
// and publishes nothing itself; the process exit publishes Failed. It does
// nothing for a run that is already stopping.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.run
	if r == nil || r.finished() || r.gate.closed() {
		return nil
	}

	r.gate.close()

	signaled, err := r.monitor.signalShutdown()
	if err != nil {
		s.logger.Warn("SIGNAL SHUTDOWN failed, interrupting tor", "run_id", r.id, "error", err)
	}
	if !signaled || err != nil {
		if sigErr := r.proc.Signal(os.Interrupt); sigErr != nil {
			r.cancel()
			return fmt.Errorf("interrupt tor: %w", sigErr)
		}
	}
	r.cancel()
	return nil
}

// Subscribe registers fn under id. fn is called with the current state
// right away and then with every later state, in order.
func (s *Supervisor) Subscribe(id string, fn func(tor.State)) {
	s.states.Subscribe(id, fn)
}

// Unsubscribe removes every subscription registered under id.
func (s *Supervisor) Unsubscribe(id string) {
	s.states.Unsubscribe(id)
}

// State returns the current state.
func (s *Supervisor) State() tor.State {
	st, _ := s.states.Current()
	return st
}

// RunID returns the ID of the current or last run, or "" before the first
// successful launch.
func (s *Supervisor) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.id
}

// Done returns a channel that is closed when the current run has ended:
// the process has exited and monitoring has stopped. Before the first
// launch the returned channel is already closed.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.run.done
}

// Err returns why the last run ended, or nil while it is still active.
// It wraps ErrConnectTimeout or ErrHealthCheck when the monitor gave up,
// and ErrSubprocessExit otherwise.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil || !s.run.finished() {
		return nil
	}
	return s.run.err
}

// SocksDialer returns a SOCKS5 dialer through the supervised proxy.
func (s *Supervisor) SocksDialer() (proxy.Dialer, error) {
	probe, err := tor.NewSocksProbe(s.cfg.SocksAddr())
	if err != nil {
		return nil, err
	}
	return probe.Dialer(), nil
}
