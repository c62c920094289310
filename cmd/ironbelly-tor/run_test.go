package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/i1skn/ironbelly-sub000/internal/config"
	"github.com/i1skn/ironbelly-sub000/internal/journal"
	"github.com/i1skn/ironbelly-sub000/internal/log"
	"github.com/i1skn/ironbelly-sub000/internal/supervisor"
	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// startProxy runs runProxy in the background and returns its result channel.
func startProxy(ctx context.Context, t *testing.T, out *syncBuffer, opts []supervisor.Option) (chan error, *journalDir) {
	t.Helper()
	return startProxyWith(ctx, t, testConfig(t), out, reachOptions{}, opts)
}

// startProxyWith is startProxy for a given config and peer.
func startProxyWith(ctx context.Context, t *testing.T, cfg *config.Config, out *syncBuffer, peer reachOptions, opts []supervisor.Option) (chan error, *journalDir) {
	t.Helper()

	logger := log.New(io.Discard, log.Options{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- runProxy(ctx, cfg, logger, out, peer, opts...)
	}()
	return errCh, &journalDir{path: cfg.JournalDir}
}

type journalDir struct {
	path string
}

// transitions reads every recorded transition.
func (d *journalDir) transitions(t *testing.T) []journal.Transition {
	t.Helper()

	j, err := journal.Open(d.path, journal.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	got, err := j.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	return got
}

func waitResult(t *testing.T, errCh chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runProxy did not return")
		return nil
	}
}

// TestRunProxy_ShutdownOnCancel covers the Ctrl-C path: Tor is asked to
// shut down over the control port and every transition is journaled.
func TestRunProxy_ShutdownOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := newFakeProcess()
	out := &syncBuffer{}
	errCh, jd := startProxy(ctx, t, out, fakeTor(proc, phaseDone))

	waitForOutput(t, out, "SOCKS proxy ready at 127.0.0.1:39059")
	cancel()

	if err := waitResult(t, errCh); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if proc.signalCount() != 0 {
		t.Error("expected SIGNAL SHUTDOWN instead of an interrupt")
	}

	got := jd.transitions(t)
	var states []string
	for _, tr := range got {
		states = append(states, tr.State)
		if tr.RunID == "" || tr.RunID != got[0].RunID {
			t.Errorf("expected one run ID, got %q and %q", got[0].RunID, tr.RunID)
		}
	}
	if strings.Join(states, ",") != "Initializing,Running,Failed" {
		t.Errorf("unexpected journaled states %v", states)
	}
	if got[1].Progress != 100 || got[1].Status != tor.StatusConnected {
		t.Errorf("unexpected running transition %+v", got[1])
	}
	if !strings.Contains(out.String(), "connected") {
		t.Errorf("expected status in output:\n%s", out.String())
	}
}

// TestRunProxy_ProcessExit covers Tor exiting on its own.
func TestRunProxy_ProcessExit(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess()
	out := &syncBuffer{}
	errCh, _ := startProxy(context.Background(), t, out, fakeTor(proc, phaseLoading))

	waitForOutput(t, out, "50% (loading_descriptors)")
	proc.exit()

	err := waitResult(t, errCh)
	if !errors.Is(err, errProxyFailed) {
		t.Fatalf("expected errProxyFailed, got %v", err)
	}
}

// TestRunProxy_ConnectTimeout covers a control port that never answers.
// The process is interrupted since there is no session to signal.
func TestRunProxy_ConnectTimeout(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess()
	opts := []supervisor.Option{
		supervisor.WithLauncher(&fakeLauncher{proc: proc}),
		supervisor.WithResources(fakeResources{}),
		supervisor.WithDialer(func(context.Context, string) (supervisor.ControlSession, error) {
			return nil, tor.ErrConnection
		}),
	}
	out := &syncBuffer{}
	errCh, jd := startProxy(context.Background(), t, out, opts)

	err := waitResult(t, errCh)
	if !errors.Is(err, errProxyFailed) {
		t.Fatalf("expected errProxyFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Initializing") {
		t.Errorf("expected the failure reason to name the prior state, got %v", err)
	}
	if proc.signalCount() != 1 {
		t.Errorf("expected one interrupt, got %d", proc.signalCount())
	}

	got := jd.transitions(t)
	if len(got) != 2 || got[1].Status != tor.StatusFailed {
		t.Errorf("expected Initializing then Failed, got %+v", got)
	}
}

// TestRunProxy_ReachPeer covers dialing a peer once Tor is bootstrapped.
func TestRunProxy_ReachPeer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply byte
		want  string
	}{
		{"reachable", 0x00, " reachable"},
		{"unreachable", 0x04, " unreachable: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := testConfig(t)
			cfg.ProxyPort = listen(t, serveSocksReply(tt.reply))
			peer := reachOptions{target: testPeer(t), timeout: 5 * time.Second}

			proc := newFakeProcess()
			out := &syncBuffer{}
			errCh, _ := startProxyWith(ctx, t, cfg, out, peer, fakeTor(proc, phaseDone))

			waitForOutput(t, out, "peer "+peer.target+tt.want)
			cancel()

			if err := waitResult(t, errCh); err != nil {
				t.Fatalf("expected clean shutdown, got %v", err)
			}
			if !strings.Contains(out.String(), "SOCKS proxy ready at "+cfg.SocksAddr()) {
				t.Errorf("expected the peer to be dialed after bootstrap:\n%s", out.String())
			}
		})
	}
}

// TestRunProxy_ResourceFailure covers a failure before launch.
func TestRunProxy_ResourceFailure(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess()
	opts := []supervisor.Option{
		supervisor.WithLauncher(&fakeLauncher{proc: proc}),
		supervisor.WithResources(fakeResources{err: supervisor.ErrResource}),
	}
	errCh, _ := startProxy(context.Background(), t, &syncBuffer{}, opts)

	if err := waitResult(t, errCh); !errors.Is(err, supervisor.ErrResource) {
		t.Fatalf("expected ErrResource, got %v", err)
	}
}

// TestDescribe tests the detail column of the state printer.
func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		st   tor.State
		want string
	}{
		{"initializing", tor.Initializing, "Initializing"},
		{"failed", tor.Failed, "Failed"},
		{
			name: "running with summary",
			st:   tor.Running(tor.BootstrapStatus{Progress: 100, Tag: "done", Summary: "Done"}),
			want: "100% (done) Done",
		},
		{
			name: "running with warning",
			st:   tor.Running(tor.BootstrapStatus{Progress: 10, Tag: "conn_done", Warning: "Connection refused"}),
			want: "10% (conn_done) [warning: Connection refused]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := describe(tt.st); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
