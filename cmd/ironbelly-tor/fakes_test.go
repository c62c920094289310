package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i1skn/ironbelly-sub000/internal/config"
	"github.com/i1skn/ironbelly-sub000/internal/supervisor"
)

const (
	testCookie   = "0123456789abcdef0123456789abcdef"
	phaseLoading = `NOTICE BOOTSTRAP PROGRESS=50 TAG=loading_descriptors SUMMARY="Loading relay descriptors"`
	phaseDone    = `NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY="Done"`
)

// testConfig returns a Config with short timeouts, a temporary data
// directory holding a cookie, and a temporary journal directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.JournalDir = t.TempDir()
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.QueryTimeout = time.Second

	cookiePath := cfg.CookiePath()
	if err := os.MkdirAll(filepath.Dir(cookiePath), 0o700); err != nil {
		t.Fatalf("failed to create cookie dir: %v", err)
	}
	if err := os.WriteFile(cookiePath, []byte(testCookie), 0o600); err != nil {
		t.Fatalf("failed to write cookie: %v", err)
	}
	return cfg
}

// writeFile writes content to path, creating parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// syncBuffer is a bytes.Buffer safe for the subscriber goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeProcess runs until exit or Signal is called.
type fakeProcess struct {
	exited chan struct{}
	once   sync.Once

	mu      sync.Mutex
	signals []os.Signal
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exited: make(chan struct{})}
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	p.exit()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

func (p *fakeProcess) exit() {
	p.once.Do(func() { close(p.exited) })
}

func (p *fakeProcess) signalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals)
}

// fakeLauncher always hands out proc.
type fakeLauncher struct {
	proc *fakeProcess
}

func (l *fakeLauncher) Launch(ctx context.Context, _ string, _ []string) (supervisor.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.proc, nil
}

// fakeResources skips installation and returns a fixed binary.
type fakeResources struct {
	err error
}

func (r fakeResources) InstallStaticResources() error { return r.err }

func (r fakeResources) LocateProxyBinary() (string, error) {
	return "/usr/bin/tor", nil
}

// fakeSession answers with phase and exits proc on SIGNAL SHUTDOWN.
type fakeSession struct {
	proc  *fakeProcess
	phase string
}

func (s *fakeSession) Authenticate(cookie []byte) error {
	if string(cookie) != testCookie {
		return errors.New("bad cookie")
	}
	return nil
}

func (s *fakeSession) BootstrapPhase() (string, error) {
	return s.phase, nil
}

func (s *fakeSession) SignalShutdown() error {
	s.proc.exit()
	return nil
}

func (s *fakeSession) Close() error { return nil }

// fakeTor bundles the options that replace a real tor for runProxy.
func fakeTor(proc *fakeProcess, phase string) []supervisor.Option {
	return []supervisor.Option{
		supervisor.WithLauncher(&fakeLauncher{proc: proc}),
		supervisor.WithResources(fakeResources{}),
		supervisor.WithDialer(func(context.Context, string) (supervisor.ControlSession, error) {
			return &fakeSession{proc: proc, phase: phase}, nil
		}),
	}
}

// waitForOutput polls out until it contains want.
func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, out.String())
}
