package supervisor

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/i1skn/ironbelly-sub000/internal/config"
)

// Process is a started Tor process.
type Process interface {
	// Pid returns the operating system process ID.
	Pid() int
	// Signal sends sig to the process.
	Signal(sig os.Signal) error
	// Wait blocks until the process exits.
	Wait() error
}

// Launcher starts the Tor process.
type Launcher interface {
	Launch(ctx context.Context, binary string, args []string) (Process, error)
}

// Args returns the command line the supervisor starts Tor with.
func Args(cfg *config.Config) []string {
	return []string{
		"-f", cfg.TorrcPath(),
		"--clientonly", "1",
		"--socksport", strconv.Itoa(cfg.ProxyPort),
		"--controlport", cfg.ControlAddr(),
		"--clientuseipv6", "1",
	}
}

// ExecLauncher starts Tor with os/exec and forwards its output to a logger.
// Stdout lines are logged at Debug, stderr lines at Warn.
//
// The process is not bound to the context passed to Launch; stopping it is
// the supervisor's job, through the control port or a signal.
type ExecLauncher struct {
	Logger *slog.Logger

	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// Launch starts binary with args.
func (l *ExecLauncher) Launch(ctx context.Context, binary string, args []string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(binary, args...) //nolint:gosec // binary comes from configuration or PATH lookup
	cmd.Dir = l.Dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		_ = stdoutPipe.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd}
	pid := cmd.Process.Pid
	logger.Debug("tor process started", "pid", pid, "command", cmd.String())

	p.drain.Add(2)
	go p.forward(stdoutPipe, func(line string) {
		logger.Debug("tor stdout", "pid", pid, "output", line)
	})
	go p.forward(stderrPipe, func(line string) {
		logger.Warn("tor stderr", "pid", pid, "output", line)
	})
	return p, nil
}

// execProcess is a Process backed by an exec.Cmd.
type execProcess struct {
	cmd   *exec.Cmd
	drain sync.WaitGroup
}

func (p *execProcess) forward(r io.Reader, logLine func(string)) {
	defer p.drain.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logLine(scanner.Text())
	}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Wait waits for the output to be drained, then for the process to exit.
func (p *execProcess) Wait() error {
	p.drain.Wait()
	return p.cmd.Wait()
}
