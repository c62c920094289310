package supervisor

import "errors"

var (
	// ErrResource is returned by Start when static resources could not be
	// installed or the Tor binary could not be found. No process is spawned.
	ErrResource = errors.New("tor resources unavailable")

	// ErrLaunch is returned by Start when the Tor process could not be started.
	ErrLaunch = errors.New("failed to launch tor")

	// ErrSubprocessExit is the run error once the Tor process has exited.
	ErrSubprocessExit = errors.New("tor process exited")

	// ErrConnectTimeout is the run error when the control port could not be
	// reached and authenticated within the connect timeout.
	ErrConnectTimeout = errors.New("timed out connecting to tor control port")

	// ErrHealthCheck is the run error when a bootstrap poll fails after
	// authentication.
	ErrHealthCheck = errors.New("tor health check failed")

	// ErrAlreadyRunning is returned by Start while a previous run is active.
	ErrAlreadyRunning = errors.New("tor supervisor already running")
)
