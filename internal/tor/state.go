package tor

// Kind identifies a proxy lifecycle state.
type Kind int

const (
	// KindNotReady is the state before Start has been called.
	KindNotReady Kind = iota
	// KindInitializing means the subprocess launch has been requested.
	KindInitializing
	// KindRunning means the control connection is authenticated and a
	// status poll has succeeded.
	KindRunning
	// KindFailed is terminal for the current run.
	KindFailed
)

// String returns the state name.
func (k Kind) String() string {
	switch k {
	case KindNotReady:
		return "NotReady"
	case KindInitializing:
		return "Initializing"
	case KindRunning:
		return "Running"
	case KindFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// State is the externally observable status of the supervised proxy.
// It is a comparable value: two States are equal when they have the same
// kind and, for Running, the same bootstrap status.
type State struct {
	Kind Kind

	// Bootstrap is only meaningful when Kind is KindRunning.
	Bootstrap BootstrapStatus
}

// Fixed states. Running states are built with Running.
var (
	NotReady     = State{Kind: KindNotReady}
	Initializing = State{Kind: KindInitializing}
	Failed       = State{Kind: KindFailed}
)

// Running returns the Running state carrying bootstrap.
func Running(bootstrap BootstrapStatus) State {
	return State{Kind: KindRunning, Bootstrap: bootstrap}
}

// String returns e.g. "Initializing" or "Running(100% (done))".
func (s State) String() string {
	if s.Kind == KindRunning {
		return s.Kind.String() + "(" + s.Bootstrap.String() + ")"
	}
	return s.Kind.String()
}

// Status is the coarse connection status shown by the wallet UI.
type Status string

// Coarse statuses.
const (
	StatusDisconnected Status = "disconnected"
	StatusInProgress   Status = "in-progress"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// Status collapses s to one of the four UI statuses. A Running state only
// counts as connected once bootstrapping has reached 100%.
func (s State) Status() Status {
	switch s.Kind {
	case KindInitializing:
		return StatusInProgress
	case KindRunning:
		if s.Bootstrap.Done() {
			return StatusConnected
		}
		return StatusInProgress
	case KindFailed:
		return StatusFailed
	default:
		return StatusDisconnected
	}
}
