package report

import (
	"io"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/i1skn/ironbelly-sub000/internal/journal"
	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// Writer renders reports in one format.
type Writer interface {
	// WriteHistory renders journal transitions and run summaries.
	WriteHistory(h *History) (int, error)

	// WriteCheck renders the result of a proxy check.
	WriteCheck(r *CheckResult) (int, error)
}

// History is what `history` displays.
type History struct {
	// Runs are run summaries, most recent first.
	Runs []journal.RunSummary `json:"runs"`

	// Transitions are individual states, oldest first.
	Transitions []journal.Transition `json:"transitions"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// CheckResult is what `check` found.
type CheckResult struct {
	SocksAddr   string          `json:"socksAddr"`
	SocksStatus tor.ProxyStatus `json:"-"`

	ControlAddr   string `json:"controlAddr"`
	Authenticated bool   `json:"authenticated"`

	// Bootstrap is set when the bootstrap query succeeded.
	Bootstrap *tor.BootstrapStatus `json:"bootstrap,omitempty"`

	// ControlError is why the control port check stopped, if it did.
	ControlError string `json:"controlError,omitempty"`

	// Reach is the peer onion service that was dialed, if one was given.
	Reach      string `json:"reach,omitempty"`
	Reached    bool   `json:"reached,omitempty"`
	ReachError string `json:"reachError,omitempty"`

	CheckedAt time.Time `json:"checkedAt"`
}

// OK reports whether both ports look like a healthy, bootstrapped Tor
// and the peer, if any, was reached.
func (r *CheckResult) OK() bool {
	return r.SocksStatus == tor.ProxyStatusOK &&
		r.Authenticated &&
		r.Bootstrap != nil && r.Bootstrap.Done() &&
		(r.Reach == "" || r.Reached)
}

// Status returns the coarse status the check implies.
func (r *CheckResult) Status() tor.Status {
	switch {
	case r.OK():
		return tor.StatusConnected
	case r.Authenticated && r.Bootstrap != nil:
		return tor.StatusInProgress
	case r.ControlError != "" && r.SocksStatus == tor.ProxyStatusCannotConnect:
		return tor.StatusDisconnected
	default:
		return tor.StatusFailed
	}
}

// baseWriter holds the output destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusLabel returns e.g. "Connected" for tor.StatusConnected.
func statusLabel(s tor.Status) string {
	if s == "" {
		return "Unknown"
	}
	// A Caser keeps state between calls and is not shared.
	return cases.Title(language.English).String(string(s))
}

// progressText returns "85% (tag)" or "-" when there was no progress.
func progressText(progress int, tag string) string {
	if progress == 0 && tag == "" {
		return "-"
	}
	return tor.BootstrapStatus{Progress: progress, Tag: tag}.String()
}

// shortID trims a run UUID to its first group for tables.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

const timeLayout = "2006-01-02 15:04:05 MST"
