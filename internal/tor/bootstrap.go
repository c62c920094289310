package tor

import (
	"fmt"
	"strconv"
	"strings"
)

// BootstrapPhaseKey is the GETINFO key that reports bootstrap progress.
const BootstrapPhaseKey = "status/bootstrap-phase"

// BootstrapStatus is Tor's self-reported progress while it builds circuits.
//
// A status line looks like:
//
//	NOTICE BOOTSTRAP PROGRESS=85 TAG=ap_handshake_done SUMMARY="Handshake finished with a relay to build circuits"
//
// Warning lines additionally carry WARNING and REASON.
type BootstrapStatus struct {
	// Severity is NOTICE, WARN or ERR.
	Severity string

	// Progress is the completion percentage, 0 through 100.
	Progress int

	// Tag is Tor's short machine name for the phase (e.g. "done").
	Tag string

	// Summary is the human-readable phase description.
	Summary string

	// Warning and Reason are only set on WARN lines.
	Warning string
	Reason  string
}

// Done reports whether Tor has finished bootstrapping.
func (b BootstrapStatus) Done() bool {
	return b.Progress >= 100
}

// String returns a short form such as "85% (ap_handshake_done)".
func (b BootstrapStatus) String() string {
	if b.Tag == "" {
		return fmt.Sprintf("%d%%", b.Progress)
	}
	return fmt.Sprintf("%d%% (%s)", b.Progress, b.Tag)
}

// ParseBootstrapPhase parses the value of status/bootstrap-phase.
// The "status/bootstrap-phase=" prefix of a raw GETINFO line is accepted
// and stripped. It returns false for empty or malformed lines and for
// lines without a PROGRESS keyword in the 0-100 range.
func ParseBootstrapPhase(line string) (BootstrapStatus, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, BootstrapPhaseKey+"=")
	if line == "" {
		return BootstrapStatus{}, false
	}

	tokens, ok := splitQuoted(line)
	if !ok || len(tokens) < 3 || tokens[1] != "BOOTSTRAP" {
		return BootstrapStatus{}, false
	}

	status := BootstrapStatus{Severity: tokens[0]}
	switch status.Severity {
	case "NOTICE", "WARN", "ERR":
	default:
		return BootstrapStatus{}, false
	}

	hasProgress := false
	for _, tok := range tokens[2:] {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			continue
		}
		switch key {
		case "PROGRESS":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 100 {
				return BootstrapStatus{}, false
			}
			status.Progress = n
			hasProgress = true
		case "TAG":
			status.Tag = value
		case "SUMMARY":
			status.Summary = value
		case "WARNING":
			status.Warning = value
		case "REASON":
			status.Reason = value
		}
	}
	if !hasProgress {
		return BootstrapStatus{}, false
	}
	return status, true
}

// splitQuoted splits on spaces, keeping double-quoted runs together and
// removing the quotes. Backslash escapes the next character inside quotes.
// It returns false when a quote is left open.
func splitQuoted(s string) ([]string, bool) {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case !quoted && r == ' ':
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if quoted || escaped {
		return nil, false
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens, true
}
