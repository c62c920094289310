package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs human-readable text for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints section headers even when they have no rows.
	showEmpty bool

	// verbose adds bootstrap summaries to each transition.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteHistory outputs run summaries followed by individual transitions.
func (w *SimpleWriter) WriteHistory(h *History) (int, error) {
	var sb strings.Builder

	w.writeTitle(&sb, "TOR PROXY HISTORY")
	sb.WriteString(fmt.Sprintf("Generated:   %s\n", h.GeneratedAt.Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("Runs:        %d\n", len(h.Runs)))
	sb.WriteString(fmt.Sprintf("Transitions: %d\n\n", len(h.Transitions)))

	if len(h.Runs) > 0 || w.showEmpty {
		w.writeSection(&sb, "RUNS")
		if len(h.Runs) == 0 {
			sb.WriteString("  No runs recorded\n")
		}
		for _, r := range h.Runs {
			sb.WriteString(fmt.Sprintf("  [%s] %-12s %-10s max %-22s %s\n",
				shortID(r.RunID),
				statusLabel(r.FinalStatus),
				r.FinalState,
				progressText(r.MaxProgress, ""),
				r.StartedAt.Format(timeLayout),
			))
			if w.verbose {
				sb.WriteString(fmt.Sprintf("      ended %s after %d transition(s)\n",
					r.EndedAt.Format(timeLayout), r.Transitions))
			}
		}
		sb.WriteString("\n")
	}

	if len(h.Transitions) > 0 || w.showEmpty {
		w.writeSection(&sb, "TRANSITIONS")
		if len(h.Transitions) == 0 {
			sb.WriteString("  No transitions recorded\n")
		}
		for _, tr := range h.Transitions {
			sb.WriteString(fmt.Sprintf("  %s [%s] %-12s %s\n",
				tr.Timestamp.Format(timeLayout),
				shortID(tr.RunID),
				tr.State,
				progressText(tr.Progress, tr.Tag),
			))
			if w.verbose && tr.Summary != "" {
				sb.WriteString(fmt.Sprintf("      %s\n", tr.Summary))
			}
		}
		sb.WriteString("\n")
	}

	w.writeRule(&sb, "=")
	return w.output.Write([]byte(sb.String()))
}

// WriteCheck outputs the result of a proxy check.
func (w *SimpleWriter) WriteCheck(r *CheckResult) (int, error) {
	var sb strings.Builder

	w.writeTitle(&sb, "TOR PROXY CHECK")
	sb.WriteString(fmt.Sprintf("Checked: %s\n", r.CheckedAt.Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("Status:  %s\n\n", statusLabel(r.Status())))

	w.writeSection(&sb, "SOCKS PORT")
	sb.WriteString(fmt.Sprintf("  Address: %s\n", r.SocksAddr))
	sb.WriteString(fmt.Sprintf("  Result:  %s\n\n", r.SocksStatus))

	w.writeSection(&sb, "CONTROL PORT")
	sb.WriteString(fmt.Sprintf("  Address:       %s\n", r.ControlAddr))
	sb.WriteString(fmt.Sprintf("  Authenticated: %t\n", r.Authenticated))
	if r.Bootstrap != nil {
		sb.WriteString(fmt.Sprintf("  Bootstrap:     %s\n", r.Bootstrap))
		if w.verbose && r.Bootstrap.Summary != "" {
			sb.WriteString(fmt.Sprintf("  Summary:       %s\n", r.Bootstrap.Summary))
		}
		if r.Bootstrap.Warning != "" {
			sb.WriteString(fmt.Sprintf("  Warning:       %s (%s)\n", r.Bootstrap.Warning, r.Bootstrap.Reason))
		}
	}
	if r.ControlError != "" {
		sb.WriteString(fmt.Sprintf("  Error:         %s\n", r.ControlError))
	}
	sb.WriteString("\n")

	if r.Reach != "" {
		w.writeSection(&sb, "PEER")
		sb.WriteString(fmt.Sprintf("  Address: %s\n", r.Reach))
		sb.WriteString(fmt.Sprintf("  Reached: %t\n", r.Reached))
		if r.ReachError != "" {
			sb.WriteString(fmt.Sprintf("  Error:   %s\n", r.ReachError))
		}
		sb.WriteString("\n")
	}

	w.writeRule(&sb, "=")
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeTitle(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	w.writeRule(sb, "=")
	pad := (70 - len(title)) / 2
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	w.writeRule(sb, "=")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, name string) {
	w.writeRule(sb, "-")
	sb.WriteString(name + "\n")
	w.writeRule(sb, "-")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}
