package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// MarkdownWriter outputs reports in GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteHistory outputs run and transition tables with an outcome chart.
func (w *MarkdownWriter) WriteHistory(h *History) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Tor Proxy History")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", h.GeneratedAt.Format(timeLayout)},
			{"Runs", strconv.Itoa(len(h.Runs))},
			{"Transitions", strconv.Itoa(len(h.Transitions))},
		},
	})
	md.PlainText("")

	w.writeRuns(md, h)
	w.writeTransitions(md, h)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, h *History) {
	md.H2("Runs")
	md.PlainText("")

	if len(h.Runs) == 0 {
		md.PlainText("No runs recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(h.Runs))
	counts := make(map[tor.Status]int)
	for i, r := range h.Runs {
		rows[i] = []string{
			"`" + shortID(r.RunID) + "`",
			r.StartedAt.Format(timeLayout),
			r.EndedAt.Format(timeLayout),
			statusIcon(r.FinalStatus) + " " + statusLabel(r.FinalStatus),
			progressText(r.MaxProgress, ""),
			strconv.Itoa(r.Transitions),
		}
		counts[r.FinalStatus]++
	}
	md.Table(markdown.TableSet{
		Header: []string{"Run", "Started", "Ended", "Outcome", "Max Progress", "Transitions"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeOutcomeChart(md, counts)

	if failed := counts[tor.StatusFailed]; failed > 0 {
		md.Warningf("%d of %d run(s) ended in the Failed state.", failed, len(h.Runs))
	} else {
		md.Tip("No run ended in the Failed state.")
	}
	md.PlainText("")
}

// writeOutcomeChart writes a mermaid pie chart of final statuses.
func (w *MarkdownWriter) writeOutcomeChart(md *markdown.Markdown, counts map[tor.Status]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Run Outcomes"),
		piechart.WithShowData(true),
	)

	for _, s := range []tor.Status{
		tor.StatusConnected,
		tor.StatusInProgress,
		tor.StatusDisconnected,
		tor.StatusFailed,
	} {
		if counts[s] > 0 {
			chart.LabelAndIntValue(statusLabel(s), uint64(counts[s]))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeTransitions(md *markdown.Markdown, h *History) {
	md.H2("Transitions")
	md.PlainText("")

	if len(h.Transitions) == 0 {
		md.PlainText("No transitions recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(h.Transitions))
	for i, tr := range h.Transitions {
		summary := tr.Summary
		if summary == "" {
			summary = "-"
		}
		rows[i] = []string{
			tr.Timestamp.Format(timeLayout),
			"`" + shortID(tr.RunID) + "`",
			tr.State,
			progressText(tr.Progress, tr.Tag),
			truncateString(summary, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Time", "Run", "State", "Bootstrap", "Summary"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteCheck outputs the result of a proxy check.
func (w *MarkdownWriter) WriteCheck(r *CheckResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Tor Proxy Check")
	md.PlainText("")

	bootstrap := "-"
	if r.Bootstrap != nil {
		bootstrap = r.Bootstrap.String()
	}
	rows := [][]string{
		{"Checked", r.CheckedAt.Format(timeLayout)},
		{"Status", statusIcon(r.Status()) + " " + statusLabel(r.Status())},
		{"SOCKS Address", "`" + r.SocksAddr + "`"},
		{"SOCKS Result", r.SocksStatus.String()},
		{"Control Address", "`" + r.ControlAddr + "`"},
		{"Authenticated", strconv.FormatBool(r.Authenticated)},
		{"Bootstrap", bootstrap},
	}
	if r.Reach != "" {
		rows = append(rows,
			[]string{"Peer", "`" + r.Reach + "`"},
			[]string{"Peer Reached", strconv.FormatBool(r.Reached)},
		)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch {
	case r.OK():
		md.Tip("Tor is running and fully bootstrapped.")
	case r.ControlError != "":
		md.Cautionf("Control port check failed: %s", r.ControlError)
	case r.Bootstrap != nil && r.Bootstrap.Warning != "":
		md.Warningf("Bootstrap is stuck: %s (%s)", r.Bootstrap.Warning, r.Bootstrap.Reason)
	case r.SocksStatus != tor.ProxyStatusOK:
		md.Warningf("SOCKS port check failed: %s", r.SocksStatus)
	case r.ReachError != "":
		md.Warningf("Peer unreachable: %s", r.ReachError)
	default:
		md.Note("Tor is still bootstrapping.")
	}
	md.PlainText("")

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by ironbelly-tor*")
}

// statusIcon returns an emoji for the coarse status.
func statusIcon(s tor.Status) string {
	switch s {
	case tor.StatusConnected:
		return "✅"
	case tor.StatusInProgress:
		return "⏳"
	case tor.StatusDisconnected:
		return "⚪"
	case tor.StatusFailed:
		return "❌"
	default:
		return "❔"
	}
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
