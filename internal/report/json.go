package report

import (
	"encoding/json"
	"io"

	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// JSONWriter outputs reports in JSON format for scripts.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteHistory outputs the history as a single JSON document.
func (w *JSONWriter) WriteHistory(h *History) (int, error) {
	return w.writeJSON(h)
}

// checkJSON adds the derived fields of a CheckResult.
type checkJSON struct {
	*CheckResult

	Status      tor.Status `json:"status"`
	SocksResult string     `json:"socksResult"`
	OK          bool       `json:"ok"`
}

// WriteCheck outputs the check result with its derived status.
func (w *JSONWriter) WriteCheck(r *CheckResult) (int, error) {
	return w.writeJSON(checkJSON{
		CheckResult: r,
		Status:      r.Status(),
		SocksResult: r.SocksStatus.String(),
		OK:          r.OK(),
	})
}

// writeJSON marshals v and writes it with a trailing newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
