package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/webql/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
// Findings are written as an object keyed by severity bucket.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
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

// WriteFindings outputs the bucketed findings.
func (w *JSONWriter) WriteFindings(report *model.ClassifiedReport) (int, error) {
	return w.writeJSON(findingsOrEmpty(report))
}

// WriteCrawl outputs the crawl summary.
func (w *JSONWriter) WriteCrawl(summary *model.CrawlSummary) (int, error) {
	return w.writeJSON(summary)
}

// WriteAnalysis outputs the full analysis report.
func (w *JSONWriter) WriteAnalysis(report *model.AnalysisReport) (int, error) {
	return w.writeJSON(report)
}

// writeJSON marshals the given value to JSON and writes it with a trailing newline.
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
