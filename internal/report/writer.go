package report

import (
	"io"

	"github.com/nao1215/webql/internal/model"
)

// Writer renders analysis results to an output destination.
// Each method returns the number of bytes written.
type Writer interface {
	// WriteFindings renders a classified vulnerability report.
	WriteFindings(report *model.ClassifiedReport) (int, error)

	// WriteCrawl renders the summary of an asset-discovery traversal.
	WriteCrawl(summary *model.CrawlSummary) (int, error)

	// WriteAnalysis renders the outcome of a full analysis run.
	WriteAnalysis(report *model.AnalysisReport) (int, error)
}

// MultiWriter fans a report out to several Writers, for example the
// terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteFindings writes to every Writer and stops on the first error.
func (m *MultiWriter) WriteFindings(report *model.ClassifiedReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteFindings(report) })
}

// WriteCrawl writes to every Writer and stops on the first error.
func (m *MultiWriter) WriteCrawl(summary *model.CrawlSummary) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteCrawl(summary) })
}

// WriteAnalysis writes to every Writer and stops on the first error.
func (m *MultiWriter) WriteAnalysis(report *model.AnalysisReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteAnalysis(report) })
}

func (m *MultiWriter) each(write func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := write(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// findingsOrEmpty substitutes an empty report for nil so writers never
// have to special-case a missing classification.
func findingsOrEmpty(report *model.ClassifiedReport) *model.ClassifiedReport {
	if report == nil {
		return model.NewClassifiedReport()
	}
	return report
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
