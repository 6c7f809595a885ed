package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/webql/internal/model"
)

const (
	ruleWidth     = 40
	messageWidth  = 60
	locationWidth = 60
	lineWidth     = 70
	timeLayout    = "2006-01-02 15:04:05 MST"
)

// SimpleWriter outputs human-readable text reports for the terminal.
// Findings are laid out as an aligned table of severity, rule, message and
// location. Colors are off unless enabled with WithColor.
type SimpleWriter struct {
	baseWriter

	// colored enables ANSI colors for severity labels and status lines.
	colored bool

	// verbose adds failed URLs and classification warnings.
	verbose bool

	palette map[model.Severity]*color.Color
	good    *color.Color
	bad     *color.Color
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithColor enables or disables ANSI colors.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.colored = enabled
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
		palette: map[model.Severity]*color.Color{
			model.SeverityCritical: color.New(color.FgHiRed, color.Bold),
			model.SeverityHigh:     color.New(color.FgRed),
			model.SeverityMedium:   color.New(color.FgYellow),
			model.SeverityLow:      color.New(color.FgCyan),
			model.SeverityInfo:     color.New(color.FgWhite),
		},
		good: color.New(color.FgGreen, color.Bold),
		bad:  color.New(color.FgRed, color.Bold),
	}

	for _, opt := range opts {
		opt(w)
	}

	for _, c := range w.colors() {
		if w.colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return w
}

func (w *SimpleWriter) colors() []*color.Color {
	all := []*color.Color{w.good, w.bad}
	for _, sev := range model.Buckets() {
		all = append(all, w.palette[sev])
	}
	return all
}

// WriteFindings outputs a classified report as a table grouped by severity.
func (w *SimpleWriter) WriteFindings(report *model.ClassifiedReport) (int, error) {
	var sb strings.Builder
	w.writeBanner(&sb, "VULNERABILITY RESULTS")
	w.writeFindingsBody(&sb, findingsOrEmpty(report))
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteCrawl outputs the crawl counters and per-mechanism reference counts.
func (w *SimpleWriter) WriteCrawl(summary *model.CrawlSummary) (int, error) {
	var sb strings.Builder
	w.writeBanner(&sb, "CRAWL SUMMARY")
	w.writeCrawlBody(&sb, summary)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteAnalysis outputs every section of a full analysis run.
func (w *SimpleWriter) WriteAnalysis(report *model.AnalysisReport) (int, error) {
	var sb strings.Builder
	w.writeBanner(&sb, "WEBQL ANALYSIS REPORT")

	sb.WriteString(fmt.Sprintf("Target:         %s\n", report.Target))
	sb.WriteString(fmt.Sprintf("Output Dir:     %s\n", report.OutputDir))
	sb.WriteString(fmt.Sprintf("Started:        %s\n", report.StartedAt.Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("Steps:          %s\n", strings.Join(report.PerformedSteps, " -> ")))
	sb.WriteString("Status:         " + w.analysisStatus(report) + "\n\n")

	w.writeSection(&sb, "ARTIFACTS")
	sb.WriteString(fmt.Sprintf("  Assets:       %d\n", len(report.Assets)))
	sb.WriteString(fmt.Sprintf("  Beautified:   %d\n", report.Beautified))
	sb.WriteString(fmt.Sprintf("  Database:     %s\n", orDash(report.DatabasePath)))
	sb.WriteString(fmt.Sprintf("  SARIF:        %s\n", orDash(report.SARIFPath)))
	if report.SecretsPath != "" {
		sb.WriteString(fmt.Sprintf("  Secrets:      %s (%d found)\n", report.SecretsPath, report.SecretsFound))
	}
	sb.WriteString("\n")

	if len(report.StepErrors) > 0 {
		w.writeSection(&sb, "ERRORS")
		for _, step := range slices.Sorted(maps.Keys(report.StepErrors)) {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", step, report.StepErrors[step]))
		}
		sb.WriteString("\n")
	}

	if report.Crawl != nil {
		w.writeSection(&sb, "CRAWL")
		w.writeCrawlBody(&sb, report.Crawl)
	}

	if report.Findings != nil {
		w.writeSection(&sb, "FINDINGS")
		w.writeFindingsBody(&sb, report.Findings)
	}

	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) analysisStatus(report *model.AnalysisReport) string {
	switch {
	case report.TimedOut:
		return w.bad.Sprint("TIMED OUT (partial results)")
	case report.Failed():
		return w.bad.Sprintf("FAILED (%d step error(s))", len(report.StepErrors))
	default:
		return w.good.Sprint("Complete")
	}
}

func (w *SimpleWriter) writeFindingsBody(sb *strings.Builder, report *model.ClassifiedReport) {
	title := cases.Title(language.English)

	for _, sev := range model.Buckets() {
		label := fmt.Sprintf("%-9s", title.String(sev.String())+":")
		sb.WriteString(fmt.Sprintf("  %s %d\n", w.palette[sev].Sprint(label), report.Count(sev)))
	}
	sb.WriteString(fmt.Sprintf("  %-9s %d findings\n\n", "Total:", report.Total()))

	if report.Total() == 0 {
		sb.WriteString(w.good.Sprint("  No vulnerabilities found.") + "\n\n")
	} else {
		w.writeFindingsTable(sb, report, title)
	}

	if len(report.Warnings) > 0 && w.verbose {
		sb.WriteString("Warnings:\n")
		for _, warning := range report.Warnings {
			sb.WriteString("  - " + warning + "\n")
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeFindingsTable(sb *strings.Builder, report *model.ClassifiedReport, title cases.Caser) {
	header := []string{"Rule ID", "Message", "Location"}
	limits := []int{ruleWidth, messageWidth, locationWidth}
	widths := []int{len(header[0]), len(header[1]), len(header[2])}

	type row struct {
		sev   model.Severity
		cells []string
	}
	var rows []row
	for _, sev := range model.Buckets() {
		for _, f := range report.Findings(sev) {
			cells := []string{f.RuleID, f.Message, f.Location}
			for i := range cells {
				cells[i] = truncateString(strings.Join(strings.Fields(cells[i]), " "), limits[i])
				widths[i] = max(widths[i], len([]rune(cells[i])))
			}
			rows = append(rows, row{sev: sev, cells: cells})
		}
	}

	sb.WriteString(fmt.Sprintf("  %-9s %s\n", "Severity", padCells(header, widths)))
	sb.WriteString("  " + strings.Repeat("-", 9+1+sum(widths)+2*(len(widths)-1)) + "\n")
	for _, r := range rows {
		label := fmt.Sprintf("%-9s", title.String(r.sev.String()))
		sb.WriteString(fmt.Sprintf("  %s %s\n", w.palette[r.sev].Sprint(label), padCells(r.cells, widths)))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCrawlBody(sb *strings.Builder, summary *model.CrawlSummary) {
	sb.WriteString(fmt.Sprintf("  Seeds:        %s\n", strings.Join(summary.Seeds, ", ")))
	sb.WriteString(fmt.Sprintf("  Visited:      %d\n", summary.Visited))
	sb.WriteString(fmt.Sprintf("  Fetched:      %d\n", summary.Fetched))
	sb.WriteString(fmt.Sprintf("  Failed:       %d\n", summary.Failed))
	sb.WriteString(fmt.Sprintf("  Skipped:      %d\n", summary.Skipped))
	sb.WriteString(fmt.Sprintf("  Persisted:    %d\n", summary.Persisted))
	sb.WriteString(fmt.Sprintf("  Duration:     %s\n", summary.Duration().Round(time.Millisecond)))
	if summary.Truncated {
		sb.WriteString("  " + w.bad.Sprint("URL limit reached, crawl truncated") + "\n")
	}
	sb.WriteString("\n")

	if len(summary.References) > 0 {
		sb.WriteString("  References by mechanism:\n")
		for _, mechanism := range slices.Sorted(maps.Keys(summary.References)) {
			sb.WriteString(fmt.Sprintf("    %-16s %d\n", mechanism, summary.References[mechanism]))
		}
		sb.WriteString("\n")
	}

	if len(summary.FailedURLs) > 0 && w.verbose {
		sb.WriteString("  Failed URLs:\n")
		for _, u := range summary.FailedURLs {
			sb.WriteString("    [-] " + u + "\n")
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n")
	pad := max((lineWidth-len(title))/2, 0)
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", lineWidth))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", lineWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webql\n")
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n")
}

// padCells left-aligns each cell to its column width, separated by two spaces.
// The last column is not padded.
func padCells(cells []string, widths []int) string {
	var sb strings.Builder
	for i, cell := range cells {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(cell)
		if i < len(cells)-1 {
			sb.WriteString(strings.Repeat(" ", widths[i]-len([]rune(cell))))
		}
	}
	return sb.String()
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
