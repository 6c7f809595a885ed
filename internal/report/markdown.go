package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/webql/internal/model"
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

var severityEmoji = map[model.Severity]string{
	model.SeverityCritical: "🔴",
	model.SeverityHigh:     "🟠",
	model.SeverityMedium:   "🟡",
	model.SeverityLow:      "🔵",
	model.SeverityInfo:     "⚪",
}

// WriteFindings outputs a classified report with a summary table, a chart
// and one findings table per non-empty severity.
func (w *MarkdownWriter) WriteFindings(report *model.ClassifiedReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Vulnerability Results")
	md.PlainText("")
	w.writeFindings(md, findingsOrEmpty(report))
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteCrawl outputs crawl counters and reference counts as tables.
func (w *MarkdownWriter) WriteCrawl(summary *model.CrawlSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Crawl Summary")
	md.PlainText("")
	w.writeCrawl(md, summary)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteAnalysis outputs a full analysis run.
func (w *MarkdownWriter) WriteAnalysis(report *model.AnalysisReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("WebQL Analysis Report")
	md.PlainText("")

	rows := [][]string{
		{"Target", "`" + report.Target + "`"},
		{"Output Directory", "`" + report.OutputDir + "`"},
		{"Started", report.StartedAt.Format(timeLayout)},
		{"Steps", strings.Join(report.PerformedSteps, " → ")},
		{"Status", analysisStatusText(report)},
		{"Assets", strconv.Itoa(len(report.Assets))},
		{"Beautified", strconv.Itoa(report.Beautified)},
		{"Database", orDash(report.DatabasePath)},
		{"SARIF", orDash(report.SARIFPath)},
	}
	if report.SecretsPath != "" {
		rows = append(rows, []string{"Secrets", fmt.Sprintf("%s (%d found)", report.SecretsPath, report.SecretsFound)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(report.StepErrors) > 0 {
		md.H2("Errors")
		md.PlainText("")
		errs := make([]string, 0, len(report.StepErrors))
		for _, step := range slices.Sorted(maps.Keys(report.StepErrors)) {
			errs = append(errs, fmt.Sprintf("**%s**: %s", step, report.StepErrors[step]))
		}
		md.BulletList(errs...)
		md.PlainText("")
	}

	if report.Crawl != nil {
		md.H2("Crawl")
		md.PlainText("")
		w.writeCrawl(md, report.Crawl)
	}

	if report.Findings != nil {
		md.H2("Findings")
		md.PlainText("")
		w.writeFindings(md, report.Findings)
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func analysisStatusText(report *model.AnalysisReport) string {
	switch {
	case report.TimedOut:
		return "⚠️ Timed Out (partial results)"
	case report.Failed():
		return fmt.Sprintf("❌ Failed (%d step error(s))", len(report.StepErrors))
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeCrawl(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Seeds", strings.Join(summary.Seeds, "<br>")},
			{"Visited", strconv.Itoa(summary.Visited)},
			{"Fetched", strconv.Itoa(summary.Fetched)},
			{"Failed", strconv.Itoa(summary.Failed)},
			{"Skipped", strconv.Itoa(summary.Skipped)},
			{"Persisted", strconv.Itoa(summary.Persisted)},
			{"Duration", summary.Duration().String()},
		},
	})
	md.PlainText("")

	if summary.Truncated {
		md.Warningf("The URL limit was reached; some references were not followed.")
		md.PlainText("")
	}

	if len(summary.References) > 0 {
		rows := make([][]string, 0, len(summary.References))
		for _, mechanism := range slices.Sorted(maps.Keys(summary.References)) {
			rows = append(rows, []string{mechanism, strconv.Itoa(summary.References[mechanism])})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Mechanism", "References"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(summary.FailedURLs) > 0 {
		md.Details("Failed URLs", strings.Join(summary.FailedURLs, "\n"))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.ClassifiedReport) {
	title := cases.Title(language.English)

	rows := make([][]string, 0, len(model.Buckets())+1)
	for _, sev := range model.Buckets() {
		rows = append(rows, []string{severityEmoji[sev] + " " + title.String(sev.String()), strconv.Itoa(report.Count(sev))})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(report.Total()) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if report.Total() > 0 {
		w.writePieChart(md, report, title)
	}
	w.writeAlert(md, report)

	for _, sev := range model.Buckets() {
		findings := report.Findings(sev)
		if len(findings) == 0 {
			continue
		}
		md.PlainText("### " + severityEmoji[sev] + " " + title.String(sev.String()))
		md.PlainText("")
		w.writeFindingsTable(md, findings)
	}

	if len(report.Warnings) > 0 {
		md.Details("Classification warnings", strings.Join(report.Warnings, "\n"))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.ClassifiedReport, title cases.Caser) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Finding Severity Distribution"),
		piechart.WithShowData(true),
	)
	for _, sev := range model.Buckets() {
		if n := report.Count(sev); n > 0 {
			chart.LabelAndIntValue(title.String(sev.String()), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ClassifiedReport) {
	switch {
	case report.Count(model.SeverityCritical) > 0:
		md.Cautionf(
			"Critical vulnerabilities detected! %d critical finding(s) require immediate attention.",
			report.Count(model.SeverityCritical),
		)
	case report.Count(model.SeverityHigh) > 0:
		md.Warningf(
			"High severity vulnerabilities detected. %d finding(s) should be addressed.",
			report.Count(model.SeverityHigh),
		)
	case report.Count(model.SeverityMedium) > 0:
		md.Importantf(
			"Medium severity issues found. %d finding(s) should be reviewed.",
			report.Count(model.SeverityMedium),
		)
	case report.Total() > 0:
		md.Note("Only low severity and informational findings detected.")
	default:
		md.Tip("No vulnerabilities found.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindingsTable(md *markdown.Markdown, findings []model.Finding) {
	rows := make([][]string, len(findings))
	for i, f := range findings {
		rows[i] = []string{
			"`" + f.RuleID + "`",
			escapeCell(truncateString(f.Message, messageWidth)),
			escapeCell(truncateString(f.Location, locationWidth)),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Rule ID", "Message", "Location"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by webql*")
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
