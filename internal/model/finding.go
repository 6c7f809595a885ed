package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UnknownValue is the placeholder used when a finding lacks a rule ID,
// an artifact URI or a line number.
const UnknownValue = "Unknown"

// Finding is one result of a structured vulnerability report.
type Finding struct {
	// RuleID identifies the query or rule that produced the finding.
	RuleID string `json:"rule_id"`

	// Message is the human-readable result message.
	Message string `json:"message"`

	// RawSeverity is the severity property as it appeared in the report.
	// It is nil when the report carried no severity.
	RawSeverity any `json:"raw_severity,omitempty"`

	// Severity is the bucket the finding was classified into.
	Severity Severity `json:"severity"`

	// FilePath is the resolved artifact URL, or "Unknown".
	FilePath string `json:"file_path"`

	// Line is the start line, or nil when the report did not carry one.
	Line *int `json:"line,omitempty"`

	// Location is the formatted "<file> (:L<line>)" string.
	Location string `json:"location"`
}

// FormatLocation renders a file and line as "<file> (:L<line>)".
// A nil line is rendered as "Unknown".
func FormatLocation(file string, line *int) string {
	lineText := UnknownValue
	if line != nil {
		lineText = strconv.Itoa(*line)
	}
	return fmt.Sprintf("%s (:L%s)", file, lineText)
}

// ClassifiedReport groups findings by severity bucket.
// Every bucket is always present; findings keep the order of the source report.
type ClassifiedReport struct {
	buckets map[Severity][]Finding

	// Warnings lists non-fatal classification problems, such as unknown severity labels.
	Warnings []string
}

// NewClassifiedReport returns a report with five empty buckets.
func NewClassifiedReport() *ClassifiedReport {
	buckets := make(map[Severity][]Finding, len(Buckets()))
	for _, sev := range Buckets() {
		buckets[sev] = []Finding{}
	}
	return &ClassifiedReport{buckets: buckets}
}

// Add appends a finding to the bucket named by its Severity.
func (r *ClassifiedReport) Add(f Finding) {
	r.buckets[f.Severity] = append(r.buckets[f.Severity], f)
}

// Warn records a non-fatal classification problem.
func (r *ClassifiedReport) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Findings returns the findings of one bucket in source order.
func (r *ClassifiedReport) Findings(sev Severity) []Finding {
	return r.buckets[sev]
}

// Count returns the number of findings in one bucket.
func (r *ClassifiedReport) Count(sev Severity) int {
	return len(r.buckets[sev])
}

// Total returns the number of findings across all buckets.
func (r *ClassifiedReport) Total() int {
	total := 0
	for _, findings := range r.buckets {
		total += len(findings)
	}
	return total
}

// All returns every finding, most severe bucket first.
func (r *ClassifiedReport) All() []Finding {
	all := make([]Finding, 0, r.Total())
	for _, sev := range Buckets() {
		all = append(all, r.buckets[sev]...)
	}
	return all
}

// MarshalJSON renders the report as an object keyed by bucket name.
func (r *ClassifiedReport) MarshalJSON() ([]byte, error) {
	out := make(map[Severity][]Finding, len(Buckets()))
	for _, sev := range Buckets() {
		out[sev] = r.buckets[sev]
	}
	return json.Marshal(out)
}
