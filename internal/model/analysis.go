package model

import "time"

// AnalysisReport accumulates the results of a full analysis of one target.
// Pipeline steps read what earlier steps produced and fill in their own fields.
type AnalysisReport struct {
	// Target is the seed URL or local path being analyzed.
	Target string `json:"target"`

	// OutputDir is where harvested files, the CodeQL database and reports are written.
	OutputDir string `json:"output_dir"`

	// StartedAt is when the analysis began.
	StartedAt time.Time `json:"started_at"`

	// Crawl is the traversal summary, set by the crawl step.
	Crawl *CrawlSummary `json:"crawl,omitempty"`

	// Assets lists every file persisted during the crawl.
	Assets []StoredAsset `json:"assets,omitempty"`

	// Beautified is the number of scripts reformatted before database creation.
	Beautified int `json:"beautified"`

	// DatabasePath is the CodeQL database directory, set once it was created.
	DatabasePath string `json:"database_path,omitempty"`

	// SARIFPath is the analysis output, set once the query suite ran.
	SARIFPath string `json:"sarif_path,omitempty"`

	// Findings is the classified SARIF report.
	Findings *ClassifiedReport `json:"findings,omitempty"`

	// SecretsPath is the trufflehog NDJSON output, set once the scan ran.
	SecretsPath string `json:"secrets_path,omitempty"`

	// SecretsFound is the number of secrets trufflehog reported.
	SecretsFound int `json:"secrets_found"`

	// PerformedSteps lists the names of steps that ran, in order.
	PerformedSteps []string `json:"performed_steps"`

	// StepErrors maps a failed step name to its error message.
	StepErrors map[string]string `json:"step_errors,omitempty"`

	// TimedOut is set when the context was cancelled mid-pipeline.
	TimedOut bool `json:"timed_out"`
}

// NewAnalysisReport creates a report for a target and output directory.
func NewAnalysisReport(target, outputDir string) *AnalysisReport {
	return &AnalysisReport{
		Target:         target,
		OutputDir:      outputDir,
		StartedAt:      time.Now(),
		PerformedSteps: make([]string, 0),
		StepErrors:     make(map[string]string),
	}
}

// RecordError stores a step failure.
func (r *AnalysisReport) RecordError(step string, err error) {
	if err == nil {
		return
	}
	if r.StepErrors == nil {
		r.StepErrors = make(map[string]string)
	}
	r.StepErrors[step] = err.Error()
}

// Failed reports whether any step recorded an error.
func (r *AnalysisReport) Failed() bool {
	return len(r.StepErrors) > 0
}
