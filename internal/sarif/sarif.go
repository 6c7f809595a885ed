// Package sarif decodes the subset of SARIF 2.1.0 produced by CodeQL and
// classifies its results into severity buckets.
package sarif

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInvalidReport is returned for input that is not a well-formed SARIF log.
var ErrInvalidReport = errors.New("invalid SARIF report")

// SeverityProperty is the result property CodeQL uses for CVSS-like scores.
const SeverityProperty = "security-severity"

// Log is the top-level SARIF object.
type Log struct {
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run is one analysis run.
type Run struct {
	Results            []Result                    `json:"results"`
	OriginalURIBaseIDs map[string]ArtifactLocation `json:"originalUriBaseIds"`
}

// Result is one finding.
type Result struct {
	RuleID     string         `json:"ruleId"`
	Message    Message        `json:"message"`
	Locations  []Location     `json:"locations"`
	Properties map[string]any `json:"properties"`
}

// Message carries the human-readable result text.
type Message struct {
	Text string `json:"text"`
}

// Location wraps a physical location.
type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation names a file and a region in it.
type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation"`
	Region           *Region           `json:"region"`
}

// ArtifactLocation is a URI, possibly relative to a base id.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region is a span in an artifact. Only the start line is used; it is nil
// when the region does not carry one.
type Region struct {
	StartLine *int `json:"startLine"`
}

// Decode reads a SARIF log. Syntax errors and values of the wrong JSON type
// are reported as ErrInvalidReport.
func Decode(r io.Reader) (*Log, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read SARIF: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidReport)
	}
	// null and other non-object values would otherwise decode to an empty log.
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrInvalidReport)
	}

	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	return &l, nil
}

// DecodeFile reads a SARIF log from disk.
func DecodeFile(path string) (*Log, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// sourceRoot returns the SRCROOT base URI of the run, or "".
func (r *Run) sourceRoot() string {
	if r.OriginalURIBaseIDs == nil {
		return ""
	}
	return r.OriginalURIBaseIDs["SRCROOT"].URI
}
