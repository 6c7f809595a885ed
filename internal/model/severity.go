package model

import (
	"fmt"
	"strings"
)

// Severity is the bucket a finding is classified into.
// Values are ordered so that a higher value is more severe.
type Severity int

const (
	// SeverityInfo is the default bucket for findings without a usable severity.
	SeverityInfo Severity = iota

	// SeverityLow holds findings with a positive score below 4.0.
	SeverityLow

	// SeverityMedium holds findings scored 4.0 up to (but excluding) 7.0.
	SeverityMedium

	// SeverityHigh holds findings scored 7.0 up to (but excluding) 9.0.
	SeverityHigh

	// SeverityCritical holds findings scored 9.0 and above.
	SeverityCritical
)

// Score thresholds. Each tier includes its lower bound.
const (
	CriticalThreshold = 9.0
	HighThreshold     = 7.0
	MediumThreshold   = 4.0
)

// Buckets returns every severity in report order, most severe first.
func Buckets() []Severity {
	return []Severity{
		SeverityCritical,
		SeverityHigh,
		SeverityMedium,
		SeverityLow,
		SeverityInfo,
	}
}

// String returns the lower-case bucket key used in reports.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so severities can be used as JSON map keys.
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityInfo || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(text))
	}
	*s = parsed
	return nil
}

// ParseSeverity maps a severity label to its bucket, ignoring case and
// surrounding whitespace. The second return value is false for labels that
// are not one of the five bucket names.
func ParseSeverity(label string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical":
		return SeverityCritical, true
	case "high":
		return SeverityHigh, true
	case "medium":
		return SeverityMedium, true
	case "low":
		return SeverityLow, true
	case "info":
		return SeverityInfo, true
	default:
		return SeverityInfo, false
	}
}

// SeverityFromScore maps a numeric score (CVSS-like, 0.0-10.0) to its bucket.
// A score of exactly zero, or any negative score, is informational.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= CriticalThreshold:
		return SeverityCritical
	case score >= HighThreshold:
		return SeverityHigh
	case score >= MediumThreshold:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityInfo
	}
}
