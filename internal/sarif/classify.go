package sarif

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/webql/internal/model"
)

// noMessage is used for results without message text.
const noMessage = "No message"

// Classify decodes a SARIF log and groups the results of its first run by
// severity. A log without runs or results yields five empty buckets.
func Classify(data []byte) (*model.ClassifiedReport, error) {
	l, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return ClassifyLog(l), nil
}

// ClassifyFile classifies the SARIF log at path.
func ClassifyFile(path string) (*model.ClassifiedReport, error) {
	l, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return ClassifyLog(l), nil
}

// ClassifyLog groups the results of the first run by severity, keeping
// their order within each bucket.
func ClassifyLog(l *Log) *model.ClassifiedReport {
	report := model.NewClassifiedReport()
	if l == nil || len(l.Runs) == 0 {
		return report
	}

	run := l.Runs[0]
	base := run.sourceRoot()

	for i, result := range run.Results {
		raw := result.Properties[SeverityProperty]
		sev, ok := SeverityOf(raw)
		if !ok {
			report.Warn("result %d (%s): unrecognized %s %s, classified as info",
				i, ruleID(result), SeverityProperty, describe(raw))
		}

		file, line := location(result, base)
		report.Add(model.Finding{
			RuleID:      ruleID(result),
			Message:     message(result),
			RawSeverity: raw,
			Severity:    sev,
			FilePath:    file,
			Line:        line,
			Location:    model.FormatLocation(file, line),
		})
	}
	return report
}

// SeverityOf maps a decoded security-severity value to a bucket.
//   - nil (absent or null) is info
//   - a number is bucketed by score
//   - a string naming a bucket selects it, ignoring case
//   - a string holding a number is bucketed by score
//
// Anything else is info and reported as unrecognized by the false return.
func SeverityOf(raw any) (model.Severity, bool) {
	switch v := raw.(type) {
	case nil:
		return model.SeverityInfo, true
	case float64:
		return model.SeverityFromScore(v), true
	case int:
		return model.SeverityFromScore(float64(v)), true
	case string:
		if sev, ok := model.ParseSeverity(v); ok {
			return sev, true
		}
		if score, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return model.SeverityFromScore(score), true
		}
		return model.SeverityInfo, false
	default:
		return model.SeverityInfo, false
	}
}

func ruleID(r Result) string {
	if r.RuleID == "" {
		return model.UnknownValue
	}
	return r.RuleID
}

func message(r Result) string {
	if r.Message.Text == "" {
		return noMessage
	}
	return r.Message.Text
}

// location resolves the first location of a result against base.
func location(r Result, base string) (string, *int) {
	uri := model.UnknownValue
	var line *int

	if len(r.Locations) > 0 && r.Locations[0].PhysicalLocation != nil {
		pl := r.Locations[0].PhysicalLocation
		if pl.ArtifactLocation != nil && pl.ArtifactLocation.URI != "" {
			uri = pl.ArtifactLocation.URI
		}
		if pl.Region != nil && pl.Region.StartLine != nil {
			n := *pl.Region.StartLine
			line = &n
		}
	}
	return joinURI(base, uri), line
}

// joinURI resolves ref against base. An empty base, or an absolute ref,
// returns ref unchanged.
func joinURI(base, ref string) string {
	if base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func describe(raw any) string {
	if s, ok := raw.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v (%T)", raw, raw)
}
