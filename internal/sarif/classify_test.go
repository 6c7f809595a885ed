package sarif

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nao1215/webql/internal/model"
)

func TestSeverityOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    any
		want   model.Severity
		wantOK bool
	}{
		{"absent", nil, model.SeverityInfo, true},
		{"ten", 10.0, model.SeverityCritical, true},
		{"nine", 9.0, model.SeverityCritical, true},
		{"just below nine", 8.999, model.SeverityHigh, true},
		{"seven", 7.0, model.SeverityHigh, true},
		{"just below seven", 6.999, model.SeverityMedium, true},
		{"four", 4.0, model.SeverityMedium, true},
		{"just below four", 3.999, model.SeverityLow, true},
		{"tiny", 0.001, model.SeverityLow, true},
		{"zero", 0.0, model.SeverityInfo, true},
		{"negative", -1.0, model.SeverityInfo, true},
		{"upper-case label", "HIGH", model.SeverityHigh, true},
		{"lower-case label", "critical", model.SeverityCritical, true},
		{"numeric string", "7.5", model.SeverityHigh, true},
		{"unknown label", "severe", model.SeverityInfo, false},
		{"boolean", true, model.SeverityInfo, false},
		{"object", map[string]any{"score": 9.0}, model.SeverityInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := SeverityOf(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("SeverityOf(%v) = (%s, %v), want (%s, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("empty report has five empty buckets", func(t *testing.T) {
		t.Parallel()
		for _, input := range []string{`{}`, `{"runs": []}`, `{"runs": [{}]}`, `{"runs": [{"results": []}]}`} {
			report, err := Classify([]byte(input))
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", input, err)
			}
			for _, sev := range model.Buckets() {
				if report.Findings(sev) == nil || report.Count(sev) != 0 {
					t.Errorf("%s: bucket %s should be present and empty", input, sev)
				}
			}
		}
	})

	t.Run("missing location uses defaults", func(t *testing.T) {
		t.Parallel()
		report, err := Classify([]byte(`{"runs": [{"results": [{}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		findings := report.Findings(model.SeverityInfo)
		if len(findings) != 1 {
			t.Fatalf("expected one info finding, got %d", len(findings))
		}
		f := findings[0]
		if f.Location != "Unknown (:LUnknown)" {
			t.Errorf("location = %q", f.Location)
		}
		if f.RuleID != "Unknown" || f.Message != "No message" {
			t.Errorf("unexpected defaults: %+v", f)
		}
	})

	t.Run("string severity passes through", func(t *testing.T) {
		t.Parallel()
		report, err := Classify([]byte(`{"runs": [{"results": [{"ruleId": "js/x", "properties": {"security-severity": "HIGH"}}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Count(model.SeverityHigh) != 1 || report.Total() != 1 {
			t.Errorf("expected one high finding, got %d", report.Count(model.SeverityHigh))
		}
	})

	t.Run("null severity is info without warning", func(t *testing.T) {
		t.Parallel()
		report, err := Classify([]byte(`{"runs": [{"results": [{"properties": {"security-severity": null}}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Count(model.SeverityInfo) != 1 || len(report.Warnings) != 0 {
			t.Errorf("unexpected result: info=%d warnings=%v", report.Count(model.SeverityInfo), report.Warnings)
		}
	})

	t.Run("unknown label is info with a warning", func(t *testing.T) {
		t.Parallel()
		report, err := Classify([]byte(`{"runs": [{"results": [{"ruleId": "js/y", "properties": {"security-severity": "severe"}}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Count(model.SeverityInfo) != 1 || len(report.Warnings) != 1 {
			t.Errorf("unexpected result: info=%d warnings=%v", report.Count(model.SeverityInfo), report.Warnings)
		}
	})

	t.Run("only the first run is read", func(t *testing.T) {
		t.Parallel()
		report, err := Classify([]byte(`{"runs": [{"results": [{"ruleId": "a"}]}, {"results": [{"ruleId": "b"}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Total() != 1 || report.All()[0].RuleID != "a" {
			t.Errorf("unexpected findings: %+v", report.All())
		}
	})

	t.Run("explicit zero line differs from a missing line", func(t *testing.T) {
		t.Parallel()
		report, err := Classify([]byte(`{"runs": [{"results": [
			{"ruleId": "a", "locations": [{"physicalLocation": {"artifactLocation": {"uri": "app.js"}, "region": {"startLine": 0}}}]},
			{"ruleId": "b", "locations": [{"physicalLocation": {"artifactLocation": {"uri": "app.js"}, "region": {}}}]}
		]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		all := report.All()
		if len(all) != 2 {
			t.Fatalf("expected 2 findings, got %d", len(all))
		}
		if all[0].Location != "app.js (:L0)" || all[0].Line == nil || *all[0].Line != 0 {
			t.Errorf("explicit zero line: got %q", all[0].Location)
		}
		if all[1].Location != "app.js (:LUnknown)" || all[1].Line != nil {
			t.Errorf("missing line: got %q", all[1].Location)
		}
	})

	t.Run("invalid input is an error", func(t *testing.T) {
		t.Parallel()
		for _, input := range []string{``, `null`, ` null `, `"runs"`, `42`, `{"runs": [`, `[]`, `{"runs": {}}`, `{"runs": [{"results": [{"ruleId": 5}]}]}`} {
			report, err := Classify([]byte(input))
			if !errors.Is(err, ErrInvalidReport) {
				t.Errorf("%q: expected ErrInvalidReport, got %v", input, err)
			}
			if report != nil {
				t.Errorf("%q: expected no partial result", input)
			}
		}
	})
}

func TestClassifyFile(t *testing.T) {
	t.Parallel()

	report, err := ClassifyFile(filepath.Join("testdata", "codeql.sarif"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		sev      model.Severity
		ruleID   string
		location string
	}{
		{model.SeverityCritical, "js/code-injection", "file:///work/out/site_example_20250101_120000/site_example_app.js (:L7)"},
		{model.SeverityHigh, "js/insecure-randomness", "file:///work/out/site_example_20250101_120000/site_example_vendor.js (:LUnknown)"},
		{model.SeverityMedium, "js/xss-through-dom", "file:///work/out/site_example_20250101_120000/site_example_main.js (:L42)"},
		{model.SeverityInfo, "js/unused-local-variable", "file:///work/out/site_example_20250101_120000/site_example_app.js (:L3)"},
	}
	for _, tt := range tests {
		findings := report.Findings(tt.sev)
		if len(findings) != 1 {
			t.Errorf("%s: expected 1 finding, got %d", tt.sev, len(findings))
			continue
		}
		if findings[0].RuleID != tt.ruleID || findings[0].Location != tt.location {
			t.Errorf("%s: got %s at %s", tt.sev, findings[0].RuleID, findings[0].Location)
		}
	}
	if report.Count(model.SeverityLow) != 0 {
		t.Error("low bucket should be empty")
	}

	if _, err := ClassifyFile(filepath.Join("testdata", "missing.sarif")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestJoinURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base, ref, want string
	}{
		{"", "src/app.js", "src/app.js"},
		{"file:///work/", "src/app.js", "file:///work/src/app.js"},
		{"file:///work/", "https://cdn.example/lib.js", "https://cdn.example/lib.js"},
		{"file:///work/", "Unknown", "file:///work/Unknown"},
	}
	for _, tt := range tests {
		if got := joinURI(tt.base, tt.ref); got != tt.want {
			t.Errorf("joinURI(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}
