package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nao1215/webql/internal/crawler"
	"github.com/nao1215/webql/internal/model"
)

const testSARIF = `{
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "CodeQL"}},
    "results": [
      {
        "ruleId": "js/code-injection",
        "message": {"text": "Code injection."},
        "locations": [{"physicalLocation": {"artifactLocation": {"uri": "app.js"}, "region": {"startLine": 7}}}],
        "properties": {"security-severity": "9.3"}
      },
      {
        "ruleId": "js/unused-local-variable",
        "message": {"text": "Unused variable x."},
        "locations": [{"physicalLocation": {"artifactLocation": {"uri": "app.js"}, "region": {"startLine": 3}}}]
      }
    ]
  }]
}`

const testSecrets = `{"DetectorName":"AWS","Verified":false,"Raw":"AKIAxxxx","SourceMetadata":{"Data":{"Filesystem":{"file":"app.js","line":4}}}}
not json
{"DetectorName":"Github","Verified":true,"Raw":"ghp_xxxx"}
`

type fakeCrawler struct {
	seeds   []string
	summary *model.CrawlSummary
	err     error
}

func (f *fakeCrawler) Crawl(_ context.Context, seeds []string, _ crawler.Sink) (*model.CrawlSummary, error) {
	f.seeds = seeds
	if f.summary == nil {
		f.summary = model.NewCrawlSummary(seeds)
	}
	return f.summary, f.err
}

type fakeAssets []model.StoredAsset

func (f fakeAssets) Assets() []model.StoredAsset { return f }

type fakeBeautifier struct {
	dir string
	n   int
}

func (f *fakeBeautifier) BeautifyDir(_ context.Context, dir string) (int, error) {
	f.dir = dir
	return f.n, nil
}

type fakeCodeQL struct {
	sourceRoot string
	dbPath     string
	suite      string
	createErr  error
	sarif      string
}

func (f *fakeCodeQL) CreateDatabase(_ context.Context, sourceRoot, dbPath string, _ bool) error {
	f.sourceRoot = sourceRoot
	f.dbPath = dbPath
	if f.createErr != nil {
		return f.createErr
	}
	return os.MkdirAll(dbPath, 0o750)
}

func (f *fakeCodeQL) AnalyzeDatabase(_ context.Context, _ string, querySuite, outputFile string) error {
	f.suite = querySuite
	body := f.sarif
	if body == "" {
		body = testSARIF
	}
	return os.WriteFile(outputFile, []byte(body), 0o600)
}

type fakeTrufflehog struct {
	dir string
}

func (f *fakeTrufflehog) ScanFilesystem(_ context.Context, dir, outputFile string) error {
	f.dir = dir
	return os.WriteFile(outputFile, []byte(testSecrets), 0o600)
}

func writeScript(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("var x = 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("uses target as seed", func(t *testing.T) {
		t.Parallel()

		c := &fakeCrawler{}
		assets := fakeAssets{{URL: "https://example.com/app.js", Path: "/out/app.js"}}
		step := NewCrawlStep(c, assets, nil, nil)
		report := model.NewAnalysisReport("https://example.com/", "")

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if !slices.Equal(c.seeds, []string{"https://example.com/"}) {
			t.Errorf("seeds = %v", c.seeds)
		}
		if report.Crawl == nil || len(report.Assets) != 1 {
			t.Errorf("report not filled: crawl=%v assets=%v", report.Crawl, report.Assets)
		}
	})

	t.Run("explicit seeds win", func(t *testing.T) {
		t.Parallel()

		c := &fakeCrawler{}
		seeds := []string{"https://a.example/", "https://b.example/"}
		step := NewCrawlStep(c, nil, seeds, nil)
		if err := step.Do(context.Background(), model.NewAnalysisReport("ignored", "")); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if !slices.Equal(c.seeds, seeds) {
			t.Errorf("seeds = %v, want %v", c.seeds, seeds)
		}
	})

	t.Run("local directory expands to file seeds", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeScript(t, dir)

		c := &fakeCrawler{}
		step := NewCrawlStep(c, nil, nil, nil)
		if err := step.Do(context.Background(), model.NewAnalysisReport(dir, "")); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if len(c.seeds) != 1 {
			t.Fatalf("expected 1 seed, got %v", c.seeds)
		}
		want, err := crawler.FileURL(filepath.Join(dir, "app.js"))
		if err != nil {
			t.Fatal(err)
		}
		if c.seeds[0] != want {
			t.Errorf("seed = %q, want %q", c.seeds[0], want)
		}
	})

	t.Run("empty target", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(&fakeCrawler{}, nil, nil, nil)
		err := step.Do(context.Background(), model.NewAnalysisReport("", ""))
		if !errors.Is(err, ErrMissingPrerequisite) {
			t.Errorf("error = %v, want ErrMissingPrerequisite", err)
		}
	})

	t.Run("partial summary kept on cancellation", func(t *testing.T) {
		t.Parallel()

		c := &fakeCrawler{summary: &model.CrawlSummary{Visited: 3}, err: context.Canceled}
		step := NewCrawlStep(c, nil, nil, nil)
		report := model.NewAnalysisReport("https://example.com/", "")
		err := step.Do(context.Background(), report)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if report.Crawl == nil || report.Crawl.Visited != 3 {
			t.Errorf("expected partial summary, got %+v", report.Crawl)
		}
	})
}

func TestBeautifyStep(t *testing.T) {
	t.Parallel()

	t.Run("beautifies directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeScript(t, dir)
		b := &fakeBeautifier{n: 1}
		report := model.NewAnalysisReport("t", "")

		if err := NewBeautifyStep(b, dir).Do(context.Background(), report); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if b.dir != dir || report.Beautified != 1 {
			t.Errorf("dir = %q, Beautified = %d", b.dir, report.Beautified)
		}
	})

	t.Run("no scripts", func(t *testing.T) {
		t.Parallel()

		b := &fakeBeautifier{}
		err := NewBeautifyStep(b, t.TempDir()).Do(context.Background(), model.NewAnalysisReport("t", ""))
		if !errors.Is(err, ErrMissingPrerequisite) {
			t.Errorf("error = %v, want ErrMissingPrerequisite", err)
		}
		if b.dir != "" {
			t.Error("beautifier should not run")
		}
	})
}

func TestDatabaseStep(t *testing.T) {
	t.Parallel()

	t.Run("records database path", func(t *testing.T) {
		t.Parallel()

		src := filepath.Join(t.TempDir(), "assets")
		writeScript(t, src)
		db := filepath.Join(t.TempDir(), "db")
		c := &fakeCodeQL{}
		report := model.NewAnalysisReport("t", "")

		if err := NewDatabaseStep(c, src, db, true).Do(context.Background(), report); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if c.sourceRoot != src || report.DatabasePath != db {
			t.Errorf("sourceRoot = %q, DatabasePath = %q", c.sourceRoot, report.DatabasePath)
		}
	})

	t.Run("missing source directory", func(t *testing.T) {
		t.Parallel()

		err := NewDatabaseStep(&fakeCodeQL{}, filepath.Join(t.TempDir(), "nope"), "db", true).
			Do(context.Background(), model.NewAnalysisReport("t", ""))
		if !errors.Is(err, ErrMissingPrerequisite) {
			t.Errorf("error = %v, want ErrMissingPrerequisite", err)
		}
	})

	t.Run("creation failure leaves path unset", func(t *testing.T) {
		t.Parallel()

		src := t.TempDir()
		writeScript(t, src)
		createErr := errors.New("extractor failed")
		report := model.NewAnalysisReport("t", "")

		err := NewDatabaseStep(&fakeCodeQL{createErr: createErr}, src, "db", true).Do(context.Background(), report)
		if !errors.Is(err, createErr) {
			t.Errorf("error = %v, want %v", err, createErr)
		}
		if report.DatabasePath != "" {
			t.Errorf("DatabasePath = %q, want empty", report.DatabasePath)
		}
	})
}

func TestQueryAndClassifySteps(t *testing.T) {
	t.Parallel()

	t.Run("query requires database", func(t *testing.T) {
		t.Parallel()

		err := NewQueryStep(&fakeCodeQL{}, "suite.qls", "out.sarif").
			Do(context.Background(), model.NewAnalysisReport("t", ""))
		if !errors.Is(err, ErrMissingPrerequisite) {
			t.Errorf("error = %v, want ErrMissingPrerequisite", err)
		}
	})

	t.Run("classify requires sarif", func(t *testing.T) {
		t.Parallel()

		err := NewClassifyStep().Do(context.Background(), model.NewAnalysisReport("t", ""))
		if !errors.Is(err, ErrMissingPrerequisite) {
			t.Errorf("error = %v, want ErrMissingPrerequisite", err)
		}
	})

	t.Run("query then classify", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "results.sarif")
		c := &fakeCodeQL{}
		report := model.NewAnalysisReport("t", "")
		report.DatabasePath = "db"

		if err := NewQueryStep(c, "suite.qls", out).Do(context.Background(), report); err != nil {
			t.Fatalf("query Do() error = %v", err)
		}
		if c.suite != "suite.qls" || report.SARIFPath != out {
			t.Errorf("suite = %q, SARIFPath = %q", c.suite, report.SARIFPath)
		}
		if err := NewClassifyStep().Do(context.Background(), report); err != nil {
			t.Fatalf("classify Do() error = %v", err)
		}
		if report.Findings.Total() != 2 {
			t.Errorf("Total() = %d, want 2", report.Findings.Total())
		}
		if report.Findings.Count(model.SeverityCritical) != 1 || report.Findings.Count(model.SeverityInfo) != 1 {
			t.Errorf("unexpected buckets: critical=%d info=%d",
				report.Findings.Count(model.SeverityCritical), report.Findings.Count(model.SeverityInfo))
		}
	})
}

func TestSecretsStep(t *testing.T) {
	t.Parallel()

	t.Run("counts secrets", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeScript(t, dir)
		out := filepath.Join(t.TempDir(), "secrets", "trufflehog_output.txt")
		s := &fakeTrufflehog{}
		report := model.NewAnalysisReport("t", "")
		report.SARIFPath = "kept.sarif"

		if err := NewSecretsStep(s, dir, out).Do(context.Background(), report); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if s.dir != dir || report.SecretsPath != out {
			t.Errorf("dir = %q, SecretsPath = %q", s.dir, report.SecretsPath)
		}
		if report.SecretsFound != 2 {
			t.Errorf("SecretsFound = %d, want 2", report.SecretsFound)
		}
		if report.SARIFPath != "kept.sarif" {
			t.Error("secrets step must not touch earlier results")
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()

		err := NewSecretsStep(&fakeTrufflehog{}, filepath.Join(t.TempDir(), "nope"), "out").
			Do(context.Background(), model.NewAnalysisReport("t", ""))
		if !errors.Is(err, ErrMissingPrerequisite) {
			t.Errorf("error = %v, want ErrMissingPrerequisite", err)
		}
	})
}

func TestIsLocalTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		target string
		want   bool
	}{
		{target: dir, want: true},
		{target: filepath.Join(dir, "missing"), want: false},
		{target: "https://example.com", want: false},
		{target: "file:///tmp", want: false},
	}
	for _, tt := range tests {
		if got := IsLocalTarget(tt.target); got != tt.want {
			t.Errorf("IsLocalTarget(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}
