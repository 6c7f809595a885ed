package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/webql/internal/crawler"
	"github.com/nao1215/webql/internal/model"
	"github.com/nao1215/webql/internal/sarif"
	"github.com/nao1215/webql/internal/tools"
)

// Step names, as recorded in AnalysisReport.PerformedSteps.
const (
	StepCrawl    = "crawl"
	StepBeautify = "beautify"
	StepDatabase = "database"
	StepQuery    = "query"
	StepClassify = "classify"
	StepSecrets  = "secrets"
)

// Crawler walks a site from seed URLs.
type Crawler interface {
	Crawl(ctx context.Context, seeds []string, sink crawler.Sink) (*model.CrawlSummary, error)
}

// AssetLister reports the files persisted so far.
type AssetLister interface {
	Assets() []model.StoredAsset
}

// DirBeautifier reformats every script below a directory.
type DirBeautifier interface {
	BeautifyDir(ctx context.Context, dir string) (int, error)
}

// DatabaseCreator builds a CodeQL database from a source directory.
type DatabaseCreator interface {
	CreateDatabase(ctx context.Context, sourceRoot, dbPath string, overwrite bool) error
}

// DatabaseAnalyzer runs a query suite against a CodeQL database.
type DatabaseAnalyzer interface {
	AnalyzeDatabase(ctx context.Context, dbPath, querySuite, outputFile string) error
}

// SecretScanner scans a directory for leaked credentials.
type SecretScanner interface {
	ScanFilesystem(ctx context.Context, dir, outputFile string) error
}

// CrawlStep harvests scripts from the report target.
type CrawlStep struct {
	crawler Crawler
	assets  AssetLister
	seeds   []string
	sink    crawler.Sink
}

// NewCrawlStep creates the crawl step. When seeds is empty the report target
// is used; a local path target is expanded with crawler.SeedsFromPath.
func NewCrawlStep(c Crawler, assets AssetLister, seeds []string, sink crawler.Sink) *CrawlStep {
	if sink == nil {
		sink = crawler.NopSink{}
	}
	return &CrawlStep{crawler: c, assets: assets, seeds: seeds, sink: sink}
}

// Name returns the step name.
func (s *CrawlStep) Name() string { return StepCrawl }

// Do crawls and records the summary and persisted assets. A cancelled crawl
// still records its partial summary.
func (s *CrawlStep) Do(ctx context.Context, report *model.AnalysisReport) error {
	seeds, err := s.resolveSeeds(report.Target)
	if err != nil {
		return err
	}

	summary, err := s.crawler.Crawl(ctx, seeds, s.sink)
	report.Crawl = summary
	if s.assets != nil {
		report.Assets = s.assets.Assets()
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

func (s *CrawlStep) resolveSeeds(target string) ([]string, error) {
	if len(s.seeds) > 0 {
		return s.seeds, nil
	}
	if target == "" {
		return nil, fmt.Errorf("%w: no target to crawl", ErrMissingPrerequisite)
	}
	if IsLocalTarget(target) {
		seeds, err := crawler.SeedsFromPath(target)
		if err != nil {
			return nil, fmt.Errorf("failed to read local target: %w", err)
		}
		return seeds, nil
	}
	return []string{target}, nil
}

// IsLocalTarget reports whether target names an existing local file or directory
// rather than a URL.
func IsLocalTarget(target string) bool {
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "file:") {
		return false
	}
	_, err := os.Stat(target)
	return err == nil
}

// BeautifyStep reformats harvested scripts in place.
type BeautifyStep struct {
	beautifier DirBeautifier
	dir        string
}

// NewBeautifyStep creates a step beautifying the scripts below dir.
func NewBeautifyStep(b DirBeautifier, dir string) *BeautifyStep {
	return &BeautifyStep{beautifier: b, dir: dir}
}

// Name returns the step name.
func (s *BeautifyStep) Name() string { return StepBeautify }

// Do beautifies the directory and records how many scripts changed.
func (s *BeautifyStep) Do(ctx context.Context, report *model.AnalysisReport) error {
	if err := requireScripts(s.dir); err != nil {
		return err
	}
	n, err := s.beautifier.BeautifyDir(ctx, s.dir)
	report.Beautified = n
	return err
}

// DatabaseStep creates the CodeQL database from harvested scripts.
type DatabaseStep struct {
	creator   DatabaseCreator
	sourceDir string
	dbPath    string
	overwrite bool
}

// NewDatabaseStep creates the database step.
func NewDatabaseStep(c DatabaseCreator, sourceDir, dbPath string, overwrite bool) *DatabaseStep {
	return &DatabaseStep{creator: c, sourceDir: sourceDir, dbPath: dbPath, overwrite: overwrite}
}

// Name returns the step name.
func (s *DatabaseStep) Name() string { return StepDatabase }

// Do creates the database and records its path.
func (s *DatabaseStep) Do(ctx context.Context, report *model.AnalysisReport) error {
	if err := requireScripts(s.sourceDir); err != nil {
		return err
	}
	if err := s.creator.CreateDatabase(ctx, s.sourceDir, s.dbPath, s.overwrite); err != nil {
		return err
	}
	report.DatabasePath = s.dbPath
	return nil
}

// QueryStep runs the query suite against the database recorded in the report.
type QueryStep struct {
	analyzer   DatabaseAnalyzer
	querySuite string
	output     string
}

// NewQueryStep creates the query step writing SARIF to output.
func NewQueryStep(a DatabaseAnalyzer, querySuite, output string) *QueryStep {
	return &QueryStep{analyzer: a, querySuite: querySuite, output: output}
}

// Name returns the step name.
func (s *QueryStep) Name() string { return StepQuery }

// Do analyzes the database and records the SARIF path.
func (s *QueryStep) Do(ctx context.Context, report *model.AnalysisReport) error {
	if report.DatabasePath == "" {
		return fmt.Errorf("%w: no CodeQL database", ErrMissingPrerequisite)
	}
	if err := s.analyzer.AnalyzeDatabase(ctx, report.DatabasePath, s.querySuite, s.output); err != nil {
		return err
	}
	report.SARIFPath = s.output
	return nil
}

// ClassifyStep buckets SARIF results by severity.
type ClassifyStep struct{}

// NewClassifyStep creates the classify step.
func NewClassifyStep() *ClassifyStep {
	return &ClassifyStep{}
}

// Name returns the step name.
func (s *ClassifyStep) Name() string { return StepClassify }

// Do reads the SARIF file recorded in the report.
func (s *ClassifyStep) Do(_ context.Context, report *model.AnalysisReport) error {
	if report.SARIFPath == "" {
		return fmt.Errorf("%w: no SARIF output", ErrMissingPrerequisite)
	}
	findings, err := sarif.ClassifyFile(report.SARIFPath)
	if err != nil {
		return err
	}
	report.Findings = findings
	return nil
}

// SecretsStep runs trufflehog over the harvested files.
type SecretsStep struct {
	scanner SecretScanner
	dir     string
	output  string
}

// NewSecretsStep creates a step scanning dir and writing NDJSON to output.
func NewSecretsStep(scanner SecretScanner, dir, output string) *SecretsStep {
	return &SecretsStep{scanner: scanner, dir: dir, output: output}
}

// Name returns the step name.
func (s *SecretsStep) Name() string { return StepSecrets }

// Do scans for secrets and records the output path and count.
func (s *SecretsStep) Do(ctx context.Context, report *model.AnalysisReport) error {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMissingPrerequisite, s.dir)
	}
	if err := os.MkdirAll(filepath.Dir(s.output), 0o750); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	if err := s.scanner.ScanFilesystem(ctx, s.dir, s.output); err != nil {
		return err
	}
	report.SecretsPath = s.output

	secrets, err := tools.ReadSecrets(s.output)
	if err != nil {
		return err
	}
	report.SecretsFound = len(secrets)
	return nil
}

var errFoundScript = errors.New("found script")

// requireScripts fails with ErrMissingPrerequisite unless dir contains at
// least one .js file.
func requireScripts(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".js") {
			return errFoundScript
		}
		return nil
	})
	if errors.Is(err, errFoundScript) {
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	return fmt.Errorf("%w: no scripts in %s", ErrMissingPrerequisite, dir)
}
