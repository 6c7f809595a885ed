package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/webql/internal/config"
	"github.com/nao1215/webql/internal/crawler"
	"github.com/nao1215/webql/internal/model"
	"github.com/nao1215/webql/internal/storage"
	"github.com/nao1215/webql/internal/tools"
)

// Toolset bundles the external programs used by the default pipeline.
// A nil Deobfuscator, Beautifier or Secrets disables that stage.
type Toolset struct {
	Deobfuscator crawler.Deobfuscator
	Beautifier   DirBeautifier
	Creator      DatabaseCreator
	Analyzer     DatabaseAnalyzer
	Secrets      SecretScanner
}

// NewToolset creates the tool wrappers described by cfg. Every subprocess is
// bounded by cfg.ToolTimeout.
func NewToolset(cfg *config.Config, runner tools.Runner, logger *slog.Logger) Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	f := cfg.File
	if f == nil {
		f = config.NewFile()
	}
	runner = tools.TimeoutRunner(runner, cfg.ToolTimeout)

	codeql := tools.NewCodeQL(f.Tools.CodeQL, runner)
	ts := Toolset{
		Beautifier: tools.NewBeautifier(f.Tools.Beautifier, runner, logger),
		Creator:    codeql,
		Analyzer:   codeql,
	}
	if cfg.Deobfuscate {
		ts.Deobfuscator = tools.NewWebcrack(f.Tools.Webcrack, runner)
	}
	if cfg.Secrets {
		ts.Secrets = tools.NewTrufflehog(f.Tools.Trufflehog, runner)
	}
	return ts
}

// DefaultPipelineConfig holds the optional parts of DefaultPipeline.
type DefaultPipelineConfig struct {
	Logger   *slog.Logger
	Sink     crawler.Sink
	Progress crawler.ProgressFunc
	Fetcher  crawler.Fetcher
	Now      func() time.Time
	Options  []Option
}

// DefaultPipelineOption configures DefaultPipeline.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineLogger sets the logger shared by the pipeline and the crawler.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// WithPipelineSink receives crawl events.
func WithPipelineSink(sink crawler.Sink) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Sink = sink
	}
}

// WithPipelineProgress receives crawl progress.
func WithPipelineProgress(fn crawler.ProgressFunc) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Progress = fn
	}
}

// WithPipelineFetcher replaces the HTTP and file fetcher built from the
// configuration.
func WithPipelineFetcher(f crawler.Fetcher) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Fetcher = f
	}
}

// WithPipelineClock sets the time source used to name the output directory.
func WithPipelineClock(now func() time.Time) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Now = now
	}
}

// WithPipelineOptions passes options to the underlying Pipeline.
func WithPipelineOptions(opts ...Option) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Options = append(c.Options, opts...)
	}
}

// DefaultPipeline builds the full analysis of one target:
// crawl, beautify, database, query, classify and, when the toolset has a
// secrets scanner, secrets. It creates the target's output directory and returns the report
// the pipeline will fill in.
func DefaultPipeline(cfg *config.Config, target string, ts Toolset, opts ...DefaultPipelineOption) (*Pipeline, *model.AnalysisReport, error) {
	dc := &DefaultPipelineConfig{Now: time.Now}
	for _, opt := range opts {
		opt(dc)
	}
	if dc.Logger == nil {
		dc.Logger = slog.Default()
	}

	now := dc.Now()
	layout := NewLayout(cfg.OutputDir, target, now)
	site := cfg.Site(target)

	store, err := NewAssetStore(layout.Assets, ts)
	if err != nil {
		return nil, nil, err
	}

	engine, err := NewCrawler(cfg, site, store, ts.Deobfuscator, dc)
	if err != nil {
		return nil, nil, err
	}

	pipelineOpts := append([]Option{
		WithLogger(dc.Logger),
		WithContinueOnError(cfg.ContinueOnError),
	}, dc.Options...)
	p := New(pipelineOpts...)

	p.AddStep(NewCrawlStep(engine, store, nil, dc.Sink))
	if ts.Beautifier != nil {
		p.AddStep(NewBeautifyStep(ts.Beautifier, layout.Assets))
	}
	p.AddSteps(
		NewDatabaseStep(ts.Creator, layout.Assets, layout.Database, true),
		NewQueryStep(ts.Analyzer, querySuite(cfg), layout.SARIF),
		NewClassifyStep(),
	)
	if ts.Secrets != nil {
		p.AddStep(NewSecretsStep(ts.Secrets, layout.Assets, layout.Secrets))
	}

	report := model.NewAnalysisReport(target, layout.Root)
	report.StartedAt = now
	return p, report, nil
}

// NewAssetStore opens the asset store in dir. When the toolset de-obfuscates
// scripts, the store also reserves the name of each de-obfuscated copy.
func NewAssetStore(dir string, ts Toolset) (*storage.Store, error) {
	var opts []storage.StoreOption
	if ts.Deobfuscator != nil {
		opts = append(opts, storage.WithCompanionName(tools.OutputPath))
	}
	return storage.NewStore(dir, opts...)
}

// NewCrawler creates the crawl engine for one site, persisting scripts and
// source maps into store.
func NewCrawler(cfg *config.Config, site config.SiteConfig, store *storage.Store, deob crawler.Deobfuscator, dc *DefaultPipelineConfig) (*crawler.Engine, error) {
	if dc == nil {
		dc = &DefaultPipelineConfig{}
	}
	logger := dc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetcher := dc.Fetcher
	if fetcher == nil {
		var err error
		fetcher, err = NewFetcher(cfg, site)
		if err != nil {
			return nil, err
		}
	}

	dispatcher := crawler.NewStandardDispatcher(crawler.DispatcherConfig{
		Aggressive:   site.IsAggressive(),
		Store:        store,
		Deobfuscator: deob,
		Logger:       logger,
	})
	return crawler.NewEngine(fetcher, dispatcher,
		crawler.WithMaxURLs(site.MaxURLs),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithProgressFunc(dc.Progress),
		crawler.WithEngineLogger(logger),
		crawler.WithSourceMapStore(store),
	), nil
}

// NewFetcher creates the fetcher for one site: HTTP(S) through the site's
// proxy and headers, and file:// URLs from disk.
func NewFetcher(cfg *config.Config, site config.SiteConfig) (crawler.Fetcher, error) {
	client, err := crawler.NewClient(site.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	httpFetcher := crawler.NewHTTPFetcher(
		crawler.WithHTTPClient(client),
		crawler.WithUserAgent(site.UserAgent),
		crawler.WithHeaders(site.Headers),
		crawler.WithCookie(site.Cookie),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithRateLimit(cfg.RateLimit),
	)
	return crawler.NewSchemeFetcher(httpFetcher), nil
}

func querySuite(cfg *config.Config) string {
	if cfg.File == nil {
		return config.DefaultQuerySuite
	}
	return cfg.File.QuerySuite()
}
