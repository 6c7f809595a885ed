package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/config"
	"github.com/nao1215/webql/internal/crawler"
	"github.com/nao1215/webql/internal/model"
	"github.com/nao1215/webql/internal/pipeline"
	"github.com/nao1215/webql/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [targets...]",
		Short: "Harvest JavaScript, webpack chunks and source maps",
		Long: `Scan crawls one or more URLs or local files and saves every script it
can reach into the output directory.

References are followed from:
- <script src> tags and import maps in HTML
- dynamic import() calls and webpack chunk maps in JavaScript
- sourceMappingURL comments
- _buildManifest / route manifests in JSON

Examples:
  # Scan a site
  webql scan https://example.com

  # Scan several sites and a local build directory
  webql scan https://a.example https://b.example ./dist

  # Also pick up any quoted .js path in HTML, then scan for secrets
  webql scan --aggressive --secrets https://example.com

  # Route requests through a SOCKS proxy
  webql scan --proxy socks5://127.0.0.1:9050 https://example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	addCrawlFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	maxTime, err := applyCrawlFlags(cmd, cfg)
	if err != nil {
		return err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return err
	}
	cfg.Targets = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), maxTime)
	defer cancel()

	w, closeOut, err := openReportWriter(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // best effort close of the report file

	ts := pipeline.NewToolset(cfg, nil, logger)
	return runScan(ctx, cfg, ts, w, cmd.ErrOrStderr(), logger)
}

// runScan crawls every target into cfg.OutputDir. Targets share one visited
// set, so a script reachable from two targets is fetched once.
func runScan(ctx context.Context, cfg *config.Config, ts pipeline.Toolset, w report.Writer, status io.Writer, logger *slog.Logger) error {
	store, err := pipeline.NewAssetStore(cfg.OutputDir, ts)
	if err != nil {
		return err
	}

	logger.Info("starting scan", "targets", len(cfg.Targets), "output", cfg.OutputDir)
	state := crawler.NewState()
	sink := crawler.NewLogSink(logger)

	for _, target := range cfg.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		engine, err := pipeline.NewCrawler(cfg, cfg.Site(target), store, ts.Deobfuscator,
			&pipeline.DefaultPipelineConfig{Logger: logger, Progress: progressLogger(logger, target)})
		if err != nil {
			return err
		}
		seeds, err := seedsFor(target)
		if err != nil {
			return err
		}

		fmt.Fprintf(status, "Scanning %s...\n", target)
		summary, crawlErr := engine.CrawlWithState(ctx, state, seeds, sink)
		if _, err := w.WriteCrawl(summary); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if crawlErr != nil {
			return fmt.Errorf("scan of %s interrupted: %w", target, crawlErr)
		}
	}

	fmt.Fprintf(status, "Scan completed. %d file(s) saved to %s\n", store.Len(), cfg.OutputDir)

	if cfg.Secrets && ts.Secrets != nil {
		return scanSecrets(ctx, ts.Secrets, cfg.OutputDir, secretsOutputPath(cfg.OutputDir), status)
	}
	return nil
}

// seedsFor expands a local path target into file:// seeds.
func seedsFor(target string) ([]string, error) {
	if !pipeline.IsLocalTarget(target) {
		return []string{target}, nil
	}
	seeds, err := crawler.SeedsFromPath(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	return seeds, nil
}

// progressLogger logs crawl progress at debug level every 25 URLs.
func progressLogger(logger *slog.Logger, target string) crawler.ProgressFunc {
	return func(processed, known int) {
		if processed%25 == 0 {
			logger.Debug("crawl progress", "target", target, "processed", processed, "known", known)
		}
	}
}

// secretsOutputPath returns where trufflehog output for dir is written.
func secretsOutputPath(dir string) string {
	name := filepath.Base(filepath.Clean(dir))
	return filepath.Join(dir, "secrets", "trufflehog_"+name+"_output.txt")
}

// scanSecrets runs the secrets step over dir and prints the count.
func scanSecrets(ctx context.Context, scanner pipeline.SecretScanner, dir, output string, status io.Writer) error {
	fmt.Fprintln(status, "Running secrets scan...")
	r := model.NewAnalysisReport(dir, dir)
	if err := pipeline.NewSecretsStep(scanner, dir, output).Do(ctx, r); err != nil {
		return fmt.Errorf("secrets scan failed: %w", err)
	}
	fmt.Fprintf(status, "Secrets scan completed: %d finding(s) saved to %s\n", r.SecretsFound, r.SecretsPath)
	return nil
}
