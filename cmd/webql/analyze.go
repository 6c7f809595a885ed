package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/config"
	"github.com/nao1215/webql/internal/crawler"
	"github.com/nao1215/webql/internal/database"
	"github.com/nao1215/webql/internal/model"
	"github.com/nao1215/webql/internal/pipeline"
	"github.com/nao1215/webql/internal/report"
)

// ErrAnalysisFailed is returned when at least one target's analysis recorded
// an error or was cut short.
var ErrAnalysisFailed = errors.New("analysis failed")

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyze [targets...]",
		Aliases: []string{"full-analysis"},
		Short:   "Scan, build a CodeQL database, query it and report findings",
		Long: `Analyze runs the full workflow for each target:

  1. crawl     harvest scripts into <output>/<host>_<timestamp>/assets
  2. beautify  reformat them with js-beautify
  3. database  create a CodeQL database
  4. query     run the query suite to SARIF
  5. classify  group findings by severity
  6. secrets   run trufflehog (with --secrets)

Each run is recorded in the history database unless --no-history is given.

Examples:
  webql analyze https://example.com
  webql full-analysis https://example.com --secrets
  webql analyze https://a.example https://b.example --batch 2 --json -r report.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyzeCmd,
	}

	addCrawlFlags(cmd)
	addReportFlags(cmd)
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of concurrent analyses")
	cmd.Flags().Bool("continue-on-error", false, "Run the remaining steps after a step fails")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")

	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
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
	if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
		return err
	}
	if cfg.ContinueOnError, err = cmd.Flags().GetBool("continue-on-error"); err != nil {
		return err
	}
	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return err
	}
	cfg.SaveToDB = !noHistory
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

	var db *database.HistoryDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
	}

	a := &analyzer{
		cfg:    cfg,
		ts:     pipeline.NewToolset(cfg, nil, logger),
		writer: w,
		status: cmd.ErrOrStderr(),
		db:     db,
		logger: logger,
	}
	return a.run(ctx)
}

// analyzer runs the default pipeline over cfg.Targets and reports each result.
type analyzer struct {
	cfg    *config.Config
	ts     pipeline.Toolset
	writer report.Writer
	status io.Writer
	db     *database.HistoryDB
	logger *slog.Logger

	// extra is appended to the options of every pipeline.
	extra []pipeline.DefaultPipelineOption

	mu     sync.Mutex
	failed int
}

func (a *analyzer) run(ctx context.Context) error {
	start := time.Now()
	if len(a.cfg.Targets) > 1 && a.cfg.BatchSize > 1 {
		fmt.Fprintf(a.status, "Starting batch analysis of %d targets (concurrency: %d)...\n",
			len(a.cfg.Targets), a.cfg.BatchSize)
		bp := pipeline.NewBatchProcessor(a.factory,
			pipeline.WithConcurrency(a.cfg.BatchSize),
			pipeline.WithBatchLogger(a.logger),
		)
		if err := bp.ProcessBatchWithCallback(ctx, a.cfg.Targets, func(r *model.AnalysisReport, index int) {
			a.finish(ctx, r, index)
		}); err != nil {
			a.logger.Warn("batch analysis interrupted", "error", err)
		}
	} else {
		for i, target := range a.cfg.Targets {
			a.finish(ctx, a.analyze(ctx, target), i)
			if ctx.Err() != nil {
				break
			}
		}
	}

	fmt.Fprintf(a.status, "Analysis finished in %s\n", time.Since(start).Round(time.Millisecond))
	if a.failed > 0 {
		return fmt.Errorf("%w: %d of %d target(s)", ErrAnalysisFailed, a.failed, len(a.cfg.Targets))
	}
	return nil
}

// factory builds the pipeline for one target.
func (a *analyzer) factory(target string) (*pipeline.Pipeline, *model.AnalysisReport, error) {
	opts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineLogger(a.logger),
		pipeline.WithPipelineSink(crawler.NewLogSink(a.logger)),
		pipeline.WithPipelineProgress(progressLogger(a.logger, target)),
		pipeline.WithPipelineOptions(pipeline.WithStepHook(func(index, total int, name string) {
			fmt.Fprintf(a.status, "[%s] Step %d/%d: %s\n", target, index, total, name)
		})),
	}
	return pipeline.DefaultPipeline(a.cfg, target, a.ts, append(opts, a.extra...)...)
}

// analyze runs one target sequentially.
func (a *analyzer) analyze(ctx context.Context, target string) *model.AnalysisReport {
	p, r, err := a.factory(target)
	if err != nil {
		r = model.NewAnalysisReport(target, "")
		r.RecordError(pipeline.StepSetup, err)
		return r
	}
	fmt.Fprintf(a.status, "Starting full analysis of %s\nOutput directory: %s\n", target, r.OutputDir)
	if err := p.Execute(ctx, r); err != nil {
		a.logger.Warn("analysis failed", "target", target, "error", err)
	}
	return r
}

// finish writes and records one report. It is safe for concurrent use.
func (a *analyzer) finish(ctx context.Context, r *model.AnalysisReport, index int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Failed() || r.TimedOut {
		a.failed++
	}
	fmt.Fprintf(a.status, "[%d/%d] Analysis completed: %s\n", index+1, len(a.cfg.Targets), r.Target)
	if _, err := a.writer.WriteAnalysis(r); err != nil {
		a.logger.Error("report failed", "target", r.Target, "error", err)
	}

	if a.db == nil {
		return
	}
	// The run is recorded even when ctx was cancelled.
	runID, err := a.db.Record(context.WithoutCancel(ctx), r)
	if err != nil {
		a.logger.Error("failed to record run", "target", r.Target, "error", err)
		return
	}
	a.logger.Info("run recorded", "target", r.Target, "run_id", runID)
}
