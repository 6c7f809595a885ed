package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/webql/internal/model"
	"golang.org/x/sync/errgroup"
)

// StepSetup names the error recorded when a target's pipeline could not be built.
const StepSetup = "setup"

// Factory builds a fresh pipeline and report for one target.
type Factory func(target string) (*Pipeline, *model.AnalysisReport, error)

// BatchProcessor analyzes several targets concurrently, each with its own
// pipeline and report.
type BatchProcessor struct {
	factory     Factory
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent analyses.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor calling factory once per target.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 4,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch analyzes targets and returns their reports in input order.
// A failing target does not stop the others; its errors are in its report.
// The returned error is non-nil only when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.AnalysisReport, error) {
	results := make([]*model.AnalysisReport, len(targets))
	err := bp.ProcessBatchWithCallback(ctx, targets, func(report *model.AnalysisReport, index int) {
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback analyzes targets and calls callback as each one
// finishes. The callback runs on the worker goroutine and must be safe for
// concurrent use if it touches shared state. Targets not started before
// cancellation are reported with TimedOut set.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(report *model.AnalysisReport, index int),
) error {
	bp.logger.Info("starting batch analysis",
		"total_targets", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			callback(bp.process(ctx, target, i, len(targets)), i)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	bp.logger.Info("batch analysis complete",
		"total_targets", len(targets),
		"elapsed", time.Since(startTime),
	)
	return ctx.Err()
}

func (bp *BatchProcessor) process(ctx context.Context, target string, index, total int) *model.AnalysisReport {
	if err := ctx.Err(); err != nil {
		report := model.NewAnalysisReport(target, "")
		report.TimedOut = true
		report.RecordError(StepSetup, err)
		return report
	}

	bp.logger.Info("analyzing target",
		"target", target,
		"index", index+1,
		"total", total,
	)

	p, report, err := bp.factory(target)
	if err != nil {
		bp.logger.Warn("failed to set up analysis", "target", target, "error", err)
		if report == nil {
			report = model.NewAnalysisReport(target, "")
		}
		report.RecordError(StepSetup, err)
		return report
	}

	if err := p.Execute(ctx, report); err != nil {
		bp.logger.Warn("analysis failed", "target", target, "error", err)
		return report
	}

	bp.logger.Info("analysis completed", "target", target)
	return report
}
