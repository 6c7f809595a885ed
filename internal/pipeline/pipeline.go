package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/webql/internal/model"
)

// ErrMissingPrerequisite is returned by a step whose input was not produced
// by an earlier step, such as querying before a database exists.
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// Step is one stage of an analysis.
type Step interface {
	// Do runs the step against the report accumulated so far.
	Do(ctx context.Context, report *model.AnalysisReport) error

	// Name returns the step name used in logs and the report.
	Name() string
}

// StepHook is called before each step with its 1-based position.
type StepHook func(index, total int, name string)

// Pipeline executes steps in order.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps executing after a step fails.
	continueOnError bool

	hook StepHook
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running the remaining steps after a failure.
// Every failure is still recorded in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithStepHook registers a callback invoked before each step.
func WithStepHook(hook StepHook) Option {
	return func(p *Pipeline) {
		p.hook = hook
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order. Cancellation is checked before each
// step and marks the report as timed out. A failing step is recorded in
// report.StepErrors; unless continue-on-error is set, Execute then stops
// and returns that error.
func (p *Pipeline) Execute(ctx context.Context, report *model.AnalysisReport) error {
	var firstErr error

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"target", report.Target,
				"reason", err,
			)
			report.TimedOut = true
			return err
		}

		if p.hook != nil {
			p.hook(i+1, len(p.steps), step.Name())
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"target", report.Target,
		)

		err := step.Do(ctx, report)
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
		if err == nil {
			p.logger.Debug("step completed", "step", step.Name(), "target", report.Target)
			continue
		}

		report.RecordError(step.Name(), err)
		if ctx.Err() != nil {
			report.TimedOut = true
		}

		if errors.Is(err, ErrMissingPrerequisite) {
			p.logger.Warn("step skipped",
				"step", step.Name(),
				"target", report.Target,
				"reason", err,
			)
		} else {
			p.logger.Error("step failed",
				"step", step.Name(),
				"target", report.Target,
				"error", err,
			)
		}

		if firstErr == nil {
			firstErr = err
		}
		if !p.continueOnError || report.TimedOut {
			return err
		}
	}

	return firstErr
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
