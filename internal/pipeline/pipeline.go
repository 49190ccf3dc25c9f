package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/nao1215/ripnft/internal/model"
)

// Step is one stage of a run.
type Step interface {
	// Do executes the step. Per-item failures are recorded on the run;
	// a returned error means the run cannot continue.
	Do(ctx context.Context, run *model.Run) error

	// Name returns the step name for logging.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing later steps after a step fails.
// The failure is still recorded on the run.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
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

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step in order. Cancellation is checked between steps;
// a cancelled run is marked Interrupted and ctx.Err() is returned.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	return p.execute(ctx, run, p.steps)
}

// Resume runs the steps that are not yet listed in run.PerformedSteps.
// It is used to finish an interrupted run with a fresh context.
func (p *Pipeline) Resume(ctx context.Context, run *model.Run) error {
	pending := make([]Step, 0, len(p.steps))
	for _, s := range p.steps {
		if !slices.Contains(run.PerformedSteps, s.Name()) {
			pending = append(pending, s)
		}
	}
	return p.execute(ctx, run, pending)
}

func (p *Pipeline) execute(ctx context.Context, run *model.Run, steps []Step) error {
	defer func() {
		run.Elapsed = time.Since(run.StartedAt)
	}()

	for _, step := range steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			run.Interrupted = true
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"collection", run.Collection,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"collection", run.Collection,
				"error", err,
			)
			run.Error = err
			run.ErrorMessage = err.Error()
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"collection", run.Collection,
			)
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}
	return nil
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
