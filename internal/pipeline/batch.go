package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/ripnft/internal/model"
)

// BatchProcessor runs several collections concurrently, each through its
// own pipeline.
type BatchProcessor struct {
	pipelineFactory func(run *model.Run) *Pipeline
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets how many collections run at once. Default is 2.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor. The factory builds a fresh
// pipeline for each run so that per-collection settings such as the
// contract address can be applied.
func NewBatchProcessor(factory func(run *model.Run) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: factory,
		concurrency:     2,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch executes every run. Failed runs carry their error; only
// cancellation of ctx is returned. The callback, if non-nil, is invoked
// from the worker goroutine as each run finishes.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, runs []*model.Run, callback func(run *model.Run)) error {
	bp.logger.Info("starting batch",
		"collections", len(runs),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for _, run := range runs {
		g.Go(func() error {
			if ctx.Err() != nil {
				run.Interrupted = true
				return nil
			}
			if err := bp.pipelineFactory(run).Execute(ctx, run); err != nil {
				bp.logger.Warn("collection failed",
					"collection", run.Collection,
					"error", err,
				)
			}
			if callback != nil {
				callback(run)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail

	bp.logger.Info("batch complete",
		"collections", len(runs),
		"elapsed", time.Since(start),
	)
	return ctx.Err()
}
