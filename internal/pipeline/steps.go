package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/ripnft/internal/fetch"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/normalize"
	"github.com/nao1215/ripnft/internal/pricing"
	"github.com/nao1215/ripnft/internal/rarity"
)

// ErrNoResults is returned by NormalizeStep when the run has no fetch results.
var ErrNoResults = errors.New("run has no fetch results")

// BatchFetcher fetches a batch of tasks. *fetch.Fetcher implements it.
type BatchFetcher interface {
	FetchAll(ctx context.Context, tasks []model.FetchTask) (*model.ResultSet, error)
}

// FetchStep downloads the metadata of every task on the run.
type FetchStep struct {
	fetcher BatchFetcher
	logger  *slog.Logger
}

// NewFetchStep creates a FetchStep.
func NewFetchStep(fetcher BatchFetcher, logger *slog.Logger) *FetchStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchStep{fetcher: fetcher, logger: logger}
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch"
}

// Do fetches run.Tasks into run.Results.
//
// A batch timeout or an outside cancellation keeps the partial results and
// marks the run; neither is returned as an error.
func (s *FetchStep) Do(ctx context.Context, run *model.Run) error {
	rs, err := s.fetcher.FetchAll(ctx, run.Tasks)
	if rs != nil {
		run.Results = rs
		run.Stats.Requested = len(run.Tasks)
		run.Stats.Fetched = rs.Succeeded()
		if run.Stats.Failures == nil {
			run.Stats.Failures = make(map[string]int)
		}
		for kind, n := range rs.CountByKind() {
			if kind != model.ErrorKindNone {
				run.Stats.Failures[kind.String()] = n
			}
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, fetch.ErrBatchTimeout):
		run.TimedOut = true
		s.logger.Warn("batch deadline reached, continuing with partial results",
			"fetched", run.Stats.Fetched,
			"requested", run.Stats.Requested,
		)
	case rs != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		run.Interrupted = true
		s.logger.Warn("fetch interrupted, keeping partial results",
			"fetched", run.Stats.Fetched,
			"requested", run.Stats.Requested,
		)
	default:
		return fmt.Errorf("fetch failed: %w", err)
	}

	s.logger.Info("fetch finished",
		"collection", run.Collection,
		"requested", run.Stats.Requested,
		"fetched", run.Stats.Fetched,
	)
	return nil
}

// NormalizeStep turns fetched payloads into trait records.
type NormalizeStep struct {
	normalizer *normalize.Normalizer
}

// NewNormalizeStep creates a NormalizeStep. A nil normalizer uses defaults.
func NewNormalizeStep(n *normalize.Normalizer) *NormalizeStep {
	if n == nil {
		n = normalize.New()
	}
	return &NormalizeStep{normalizer: n}
}

// Name returns the step name.
func (s *NormalizeStep) Name() string {
	return "normalize"
}

// Do fills run.Records from run.Results.
func (s *NormalizeStep) Do(_ context.Context, run *model.Run) error {
	if run.Results == nil {
		return ErrNoResults
	}
	res := s.normalizer.Normalize(run.Results)
	run.Records = res.Records
	run.Stats.Normalized = len(res.Records)
	run.Stats.Skipped = len(res.Skipped)
	return nil
}

// RankStep builds the rarity table.
type RankStep struct {
	engine *rarity.Engine
	logger *slog.Logger
}

// NewRankStep creates a RankStep. A nil engine uses defaults.
func NewRankStep(engine *rarity.Engine, logger *slog.Logger) *RankStep {
	if engine == nil {
		engine = rarity.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RankStep{engine: engine, logger: logger}
}

// Name returns the step name.
func (s *RankStep) Name() string {
	return "rank"
}

// Do ranks run.Records into run.Table. An empty table is a valid outcome.
func (s *RankStep) Do(_ context.Context, run *model.Run) error {
	run.Table = s.engine.Rank(run.Records)
	run.Stats.Ranked = len(run.Table.Rows)
	if run.Table.Empty() {
		s.logger.Warn("no attribute data, nothing to rank",
			"collection", run.Collection,
			"records", len(run.Records),
		)
	}
	return nil
}

// PriceStep merges marketplace prices into a ranked table.
type PriceStep struct {
	lookup pricing.Lookup
	logger *slog.Logger
}

// NewPriceStep creates a PriceStep.
func NewPriceStep(lookup pricing.Lookup, logger *slog.Logger) *PriceStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceStep{lookup: lookup, logger: logger}
}

// Name returns the step name.
func (s *PriceStep) Name() string {
	return "price"
}

// Do looks up prices for every ranked row. Lookup failures are logged and
// leave the table without prices.
func (s *PriceStep) Do(ctx context.Context, run *model.Run) error {
	if run.Table.Empty() {
		return nil
	}
	if run.Contract == "" && !hasCollection(s.lookup) {
		s.logger.Warn("skipping price lookup: no contract address or collection slug", "collection", run.Collection)
		return nil
	}

	indices := make([]int, len(run.Table.Rows))
	for i, row := range run.Table.Rows {
		indices[i] = row.Index
	}

	prices, err := s.lookup.Prices(ctx, run.Contract, indices)
	if err != nil {
		s.logger.Warn("price lookup failed", "collection", run.Collection, "error", err)
	}
	MergePrices(run.Table, prices)
	return nil
}

func hasCollection(lookup pricing.Lookup) bool {
	cl, ok := lookup.(pricing.CollectionLookup)
	return ok && cl.HasCollection()
}

// MergePrices sets the price of every row whose index is in prices.
func MergePrices(table *model.RarityTable, prices map[int]float64) {
	if table == nil {
		return
	}
	for i := range table.Rows {
		if p, ok := prices[table.Rows[i].Index]; ok {
			table.Rows[i].Price = &p
		}
	}
}

// Components are the collaborators of a default pipeline.
type Components struct {
	Fetcher    BatchFetcher
	Normalizer *normalize.Normalizer
	Engine     *rarity.Engine
	// Prices is optional; nil skips the price step.
	Prices pricing.Lookup
	Logger *slog.Logger
}

// DefaultPipeline wires fetch, normalize, rank and, when c.Prices is set,
// price steps. A nil Fetcher omits the fetch step, for runs whose records
// were loaded from disk.
func DefaultPipeline(c Components, opts ...Option) *Pipeline {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := New(append([]Option{WithLogger(logger)}, opts...)...)
	if c.Fetcher != nil {
		p.AddSteps(NewFetchStep(c.Fetcher, logger), NewNormalizeStep(c.Normalizer))
	}
	p.AddStep(NewRankStep(c.Engine, logger))
	if c.Prices != nil {
		p.AddStep(NewPriceStep(c.Prices, logger))
	}
	return p
}
