package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/database"
	"github.com/nao1215/ripnft/internal/fetch"
	"github.com/nao1215/ripnft/internal/log"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/normalize"
	"github.com/nao1215/ripnft/internal/pipeline"
	"github.com/nao1215/ripnft/internal/pricing"
	"github.com/nao1215/ripnft/internal/rarity"
	"github.com/nao1215/ripnft/internal/report"
	"github.com/nao1215/ripnft/internal/source"
)

// resumeTimeout bounds the steps that finish an interrupted run.
const resumeTimeout = 30 * time.Second

// runner holds what every ripping command shares: the logger, the HTTP
// client and the metrics registry.
type runner struct {
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
	client   *http.Client
	registry *prometheus.Registry
	metrics  *fetch.Metrics
}

func newRunner(cmd *cobra.Command, cfg *config.Config) (*runner, error) {
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)

	client, err := fetch.NewHTTPClient(fetch.ClientOptions{
		ProxyAddress:    cfg.ProxyAddress,
		MaxConnsPerHost: cfg.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	reg := prometheus.NewRegistry()
	return &runner{
		logger:   logger,
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
		client:   client,
		registry: reg,
		metrics:  fetch.NewMetrics(reg),
	}, nil
}

// components builds the pipeline collaborators for cfg. Runs ranked from
// a records file get no fetcher.
func (r *runner) components(cfg *config.Config) (pipeline.Components, error) {
	c := pipeline.Components{
		Normalizer: normalize.New(normalize.WithLogger(r.logger)),
		Engine: rarity.New(
			rarity.WithMarketplace(cfg.MarketplaceURL, cfg.Contract),
			rarity.WithLogger(r.logger),
		),
		Logger: r.logger,
	}

	if cfg.FromRecords == "" {
		opts := []fetch.Option{
			fetch.WithConcurrency(cfg.Concurrency),
			fetch.WithBatchTimeout(cfg.BatchTimeout),
			fetch.WithTaskTimeout(cfg.TaskTimeout),
			fetch.WithRetryPolicy(cfg.RetryPolicy()),
			fetch.WithUserAgent(cfg.UserAgent),
			fetch.WithMaxBodySize(cfg.MaxBodySize),
			fetch.WithLogger(r.logger),
			fetch.WithMetrics(r.metrics),
		}
		if !cfg.NoProgress {
			opts = append(opts, fetch.WithProgressWriter(r.stderr))
		}
		f, err := fetch.New(r.client, opts...)
		if err != nil {
			return c, err
		}
		c.Fetcher = f
	}

	if cfg.Prices {
		c.Prices = pricing.NewOpenSeaClient(r.client,
			pricing.WithAPIKey(cfg.OpenSeaKey),
			pricing.WithCollection(cfg.CollectionSlug),
			pricing.WithLogger(r.logger),
		)
	}
	return c, nil
}

func (r *runner) pipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	c, err := r.components(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.DefaultPipeline(c), nil
}

// newRun prepares a run from cfg: either the fetch tasks of the stub or
// the records of a saved file.
func newRun(cfg *config.Config) (*model.Run, error) {
	run := model.NewRun(cfg.CollectionKey())
	run.Contract = cfg.Contract

	if cfg.FromRecords != "" {
		records, err := readRecords(cfg.FromRecords)
		if err != nil {
			return nil, err
		}
		run.Records = records
		run.Stats.Normalized = len(records)
		return run, nil
	}

	run.Tasks = source.GenerateURLs(cfg.StubURL(), source.Range(cfg.Start, cfg.Count), cfg.SourceOptions()...)
	return run, nil
}

// rip runs the pipeline for run and writes every output.
func (r *runner) rip(ctx context.Context, cfg *config.Config, run *model.Run) error {
	p, err := r.pipeline(cfg)
	if err != nil {
		return err
	}
	err = p.Execute(ctx, run)
	if err = r.resume(ctx, p, run, err); err != nil {
		return err
	}
	return r.finish(ctx, cfg, run)
}

// resume finishes a run whose pipeline was cancelled so that the partial
// results still get ranked.
func (r *runner) resume(ctx context.Context, p *pipeline.Pipeline, run *model.Run, err error) error {
	if !run.Interrupted || !errors.Is(err, context.Canceled) {
		return err
	}
	if run.Results == nil && run.Records == nil {
		return err
	}
	fmt.Fprintln(r.stderr, "Interrupted: ranking the items fetched so far")

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resumeTimeout)
	defer cancel()
	return p.Resume(rctx, run)
}

// finish writes the records file, the report and the history entry.
func (r *runner) finish(ctx context.Context, cfg *config.Config, run *model.Run) error {
	if cfg.RecordsFile != "" {
		if err := writeRecords(cfg.RecordsFile, run.Records); err != nil {
			return err
		}
	}

	if err := r.writeReport(cfg, run); err != nil {
		return err
	}

	r.saveRun(context.WithoutCancel(ctx), cfg, run)
	r.printSummary(cfg, run)

	if cfg.Metrics {
		if err := r.dumpMetrics(); err != nil {
			r.logger.Warn("failed to write metrics", "error", err)
		}
	}
	return nil
}

func (r *runner) writeReport(cfg *config.Config, run *model.Run) error {
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	write := func(out io.Writer) error {
		w, err := report.NewWriter(format, out, report.Options{
			Top:     cfg.Top,
			Version: getVersion(),
			Pretty:  true,
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(run); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	if cfg.OutputFile == "" {
		return write(r.stdout)
	}
	f, err := createFile(cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return writeAndClose(f, write)
}

// saveRun stores run in the history database. Failures are logged only;
// the report has already been written.
func (r *runner) saveRun(ctx context.Context, cfg *config.Config, run *model.Run) {
	if !cfg.SaveToDB || run.Table == nil {
		return
	}
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		r.logger.Error("failed to open history database", "dir", cfg.DBDir, "error", err)
		return
	}
	defer db.Close()

	if err := db.SaveRun(ctx, run); err != nil {
		r.logger.Error("failed to save run", "collection", run.Collection, "error", err)
		return
	}
	r.logger.Info("run saved", "id", run.ID, "collection", run.Collection)
}

func (r *runner) printSummary(cfg *config.Config, run *model.Run) {
	w := r.stderr
	if cfg.FromRecords == "" {
		fmt.Fprintf(w, "Fetched %d of %d items in %s\n",
			run.Stats.Fetched, run.Stats.Requested, run.Elapsed.Round(time.Millisecond))
	}
	if run.Stats.Skipped > 0 {
		fmt.Fprintf(w, "Skipped %d malformed records\n", run.Stats.Skipped)
	}
	switch {
	case run.TimedOut:
		fmt.Fprintln(w, "Batch deadline reached: results are partial")
	case run.Interrupted:
		fmt.Fprintln(w, "Run was interrupted: results are partial")
	}

	if run.NoAttributeData() {
		fmt.Fprintln(w, report.NothingToRank)
	} else if run.Table != nil {
		fmt.Fprintf(w, "Ranked %d items\n", len(run.Table.Rows))
	}
	if cfg.OutputFile != "" {
		fmt.Fprintf(w, "Wrote %s\n", cfg.OutputFile)
	}
}

func (r *runner) dumpMetrics() error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	return writeMetrics(r.stderr, families)
}

// writeMetrics renders families in the Prometheus text format.
func writeMetrics(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// createFile creates path and its parent directories. Reports are written
// readable by the owner only.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
}

func writeRecords(path string, records []model.TraitRecord) error {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create records file: %w", err)
	}
	return writeAndClose(f, func(w io.Writer) error {
		return normalize.SaveRecords(w, records)
	})
}

// writeAndClose runs write against wc and then closes it. A close error is
// returned when the write succeeded.
func writeAndClose(wc io.WriteCloser, write func(io.Writer) error) error {
	if err := write(wc); err != nil {
		_ = wc.Close() //nolint:errcheck // the write error is reported
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

func readRecords(path string) ([]model.TraitRecord, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided records path
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()
	return normalize.LoadRecords(f)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
