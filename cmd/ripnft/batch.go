package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/ledger"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/pipeline"
	"github.com/nao1215/ripnft/internal/report"
)

// defaultParallel is the number of collections ripped at once.
const defaultParallel = 2

// errNoCollections is returned when the config file lists nothing to rip.
var errNoCollections = errors.New("no collections with both stub and count in the configuration file")

// NewBatchCmd creates the batch command.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [name...]",
		Short: "Rip every collection listed in the configuration file",
		Long: `Batch rips the collections of the configuration file that set both
stub and count. Names restrict the batch to those entries.

Each collection is written to <output-dir>/<name>.<ext>. Per-collection
settings in the file apply to their own collection only; flags given on
the command line apply to all of them.

Examples:
  # Rip every collection in .ripnft
  ripnft batch

  # Rip two of them as Markdown into ./reports
  ripnft batch boredapes punks --format markdown --output-dir reports`,
		RunE: runBatchCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().String("output-dir", ".", "Directory for per-collection output files")
	cmd.Flags().Int("parallel", defaultParallel, "Number of collections ripped at the same time")

	return cmd
}

// batchEntry is one collection of a batch with its own settings.
type batchEntry struct {
	name     string
	cfg      *config.Config
	pipeline *pipeline.Pipeline
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	base, err := buildRunConfig(cmd)
	if err != nil {
		return err
	}
	fr := &flagReader{cmd: cmd}
	outputDir := fr.str("output-dir")
	parallel := fr.integer("parallel")
	if fr.err != nil {
		return fr.err
	}

	f, err := loadConfigFile(base)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w (create one with \"ripnft init\")", config.ErrConfigNotFound)
	}

	named := selectCollections(f.Named(), args)
	if len(named) == 0 {
		return errNoCollections
	}

	r, err := newRunner(cmd, base)
	if err != nil {
		return err
	}

	entries := make(map[*model.Run]*batchEntry, len(named))
	runs := make([]*model.Run, 0, len(named))
	for _, nc := range named {
		cfg, err := collectionConfig(cmd, base, nc, outputDir, parallel)
		if err != nil {
			return fmt.Errorf("collection %s: %w", nc.Name, err)
		}
		p, err := r.pipeline(cfg)
		if err != nil {
			return fmt.Errorf("collection %s: %w", nc.Name, err)
		}
		run, err := newRun(cfg)
		if err != nil {
			return fmt.Errorf("collection %s: %w", nc.Name, err)
		}
		entries[run] = &batchEntry{name: nc.Name, cfg: cfg, pipeline: p}
		runs = append(runs, run)
	}

	ctx, cancel := signalContext(cmd, r.logger)
	defer cancel()

	bp := pipeline.NewBatchProcessor(
		func(run *model.Run) *pipeline.Pipeline { return entries[run].pipeline },
		pipeline.WithConcurrency(parallel),
		pipeline.WithBatchLogger(r.logger),
	)

	var mu sync.Mutex
	var failed []string
	done := 0
	err = bp.ProcessBatch(ctx, runs, func(run *model.Run) {
		mu.Lock()
		defer mu.Unlock()
		done++

		e := entries[run]
		fmt.Fprintf(r.stderr, "[%d/%d] %s\n", done, len(runs), e.name)

		if err := r.resume(ctx, e.pipeline, run, ctx.Err()); err != nil {
			r.logger.Error("failed to finish interrupted run", "collection", e.name, "error", err)
		}
		if run.Error != nil && run.Table == nil {
			failed = append(failed, e.name)
			return
		}
		if err := r.finish(ctx, e.cfg, run); err != nil {
			r.logger.Error("failed to write collection", "collection", e.name, "error", err)
			failed = append(failed, e.name)
		}
	})
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		return fmt.Errorf("%d of %d collections failed: %s", len(failed), len(runs), strings.Join(failed, ", "))
	}
	return nil
}

// selectCollections keeps the entries that can be ripped and, when names
// are given, only those.
func selectCollections(all []config.NamedCollection, names []string) []config.NamedCollection {
	out := make([]config.NamedCollection, 0, len(all))
	for _, nc := range all {
		if nc.Stub == "" || nc.Count <= 0 {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, nc.Name) {
			continue
		}
		out = append(out, nc)
	}
	return out
}

// collectionConfig derives the settings of one batch collection from the
// shared flags and its config entry.
func collectionConfig(cmd *cobra.Command, base *config.Config, nc config.NamedCollection, outputDir string, parallel int) (*config.Config, error) {
	cfg := *base
	cfg.Stub = nc.Stub
	cfg.Count = nc.Count
	cfg.ApplyCollection(nc.CollectionConfig, cmd.Flags().Changed)

	if cfg.Contract != "" {
		contract, err := ledger.ChecksumAddress(cfg.Contract)
		if err != nil {
			return nil, err
		}
		cfg.Contract = contract
	}
	// Concurrent progress bars would overwrite each other.
	if parallel > 1 {
		cfg.NoProgress = true
	}

	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", config.ErrInvalidFormat)
	}
	cfg.OutputFile = filepath.Join(outputDir, fileName(nc.Name)+extension(format))
	if cfg.RecordsFile != "" {
		cfg.RecordsFile = filepath.Join(outputDir, fileName(nc.Name)+".records.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return &cfg, nil
}

func extension(f report.Format) string {
	switch f {
	case report.FormatJSON:
		return ".json"
	case report.FormatMarkdown:
		return ".md"
	case report.FormatText:
		return ".txt"
	default:
		return ".csv"
	}
}

// fileName turns a collection key into a safe file name.
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
