package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/rarity"
	"github.com/nao1215/ripnft/internal/report"
	"github.com/nao1215/ripnft/internal/source"
)

// addRunFlags registers the flags shared by every command that rips a
// collection.
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	// Item URLs
	f.String("suffix", "", "Suffix appended to each item URL, e.g. .json")
	f.String("gateway", source.DefaultGateway, "IPFS gateway host for ipfs:// references")
	f.Bool("http", false, "Use plain http for the gateway")
	f.Int("start", 0, "First item index")

	// Fetching
	f.IntP("concurrency", "C", config.DefaultConcurrency, "Maximum number of metadata requests in flight")
	f.DurationP("timeout", "t", config.DefaultBatchTimeout, "Deadline for the whole fetch stage")
	f.Duration("task-timeout", config.DefaultTaskTimeout, "Deadline for each item (0 disables it)")
	f.Int("retries", config.DefaultRetries, "Extra attempts for rate-limited items")
	f.String("user-agent", config.DefaultUserAgent, "User-Agent header for metadata requests")
	f.Int64("max-body-size", config.DefaultMaxBodySize, "Maximum metadata document size in bytes")
	f.String("proxy", "", "SOCKS5 proxy address (host:port)")
	f.Bool("no-progress", false, "Do not render the progress bar")
	f.Bool("metrics", false, "Print fetch metrics to stderr after the run")

	// Ranking and output
	f.String("marketplace", rarity.DefaultMarketplaceURL, "Marketplace base URL for item links")
	f.Bool("prices", false, "Look up marketplace prices for ranked items")
	f.String("opensea-key", "", "Marketplace API key used with --prices")
	f.String("collection-slug", "", "Marketplace collection slug for --prices when no contract is known")
	f.StringP("format", "f", config.DefaultFormat, "Output format: csv, json, markdown or text")
	f.StringP("output", "o", "",
		`Output file, "-" for stdout (default: output.csv for csv, stdout otherwise)`)
	f.Int("top", config.DefaultTop, "Rows shown by text and markdown output")
	f.String("records", "", "Also save the normalized records as JSON to this file")
	f.Bool("no-save", false, "Do not save the run to the history database")
	f.StringP("config", "c", "",
		"Configuration file path (default: .ripnft in current, config or home directory)")
}

// flagReader reads flags and keeps the first error.
type flagReader struct {
	cmd *cobra.Command
	err error
}

func (r *flagReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *flagReader) str(name string) string {
	v, err := r.cmd.Flags().GetString(name)
	r.keep(err)
	return v
}

func (r *flagReader) integer(name string) int {
	v, err := r.cmd.Flags().GetInt(name)
	r.keep(err)
	return v
}

func (r *flagReader) int64(name string) int64 {
	v, err := r.cmd.Flags().GetInt64(name)
	r.keep(err)
	return v
}

func (r *flagReader) boolean(name string) bool {
	v, err := r.cmd.Flags().GetBool(name)
	r.keep(err)
	return v
}

func (r *flagReader) duration(name string) time.Duration {
	v, err := r.cmd.Flags().GetDuration(name)
	r.keep(err)
	return v
}

// buildRunConfig creates a Config from the flags registered by addRunFlags.
func buildRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	r := &flagReader{cmd: cmd}

	cfg.Suffix = r.str("suffix")
	cfg.Gateway = r.str("gateway")
	cfg.HTTP = r.boolean("http")
	cfg.Start = r.integer("start")

	cfg.Concurrency = r.integer("concurrency")
	cfg.BatchTimeout = r.duration("timeout")
	cfg.TaskTimeout = r.duration("task-timeout")
	cfg.Retries = r.integer("retries")
	cfg.UserAgent = r.str("user-agent")
	cfg.MaxBodySize = r.int64("max-body-size")
	cfg.ProxyAddress = r.str("proxy")
	cfg.NoProgress = r.boolean("no-progress")
	cfg.Metrics = r.boolean("metrics")

	cfg.MarketplaceURL = r.str("marketplace")
	cfg.Prices = r.boolean("prices")
	cfg.OpenSeaKey = r.str("opensea-key")
	cfg.CollectionSlug = r.str("collection-slug")
	cfg.Format = r.str("format")
	cfg.Top = r.integer("top")
	cfg.RecordsFile = r.str("records")
	cfg.SaveToDB = !r.boolean("no-save")
	cfg.ConfigFilePath = r.str("config")

	if r.err != nil {
		return nil, r.err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfigFile finds the configuration file for cfg. An explicit path
// that does not exist is an error; otherwise a missing file yields nil.
func loadConfigFile(cfg *config.Config) (*config.File, error) {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if cfg.ConfigFilePath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		return nil, nil
	}
	f, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return f, nil
}

// applyConfigFile merges the configuration file into cfg. Stub and
// contract must already be set so that the matching collection is found.
func applyConfigFile(cmd *cobra.Command, cfg *config.Config) error {
	f, err := loadConfigFile(cfg)
	if err != nil {
		return err
	}
	cfg.ApplyFile(f, cmd.Flags().Changed)
	return nil
}

// resolveOutput decides where the report goes. CSV defaults to a file,
// every other format to stdout.
func resolveOutput(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("output") {
		out, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		if out == "-" {
			out = ""
		}
		cfg.OutputFile = out
		return nil
	}
	if format, err := report.ParseFormat(cfg.Format); err == nil && format != report.FormatCSV {
		cfg.OutputFile = ""
	}
	return nil
}
