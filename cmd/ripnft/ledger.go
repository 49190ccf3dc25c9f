package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/ledger"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/source"
)

// sampleAttempts is how many leading indices are tried when inferring
// the URL stub from tokenURI.
const sampleAttempts = 3

// NewLedgerCmd creates the ledger command.
func NewLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger <contract> [count]",
		Short: "Rip a collection located through its token contract",
		Long: `Ledger reads the collection size and item URLs from the token contract
over an Ethereum JSON-RPC endpoint, then rips and ranks the collection.

The item count defaults to totalSupply()+1, capped by --max. The URL stub
and suffix are inferred from the tokenURI of the first items. Contracts
whose items do not share a stub can be ripped with --per-token, which
reads tokenURI for every item.

Examples:
  # Rip a collection through an RPC endpoint
  ripnft ledger 0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D --rpc https://mainnet.infura.io/v3/<id>

  # Only the first 500 items, with prices
  ripnft ledger 0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D --max 500 --prices

  # Read every tokenURI individually
  ripnft ledger 0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D --per-token`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runLedgerCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().String("rpc", "", "Ethereum JSON-RPC endpoint URL")
	cmd.Flags().Int("max", 0, "Maximum number of items to rip (0 means no limit)")
	cmd.Flags().Bool("per-token", false, "Read tokenURI for every item instead of inferring a stub")
	cmd.Flags().Int("rpc-concurrency", ledger.DefaultConcurrency, "Maximum concurrent tokenURI calls with --per-token")

	return cmd
}

type ledgerOptions struct {
	maximum        int
	perToken       bool
	rpcConcurrency int
}

func runLedgerCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildRunConfig(cmd)
	if err != nil {
		return err
	}
	fr := &flagReader{cmd: cmd}
	cfg.RPCURL = fr.str("rpc")
	opts := ledgerOptions{
		maximum:        fr.integer("max"),
		perToken:       fr.boolean("per-token"),
		rpcConcurrency: fr.integer("rpc-concurrency"),
	}
	if fr.err != nil {
		return fr.err
	}

	if cfg.Contract, err = ledger.ChecksumAddress(args[0]); err != nil {
		return err
	}
	if len(args) > 1 {
		if cfg.Count, err = strconv.Atoi(args[1]); err != nil || cfg.Count <= 0 {
			return fmt.Errorf("%w: %q", config.ErrInvalidCount, args[1])
		}
	}
	if err := applyConfigFile(cmd, cfg); err != nil {
		return err
	}
	if err := resolveOutput(cmd, cfg); err != nil {
		return err
	}

	r, err := newRunner(cmd, cfg)
	if err != nil {
		return err
	}
	lc, err := ledger.NewClient(cfg.RPCURL,
		ledger.WithHTTPClient(r.client),
		ledger.WithLogger(r.logger),
		ledger.WithConcurrency(opts.rpcConcurrency),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd, r.logger)
	defer cancel()

	run, err := ledgerRun(ctx, cmd, cfg, lc, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.stderr, "Contract %s: %d items from %s\n", cfg.Contract, cfg.Count, cfg.Stub)
	return r.rip(ctx, cfg, run)
}

// ledgerRun reads the item count and URLs from the contract and returns
// a run ready to fetch. cfg.Count and cfg.Stub are filled in.
func ledgerRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, lc *ledger.Client, opts ledgerOptions) (*model.Run, error) {
	if cfg.Count == 0 {
		count, err := lc.ItemCount(ctx, cfg.Contract, opts.maximum)
		if err != nil {
			return nil, fmt.Errorf("failed to read item count: %w", err)
		}
		cfg.Count = count
	} else if opts.maximum > 0 && cfg.Count > opts.maximum {
		cfg.Count = opts.maximum
	}
	indices := source.Range(cfg.Start, cfg.Count)

	if opts.perToken {
		// Per-token runs have no common stub; the contract stands in for it.
		cfg.Stub = cfg.Contract
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		tasks, err := lc.TokenURIs(ctx, cfg.Contract, indices, cfg.SourceOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to read token URIs: %w", err)
		}
		run := model.NewRun(cfg.CollectionKey())
		run.Contract = cfg.Contract
		run.Tasks = tasks
		return run, nil
	}

	stub, suffix, err := inferStub(ctx, lc, cfg.Contract, indices)
	if err != nil {
		return nil, err
	}
	cfg.Stub = stub
	if !cmd.Flags().Changed("suffix") {
		cfg.Suffix = suffix
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return newRun(cfg)
}

// inferStub reads tokenURI for the first indices until one yields a URL
// ending in its own index.
func inferStub(ctx context.Context, lc *ledger.Client, contract string, indices []int) (string, string, error) {
	var errs []error
	for i, index := range indices {
		if i == sampleAttempts {
			break
		}
		uri, err := lc.TokenURI(ctx, contract, index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stub, suffix, err := source.InferStub(uri, index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return stub, suffix, nil
	}
	if len(errs) == 0 {
		return "", "", fmt.Errorf("%w: no items to sample", config.ErrInvalidCount)
	}
	return "", "", fmt.Errorf("failed to infer url stub (try --per-token): %w", errors.Join(errs...))
}
