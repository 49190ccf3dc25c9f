package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/ledger"
)

// NewRipCmd creates the rip command.
func NewRipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rip <stub> <count>",
		Short: "Fetch a collection's metadata and rank it by rarity",
		Long: `Rip downloads the metadata document of items <start> to <start>+<count>-1,
where the URL of item i is <stub><i><suffix>, then ranks the items by the
rarity of their traits.

ipfs:// stubs are fetched through the gateway given with --gateway. Items
that fail are reported and left out of the ranking. A rate-limited item is
retried with backoff without affecting the others.

Examples:
  # Rip 10000 items from an IPFS folder
  ripnft rip ipfs://QmeSjSinHpPnmXmspMjwiXyN6zS4E9zccariGR3jxcaWtq/ 10000

  # Same, passing the bare content identifier
  ripnft rip --ipfs QmeSjSinHpPnmXmspMjwiXyN6zS4E9zccariGR3jxcaWtq 10000

  # HTTP metadata server with a .json suffix, Markdown to stdout
  ripnft rip https://example.com/meta/ 500 --suffix .json --format markdown

  # Add marketplace links and prices
  ripnft rip ipfs://CID/ 100 --contract 0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D --prices

  # Save the normalized records, then re-rank them later without fetching
  ripnft rip ipfs://CID/ 100 --records apes.json
  ripnft rip --from-records apes.json --format text`,
		Args: cobra.MaximumNArgs(2),
		RunE: runRipCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().Bool("ipfs", false, "Treat the stub as a bare IPFS content identifier")
	cmd.Flags().String("contract", "", "Token contract address for marketplace links and prices")
	cmd.Flags().String("from-records", "", "Rank a records file saved with --records instead of fetching")

	return cmd
}

func runRipCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildRipConfig(cmd, args)
	if err != nil {
		return err
	}

	r, err := newRunner(cmd, cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd, r.logger)
	defer cancel()

	run, err := newRun(cfg)
	if err != nil {
		return err
	}
	r.logger.Info("starting rip",
		"collection", run.Collection,
		"items", len(run.Tasks),
		"concurrency", cfg.Concurrency,
	)
	return r.rip(ctx, cfg, run)
}

// buildRipConfig combines flags, positional arguments and the config file.
func buildRipConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := buildRunConfig(cmd)
	if err != nil {
		return nil, err
	}
	fr := &flagReader{cmd: cmd}
	cfg.IPFS = fr.boolean("ipfs")
	contract := fr.str("contract")
	cfg.FromRecords = fr.str("from-records")
	if fr.err != nil {
		return nil, fr.err
	}

	if len(args) > 0 {
		cfg.Stub = args[0]
	}
	if len(args) > 1 {
		cfg.Count, err = strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", config.ErrInvalidCount, args[1])
		}
	}
	if contract != "" {
		if cfg.Contract, err = ledger.ChecksumAddress(contract); err != nil {
			return nil, err
		}
	}

	if err := applyConfigFile(cmd, cfg); err != nil {
		return nil, err
	}
	if err := resolveOutput(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}
