package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for ripnft.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ripnft",
		Short: "Rip NFT collection metadata and rank items by rarity",
		Long: `ripnft downloads the metadata document of every item in an NFT collection,
aggregates the trait attributes and ranks the items by rarity.

The ranked table is written as CSV by default. JSON, Markdown and a
terminal summary are also available. Every run is kept in a local history
database so that rankings can be compared over time.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewRipCmd())
	cmd.AddCommand(NewLedgerCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
