package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/database"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/rarity"
	"github.com/nao1215/ripnft/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [collection]",
		Short: "Show saved runs",
		Long: `History reads the runs saved by earlier rips.

Without arguments it lists the collections that have saved runs. With a
collection it lists the runs of that collection, newest first.

Examples:
  # List collections
  ripnft history

  # List the runs of a collection
  ripnft history 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d

  # Show the latest ranking of a collection
  ripnft history 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d --latest

  # Show how the rank of item 42 changed over time
  ripnft history 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d --item 42

  # Show a stored run as Markdown
  ripnft history --run 7 --format markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Bool("latest", false, "Show the latest ranking of the collection")
	cmd.Flags().Int("item", -1, "Show the rank history of one item index")
	cmd.Flags().Int64("run", 0, "Show the stored run with this ID")
	cmd.Flags().StringP("format", "f", string(report.FormatText), "Format for --latest and --run: json, markdown or text")
	cmd.Flags().Int("top", config.DefaultTop, "Rows shown for --latest and --run")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	fr := &flagReader{cmd: cmd}
	latest := fr.boolean("latest")
	item := fr.integer("item")
	runID, err := cmd.Flags().GetInt64("run")
	fr.keep(err)
	formatName := fr.str("format")
	top := fr.integer("top")
	dbDir := fr.str("db-dir")
	if fr.err != nil {
		return fr.err
	}

	db, err := database.Open(dbDir, database.Options{})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	showRun := func(run *model.Run) error {
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		w, err := report.NewWriter(format, out, report.Options{Top: top, Version: getVersion(), Pretty: true})
		if err != nil {
			return err
		}
		_, err = w.Write(run)
		return err
	}

	switch {
	case runID > 0:
		run, err := db.GetRunByID(ctx, runID)
		if err != nil {
			return err
		}
		return showRun(run)
	case len(args) == 0:
		collections, err := db.ListCollections(ctx)
		if err != nil {
			return err
		}
		if len(collections) == 0 {
			fmt.Fprintln(out, "No saved runs.")
			return nil
		}
		for _, c := range collections {
			fmt.Fprintln(out, c)
		}
		return nil
	}

	collection := normalizeCollection(args[0])
	switch {
	case latest:
		run, err := db.GetLatestRun(ctx, collection)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("no saved runs for %s", collection)
		}
		if err != nil {
			return err
		}
		return showRun(run)
	case item >= 0:
		ranks, err := db.GetItemHistory(ctx, collection, item)
		if err != nil {
			return err
		}
		return writeItemHistory(out, item, ranks)
	default:
		runs, err := db.GetRunHistory(ctx, collection)
		if err != nil {
			return err
		}
		return writeRunHistory(out, collection, runs)
	}
}

// normalizeCollection matches the key used when runs are saved: contract
// addresses are stored in lower case.
func normalizeCollection(key string) string {
	if strings.HasPrefix(key, "0x") || strings.HasPrefix(key, "0X") {
		return strings.ToLower(key)
	}
	return key
}

func writeRunHistory(out io.Writer, collection string, runs []database.RunMetadata) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintf(out, "No saved runs for %s.\n", collection)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tELAPSED\tFETCHED\tRANKED\tSTATUS")
	for _, m := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d\t%s\n",
			m.ID,
			m.StartedAt.Local().Format(time.DateTime),
			m.Elapsed.Round(time.Second),
			m.Fetched, m.Requested,
			m.Ranked,
			runStatus(m),
		)
	}
	return tw.Flush()
}

func runStatus(m database.RunMetadata) string {
	switch {
	case m.Error != "":
		return "failed"
	case m.TimedOut:
		return "timed out"
	case m.Interrupted:
		return "interrupted"
	case m.Ranked == 0:
		return "no attribute data"
	default:
		return "ok"
	}
}

func writeItemHistory(out io.Writer, index int, ranks []database.ItemRank) error {
	if len(ranks) == 0 {
		_, err := fmt.Fprintf(out, "Item %d has no saved ranking.\n", index)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tRANK\tSCORE\tSTANDARD\tPRICE")
	for _, ir := range ranks {
		price := "-"
		if ir.Price != nil {
			price = strconv.FormatFloat(*ir.Price, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%.3f\t%s\n",
			ir.RunID,
			ir.StartedAt.Local().Format(time.DateTime),
			ir.Rank,
			rarity.FormatScore(ir.RarityScore),
			ir.StandardScore,
			price,
		)
	}
	return tw.Flush()
}
