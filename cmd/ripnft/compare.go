package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/ripnft/internal/config"
	"github.com/nao1215/ripnft/internal/database"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/report"
)

// errTooFewRuns is returned when a collection has fewer than two runs.
var errTooFewRuns = errors.New("at least 2 saved runs are required for comparison")

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <collection>",
		Short: "Compare the latest ranking of a collection with an earlier one",
		Long: `Compare shows how the ranking of a collection changed between two saved runs.

By default the latest run is compared with the one before it. The output
lists items that moved in rank, items that appeared or disappeared, and
trait columns that were added or removed.

Examples:
  # Compare the latest two runs
  ripnft compare 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d

  # Compare with a specific run
  ripnft compare 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d --with-run 3

  # Compare with the first run since a date, as Markdown
  ripnft compare ipfs://QmeSjSinHpPnmXmspMjwiXyN6zS4E9zccariGR3jxcaWtq/ --since 2026-01-01 -f markdown`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().Int64P("with-run", "i", 0, "Compare with the saved run with this ID")
	cmd.Flags().StringP("since", "s", "", "Compare with the first run on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringP("format", "f", string(report.FormatText), "Output format: json, markdown or text")
	cmd.Flags().Int("top", config.DefaultTop, "Largest rank moves shown (0 shows all)")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

// RunSummary identifies one side of a comparison.
type RunSummary struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Ranked    int       `json:"ranked"`
}

// RankMove is the rank change of one item. Delta is positive when the
// item became rarer.
type RankMove struct {
	Index        int `json:"index"`
	PreviousRank int `json:"previous_rank"`
	CurrentRank  int `json:"current_rank"`
	Delta        int `json:"delta"`
}

// ComparisonResult is the difference between two runs of a collection.
type ComparisonResult struct {
	Collection     string     `json:"collection"`
	Previous       RunSummary `json:"previous"`
	Current        RunSummary `json:"current"`
	Moves          []RankMove `json:"moves"`
	NewItems       []int      `json:"new_items,omitempty"`
	DroppedItems   []int      `json:"dropped_items,omitempty"`
	AddedColumns   []string   `json:"added_columns,omitempty"`
	RemovedColumns []string   `json:"removed_columns,omitempty"`
	UnchangedCount int        `json:"unchanged_count"`
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	fr := &flagReader{cmd: cmd}
	since := fr.str("since")
	formatName := fr.str("format")
	top := fr.integer("top")
	dbDir := fr.str("db-dir")
	withRun, err := cmd.Flags().GetInt64("with-run")
	fr.keep(err)
	if fr.err != nil {
		return fr.err
	}

	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.Options{})
	if err != nil {
		return err
	}
	defer db.Close()

	collection := normalizeCollection(args[0])
	previous, current, err := selectRuns(cmd.Context(), db, collection, withRun, since)
	if err != nil {
		return err
	}

	result := compareRuns(previous, current)
	out := cmd.OutOrStdout()
	switch format {
	case report.FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case report.FormatMarkdown:
		return writeComparisonMarkdown(out, result, top)
	default:
		return writeComparisonText(out, result, top)
	}
}

// selectRuns returns the runs to compare. The latest run is always the
// current one.
func selectRuns(ctx context.Context, db *database.RunDB, collection string, withRun int64, since string) (*model.Run, *model.Run, error) {
	history, err := db.GetRunHistory(ctx, collection)
	if err != nil {
		return nil, nil, err
	}
	if len(history) == 0 {
		return nil, nil, fmt.Errorf("no saved runs for %s", collection)
	}

	var previousID int64
	switch {
	case withRun > 0:
		previousID = withRun
	case since != "":
		date, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		// History is newest first; the oldest run on or after date wins.
		for i := len(history) - 1; i >= 0; i-- {
			if !history[i].StartedAt.Before(date) {
				previousID = history[i].ID
				break
			}
		}
		if previousID == 0 {
			return nil, nil, fmt.Errorf("no saved runs since %s", since)
		}
	default:
		if len(history) < 2 {
			return nil, nil, fmt.Errorf("%w (found %d)", errTooFewRuns, len(history))
		}
		previousID = history[1].ID
	}
	if previousID == history[0].ID {
		return nil, nil, fmt.Errorf("%w: run %d is the latest run", errTooFewRuns, previousID)
	}

	previous, err := db.GetRunByID(ctx, previousID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run %d: %w", previousID, err)
	}
	if previous.Collection != collection {
		return nil, nil, fmt.Errorf("run %d belongs to %s, not %s", previousID, previous.Collection, collection)
	}
	current, err := db.GetRunByID(ctx, history[0].ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run %d: %w", history[0].ID, err)
	}
	return previous, current, nil
}

// compareRuns diffs the ranked tables of two runs. Moves are ordered by
// the size of the move, then by index.
func compareRuns(previous, current *model.Run) *ComparisonResult {
	result := &ComparisonResult{
		Collection: current.Collection,
		Previous:   summarize(previous),
		Current:    summarize(current),
		Moves:      []RankMove{},
	}

	prevRanks := rankByIndex(previous.Table)
	curRanks := rankByIndex(current.Table)

	for index, cur := range curRanks {
		prev, ok := prevRanks[index]
		switch {
		case !ok:
			result.NewItems = append(result.NewItems, index)
		case prev == cur:
			result.UnchangedCount++
		default:
			result.Moves = append(result.Moves, RankMove{
				Index:        index,
				PreviousRank: prev,
				CurrentRank:  cur,
				Delta:        prev - cur,
			})
		}
	}
	for index := range prevRanks {
		if _, ok := curRanks[index]; !ok {
			result.DroppedItems = append(result.DroppedItems, index)
		}
	}
	slices.Sort(result.NewItems)
	slices.Sort(result.DroppedItems)
	slices.SortFunc(result.Moves, func(a, b RankMove) int {
		if d := abs(b.Delta) - abs(a.Delta); d != 0 {
			return d
		}
		return a.Index - b.Index
	})

	prevCols, curCols := columns(previous.Table), columns(current.Table)
	for _, c := range curCols {
		if !slices.Contains(prevCols, c) {
			result.AddedColumns = append(result.AddedColumns, c)
		}
	}
	for _, c := range prevCols {
		if !slices.Contains(curCols, c) {
			result.RemovedColumns = append(result.RemovedColumns, c)
		}
	}
	return result
}

func summarize(run *model.Run) RunSummary {
	s := RunSummary{ID: run.ID, StartedAt: run.StartedAt}
	if run.Table != nil {
		s.Ranked = len(run.Table.Rows)
	}
	return s
}

func rankByIndex(table *model.RarityTable) map[int]int {
	ranks := make(map[int]int)
	if table == nil {
		return ranks
	}
	for _, row := range table.Rows {
		ranks[row.Index] = row.Rank
	}
	return ranks
}

func columns(table *model.RarityTable) []string {
	if table == nil {
		return nil
	}
	return table.Columns
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// formatDelta formats a rank move with its sign.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

func limitMoves(moves []RankMove, top int) []RankMove {
	if top > 0 && len(moves) > top {
		return moves[:top]
	}
	return moves
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func writeComparisonText(out io.Writer, result *ComparisonResult, top int) error {
	fmt.Fprintf(out, "Ranking Comparison: %s\n", result.Collection)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "\nPrevious run: #%d %s (%d ranked)\n",
		result.Previous.ID, result.Previous.StartedAt.Local().Format(time.DateTime), result.Previous.Ranked)
	fmt.Fprintf(out, "Current run:  #%d %s (%d ranked)\n",
		result.Current.ID, result.Current.StartedAt.Local().Format(time.DateTime), result.Current.Ranked)

	if len(result.Moves) > 0 {
		fmt.Fprintf(out, "\nRank Moves (%d):\n", len(result.Moves))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  INDEX\tPREVIOUS\tCURRENT\tCHANGE")
		for _, m := range limitMoves(result.Moves, top) {
			fmt.Fprintf(tw, "  %d\t%d\t%d\t%s\n", m.Index, m.PreviousRank, m.CurrentRank, formatDelta(m.Delta))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(result.NewItems) > 0 {
		fmt.Fprintf(out, "\nNew Items (%d): %s\n", len(result.NewItems), joinInts(result.NewItems))
	}
	if len(result.DroppedItems) > 0 {
		fmt.Fprintf(out, "\nDropped Items (%d): %s\n", len(result.DroppedItems), joinInts(result.DroppedItems))
	}
	if len(result.AddedColumns) > 0 {
		fmt.Fprintf(out, "\nAdded Traits: %s\n", strings.Join(result.AddedColumns, ", "))
	}
	if len(result.RemovedColumns) > 0 {
		fmt.Fprintf(out, "\nRemoved Traits: %s\n", strings.Join(result.RemovedColumns, ", "))
	}
	_, err := fmt.Fprintf(out, "\nUnchanged: %d items\n", result.UnchangedCount)
	return err
}

func writeComparisonMarkdown(out io.Writer, result *ComparisonResult, top int) error {
	md := markdown.NewMarkdown(out)
	md.H1("Ranking Comparison: " + result.Collection)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", "#" + strconv.FormatInt(result.Previous.ID, 10), "#" + strconv.FormatInt(result.Current.ID, 10), "-"},
			{"Date", result.Previous.StartedAt.Format("2006-01-02 15:04"), result.Current.StartedAt.Format("2006-01-02 15:04"), "-"},
			{"Ranked", strconv.Itoa(result.Previous.Ranked), strconv.Itoa(result.Current.Ranked),
				formatDelta(result.Current.Ranked - result.Previous.Ranked)},
		},
	})
	md.PlainText("")

	if len(result.Moves) > 0 {
		md.H2(fmt.Sprintf("Rank Moves (%d)", len(result.Moves)))
		md.PlainText("")
		moves := limitMoves(result.Moves, top)
		rows := make([][]string, len(moves))
		for i, m := range moves {
			rows[i] = []string{strconv.Itoa(m.Index), strconv.Itoa(m.PreviousRank), strconv.Itoa(m.CurrentRank), formatDelta(m.Delta)}
		}
		md.Table(markdown.TableSet{Header: []string{"Index", "Previous", "Current", "Change"}, Rows: rows})
		md.PlainText("")
	}
	if len(result.NewItems) > 0 {
		md.H2(fmt.Sprintf("New Items (%d)", len(result.NewItems)))
		md.PlainText("")
		md.PlainText(joinInts(result.NewItems))
		md.PlainText("")
	}
	if len(result.DroppedItems) > 0 {
		md.H2(fmt.Sprintf("Dropped Items (%d)", len(result.DroppedItems)))
		md.PlainText("")
		md.PlainText(joinInts(result.DroppedItems))
		md.PlainText("")
	}
	if len(result.AddedColumns) > 0 || len(result.RemovedColumns) > 0 {
		md.H2("Trait Changes")
		md.PlainText("")
		var items []string
		for _, c := range result.AddedColumns {
			items = append(items, "added: "+markdown.Code(c))
		}
		for _, c := range result.RemovedColumns {
			items = append(items, "removed: "+markdown.Code(c))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*%d items unchanged*", result.UnchangedCount)
	return md.Build()
}
