package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/rarity"
)

// DefaultTop is the number of rows shown by SimpleWriter when no limit is set.
const DefaultTop = 10

// SimpleWriter writes a terminal summary and the top of the ranking.
type SimpleWriter struct {
	baseWriter
	top     int
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithTop sets how many ranked rows are shown. Values below 1 keep DefaultTop.
func WithTop(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n > 0 {
			w.top = n
		}
	}
}

// WithVerbose adds trait frequency tables and failure counts.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		top:        DefaultTop,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders run.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, run)
	if run.Table.Empty() {
		sb.WriteString("  " + NothingToRank + "\n\n")
	} else {
		w.writeRanking(&sb, run.Table)
		if w.verbose {
			w.writeTraits(&sb, run.Table)
		}
	}
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.Run) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         RARITY REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Collection:  %s\n", run.Collection)
	if run.Contract != "" {
		fmt.Fprintf(sb, "Contract:    %s\n", run.Contract)
	}
	fmt.Fprintf(sb, "Fetched:     %d / %d\n", run.Stats.Fetched, run.Stats.Requested)
	fmt.Fprintf(sb, "Normalized:  %d (skipped %d)\n", run.Stats.Normalized, run.Stats.Skipped)
	fmt.Fprintf(sb, "Status:      %s\n", statusText(run))

	if w.verbose && len(run.Stats.Failures) > 0 {
		kinds := make([]string, 0, len(run.Stats.Failures))
		for k := range run.Stats.Failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		sb.WriteString("Failures:\n")
		for _, k := range kinds {
			fmt.Fprintf(sb, "  %-14s %d\n", k, run.Stats.Failures[k])
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeRanking(sb *strings.Builder, table *model.RarityTable) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "TOP %d OF %d\n", min(w.top, len(table.Rows)), len(table.Rows))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	withPrice := table.HasPrices()
	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	header := "  RANK\tINDEX\tSCORE\tSTANDARD"
	if withPrice {
		header += "\tPRICE"
	}
	fmt.Fprintln(tw, header)

	for i, row := range table.Rows {
		if i >= w.top {
			break
		}
		line := fmt.Sprintf("  %d\t%d\t%s\t%s", row.Rank, row.Index, rarity.FormatScore(row.RarityScore), formatFloat(row.StandardScore, 3))
		if withPrice {
			line += "\t" + formatPrice(row.Price)
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush() //nolint:errcheck // strings.Builder never fails
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTraits(sb *strings.Builder, table *model.RarityTable) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("TRAITS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, col := range table.Frequencies {
		fmt.Fprintf(sb, "[%s] %d values\n", col.Name, col.Distinct())
		values := make([]string, 0, len(col.Counts))
		for v := range col.Counts {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			fmt.Fprintf(sb, "  * %s\n", rarity.Annotate(v, col.Counts[v]))
		}
		sb.WriteString("\n")
	}
}
