package report

import (
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/rarity"
)

// MarkdownWriter writes a run summary and the ranked table as Markdown.
type MarkdownWriter struct {
	baseWriter
	top int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMarkdownTop limits the ranked table to the first n rows. Zero shows all.
func WithMarkdownTop(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		if n >= 0 {
			w.top = n
		}
	}
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders run.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeFetchChart(md, run)
	w.writeAlert(md, run)

	if run.Table.Empty() {
		md.H2("Ranking")
		md.PlainText("")
		md.PlainText(NothingToRank)
		md.PlainText("")
	} else {
		w.writeRanking(md, run.Table)
		w.writeTraits(md, run.Table)
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by ripnft*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run) {
	md.H1("Rarity Report: " + run.Collection)
	md.PlainText("")

	rows := [][]string{
		{"Collection", "`" + run.Collection + "`"},
	}
	if run.Contract != "" {
		rows = append(rows, []string{"Contract", "`" + run.Contract + "`"})
	}
	rows = append(rows,
		[]string{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Elapsed", run.Elapsed.Round(time.Millisecond).String()},
		[]string{"Requested", strconv.Itoa(run.Stats.Requested)},
		[]string{"Fetched", strconv.Itoa(run.Stats.Fetched)},
		[]string{"Normalized", strconv.Itoa(run.Stats.Normalized)},
		[]string{"Skipped", strconv.Itoa(run.Stats.Skipped)},
		[]string{"Ranked", strconv.Itoa(run.Stats.Ranked)},
		[]string{"Status", statusText(run)},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFetchChart shows the outcome distribution of the fetch stage.
func (w *MarkdownWriter) writeFetchChart(md *markdown.Markdown, run *model.Run) {
	if run.Stats.Requested == 0 || len(run.Stats.Failures) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Fetch Outcomes"),
		piechart.WithShowData(true),
	)
	if run.Stats.Fetched > 0 {
		chart.LabelAndIntValue("ok", uint64(run.Stats.Fetched))
	}
	kinds := make([]string, 0, len(run.Stats.Failures))
	for k := range run.Stats.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if n := run.Stats.Failures[k]; n > 0 {
			chart.LabelAndIntValue(k, uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.Run) {
	switch {
	case run.ErrorMessage != "":
		md.Cautionf("The run failed: %s", run.ErrorMessage)
	case run.Interrupted:
		md.Warningf("The run was interrupted. %d of %d items were fetched.", run.Stats.Fetched, run.Stats.Requested)
	case run.TimedOut:
		md.Warningf("The batch deadline was reached. %d of %d items were fetched.", run.Stats.Fetched, run.Stats.Requested)
	case run.Stats.Skipped > 0:
		md.Importantf("%d item(s) had malformed metadata and were skipped.", run.Stats.Skipped)
	case run.Table.Empty():
		md.Note("No item carried any trait.")
	default:
		md.Tip("All fetched items were ranked.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeRanking(md *markdown.Markdown, table *model.RarityTable) {
	md.H2("Ranking")
	md.PlainText("")

	rows := table.Rows
	if w.top > 0 && len(rows) > w.top {
		rows = rows[:w.top]
		md.PlainTextf("Top %d of %d items.", w.top, len(table.Rows))
		md.PlainText("")
	}

	withPrice := table.HasPrices()
	header := []string{"Rank", "Index", "Score", "Standard"}
	header = append(header, table.Columns...)
	if withPrice {
		header = append(header, "Price")
	}

	out := make([][]string, len(rows))
	for i, row := range rows {
		index := strconv.Itoa(row.Index)
		if row.MarketplaceURL != "" {
			index = markdown.Link(index, row.MarketplaceURL)
		}
		rec := []string{
			strconv.Itoa(row.Rank),
			index,
			rarity.FormatScore(row.RarityScore),
			formatFloat(row.StandardScore, 3),
		}
		for _, col := range table.Columns {
			rec = append(rec, row.Values[col])
		}
		if withPrice {
			rec = append(rec, formatPrice(row.Price))
		}
		out[i] = rec
	}

	md.Table(markdown.TableSet{Header: header, Rows: out})
	md.PlainText("")
}

// writeTraits lists the frequency table of each trait in collapsible blocks.
func (w *MarkdownWriter) writeTraits(md *markdown.Markdown, table *model.RarityTable) {
	if len(table.Frequencies) == 0 {
		return
	}
	md.H2("Traits")
	md.PlainText("")

	for _, col := range table.Frequencies {
		values := make([]string, 0, len(col.Counts))
		for v := range col.Counts {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool {
			ci, cj := col.Counts[values[i]], col.Counts[values[j]]
			if ci != cj {
				return ci < cj
			}
			return values[i] < values[j]
		})

		items := make([]string, len(values))
		for i, v := range values {
			items[i] = rarity.Annotate(v, col.Counts[v])
		}
		md.Details(col.Name+" ("+strconv.Itoa(col.Distinct())+" values)", markdown.NewMarkdown(io.Discard).BulletList(items...).String())
	}
	md.PlainText("")
}
