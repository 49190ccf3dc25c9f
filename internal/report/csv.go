package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/nao1215/ripnft/internal/model"
)

// CSVWriter writes the ranked table, one row per item in rank order.
//
// Columns: index, one per trait, rarity_score, standard_score, rank,
// marketplace_link, and price when any row has one.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the run's table. An empty table yields the header only.
func (w *CSVWriter) Write(run *model.Run) (int, error) {
	table := run.Table
	withPrice := table.HasPrices()

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	header := []string{"index"}
	if table != nil {
		header = append(header, table.Columns...)
	}
	header = append(header, "rarity_score", "standard_score", "rank", "marketplace_link")
	if withPrice {
		header = append(header, "price")
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	if !table.Empty() {
		for _, row := range table.Rows {
			rec := make([]string, 0, len(header))
			rec = append(rec, strconv.Itoa(row.Index))
			for _, col := range table.Columns {
				rec = append(rec, row.Values[col])
			}
			rec = append(rec,
				formatFloat(row.RarityScore, -1),
				formatFloat(row.StandardScore, 3),
				strconv.Itoa(row.Rank),
				row.MarketplaceURL,
			)
			if withPrice {
				rec = append(rec, formatPrice(row.Price))
			}
			if err := cw.Write(rec); err != nil {
				return 0, err
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
