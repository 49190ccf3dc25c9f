package rarity

import (
	"log/slog"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/ripnft/internal/model"
)

// DefaultMarketplaceURL is the asset URL prefix of the default marketplace.
const DefaultMarketplaceURL = "https://opensea.io/assets/"

// Engine computes rarity tables.
type Engine struct {
	marketplaceURL string
	contract       string
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMarketplace sets the link template parts. Links are only built when
// both baseURL and contract are non-empty.
func WithMarketplace(baseURL, contract string) Option {
	return func(e *Engine) {
		e.marketplaceURL = baseURL
		e.contract = contract
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		marketplaceURL: DefaultMarketplaceURL,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank builds the rarity table for records.
//
// It never fails: when no record carries any trait the returned table is
// Empty and its Err method reports model.ErrNoAttributeData.
func (e *Engine) Rank(records []model.TraitRecord) *model.RarityTable {
	recs := make([]model.TraitRecord, len(records))
	copy(recs, records)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Index < recs[j].Index })

	columns := Columns(recs)
	table := &model.RarityTable{
		Columns:    columns,
		Rows:       []model.RarityRow{},
		TotalItems: len(recs),
	}
	if len(columns) == 0 {
		e.logger.Info("no attribute data to rank", "records", len(recs))
		return table
	}

	table.Frequencies = frequencies(recs, columns)
	total := float64(len(recs))

	rows := make([]model.RarityRow, len(recs))
	for i, rec := range recs {
		row := model.RarityRow{
			Index:     rec.Index,
			Values:    make(map[string]string, len(columns)),
			RawValues: make(map[string]string, len(columns)),
		}
		for c, name := range columns {
			v := rec.Value(name)
			count := table.Frequencies[c].Count(v)
			row.RawValues[name] = v
			row.Values[name] = Annotate(v, count)
			row.RarityScore += total / float64(count)
		}
		row.MarketplaceURL = MarketplaceLink(e.marketplaceURL, e.contract, rec.Index)
		rows[i] = row
	}

	applyStandardScores(rows)
	assignRanks(rows)

	table.Rows = rows
	e.logger.Debug("rarity table built",
		"items", len(rows),
		"columns", len(columns),
	)
	return table
}

// Columns returns the sorted set of trait names across records.
func Columns(records []model.TraitRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for name := range r.Traits {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Frequencies returns the frequency table of every trait column.
func Frequencies(records []model.TraitRecord) []model.TraitColumn {
	return frequencies(records, Columns(records))
}

func frequencies(records []model.TraitRecord, columns []string) []model.TraitColumn {
	out := make([]model.TraitColumn, len(columns))
	for c, name := range columns {
		col := model.TraitColumn{Name: name, Counts: make(map[string]int)}
		for _, r := range records {
			col.Counts[r.Value(name)]++
		}
		out[c] = col
	}
	return out
}

// applyStandardScores divides each score by the population standard
// deviation of all scores. The mean is not subtracted. A zero deviation
// yields zero standard scores.
func applyStandardScores(rows []model.RarityRow) {
	sd := populationStdDev(rows)
	for i := range rows {
		if sd == 0 {
			rows[i].StandardScore = 0
			continue
		}
		rows[i].StandardScore = round3(rows[i].RarityScore / sd)
	}
}

func populationStdDev(rows []model.RarityRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += r.RarityScore
	}
	mean := sum / float64(len(rows))

	var sq float64
	for _, r := range rows {
		d := r.RarityScore - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(rows)))
}

// assignRanks sorts rows by descending score, ties by ascending index, and
// numbers them from 1.
func assignRanks(rows []model.RarityRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RarityScore != rows[j].RarityScore {
			return rows[i].RarityScore > rows[j].RarityScore
		}
		return rows[i].Index < rows[j].Index
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Annotate renders a value with its frequency, e.g. "Red (12)".
func Annotate(value string, count int) string {
	return value + " (" + strconv.Itoa(count) + ")"
}

// MarketplaceLink builds base + contract + "/" + index, or "" when either
// base or contract is empty.
func MarketplaceLink(base, contract string, index int) string {
	if base == "" || contract == "" {
		return ""
	}
	return base + contract + "/" + strconv.Itoa(index)
}

var scorePrinter = message.NewPrinter(language.English)

// FormatScore renders a rarity score as a grouped integer, e.g. "12,345".
func FormatScore(score float64) string {
	return scorePrinter.Sprintf("%.0f", score)
}
