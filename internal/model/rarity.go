package model

import "errors"

// ErrNoAttributeData describes a batch in which no record carried any trait.
// The rarity engine never returns it as a failure; it is available to callers
// that want to report the empty outcome as a value.
var ErrNoAttributeData = errors.New("no attribute data: nothing to rank")

// RarityRow is the ranked entry of one item.
type RarityRow struct {
	// Index is the item index.
	Index int `json:"index"`

	// Values maps trait name to the display value, e.g. "Red (12)".
	Values map[string]string `json:"values"`

	// RawValues maps trait name to the bucketed value without annotation.
	RawValues map[string]string `json:"raw_values"`

	// RarityScore is the sum of total/frequency over all trait columns.
	RarityScore float64 `json:"rarity_score"`

	// StandardScore is RarityScore divided by the population standard
	// deviation of all scores. It is not mean-centred.
	StandardScore float64 `json:"standard_score"`

	// Rank is the 1-based position, 1 being the rarest.
	Rank int `json:"rank"`

	// MarketplaceURL links the item on the configured marketplace.
	MarketplaceURL string `json:"marketplace_url,omitempty"`

	// Price is the listing price merged in after ranking, if known.
	Price *float64 `json:"price,omitempty"`
}

// RarityTable is the output of the rarity engine.
type RarityTable struct {
	// Columns lists the trait names in sorted order.
	Columns []string `json:"columns"`

	// Frequencies holds one frequency table per column, same order as Columns.
	Frequencies []TraitColumn `json:"frequencies,omitempty"`

	// Rows is sorted by ascending rank.
	Rows []RarityRow `json:"rows"`

	// TotalItems is the number of ranked items.
	TotalItems int `json:"total_items"`
}

// Empty reports whether the table has nothing to rank.
func (t *RarityTable) Empty() bool {
	return t == nil || len(t.Columns) == 0
}

// Err returns ErrNoAttributeData for an empty table and nil otherwise.
func (t *RarityTable) Err() error {
	if t.Empty() {
		return ErrNoAttributeData
	}
	return nil
}

// Row returns the row for index, or nil if the item was not ranked.
func (t *RarityTable) Row(index int) *RarityRow {
	if t == nil {
		return nil
	}
	for i := range t.Rows {
		if t.Rows[i].Index == index {
			return &t.Rows[i]
		}
	}
	return nil
}

// HasPrices reports whether any row carries a price.
func (t *RarityTable) HasPrices() bool {
	if t == nil {
		return false
	}
	for _, r := range t.Rows {
		if r.Price != nil {
			return true
		}
	}
	return false
}
