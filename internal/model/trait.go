package model

// MissingValue is the display bucket for absent or empty trait values.
const MissingValue = "None"

// TraitRecord is the flattened trait set of one item.
type TraitRecord struct {
	// Index is the item index the record was fetched for.
	Index int `json:"index"`

	// Traits maps trait name to value. An empty value means "missing".
	Traits map[string]string `json:"traits"`
}

// Value returns the value of trait name, or MissingValue when the item has
// no usable value for it.
func (r TraitRecord) Value(name string) string {
	v, ok := r.Traits[name]
	if !ok || v == "" || v == "nan" {
		return MissingValue
	}
	return v
}

// TraitColumn is the frequency table of one trait across all records.
type TraitColumn struct {
	// Name is the trait name.
	Name string `json:"name"`

	// Counts maps each value (including MissingValue) to its frequency.
	Counts map[string]int `json:"counts"`
}

// Count returns the frequency of value in the column.
func (c TraitColumn) Count(value string) int {
	return c.Counts[value]
}

// Distinct returns the number of distinct values, including MissingValue.
func (c TraitColumn) Distinct() int {
	return len(c.Counts)
}
