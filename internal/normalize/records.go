package normalize

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nao1215/ripnft/internal/model"
)

// SaveRecords writes records as an indented JSON list.
func SaveRecords(w io.Writer, records []model.TraitRecord) error {
	if records == nil {
		records = []model.TraitRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}

// LoadRecords reads a list written by SaveRecords.
func LoadRecords(r io.Reader) ([]model.TraitRecord, error) {
	var records []model.TraitRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	for i := range records {
		if records[i].Traits == nil {
			records[i].Traits = map[string]string{}
		}
	}
	return records, nil
}
