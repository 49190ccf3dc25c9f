package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/ripnft/internal/database"
	"github.com/nao1215/ripnft/internal/model"
	"github.com/nao1215/ripnft/internal/rarity"
)

func rankedTable(columns []string, ranks map[int]int) *model.RarityTable {
	table := &model.RarityTable{Columns: columns}
	for index, rank := range ranks {
		table.Rows = append(table.Rows, model.RarityRow{Index: index, Rank: rank})
	}
	table.TotalItems = len(table.Rows)
	return table
}

func TestCompareRuns(t *testing.T) {
	t.Parallel()

	previous := &model.Run{ID: 1, Collection: "c", Table: rankedTable([]string{"Hat", "Mouth"}, map[int]int{0: 1, 1: 2, 2: 3, 3: 4})}
	current := &model.Run{ID: 2, Collection: "c", Table: rankedTable([]string{"Eyes", "Hat"}, map[int]int{0: 4, 1: 2, 3: 1, 5: 3})}

	result := compareRuns(previous, current)

	if result.Previous.ID != 1 || result.Current.ID != 2 {
		t.Errorf("unexpected run ids %d and %d", result.Previous.ID, result.Current.ID)
	}
	if len(result.Moves) != 2 {
		t.Fatalf("expected 2 moves, got %+v", result.Moves)
	}
	if result.Moves[0] != (RankMove{Index: 0, PreviousRank: 1, CurrentRank: 4, Delta: -3}) {
		t.Errorf("expected the largest move first, got %+v", result.Moves[0])
	}
	if result.Moves[1] != (RankMove{Index: 3, PreviousRank: 4, CurrentRank: 1, Delta: 3}) {
		t.Errorf("expected equal moves ordered by index, got %+v", result.Moves[1])
	}
	if result.UnchangedCount != 1 {
		t.Errorf("expected 1 unchanged item, got %d", result.UnchangedCount)
	}
	if len(result.NewItems) != 1 || result.NewItems[0] != 5 {
		t.Errorf("expected new item 5, got %v", result.NewItems)
	}
	if len(result.DroppedItems) != 1 || result.DroppedItems[0] != 2 {
		t.Errorf("expected dropped item 2, got %v", result.DroppedItems)
	}
	if len(result.AddedColumns) != 1 || result.AddedColumns[0] != "Eyes" {
		t.Errorf("expected added column Eyes, got %v", result.AddedColumns)
	}
	if len(result.RemovedColumns) != 1 || result.RemovedColumns[0] != "Mouth" {
		t.Errorf("expected removed column Mouth, got %v", result.RemovedColumns)
	}
}

func TestCompareRunsWithoutTable(t *testing.T) {
	t.Parallel()

	previous := &model.Run{ID: 1, Collection: "c"}
	current := &model.Run{ID: 2, Collection: "c", Table: rankedTable([]string{"Hat"}, map[int]int{0: 1})}

	result := compareRuns(previous, current)
	if result.Previous.Ranked != 0 || result.Current.Ranked != 1 {
		t.Errorf("unexpected ranked counts %d and %d", result.Previous.Ranked, result.Current.Ranked)
	}
	if len(result.NewItems) != 1 || len(result.Moves) != 0 {
		t.Errorf("expected every item to be new, got %+v", result)
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{delta: 3, want: "+3"},
		{delta: -2, want: "-2"},
		{delta: 0, want: "0"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

// seedComparison saves two runs of historyCollection and returns the
// database directory and the ID of the older run.
func seedComparison(t *testing.T) (string, int64) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	engine := rarity.New()
	first := model.NewRun(historyCollection)
	first.StartedAt = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	first.Table = engine.Rank([]model.TraitRecord{
		{Index: 0, Traits: map[string]string{"Hat": "Red"}},
		{Index: 1, Traits: map[string]string{"Hat": "Red"}},
		{Index: 2, Traits: map[string]string{"Hat": "Gold"}},
	})

	second := model.NewRun(historyCollection)
	second.StartedAt = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	second.Table = engine.Rank([]model.TraitRecord{
		{Index: 0, Traits: map[string]string{"Hat": "Red", "Eyes": "Blue"}},
		{Index: 1, Traits: map[string]string{"Hat": "Gold", "Eyes": "Blue"}},
		{Index: 3, Traits: map[string]string{"Hat": "Red", "Eyes": "Green"}},
	})

	for _, run := range []*model.Run{first, second} {
		run.Stats.Ranked = len(run.Table.Rows)
		if err := db.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir, first.ID
}

func TestRunCompare(t *testing.T) {
	t.Parallel()

	dir, firstID := seedComparison(t)

	t.Run("compares the latest two runs as json", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "compare", historyCollection, "--format", "json", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var result ComparisonResult
		if err := json.Unmarshal([]byte(stdout), &result); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if result.Previous.ID != firstID {
			t.Errorf("expected previous run %d, got %d", firstID, result.Previous.ID)
		}
		if len(result.NewItems) != 1 || result.NewItems[0] != 3 {
			t.Errorf("expected new item 3, got %v", result.NewItems)
		}
		if len(result.DroppedItems) != 1 || result.DroppedItems[0] != 2 {
			t.Errorf("expected dropped item 2, got %v", result.DroppedItems)
		}
		if len(result.AddedColumns) != 1 || result.AddedColumns[0] != "Eyes" {
			t.Errorf("expected added column Eyes, got %v", result.AddedColumns)
		}
	})

	t.Run("text output", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "compare", historyCollection, "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Ranking Comparison", "New Items (1): 3", "Dropped Items (1): 2", "Added Traits: Eyes"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %q in %q", want, stdout)
			}
		}
	})

	t.Run("markdown with an explicit run", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "compare", historyCollection, "--with-run", strconv.FormatInt(firstID, 10), "-f", "markdown", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "# Ranking Comparison") || !strings.Contains(strings.ToLower(stdout), "metric") {
			t.Errorf("unexpected markdown %q", stdout)
		}
	})

	t.Run("since matching only the latest run", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "compare", historyCollection, "--since", "2026-02-01", "--db-dir", dir)
		if !errors.Is(err, errTooFewRuns) {
			t.Errorf("expected errTooFewRuns, got %v", err)
		}
	})

	t.Run("invalid since date", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "compare", historyCollection, "--since", "Feb 1", "--db-dir", dir)
		if err == nil || !strings.Contains(err.Error(), "YYYY-MM-DD") {
			t.Errorf("expected date format error, got %v", err)
		}
	})
}

func TestRunCompareSingleRun(t *testing.T) {
	t.Parallel()

	dir, _ := seedHistory(t)
	_, _, err := execute(t, "compare", historyCollection, "--db-dir", dir)
	if !errors.Is(err, errTooFewRuns) {
		t.Errorf("expected errTooFewRuns, got %v", err)
	}
}

func TestRunCompareMissingDatabase(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "compare", historyCollection, "--db-dir", filepath.Join(t.TempDir(), "none"))
	if err == nil {
		t.Error("expected error for a missing database")
	}
}
