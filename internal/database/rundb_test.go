package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/ripnft/internal/model"
)

func setupTestDB(t *testing.T) *RunDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRun(collection string, startedAt time.Time, rows ...model.RarityRow) *model.Run {
	run := model.NewRun(collection)
	run.StartedAt = startedAt
	run.Contract = "0xabc"
	run.Elapsed = 1500 * time.Millisecond
	run.Stats.Requested = len(rows) + 1
	run.Stats.Fetched = len(rows)
	run.Stats.Ranked = len(rows)
	run.Table = &model.RarityTable{Columns: []string{"Color"}, Rows: rows, TotalItems: len(rows)}
	return run
}

func row(index, rank int, score float64) model.RarityRow {
	return model.RarityRow{
		Index:       index,
		Rank:        rank,
		RarityScore: score,
		Values:      map[string]string{"Color": "Red (1)"},
		RawValues:   map[string]string{"Color": "Red"},
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "a", "b")
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dir, FileName) {
			t.Errorf("unexpected path: %s", db.Path())
		}
	})

	t.Run("fails when missing and creation is disabled", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestSaveAndLoadRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("saves a run and reads it back", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := newRun("cats", base, row(3, 1, 8), row(1, 2, 2))
		price := 0.5
		run.Table.Rows[0].Price = &price

		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		if run.ID == 0 {
			t.Fatal("expected run id to be set")
		}

		got, err := db.GetRunByID(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Collection != "cats" || got.Contract != "0xabc" {
			t.Errorf("unexpected run: %+v", got)
		}
		if len(got.Table.Rows) != 2 || got.Table.Rows[0].Index != 3 {
			t.Errorf("unexpected rows: %+v", got.Table.Rows)
		}
		if got.Table.Rows[0].Price == nil || *got.Table.Rows[0].Price != 0.5 {
			t.Error("expected price to round-trip")
		}
	})

	t.Run("latest run is the most recent", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		older := newRun("cats", base, row(1, 1, 1))
		newer := newRun("cats", base.Add(time.Hour), row(1, 1, 1), row(2, 2, 1))
		for _, r := range []*model.Run{newer, older} {
			if err := db.SaveRun(ctx, r); err != nil {
				t.Fatalf("failed to save run: %v", err)
			}
		}

		got, err := db.GetLatestRun(ctx, "cats")
		if err != nil {
			t.Fatalf("failed to get latest run: %v", err)
		}
		if got.ID != newer.ID {
			t.Errorf("expected run %d, got %d", newer.ID, got.ID)
		}
	})

	t.Run("missing runs return ErrNotFound", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if _, err := db.GetLatestRun(ctx, "nothing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := db.GetRunByID(ctx, 42); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty table is saved without items", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := model.NewRun("empty")
		run.Table = &model.RarityTable{}
		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		got, err := db.GetLatestRun(ctx, "empty")
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if !got.NoAttributeData() {
			t.Error("expected no attribute data outcome to round-trip")
		}
	})
}

func TestHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	db := setupTestDB(t)
	first := newRun("cats", base, row(7, 2, 3), row(8, 1, 4))
	second := newRun("cats", base.Add(24*time.Hour), row(7, 1, 5), row(8, 2, 2))
	second.TimedOut = true
	other := newRun("dogs", base, row(1, 1, 1))
	for _, r := range []*model.Run{first, second, other} {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}

	t.Run("lists collections", func(t *testing.T) {
		t.Parallel()

		got, err := db.ListCollections(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0] != "cats" || got[1] != "dogs" {
			t.Errorf("unexpected collections: %v", got)
		}
	})

	t.Run("run history is newest first", func(t *testing.T) {
		t.Parallel()

		got, err := db.GetRunHistory(ctx, "cats")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(got))
		}
		if got[0].ID != second.ID || !got[0].TimedOut {
			t.Errorf("unexpected first entry: %+v", got[0])
		}
		if !got[1].StartedAt.Equal(base) {
			t.Errorf("expected start %v, got %v", base, got[1].StartedAt)
		}
		if got[1].Elapsed != 1500*time.Millisecond {
			t.Errorf("expected elapsed 1.5s, got %v", got[1].Elapsed)
		}
	})

	t.Run("item history tracks rank changes", func(t *testing.T) {
		t.Parallel()

		got, err := db.GetItemHistory(ctx, "cats", 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(got))
		}
		if got[0].Rank != 1 || got[1].Rank != 2 {
			t.Errorf("unexpected ranks: %d, %d", got[0].Rank, got[1].Rank)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{"2024-01-02T03:04:05.000000000Z", "2024-01-02T03:04:05Z", "2024-01-02 03:04:05"} {
		if got := parseTimestamp(in); !got.Equal(want) {
			t.Errorf("parse %q: expected %v, got %v", in, want, got)
		}
	}
	if !parseTimestamp("garbage").IsZero() {
		t.Error("expected zero time for garbage")
	}
}
