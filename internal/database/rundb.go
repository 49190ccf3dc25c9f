package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/ripnft/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "ripnft.db"

// timeLayout keeps a fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned by lookups that match no stored run.
var ErrNotFound = errors.New("run not found")

// RunDB stores run reports and their ranked rows.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and file when missing.
	CreateIfNotExists bool

	// EnableWAL switches the journal to write-ahead logging.
	EnableWAL bool
}

// DefaultOptions creates the database with WAL enabled.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens the database in dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (r *RunDB) Path() string {
	return r.dbPath
}

// Close closes the database.
func (r *RunDB) Close() error {
	return r.db.Close()
}

func (r *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		contract TEXT,
		started_at TEXT NOT NULL,
		elapsed_ms INTEGER DEFAULT 0,
		requested INTEGER DEFAULT 0,
		fetched INTEGER DEFAULT 0,
		normalized INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		ranked INTEGER DEFAULT 0,
		timed_out INTEGER DEFAULT 0,
		interrupted INTEGER DEFAULT 0,
		error TEXT,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_collection ON runs(collection);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS items (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		item_index INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		rarity_score REAL NOT NULL,
		standard_score REAL NOT NULL,
		price REAL,
		PRIMARY KEY (run_id, item_index)
	);

	CREATE INDEX IF NOT EXISTS idx_items_rank ON items(run_id, rank);
	`
	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores run and its ranked rows and sets run.ID.
func (r *RunDB) SaveRun(ctx context.Context, run *model.Run) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (collection, contract, started_at, elapsed_ms, requested, fetched,
		normalized, skipped, ranked, timed_out, interrupted, error, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.Collection,
		run.Contract,
		run.StartedAt.UTC().Format(timeLayout),
		run.Elapsed.Milliseconds(),
		run.Stats.Requested,
		run.Stats.Fetched,
		run.Stats.Normalized,
		run.Stats.Skipped,
		run.Stats.Ranked,
		run.TimedOut,
		run.Interrupted,
		run.ErrorMessage,
		string(runJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}

	if run.Table != nil && len(run.Table.Rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (run_id, item_index, rank, rarity_score, standard_score, price)
		VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare item insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range run.Table.Rows {
			var price sql.NullFloat64
			if row.Price != nil {
				price = sql.NullFloat64{Float64: *row.Price, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, id, row.Index, row.Rank, row.RarityScore, row.StandardScore, price); err != nil {
				return fmt.Errorf("failed to save item %d: %w", row.Index, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	run.ID = id
	return nil
}

// ListCollections returns every collection with at least one saved run.
func (r *RunDB) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT collection FROM runs ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetLatestRun returns the most recent run of collection, or ErrNotFound.
func (r *RunDB) GetLatestRun(ctx context.Context, collection string) (*model.Run, error) {
	return r.queryRun(ctx, `
	SELECT id, run_json FROM runs
	WHERE collection = ?
	ORDER BY started_at DESC, id DESC
	LIMIT 1
	`, collection)
}

// GetRunByID returns the run stored under id, or ErrNotFound.
func (r *RunDB) GetRunByID(ctx context.Context, id int64) (*model.Run, error) {
	return r.queryRun(ctx, `SELECT id, run_json FROM runs WHERE id = ?`, id)
}

func (r *RunDB) queryRun(ctx context.Context, query string, arg any) (*model.Run, error) {
	var id int64
	var runJSON string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&id, &runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	run.ID = id
	return &run, nil
}

// RunMetadata summarises a stored run without loading its table.
type RunMetadata struct {
	ID          int64
	Collection  string
	Contract    string
	StartedAt   time.Time
	Elapsed     time.Duration
	Requested   int
	Fetched     int
	Ranked      int
	TimedOut    bool
	Interrupted bool
	Error       string
}

// GetRunHistory returns the metadata of every run of collection, newest first.
func (r *RunDB) GetRunHistory(ctx context.Context, collection string) ([]RunMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, collection, contract, started_at, elapsed_ms, requested, fetched, ranked,
		timed_out, interrupted, error
	FROM runs
	WHERE collection = ?
	ORDER BY started_at DESC, id DESC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var out []RunMetadata
	for rows.Next() {
		var m RunMetadata
		var startedAt string
		var contract, errMsg sql.NullString
		var elapsedMS int64
		if err := rows.Scan(&m.ID, &m.Collection, &contract, &startedAt, &elapsedMS,
			&m.Requested, &m.Fetched, &m.Ranked, &m.TimedOut, &m.Interrupted, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}
		m.Contract = contract.String
		m.Error = errMsg.String
		m.StartedAt = parseTimestamp(startedAt)
		m.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}

// ItemRank is the stored ranking of one item in one run.
type ItemRank struct {
	RunID         int64
	StartedAt     time.Time
	Rank          int
	RarityScore   float64
	StandardScore float64
	Price         *float64
}

// GetItemHistory returns the rank of index in every stored run of
// collection, newest first.
func (r *RunDB) GetItemHistory(ctx context.Context, collection string, index int) ([]ItemRank, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT runs.id, runs.started_at, items.rank, items.rarity_score, items.standard_score, items.price
	FROM items
	JOIN runs ON runs.id = items.run_id
	WHERE runs.collection = ? AND items.item_index = ?
	ORDER BY runs.started_at DESC, runs.id DESC
	`, collection, index)
	if err != nil {
		return nil, fmt.Errorf("failed to get item history: %w", err)
	}
	defer rows.Close()

	var out []ItemRank
	for rows.Next() {
		var ir ItemRank
		var startedAt string
		var price sql.NullFloat64
		if err := rows.Scan(&ir.RunID, &startedAt, &ir.Rank, &ir.RarityScore, &ir.StandardScore, &price); err != nil {
			return nil, fmt.Errorf("failed to scan item rank: %w", err)
		}
		ir.StartedAt = parseTimestamp(startedAt)
		if price.Valid {
			p := price.Float64
			ir.Price = &p
		}
		out = append(out, ir)
	}
	return out, rows.Err()
}

var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time if none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
