// Package sqlite persists OHLCV bars in a WAL-mode SQLite database.
// One single-connection Writer batches inserts off the hot path; the
// Reader serves range queries for backfill, indicator computation, and
// export.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tickdata/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB

	// OnCommit is called after each successful batch commit with the
	// batch size and commit duration (optional).
	OnCommit func(n int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a Writer, initializing the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol   TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   INTEGER,
			PRIMARY KEY (exchange, symbol, interval, ts)
		);

		CREATE INDEX IF NOT EXISTS idx_bars_ts ON bars (interval, ts);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", len(batch), time.Since(start))
			if w.OnCommit != nil {
				w.OnCommit(len(batch), time.Since(start))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertBatch inserts a batch of bars in a single transaction.
// Re-fetched bars replace their earlier rows.
func (w *Writer) InsertBatch(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, exchange, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, string(b.Exchange), string(b.Interval),
			b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the newest stored bar timestamp for an
// instrument at the given interval, or 0 when none exist. Backfill
// uses this to resume where the previous run stopped.
func (w *Writer) LastTimestamp(exchange model.Exchange, symbol string, interval model.Interval) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars WHERE exchange = ? AND symbol = ? AND interval = ?`,
		string(exchange), symbol, string(interval),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
