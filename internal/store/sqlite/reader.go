package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"tickdata/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored bars.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

const barColumns = `symbol, exchange, interval, ts, open, high, low, close, volume`

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var exchange, interval string
		var tsUnix int64
		if err := rows.Scan(&b.Symbol, &exchange, &interval, &tsUnix,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Exchange = model.Exchange(exchange)
		b.Interval = model.Interval(interval)
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadBars returns bars for one instrument in [start, end), ascending
// by timestamp.
func (r *Reader) ReadBars(exchange model.Exchange, symbol string, interval model.Interval,
	start, end time.Time) ([]model.Bar, error) {

	rows, err := r.db.Query(`
		SELECT `+barColumns+`
		FROM bars
		WHERE exchange = ? AND symbol = ? AND interval = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, string(exchange), symbol, string(interval), start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// ReadRecentBars returns the newest n bars for one instrument,
// ascending by timestamp. Used to warm up streaming indicators.
func (r *Reader) ReadRecentBars(exchange model.Exchange, symbol string, interval model.Interval,
	n int) ([]model.Bar, error) {

	rows, err := r.db.Query(`
		SELECT `+barColumns+` FROM (
			SELECT `+barColumns+`
			FROM bars
			WHERE exchange = ? AND symbol = ? AND interval = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, string(exchange), symbol, string(interval), n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recent bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
