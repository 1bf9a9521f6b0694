// Package backfill fills gaps in the SQLite bar archive from a
// historical data provider. It is run on a schedule after market close
// and once at daemon startup.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tickdata/internal/fetch"
	"tickdata/internal/logger"
	"tickdata/internal/model"
	sqlitestore "tickdata/internal/store/sqlite"
)

// Config holds the instruments and intervals to keep backfilled.
type Config struct {
	Instruments []Instrument
	Intervals   []model.Interval

	// LookbackDays bounds how far back the first fill reaches.
	LookbackDays int
}

// Instrument identifies one archived symbol.
type Instrument struct {
	Symbol   string
	Exchange model.Exchange
}

// Backfiller fetches missing history and appends it to the archive.
type Backfiller struct {
	fetcher fetch.Fetcher
	writer  *sqlitestore.Writer
	cfg     Config

	// now is swappable for tests.
	now func() time.Time

	// OnBatch is called after each successful instrument/interval fill
	// with the number of bars written (optional).
	OnBatch func(inst Instrument, interval model.Interval, n int)
}

func New(f fetch.Fetcher, w *sqlitestore.Writer, cfg Config) *Backfiller {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	return &Backfiller{fetcher: f, writer: w, cfg: cfg, now: time.Now}
}

// Run fills every instrument/interval pair once. Individual failures
// are logged and do not abort the rest of the sweep; the first error
// is returned after the sweep completes. Every log line of one sweep
// carries the same trace ID, stamped on the context here.
func (b *Backfiller) Run(ctx context.Context) error {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("backfill", b.now()))
	var firstErr error
	for _, inst := range b.cfg.Instruments {
		for _, interval := range b.cfg.Intervals {
			if err := b.fillOne(ctx, inst, interval); err != nil {
				slog.Error("backfill fill failed", append(logger.LogWithTrace(ctx),
					slog.String("instrument", string(inst.Exchange)+":"+inst.Symbol),
					slog.String("interval", string(interval)),
					slog.Any("err", err))...)
				if firstErr == nil {
					firstErr = err
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return firstErr
}

func (b *Backfiller) fillOne(ctx context.Context, inst Instrument, interval model.Interval) error {
	end := b.now()
	start := end.AddDate(0, 0, -b.cfg.LookbackDays)

	last, err := b.writer.LastTimestamp(inst.Exchange, inst.Symbol, interval)
	if err != nil {
		return fmt.Errorf("last timestamp: %w", err)
	}
	if last > 0 {
		// Resume one interval past the newest archived bar.
		resume := time.Unix(last, 0).Add(time.Duration(interval.Seconds()) * time.Second)
		if resume.After(start) {
			start = resume
		}
	}
	if !start.Before(end) {
		return nil
	}

	bars, err := b.fetcher.HistoricalSeries(ctx, inst.Symbol, inst.Exchange, interval, start, end)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(bars) == 0 {
		return nil
	}

	if err := b.writer.InsertBatch(bars); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	slog.Info("backfill wrote bars", append(logger.LogWithTrace(ctx),
		slog.String("instrument", string(inst.Exchange)+":"+inst.Symbol),
		slog.String("interval", string(interval)),
		slog.Int("bars", len(bars)),
		slog.Time("from", bars[0].TS),
		slog.Time("to", bars[len(bars)-1].TS))...)
	if b.OnBatch != nil {
		b.OnBatch(inst, interval, len(bars))
	}
	return nil
}
