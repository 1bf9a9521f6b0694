// Package redis publishes bars, quotes, and indicator values to Redis:
// a latest-value cache (SET with TTL), append-only history (Streams with
// proportional trimming), and PubSub for live subscribers.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"tickdata/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// tradingDaySeconds is one NSE/BSE session (9:15–15:30).
	tradingDaySeconds = 22500

	defaultLatestTTL = 30 * time.Minute
	quoteTTL         = 1 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes bars, quotes, and indicator results to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// streamMaxLen keeps roughly one trading session of history per stream.
func streamMaxLen(interval model.Interval) int64 {
	secs := interval.Seconds()
	if secs <= 0 {
		secs = 60
	}
	maxLen := int64(tradingDaySeconds/secs) + 100
	if maxLen < 200 {
		maxLen = 200
	}
	return maxLen
}

// RunIndicators reads per-bar indicator result batches and pipelines
// each batch to Redis in one roundtrip. Warm-up values (Ready=false)
// are skipped. Blocks until ctx is cancelled or batchCh is closed.
func (w *Writer) RunIndicators(ctx context.Context, batchCh <-chan []model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batchCh:
			if !ok {
				return
			}
			w.WriteIndicatorBatch(ctx, batch)
		}
	}
}

// WriteIndicatorBatch writes multiple indicator results in a single
// pipeline: one network roundtrip for XADD + SET + PUBLISH per result.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	ready := 0
	for i := range results {
		ind := &results[i]
		if !ind.Ready {
			continue
		}
		w.pipeIndicator(ctx, pipe, ind)
		ready++
	}
	if ready == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] indicator batch pipeline error (%d results): %v", len(results), err)
	}
}

// writeBar performs pipelined writes for a finalized bar.
func (w *Writer) writeBar(ctx context.Context, bar model.Bar) error {
	streamKey := bar.StreamKey()
	latestKey := "bar:" + string(bar.Interval) + ":latest:" + string(bar.Exchange) + ":" + bar.Symbol
	pubsubCh := "pub:" + streamKey
	jsonData := string(bar.JSON())

	pipe := w.client.Pipeline()

	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen(bar.Interval),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bar pipeline for %s: %w", bar.Key(), err)
	}
	return nil
}

// writeQuote caches the latest quote with a short TTL and publishes it.
// Quotes are ephemeral, so there is no stream history.
func (w *Writer) writeQuote(ctx context.Context, q model.Quote) error {
	latestKey := "quote:latest:" + q.Key()
	pubsubCh := "pub:quote:" + q.Key()
	jsonData := string(q.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, quoteTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quote pipeline for %s: %w", q.Key(), err)
	}
	return nil
}

func (w *Writer) pipeIndicator(ctx context.Context, pipe goredis.Pipeliner, ind *model.IndicatorResult) {
	jsonData := string(ind.JSON())
	streamKey := ind.StreamKey()
	latestKey := "ind:" + ind.Name + ":" + string(ind.Interval) + ":latest:" +
		string(ind.Exchange) + ":" + ind.Symbol
	pubsubCh := "pub:" + streamKey

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen(ind.Interval),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
