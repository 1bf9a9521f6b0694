package fetch

import (
	"context"
	"errors"
	"time"

	"tickdata/internal/model"
)

const (
	// DefaultMaxAttempts bounds how many times a transient failure is retried.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the base delay between attempts; each retry doubles it.
	DefaultRetryDelay = 2 * time.Second
)

// RetryingFetcher wraps a Fetcher and retries transient failures with
// exponential backoff. Only ErrNetwork is retried; symbol and market
// errors surface immediately.
type RetryingFetcher struct {
	Inner       Fetcher
	MaxAttempts int
	Delay       time.Duration
}

// WithRetry wraps f with the default retry policy.
func WithRetry(f Fetcher) *RetryingFetcher {
	return &RetryingFetcher{
		Inner:       f,
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
	}
}

func (r *RetryingFetcher) retry(ctx context.Context, op func() error) error {
	var err error
	delay := r.Delay
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, ErrNetwork) {
			return err
		}
		if attempt == r.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (r *RetryingFetcher) HistoricalSeries(ctx context.Context, symbol string, exchange model.Exchange,
	interval model.Interval, start, end time.Time) ([]model.Bar, error) {
	var bars []model.Bar
	err := r.retry(ctx, func() error {
		var opErr error
		bars, opErr = r.Inner.HistoricalSeries(ctx, symbol, exchange, interval, start, end)
		return opErr
	})
	return bars, err
}

func (r *RetryingFetcher) RealtimeQuote(ctx context.Context, symbol string, exchange model.Exchange) (model.Quote, error) {
	var q model.Quote
	err := r.retry(ctx, func() error {
		var opErr error
		q, opErr = r.Inner.RealtimeQuote(ctx, symbol, exchange)
		return opErr
	})
	return q, err
}
