package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tickdata/internal/model"
)

// flakyFetcher fails with the given error until failures is exhausted.
type flakyFetcher struct {
	failures int
	err      error
	calls    int
}

func (f *flakyFetcher) HistoricalSeries(ctx context.Context, symbol string, exchange model.Exchange,
	interval model.Interval, start, end time.Time) ([]model.Bar, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []model.Bar{{Symbol: symbol, Exchange: exchange, Interval: interval}}, nil
}

func (f *flakyFetcher) RealtimeQuote(ctx context.Context, symbol string, exchange model.Exchange) (model.Quote, error) {
	f.calls++
	if f.calls <= f.failures {
		return model.Quote{}, f.err
	}
	return model.Quote{Symbol: symbol, Exchange: exchange, LTP: 100}, nil
}

func newRetry(inner Fetcher) *RetryingFetcher {
	return &RetryingFetcher{Inner: inner, MaxAttempts: 3, Delay: time.Millisecond}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &flakyFetcher{failures: 2, err: fmt.Errorf("%w: connection reset", ErrNetwork)}
	r := newRetry(inner)

	bars, err := r.HistoricalSeries(context.Background(), "INFY", model.NSE,
		model.Interval1d, time.Unix(0, 0), time.Now())
	if err != nil {
		t.Fatalf("HistoricalSeries: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars", len(bars))
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyFetcher{failures: 10, err: fmt.Errorf("%w: timeout", ErrNetwork)}
	r := newRetry(inner)

	_, err := r.RealtimeQuote(context.Background(), "INFY", model.NSE)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyFetcher{failures: 10, err: fmt.Errorf("%w: NOSUCH", ErrSymbolNotFound)}
	r := newRetry(inner)

	_, err := r.RealtimeQuote(context.Background(), "NOSUCH", model.NSE)
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("err = %v, want ErrSymbolNotFound", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", inner.calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	inner := &flakyFetcher{failures: 10, err: fmt.Errorf("%w: timeout", ErrNetwork)}
	r := &RetryingFetcher{Inner: inner, MaxAttempts: 3, Delay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.RealtimeQuote(ctx, "INFY", model.NSE)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
