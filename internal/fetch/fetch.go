// Package fetch retrieves market data for NSE and BSE symbols. Two
// providers are included: Yahoo Finance (no credentials, suffix-mapped
// tickers) and the Angel One SmartAPI broker feed. Callers program
// against the Fetcher interface and match failures with errors.Is
// against the sentinel errors below.
package fetch

import (
	"context"
	"errors"
	"time"

	"tickdata/internal/model"
)

var (
	// ErrNetwork wraps transport-level failures. Retryable.
	ErrNetwork = errors.New("network error")

	// ErrSymbolNotFound means the provider has no data for the symbol
	// on the requested exchange. Not retryable.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrMarketClosed is returned by realtime paths outside trading hours.
	ErrMarketClosed = errors.New("market closed")
)

// Fetcher retrieves historical bars and realtime quotes.
type Fetcher interface {
	// HistoricalSeries returns bars for [start, end) at the given
	// interval, ascending by timestamp.
	HistoricalSeries(ctx context.Context, symbol string, exchange model.Exchange,
		interval model.Interval, start, end time.Time) ([]model.Bar, error)

	// RealtimeQuote returns the latest quote for the symbol.
	RealtimeQuote(ctx context.Context, symbol string, exchange model.Exchange) (model.Quote, error)
}
