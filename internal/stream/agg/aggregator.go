// Package agg builds interval OHLCV bars from a tick stream.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"tickdata/internal/model"
)

// barState holds the in-progress bar for one instrument in the current bucket.
type barState struct {
	bucket int64 // Unix second of the bucket start
	bar    model.Bar
}

// Aggregator folds ticks into bars of a fixed interval. Bars are
// finalized and emitted when their bucket rolls over.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*barState // key = "exchange:symbol"

	interval      model.Interval
	bucketSeconds int64
	flushInterval time.Duration
	flushCh       chan struct{}

	// OnDroppedTick is called when a late tick is discarded (optional).
	OnDroppedTick func()
}

// New creates an Aggregator for the given bar interval.
func New(interval model.Interval) *Aggregator {
	secs := int64(interval.Seconds())
	if secs <= 0 {
		secs = 60
	}
	return &Aggregator{
		states:        make(map[string]*barState),
		interval:      interval,
		bucketSeconds: secs,
		flushInterval: 500 * time.Millisecond, // bucket rollover check frequency
		flushCh:       make(chan struct{}, 1),
	}
}

// FlushNow asks the running aggregator to finalize all open bars, even
// when their buckets have not elapsed. Used at session close so the
// last partial bar of the day is not held until the next tick.
func (a *Aggregator) FlushNow() {
	select {
	case a.flushCh <- struct{}{}:
	default:
	}
}

// Run consumes ticks from tickCh in a single goroutine and sends
// finalized bars to barCh. Blocks until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, barCh chan<- model.Bar) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(barCh)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flushAll(barCh)
				return
			}
			a.processTick(tick, barCh)

		case <-ticker.C:
			a.flushOld(barCh)

		case <-a.flushCh:
			a.flushAll(barCh)
		}
	}
}

func (a *Aggregator) bucketOf(ts time.Time) int64 {
	return ts.Unix() / a.bucketSeconds * a.bucketSeconds
}

// processTick incorporates a single tick into the bar state.
func (a *Aggregator) processTick(tick model.Tick, barCh chan<- model.Bar) {
	bucket := a.bucketOf(tick.TS)
	key := tick.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	state, exists := a.states[key]

	if exists && bucket < state.bucket {
		// Late tick, belongs to an already-finalized bucket
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		return
	}

	if exists && bucket > state.bucket {
		a.emit(state, barCh)
		delete(a.states, key)
		exists = false
	}

	if !exists {
		a.states[key] = &barState{
			bucket: bucket,
			bar: model.Bar{
				Symbol:   tick.Symbol,
				Exchange: tick.Exchange,
				Interval: a.interval,
				TS:       time.Unix(bucket, 0).UTC(),
				Open:     tick.Price,
				High:     tick.Price,
				Low:      tick.Price,
				Close:    tick.Price,
				Volume:   tick.Qty,
			},
		}
		return
	}

	b := &state.bar
	if tick.Price > b.High {
		b.High = tick.Price
	}
	if tick.Price < b.Low {
		b.Low = tick.Price
	}
	b.Close = tick.Price
	b.Volume += tick.Qty
}

// flushOld emits bars whose bucket has fully elapsed.
func (a *Aggregator) flushOld(barCh chan<- model.Bar) {
	cutoff := time.Now().Unix() - a.bucketSeconds

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		if state.bucket <= cutoff {
			a.emit(state, barCh)
			delete(a.states, key)
		}
	}
}

// flushAll emits all open bars regardless of bucket.
func (a *Aggregator) flushAll(barCh chan<- model.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		a.emit(state, barCh)
		delete(a.states, key)
	}
}

// emit sends a finalized bar. Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *barState, barCh chan<- model.Bar) {
	select {
	case barCh <- state.bar:
	default:
		log.Printf("[agg] barCh full, dropping bar %s ts=%v", state.bar.Key(), state.bar.TS)
	}
}
