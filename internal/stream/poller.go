// Package stream turns realtime quotes into a tick stream. The Poller
// drives providers that only expose snapshot quotes (Yahoo, broker LTP)
// by polling on a short interval during market hours and emitting a
// tick whenever the price or volume moves.
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"tickdata/internal/fetch"
	"tickdata/internal/markethours"
	"tickdata/internal/model"
)

// DefaultPollInterval matches the exchanges' realtime quote cadence.
const DefaultPollInterval = 2 * time.Second

// Instrument identifies one polled symbol.
type Instrument struct {
	Symbol   string
	Exchange model.Exchange
}

// Poller polls realtime quotes for a set of instruments and converts
// them to ticks. Polling pauses outside market hours.
type Poller struct {
	fetcher     fetch.Fetcher
	instruments []Instrument
	interval    time.Duration

	// lastVolume tracks cumulative day volume per instrument so ticks
	// carry the traded delta, not the running total.
	lastVolume map[string]int64
	lastPrice  map[string]float64

	// now is swappable for tests.
	now func() time.Time

	// OnError is called per failed poll (optional).
	OnError func(inst Instrument, err error)

	// OnQuote is called for every successful poll, including ones that
	// do not produce a tick (optional).
	OnQuote func(q model.Quote)
}

func NewPoller(f fetch.Fetcher, instruments []Instrument, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		fetcher:     f,
		instruments: instruments,
		interval:    interval,
		lastVolume:  make(map[string]int64),
		lastPrice:   make(map[string]float64),
		now:         time.Now,
	}
}

// Run polls until ctx is cancelled, pushing ticks into tickCh.
// Non-blocking sends: a full channel drops the tick.
func (p *Poller) Run(ctx context.Context, tickCh chan<- model.Tick) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	closedLogged := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := p.now()
		if !markethours.IsMarketOpen(now) {
			if !closedLogged {
				log.Printf("[poller] %s", markethours.StatusString("NSE", now))
				closedLogged = true
			}
			continue
		}
		closedLogged = false

		p.pollAll(ctx, tickCh)
	}
}

func (p *Poller) pollAll(ctx context.Context, tickCh chan<- model.Tick) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, inst := range p.instruments {
		wg.Add(1)
		go func(inst Instrument) {
			defer wg.Done()

			quote, err := p.fetcher.RealtimeQuote(ctx, inst.Symbol, inst.Exchange)
			if err != nil {
				if p.OnError != nil {
					p.OnError(inst, err)
				} else {
					log.Printf("[poller] %s:%s quote failed: %v", inst.Exchange, inst.Symbol, err)
				}
				return
			}

			if p.OnQuote != nil {
				p.OnQuote(quote)
			}

			mu.Lock()
			tick, emit := p.toTick(quote)
			mu.Unlock()
			if !emit {
				return
			}

			select {
			case tickCh <- tick:
			default:
				log.Println("[poller] tickCh full, dropping tick")
			}
		}(inst)
	}
	wg.Wait()
}

// toTick converts a quote snapshot into a delta tick. Unchanged
// snapshots are suppressed. Caller holds the state lock.
func (p *Poller) toTick(q model.Quote) (model.Tick, bool) {
	key := q.Key()
	prevVol, seen := p.lastVolume[key]
	prevPrice := p.lastPrice[key]

	if seen && q.LTP == prevPrice && q.Volume == prevVol {
		return model.Tick{}, false
	}

	qty := q.Volume - prevVol
	if qty < 0 || !seen {
		// first observation, or day rollover reset the counter
		qty = 0
	}
	p.lastVolume[key] = q.Volume
	p.lastPrice[key] = q.LTP

	tick := q.Tick()
	tick.Qty = qty
	if tick.TS.IsZero() {
		tick.TS = p.now()
	}
	return tick, true
}
