package agg

import (
	"context"
	"testing"
	"time"

	"tickdata/internal/model"
)

func runAgg(t *testing.T, a *Aggregator) (chan model.Tick, chan model.Bar, func() []model.Bar) {
	t.Helper()
	tickCh := make(chan model.Tick, 100)
	barCh := make(chan model.Bar, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, tickCh, barCh)
		close(done)
	}()

	collect := func() []model.Bar {
		time.Sleep(200 * time.Millisecond)
		cancel()
		<-done
		var bars []model.Bar
		for {
			select {
			case b := <-barCh:
				bars = append(bars, b)
			default:
				return bars
			}
		}
	}
	return tickCh, barCh, collect
}

func TestAggregator_BasicBar(t *testing.T) {
	a := New(model.Interval1m)
	tickCh, _, collect := runAgg(t, a)

	base := time.Now().UTC().Truncate(time.Minute)

	// Three ticks inside one minute bucket
	tickCh <- model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2900, Qty: 10, TS: base}
	tickCh <- model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2950, Qty: 20, TS: base.Add(10 * time.Second)}
	tickCh <- model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2880, Qty: 5, TS: base.Add(30 * time.Second)}

	// Next minute triggers flush of the previous bucket
	tickCh <- model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2910, Qty: 15, TS: base.Add(time.Minute)}

	bars := collect()
	if len(bars) < 1 {
		t.Fatalf("expected at least 1 bar, got %d", len(bars))
	}

	b := bars[0]
	if b.Open != 2900 {
		t.Errorf("expected open=2900, got %v", b.Open)
	}
	if b.High != 2950 {
		t.Errorf("expected high=2950, got %v", b.High)
	}
	if b.Low != 2880 {
		t.Errorf("expected low=2880, got %v", b.Low)
	}
	if b.Close != 2880 {
		t.Errorf("expected close=2880, got %v", b.Close)
	}
	if b.Volume != 35 {
		t.Errorf("expected volume=35, got %d", b.Volume)
	}
	if b.Interval != model.Interval1m {
		t.Errorf("expected interval=1m, got %s", b.Interval)
	}
	if !b.TS.Equal(base) {
		t.Errorf("expected bar TS=%v (bucket start), got %v", base, b.TS)
	}
}

func TestAggregator_MultipleSymbols(t *testing.T) {
	a := New(model.Interval1m)
	tickCh, _, collect := runAgg(t, a)

	base := time.Now().UTC().Truncate(time.Minute)

	tickCh <- model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2900, Qty: 10, TS: base}
	tickCh <- model.Tick{Symbol: "TCS", Exchange: model.NSE, Price: 4100, Qty: 5, TS: base}

	tickCh <- model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2910, Qty: 1, TS: base.Add(time.Minute)}
	tickCh <- model.Tick{Symbol: "TCS", Exchange: model.NSE, Price: 4110, Qty: 1, TS: base.Add(time.Minute)}

	bars := collect()
	if len(bars) < 2 {
		t.Fatalf("expected at least 2 bars, got %d", len(bars))
	}
	seen := map[string]bool{}
	for _, b := range bars {
		seen[b.Symbol] = true
	}
	if !seen["RELIANCE"] || !seen["TCS"] {
		t.Errorf("missing symbols in output: %v", seen)
	}
}

func TestAggregator_FlushNow(t *testing.T) {
	a := New(model.Interval15m)
	tickCh, barCh, collect := runAgg(t, a)
	defer collect()

	// A bucket this wide won't roll over during the test.
	now := time.Now().UTC()
	tickCh <- model.Tick{Symbol: "SBIN", Exchange: model.NSE, Price: 811, Qty: 10, TS: now}
	time.Sleep(50 * time.Millisecond)

	a.FlushNow()

	select {
	case b := <-barCh:
		if b.Symbol != "SBIN" || b.Close != 811 {
			t.Errorf("unexpected flushed bar: %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("FlushNow did not emit the open bar")
	}
}

func TestAggregator_LateTickDropped(t *testing.T) {
	a := New(model.Interval1m)
	dropCh := make(chan struct{}, 10)
	a.OnDroppedTick = func() { dropCh <- struct{}{} }

	tickCh, _, collect := runAgg(t, a)

	base := time.Now().UTC().Truncate(time.Minute)

	tickCh <- model.Tick{Symbol: "INFY", Exchange: model.NSE, Price: 1500, Qty: 10, TS: base}
	// A tick from the previous minute must be discarded.
	tickCh <- model.Tick{Symbol: "INFY", Exchange: model.NSE, Price: 1490, Qty: 5, TS: base.Add(-time.Minute)}

	collect()

	close(dropCh)
	dropped := 0
	for range dropCh {
		dropped++
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped tick, got %d", dropped)
	}
}
