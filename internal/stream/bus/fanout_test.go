package bus

import (
	"context"
	"testing"
	"time"

	"tickdata/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Bar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	bar := model.Bar{
		Symbol:   "RELIANCE",
		Exchange: model.NSE,
		Interval: model.Interval1m,
		Open:     100,
		High:     110,
		Low:      90,
		Close:    105,
	}

	input <- bar

	select {
	case b := <-out1:
		if b.Symbol != "RELIANCE" {
			t.Errorf("out1: expected RELIANCE, got %s", b.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for bar")
	}

	select {
	case b := <-out2:
		if b.Symbol != "RELIANCE" {
			t.Errorf("out2: expected RELIANCE, got %s", b.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for bar")
	}
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe()
	_ = slow // never read

	dropped := make(chan int, 10)
	fo.OnDrop = func(idx int) { dropped <- idx }

	input := make(chan model.Bar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	// Capacity 1, so the second bar must be dropped.
	input <- model.Bar{Symbol: "A"}
	input <- model.Bar{Symbol: "B"}

	select {
	case idx := <-dropped:
		if idx != 0 {
			t.Errorf("dropped subscriber idx = %d, want 0", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drop callback")
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New(5)
	fo.Subscribe()
	fo.Subscribe()

	stats := fo.ChannelStats()
	if len(stats) != 2 {
		t.Fatalf("got %d stats, want 2", len(stats))
	}
	for _, s := range stats {
		if s.Cap != 5 {
			t.Errorf("cap = %d, want 5", s.Cap)
		}
	}
}
