// Package sessionclose watches for the end of the trading session and
// fires a callback once the tick flow has settled. Feeds keep sending a
// trickle of ticks for a short while after the 15:30 bell; flushing the
// aggregators too early would finalize the day's last bar with a stale
// close.
package sessionclose

import (
	"context"
	"log"
	"sync"
	"time"

	"tickdata/internal/markethours"
)

// Watcher observes tick arrival times around the session close. Once
// no tick has arrived for QuietFor after the bell, or MaxGrace has
// elapsed, it invokes OnClose exactly once per session.
type Watcher struct {
	mu       sync.Mutex
	lastTick time.Time
	fired    bool
	session  time.Time // close time of the session currently watched

	// QuietFor is how long the feed must be silent after the bell
	// before the session is considered over. Default 30s.
	QuietFor time.Duration

	// MaxGrace is the hard deadline after the bell. Default 5m.
	MaxGrace time.Duration

	// OnClose runs when the session ends.
	OnClose func()

	now func() time.Time
}

// New creates a Watcher with default timings.
func New(onClose func()) *Watcher {
	return &Watcher{
		QuietFor: 30 * time.Second,
		MaxGrace: 5 * time.Minute,
		OnClose:  onClose,
		now:      time.Now,
	}
}

// Observe records a tick arrival.
func (w *Watcher) Observe() {
	w.mu.Lock()
	w.lastTick = w.now()
	w.mu.Unlock()
}

// Run checks the session state every few seconds until ctx is
// cancelled. It re-arms itself for the next trading day after firing.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	now := w.now()
	closeTime := markethours.TodayClose(now)

	w.mu.Lock()
	defer w.mu.Unlock()

	// New session: re-arm.
	if !closeTime.Equal(w.session) {
		w.session = closeTime
		w.fired = false
	}

	if w.fired || now.Before(closeTime) || !markethours.IsTradingDay(now) {
		return
	}

	quiet := w.lastTick.IsZero() || now.Sub(w.lastTick) >= w.QuietFor
	deadline := now.After(closeTime.Add(w.MaxGrace))
	if !quiet && !deadline {
		return
	}

	if deadline {
		log.Printf("[sessionclose] grace period %v elapsed, ending session", w.MaxGrace)
	} else {
		log.Printf("[sessionclose] feed quiet for %v after the bell, ending session", w.QuietFor)
	}
	w.fired = true
	if w.OnClose != nil {
		go w.OnClose()
	}
}
