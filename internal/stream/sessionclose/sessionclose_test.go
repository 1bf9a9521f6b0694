package sessionclose

import (
	"sync/atomic"
	"testing"
	"time"

	"tickdata/internal/markethours"
)

// sessionDay is a Monday with no holiday; the bell rings 15:30 IST.
var sessionDay = time.Date(2026, 3, 2, 15, 30, 0, 0, markethours.IST)

func newTestWatcher(fired *atomic.Int32, at time.Time) *Watcher {
	w := New(func() { fired.Add(1) })
	w.QuietFor = 10 * time.Second
	w.MaxGrace = 2 * time.Minute
	w.now = func() time.Time { return at }
	return w
}

func TestWatcher_FiresWhenFeedGoesQuiet(t *testing.T) {
	var fired atomic.Int32
	now := sessionDay.Add(-1 * time.Minute)
	w := newTestWatcher(&fired, now)

	w.Observe()
	w.check()
	if fired.Load() != 0 {
		t.Fatal("fired before the bell")
	}

	// Ticks still flowing 5s after the bell.
	now = sessionDay.Add(5 * time.Second)
	w.now = func() time.Time { return now }
	w.Observe()
	w.check()
	if fired.Load() != 0 {
		t.Fatal("fired while ticks were still arriving")
	}

	// Quiet for QuietFor.
	now = sessionDay.Add(20 * time.Second)
	w.now = func() time.Time { return now }
	w.check()
	waitFired(t, &fired, 1)
}

func TestWatcher_FiresAtHardDeadline(t *testing.T) {
	var fired atomic.Int32
	now := sessionDay.Add(1 * time.Second)
	w := newTestWatcher(&fired, now)

	// Keep ticks arriving past MaxGrace.
	for i := 0; i < 30; i++ {
		now = sessionDay.Add(time.Duration(i*10) * time.Second)
		w.now = func() time.Time { return now }
		w.Observe()
		w.check()
	}
	waitFired(t, &fired, 1)
}

func TestWatcher_FiresOncePerSession(t *testing.T) {
	var fired atomic.Int32
	now := sessionDay.Add(1 * time.Minute)
	w := newTestWatcher(&fired, now)

	w.check()
	w.check()
	w.check()
	waitFired(t, &fired, 1)

	// Next trading day re-arms.
	now = sessionDay.AddDate(0, 0, 1).Add(1 * time.Minute)
	w.now = func() time.Time { return now }
	w.check()
	waitFired(t, &fired, 2)
}

func TestWatcher_IgnoresWeekend(t *testing.T) {
	var fired atomic.Int32
	saturday := time.Date(2026, 3, 7, 16, 0, 0, 0, markethours.IST)
	w := newTestWatcher(&fired, saturday)

	w.check()
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("fired on a non-trading day")
	}
}

func waitFired(t *testing.T, fired *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fired.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("fired count: got %d, want %d", fired.Load(), want)
}
