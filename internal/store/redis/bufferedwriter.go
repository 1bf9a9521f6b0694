package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"tickdata/internal/model"
)

// pendingWrite is a write that was buffered during circuit-open state.
type pendingWrite struct {
	bar   *model.Bar
	quote *model.Quote
}

// BufferedWriter wraps a Redis Writer with a circuit breaker. While the
// circuit is open, bars and quotes are buffered locally and flushed when
// the circuit closes again, so a Redis outage does not lose history.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // oldest writes are dropped beyond this

	// Callbacks (optional)
	OnBuffer func()                // called when a write is buffered
	OnFlush  func(count int)       // called after flushing buffered writes
	OnWrite  func(d time.Duration) // called after each successful direct write
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush buffered writes when the circuit closes.
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteBar writes a bar through the circuit breaker, buffering it if
// the circuit is open.
func (bw *BufferedWriter) WriteBar(bar model.Bar) error {
	start := time.Now()
	err := bw.cb.Execute(func() error {
		return bw.writer.writeBar(bw.ctx, bar)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(pendingWrite{bar: &bar})
		return nil // buffered, not lost
	}
	if err == nil && bw.OnWrite != nil {
		bw.OnWrite(time.Since(start))
	}
	return err
}

// WriteQuote writes a quote through the circuit breaker, buffering it
// if the circuit is open.
func (bw *BufferedWriter) WriteQuote(q model.Quote) error {
	start := time.Now()
	err := bw.cb.Execute(func() error {
		return bw.writer.writeQuote(bw.ctx, q)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(pendingWrite{quote: &q})
		return nil
	}
	if err == nil && bw.OnWrite != nil {
		bw.OnWrite(time.Since(start))
	}
	return err
}

// Run reads finalized bars from barCh and writes them through the
// circuit breaker. Blocks until ctx is cancelled or barCh is closed.
func (bw *BufferedWriter) Run(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if err := bw.WriteBar(bar); err != nil {
				log.Printf("[redis] %v", err)
			}
		}
	}
}

// RunQuotes reads realtime quotes from quoteCh and writes them through
// the circuit breaker. Blocks until ctx is cancelled or quoteCh is closed.
func (bw *BufferedWriter) RunQuotes(ctx context.Context, quoteCh <-chan model.Quote) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-quoteCh:
			if !ok {
				return
			}
			if err := bw.WriteQuote(q); err != nil {
				log.Printf("[redis] %v", err)
			}
		}
	}
}

func (bw *BufferedWriter) bufferWrite(pw pendingWrite) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pw)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	for _, pw := range toFlush {
		switch {
		case pw.bar != nil:
			bw.writer.writeBar(bw.ctx, *pw.bar)
		case pw.quote != nil:
			bw.writer.writeQuote(bw.ctx, *pw.quote)
		}
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered writes waiting to flush.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
