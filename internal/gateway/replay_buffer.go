package gateway

import "sync"

// replayEntry holds one broadcast envelope for later replay.
type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer is a fixed-size circular buffer of recent envelopes for
// one topic. Clients that detect a sequence gap after reconnecting ask
// for everything past the last seq they saw.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
// Non-positive capacities fall back to 500.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope, overwriting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Copy so the buffer does not alias the caller's slice.
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.buf[rb.pos] = replayEntry{seq: seq, data: cp}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 {
		rb.full = true
	}
}

// Since returns all buffered envelopes with seq > since, oldest first.
func (rb *ReplayBuffer) Since(since int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	count := rb.len()
	for i := 0; i < count; i++ {
		e := rb.buf[rb.index(i)]
		if e.seq > since {
			out = append(out, e.data)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a buffer position.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
