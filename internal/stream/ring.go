package stream

import "sync"

// Ring is a thread-safe fixed-capacity ring buffer that drops the oldest
// item on overflow. It decouples producers (the live feed, the engine) from
// consumers (the cycle loop, the batch writers): producers never block, and
// anything dropped from the live feed is recovered by the next REST fetch.
type Ring[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	count    int
	closed   bool

	// Stats
	totalPushed  int64
	totalDrained int64
	totalDropped int64
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push adds an item, evicting the oldest when full. Returns false if the
// ring is closed.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if r.count == len(r.buf) {
		// Evict oldest.
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		r.totalDropped++
	}

	r.buf[(r.head+r.count)%len(r.buf)] = item
	r.count++
	r.totalPushed++
	return true
}

// Drain removes and returns every buffered item in arrival order.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	for i := 0; i < len(out); i++ {
		out[i] = r.buf[r.head]
		var zero T
		r.buf[r.head] = zero // Clear reference for GC
		r.head = (r.head + 1) % len(r.buf)
	}
	r.count = 0
	r.totalDrained += int64(len(out))
	return out
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close marks the ring closed. Buffered items remain drainable; further
// pushes are refused.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Stats contains ring counters.
type Stats struct {
	Count        int
	Capacity     int
	TotalPushed  int64
	TotalDrained int64
	TotalDropped int64
}

// Stats returns a snapshot of the ring's counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Count:        r.count,
		Capacity:     len(r.buf),
		TotalPushed:  r.totalPushed,
		TotalDrained: r.totalDrained,
		TotalDropped: r.totalDropped,
	}
}
