package writer

import (
	"sync"
)

// DropBuffer is a thread-safe fixed-capacity FIFO. When full, Push evicts
// the oldest item so producers never block.
type DropBuffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	notify chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
}

// NewDropBuffer creates a buffer holding at most capacity items.
func NewDropBuffer[T any](capacity int) *DropBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &DropBuffer[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends item. It reports whether an older item was evicted to make
// room. Push on a closed buffer is a no-op and reports ok=false.
func (b *DropBuffer[T]) Push(item T) (dropped, ok bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false, false
	}

	if b.count == b.capacity {
		// Overwrite the oldest slot
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return dropped, true
}

// Notify returns a channel that receives after Push. Signals coalesce, so a
// receiver must drain until empty.
func (b *DropBuffer[T]) Notify() <-chan struct{} {
	return b.notify
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (b *DropBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	var zero T
	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.buf[b.head]
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.totalSent++
	}

	return result
}

// Close stops accepting items. Buffered items stay drainable.
func (b *DropBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the current number of items in the buffer.
func (b *DropBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *DropBuffer[T]) Cap() int {
	return b.capacity
}

// Stats returns buffer statistics.
func (b *DropBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		Dropped:       b.dropped,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
}
