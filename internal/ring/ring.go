// Package ring provides a fixed-capacity, oldest-first-eviction buffer used
// for every bounded history in driftwatch (entropy history, tool-call deque,
// meta-concept window, feedback window).
package ring

// Buffer is a fixed-capacity FIFO. Pushing into a full buffer evicts the
// oldest element. The zero value is unusable; call New.
type Buffer[T any] struct {
	items []T
	start int
	size  int
}

// New returns a buffer holding at most capacity elements.
// A capacity < 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// From builds a buffer from items, keeping only the newest capacity entries.
func From[T any](capacity int, items []T) *Buffer[T] {
	b := New[T](capacity)
	for _, it := range items {
		b.Push(it)
	}
	return b
}

// Push appends v, evicting the oldest element when full.
// It reports whether an element was evicted.
func (b *Buffer[T]) Push(v T) (evicted bool) {
	c := len(b.items)
	if b.size < c {
		b.items[(b.start+b.size)%c] = v
		b.size++
		return false
	}
	b.items[b.start] = v
	b.start = (b.start + 1) % c
	return true
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// At returns the i-th element, oldest first. It panics when out of range.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ring: index out of range")
	}
	return b.items[(b.start+i)%len(b.items)]
}

// Last returns the newest n elements, oldest first. Fewer are returned if
// the buffer holds fewer than n.
func (b *Buffer[T]) Last(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.At(b.size - n + i)
	}
	return out
}

// Slice returns a copy of all elements, oldest first.
func (b *Buffer[T]) Slice() []T {
	return b.Last(b.size)
}

// Clear removes all elements.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start, b.size = 0, 0
}
