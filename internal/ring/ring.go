// Package ring provides a fixed-capacity ring buffer. The oldest entry is
// evicted when a push exceeds the capacity.
package ring

// Buffer is a bounded FIFO over values of type T. The zero value is not
// usable, use New.
type Buffer[T any] struct {
	data  []T
	head  int
	count int
}

// New creates a Buffer holding at most capacity entries.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (b *Buffer[T]) Push(v T) {
	idx := (b.head + b.count) % len(b.data)
	b.data[idx] = v
	if b.count < len(b.data) {
		b.count++
		return
	}
	b.head = (b.head + 1) % len(b.data)
}

// Len reports the number of stored entries.
func (b *Buffer[T]) Len() int { return b.count }

// Cap reports the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Latest returns the most recently pushed entry.
func (b *Buffer[T]) Latest() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.data[(b.head+b.count-1)%len(b.data)], true
}

// Snapshot returns the entries oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.data[(b.head+i)%len(b.data)])
	}
	return out
}
