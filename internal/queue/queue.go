// Package queue provides the bounded FIFO used by the delivery
// transports. Insertion past the capacity evicts the oldest item,
// never the newest.
package queue

// Queue is a bounded FIFO. A capacity of zero or less means unbounded.
// It is not safe for concurrent use; callers hold their own lock.
type Queue[T any] struct {
	items []T
	cap   int
}

// New returns a queue bounded at capacity.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{cap: capacity}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the configured bound.
func (q *Queue[T]) Cap() int {
	return q.cap
}

// Push appends item at the tail, evicting the oldest item first when
// the queue is full. It reports whether an eviction happened.
func (q *Queue[T]) Push(item T) bool {
	evicted := false
	if q.cap > 0 && len(q.items) >= q.cap {
		q.items = q.items[1:]
		evicted = true
	}
	q.items = append(q.items, item)
	return evicted
}

// PushFront puts item back at the head. Used to requeue an item whose
// delivery failed; it bypasses the capacity check because the item was
// popped moments earlier.
func (q *Queue[T]) PushFront(item T) {
	q.items = append([]T{item}, q.items...)
}

// Pop removes and returns the head item. The boolean is false when the
// queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// PopN removes and returns up to n items from the head.
func (q *Queue[T]) PopN(n int) []T {
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]T, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	return out
}

// Items returns a snapshot copy of the queued items in order.
func (q *Queue[T]) Items() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
