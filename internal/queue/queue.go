// Package queue provides the fixed-capacity, mutex-guarded containers used
// on the per-frame RF paths. Every operation is non-blocking: a full
// container rejects the new item and an empty one reports ok=false.
package queue

import "sync"

// Ring is a bounded FIFO queue.
type Ring[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	n       int
	dropped uint64
}

// NewRing returns a ring holding at most capacity items. A non-positive
// capacity yields a ring that rejects every Put.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Put appends v. It returns false, leaving the contents unchanged, when
// the ring is full.
func (q *Ring[T]) Put(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		q.dropped++
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return true
}

// Get removes and returns the oldest item.
func (q *Ring[T]) Get() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getLocked()
}

func (q *Ring[T]) getLocked() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// Drain removes every queued item, handing each to fn (which may be nil)
// after the lock is released. It returns the number of items removed.
func (q *Ring[T]) Drain(fn func(T)) int {
	q.mu.Lock()
	items := make([]T, 0, q.n)
	for {
		v, ok := q.getLocked()
		if !ok {
			break
		}
		items = append(items, v)
	}
	q.mu.Unlock()

	if fn != nil {
		for _, v := range items {
			fn(v)
		}
	}
	return len(items)
}

// Len returns the number of queued items.
func (q *Ring[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the fixed capacity.
func (q *Ring[T]) Cap() int { return len(q.buf) }

// IsFull reports whether a Put would be rejected right now.
func (q *Ring[T]) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n == len(q.buf)
}

// Dropped returns how many Puts were rejected since creation.
func (q *Ring[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Stack is a bounded LIFO stack.
type Stack[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// NewStack returns a stack holding at most capacity items.
func NewStack[T any](capacity int) *Stack[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Stack[T]{items: make([]T, 0, capacity), limit: capacity}
}

// Push adds v on top; false when the stack is full.
func (s *Stack[T]) Push(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) >= s.limit {
		return false
	}
	s.items = append(s.items, v)
	return true
}

// Pop removes the top item.
func (s *Stack[T]) Pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	last := len(s.items) - 1
	v := s.items[last]
	s.items[last] = zero
	s.items = s.items[:last]
	return v, true
}

// Len returns the number of stacked items.
func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Cap returns the fixed capacity.
func (s *Stack[T]) Cap() int { return s.limit }
