// Package lfq provides a bounded lock-free queue for a single producer and a
// single consumer.
package lfq

import (
	"sync/atomic"
)

// SPSC is a bounded FIFO ring. Enqueue must be called from one goroutine,
// Dequeue from one (possibly other) goroutine.
//
// Both positions run freely and are only masked to index the ring, so the
// queue is empty when they are equal.
type SPSC[T any] struct {
	ring  []T
	mask  uint64
	_     [56]byte
	write atomic.Uint64
	_     [56]byte
	read  atomic.Uint64
}

// NewSPSC creates a queue. Capacity is rounded up to a power of two.
func NewSPSC[T any](capacity int) *SPSC[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &SPSC[T]{
		ring: make([]T, size),
		mask: uint64(size - 1),
	}
}

// Enqueue appends v. It returns false if the queue is full.
func (q *SPSC[T]) Enqueue(v T) bool {
	w := q.write.Load()
	if w-q.read.Load() >= uint64(len(q.ring)) {
		return false
	}
	q.ring[w&q.mask] = v
	q.write.Store(w + 1)
	return true
}

// Dequeue removes the oldest value. It returns false if the queue is empty.
func (q *SPSC[T]) Dequeue() (T, bool) {
	var empty T
	r := q.read.Load()
	if r == q.write.Load() {
		return empty, false
	}
	v := q.ring[r&q.mask]
	q.ring[r&q.mask] = empty
	q.read.Store(r + 1)
	return v, true
}

// EnqueueSlice appends as many values of vs as fit and returns their number.
func (q *SPSC[T]) EnqueueSlice(vs []T) int {
	w := q.write.Load()
	free := uint64(len(q.ring)) - (w - q.read.Load())
	n := uint64(len(vs))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		q.ring[(w+i)&q.mask] = vs[i]
	}
	q.write.Store(w + n)
	return int(n)
}

// DequeueSlice moves up to len(dst) oldest values into dst and returns
// their number.
func (q *SPSC[T]) DequeueSlice(dst []T) int {
	r := q.read.Load()
	n := q.write.Load() - r
	if uint64(len(dst)) < n {
		n = uint64(len(dst))
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = q.ring[(r+i)&q.mask]
	}
	q.read.Store(r + n)
	return int(n)
}

// Peek returns the oldest value without removing it. Only the consumer may
// call it.
func (q *SPSC[T]) Peek() (T, bool) {
	var empty T
	r := q.read.Load()
	if r == q.write.Load() {
		return empty, false
	}
	return q.ring[r&q.mask], true
}

// Len returns the number of queued values.
func (q *SPSC[T]) Len() int {
	return int(q.write.Load() - q.read.Load())
}

// Cap returns capacity of the queue.
func (q *SPSC[T]) Cap() int {
	return len(q.ring)
}
