// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/atomix"

// SPSC is a single-producer single-consumer bounded ring.
//
// Based on Lamport's ring buffer with cached index optimization: the
// producer caches the consumer's dequeue index and vice versa, reducing
// cross-core cache line traffic on the common (non-contended) path.
type SPSC[T any] struct {
	_          pad
	head       atomix.Uint64 // consumer reads from here
	_          pad
	cachedTail uint64 // consumer's cached view of tail
	_          pad
	tail       atomix.Uint64 // producer writes here
	_          pad
	cachedHead uint64 // producer's cached view of head
	_          pad
	buffer     []T
	mask       uint64
}

// NewSPSC creates a new SPSC ring. Capacity rounds up to the next power
// of 2; panics if capacity < 2.
func NewSPSC[T any](capacity int) *SPSC[T] {
	if capacity < 2 {
		panic("ring: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	return &SPSC[T]{
		buffer: make([]T, n),
		mask:   n - 1,
	}
}

// Enqueue adds an element (producer only). Returns ErrWouldBlock if full.
func (q *SPSC[T]) Enqueue(elem *T) error {
	tail := q.tail.LoadRelaxed()
	if tail-q.cachedHead > q.mask {
		q.cachedHead = q.head.LoadAcquire()
		if tail-q.cachedHead > q.mask {
			return ErrWouldBlock
		}
	}

	q.buffer[tail&q.mask] = *elem
	q.tail.StoreRelease(tail + 1)
	return nil
}

// Dequeue removes and returns an element (consumer only).
func (q *SPSC[T]) Dequeue() (T, error) {
	head := q.head.LoadRelaxed()
	if head >= q.cachedTail {
		q.cachedTail = q.tail.LoadAcquire()
		if head >= q.cachedTail {
			var zero T
			return zero, ErrWouldBlock
		}
	}

	elem := q.buffer[head&q.mask]
	var zero T
	q.buffer[head&q.mask] = zero
	q.head.StoreRelease(head + 1)
	return elem, nil
}

// PushBatch enqueues up to len(elems) elements, stopping at the first
// failure. Returns the count actually moved.
func (q *SPSC[T]) PushBatch(elems []T) int {
	for i := range elems {
		if q.Enqueue(&elems[i]) != nil {
			return i
		}
	}
	return len(elems)
}

// PopBatch dequeues up to len(out) elements, stopping at the first
// failure. Returns the count actually moved.
func (q *SPSC[T]) PopBatch(out []T) int {
	for i := range out {
		v, err := q.Dequeue()
		if err != nil {
			return i
		}
		out[i] = v
	}
	return len(out)
}

// Cap returns the ring capacity.
func (q *SPSC[T]) Cap() int {
	return int(q.mask + 1)
}

// Len returns an instantaneous, possibly-stale occupancy estimate. Not
// safe to use for correctness decisions — see the Queue doc.
func (q *SPSC[T]) Len() int {
	tail := q.tail.LoadAcquire()
	head := q.head.LoadAcquire()
	return int(tail - head)
}
