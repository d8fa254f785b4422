// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// MPSC is an FAA-based multi-producer single-consumer bounded ring.
//
// Producers use fetch-and-add to blindly claim slot positions (SCQ-style),
// which requires 2n physical slots for a usable capacity of n. Used for the
// per-task IPC mailbox: any task may send concurrently, while only the
// owning task's scheduler slot ever dequeues.
type MPSC[T any] struct {
	_        pad
	head     atomix.Uint64 // consumer index; consumer writes, producers read
	_        pad
	tail     atomix.Uint64 // producer index (FAA)
	_        pad
	draining atomix.Bool // set by Drain; no operation reads it
	_        pad
	buffer   []mpscSlot[T]
	capacity uint64 // n, usable capacity
	size     uint64 // 2n, physical slots
	mask     uint64
}

type mpscSlot[T any] struct {
	cycle atomix.Uint64
	data  T
}

// NewMPSC creates a new MPSC ring. Capacity rounds up to the next power
// of 2.
func NewMPSC[T any](capacity int) *MPSC[T] {
	if capacity < 2 {
		panic("ring: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	size := n * 2

	q := &MPSC[T]{
		buffer:   make([]mpscSlot[T], size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	for i := uint64(0); i < size; i++ {
		q.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return q
}

// Drain records that no more enqueues will occur. It only sets a flag:
// Dequeue has no threshold to lift and already returns every remaining
// item. The caller must ensure no further Enqueue calls happen after this.
func (q *MPSC[T]) Drain() {
	q.draining.StoreRelease(true)
}

// Enqueue adds an element (multiple producers safe). Returns
// ErrWouldBlock if the ring is full.
func (q *MPSC[T]) Enqueue(elem *T) error {
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		head := q.head.LoadRelaxed()
		if tail >= head+q.capacity {
			return ErrWouldBlock
		}

		myTail := q.tail.AddAcqRel(1) - 1
		slot := &q.buffer[myTail&q.mask]
		expectedCycle := myTail / q.capacity

		slotCycle := slot.cycle.LoadAcquire()
		if slotCycle == expectedCycle {
			slot.data = *elem
			slot.cycle.StoreRelease(expectedCycle + 1)
			return nil
		}
		if int64(slotCycle) < int64(expectedCycle) {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Dequeue removes and returns an element (single consumer only).
func (q *MPSC[T]) Dequeue() (T, error) {
	head := q.head.LoadRelaxed()
	cycle := head / q.capacity
	slot := &q.buffer[head&q.mask]

	slotCycle := slot.cycle.LoadAcquire()
	if slotCycle != cycle+1 {
		var zero T
		return zero, ErrWouldBlock
	}

	elem := slot.data
	var zero T
	slot.data = zero
	nextEnqCycle := (head + q.size) / q.capacity
	slot.cycle.StoreRelease(nextEnqCycle)
	q.head.StoreRelaxed(head + 1)
	return elem, nil
}

// Cap returns the usable capacity (n, not the 2n physical slot count).
func (q *MPSC[T]) Cap() int {
	return int(q.capacity)
}
