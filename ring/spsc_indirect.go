// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/atomix"

// SPSCIndirect is a single-producer single-consumer ring carrying opaque
// uintptr handles instead of values. Used for deck work queues, where the
// handle is a packed RoutingID (see package kernel) rather than a raw
// pointer, so a handle that outlives its slot's generation is detected
// instead of dereferencing stale memory.
type SPSCIndirect struct {
	_          pad
	head       atomix.Uint64
	_          pad
	cachedTail uint64
	_          pad
	tail       atomix.Uint64
	_          pad
	cachedHead uint64
	_          pad
	buffer     []uintptr
	mask       uint64
}

// NewSPSCIndirect creates a new indirect SPSC ring. Capacity rounds up to
// the next power of 2.
func NewSPSCIndirect(capacity int) *SPSCIndirect {
	if capacity < 2 {
		panic("ring: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	return &SPSCIndirect{
		buffer: make([]uintptr, n),
		mask:   n - 1,
	}
}

// Enqueue adds a handle (producer only). Returns ErrWouldBlock if full.
func (q *SPSCIndirect) Enqueue(handle uintptr) error {
	tail := q.tail.LoadRelaxed()
	if tail-q.cachedHead > q.mask {
		q.cachedHead = q.head.LoadAcquire()
		if tail-q.cachedHead > q.mask {
			return ErrWouldBlock
		}
	}
	q.buffer[tail&q.mask] = handle
	q.tail.StoreRelease(tail + 1)
	return nil
}

// Dequeue removes and returns a handle (consumer only).
func (q *SPSCIndirect) Dequeue() (uintptr, error) {
	head := q.head.LoadRelaxed()
	if head >= q.cachedTail {
		q.cachedTail = q.tail.LoadAcquire()
		if head >= q.cachedTail {
			return 0, ErrWouldBlock
		}
	}
	handle := q.buffer[head&q.mask]
	q.buffer[head&q.mask] = 0
	q.head.StoreRelease(head + 1)
	return handle, nil
}

// Cap returns the ring capacity.
func (q *SPSCIndirect) Cap() int {
	return int(q.mask + 1)
}
