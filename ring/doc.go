// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring provides the lock-free bounded queues that carry Event and
// Response records between the kernel's Receiver, Center, Guide, decks, and
// Execution workers, and the per-task IPC mailbox.
//
// Three variants cover every transport the kernel needs:
//
//   - SPSC: one producer, one consumer. Used for the user_to_kernel and
//     kernel_to_user rings, and for the Receiver→Center handoff. Carries
//     Event/Response by value.
//   - SPSCIndirect: one producer, one consumer, carrying opaque uintptr
//     handles instead of values. Used for every deck's work queue and for
//     Guide's execution queue, where the handle is a packed RoutingID
//     (slot + generation) into the routing table's arena rather than a raw
//     pointer — see package kernel.
//   - MPSC: many producers, one consumer. Used for the per-task IPC
//     mailbox, since any task may send to a given task concurrently while
//     only that task's scheduler slot ever drains it.
//
// # Basic usage
//
//	evRing := ring.NewSPSC[kernel.Event](256)
//	if err := evRing.Enqueue(&ev); err != nil {
//	    // ring.ErrWouldBlock: ring full, caller backs off
//	}
//	ev, err := evRing.Dequeue()
//
// # Memory ordering
//
// The producer writes the slot then release-stores tail; the consumer
// acquire-loads tail, reads the slot, then release-stores head. Both sides
// cache the other's index to avoid a cross-core load on every operation.
//
// # Error handling
//
// Operations return [ErrWouldBlock] when they cannot proceed immediately
// (ring full on Enqueue, empty on Dequeue). This is a control-flow signal,
// not a failure — callers should retry with backoff ([code.hybscloud.com/spin])
// rather than propagate it.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic primitives with explicit memory
// ordering, and [code.hybscloud.com/spin] for CPU pause spin-wait backoff.
package ring
