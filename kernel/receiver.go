package kernel

import (
	"math"

	"code.hybscloud.com/spin"

	"code.hybscloud.com/monokernel/ring"
	"code.hybscloud.com/monokernel/internal/klog"
)

// receiverRetrySpins bounds Receiver's busy-wait when the Center ring is
// momentarily full (§4.3: "bounded busy-wait retry (~10^6 spins)").
const receiverRetrySpins = 1_000_000

// Receiver drains the user-to-kernel ring, validates and stamps each
// Event, and forwards it to Center.
type Receiver struct {
	in       *ring.SPSC[Event]
	out      *ring.SPSC[Event]
	nextID   uint64
	metrics  *Metrics
	log      *klog.Logger
}

// NewReceiver wires a Receiver between the user-facing ring and the
// Receiver-to-Center ring. IDs are assigned starting at 1 (§4.3).
func NewReceiver(in, out *ring.SPSC[Event], metrics *Metrics, log *klog.Logger) *Receiver {
	return &Receiver{in: in, out: out, nextID: 1, metrics: metrics, log: log}
}

// RunOnce drains at most one Event. It reports whether it did any work,
// for System's iteration loop to decide whether the pipeline is idle.
func (r *Receiver) RunOnce() bool {
	ev, err := r.in.Dequeue()
	if err != nil {
		return false
	}

	if reason, ok := r.reject(ev); ok {
		r.metrics.EventsRejected.WithLabelValues(reason).Inc()
		r.log.Debug("receiver: rejected event", "reason", reason, "type", ev.Type)
		return true
	}

	ev.ID = r.nextID
	r.nextID++
	ev.Timestamp = nowTSC()

	sw := spin.Wait{}
	for i := 0; i < receiverRetrySpins; i++ {
		if err := r.out.Enqueue(&ev); err == nil {
			r.metrics.EventsAccepted.Inc()
			return true
		}
		sw.Once()
	}
	r.metrics.EventsRejected.WithLabelValues("center_ring_full").Inc()
	r.log.Warn("receiver: dropped event, center ring full", "id", ev.ID)
	return true
}

// reject returns the rejection reason and true if ev fails Receiver's
// validation (§4.3).
func (r *Receiver) reject(ev Event) (string, bool) {
	if !ev.Type.Valid() {
		return "type_zero_or_out_of_range", true
	}
	if ev.UserID == 0 {
		return "user_id_zero", true
	}
	if ev.ID != 0 {
		return "forged_id", true
	}
	if reason, bad := structuralCheck(ev); bad {
		return reason, true
	}
	return "", false
}

// structuralCheck decodes ev's payload using the same codec the owning
// deck will eventually use, so a payload a deck could not parse is
// rejected here instead of surfacing as a deck-level failure.
func structuralCheck(ev Event) (string, bool) {
	switch ev.Type {
	case EventMemoryAlloc:
		p, ok := DecodeMemoryAlloc(&ev)
		if !ok {
			return "malformed_payload", true
		}
		if p.Size == 0 || p.Size > math.MaxUint32 {
			return "invalid_alloc_size", true
		}
	case EventFileOpen:
		if _, ok := DecodeFileOpenPath(&ev); !ok {
			return "malformed_payload", true
		}
	case EventFileStat:
		if _, ok := DecodeFileStatPath(&ev); !ok {
			return "malformed_payload", true
		}
	case EventFileWrite:
		if _, ok := DecodeFileWrite(&ev); !ok {
			return "malformed_payload", true
		}
	case EventFileCreateTagged:
		if _, ok := DecodeFileCreateTagged(&ev); !ok {
			return "malformed_payload", true
		}
	case EventProcCreate:
		if _, ok := DecodeProcCreate(&ev); !ok {
			return "malformed_payload", true
		}
	case EventIPCSend:
		if _, ok := DecodeIPCSend(&ev); !ok {
			return "malformed_payload", true
		}
	}
	return "", false
}
