package kernel

import (
	"code.hybscloud.com/spin"

	"code.hybscloud.com/monokernel/internal/klog"
	"code.hybscloud.com/monokernel/ring"
)

// executionRetrySpins bounds Execution's busy-wait when the user-facing
// ring is momentarily full (§4.7: "push ... with busy-wait until space
// is available").
const executionRetrySpins = 1_000_000

// Execution consumes Guide's execution queue, assembles a Response from
// the entry's last deck result, and removes the entry (§4.7).
type Execution struct {
	in      *ring.SPSCIndirect
	out     *ring.SPSC[Response]
	table   *RoutingTable
	metrics *Metrics
	log     *klog.Logger
}

// NewExecution wires Execution to Guide's output queue, the
// kernel-to-user ring, and the routing table.
func NewExecution(in *ring.SPSCIndirect, out *ring.SPSC[Response], table *RoutingTable, metrics *Metrics, log *klog.Logger) *Execution {
	return &Execution{in: in, out: out, table: table, metrics: metrics, log: log}
}

// RunOnce finalizes at most one entry.
func (x *Execution) RunOnce() bool {
	handle, err := x.in.Dequeue()
	if err != nil {
		return false
	}
	id := RoutingID(handle)
	e, ok := x.table.Resolve(id)
	if !ok {
		// Entry already gone — nothing left to finalize.
		return true
	}

	resp := x.buildResponse(e)

	sw := spin.Wait{}
	for i := 0; i < executionRetrySpins; i++ {
		if err := x.out.Enqueue(&resp); err == nil {
			x.metrics.ResponsesSent.Inc()
			break
		}
		sw.Once()
		if i == executionRetrySpins-1 {
			x.log.Warn("execution: dropped response, user ring full", "event_id", resp.EventID)
		}
	}

	eventID := e.EventID()
	if err := x.table.Remove(eventID); err != nil {
		x.log.Error("execution: remove after finalize failed", "event_id", eventID, "err", err)
	}
	x.metrics.RoutingTableLen.Set(float64(x.table.Size()))
	return true
}

// buildResponse walks deck_results in reverse to find the last
// non-empty result (§4.7).
func (x *Execution) buildResponse(e *RoutingEntry) Response {
	resp := Response{
		EventID:   e.EventID(),
		Status:    x.statusFor(e),
		ErrorCode: e.ErrorCode(),
		Timestamp: nowTSC(),
	}
	for id := DeckID(deckCount - 1); id >= DeckStorage; id-- {
		dr, _ := e.DeckResult(id)
		if dr.Present {
			resp.SetResult(dr.Data[:dr.DataLen])
			if resp.Status == StatusProcessing {
				resp.Status = dr.Status
			}
			break
		}
	}
	return resp
}

func (x *Execution) statusFor(e *RoutingEntry) ResponseStatus {
	switch e.State() {
	case EntrySuccess:
		return StatusSuccess
	case EntryError:
		return StatusError
	case EntryDenied:
		return StatusDenied
	default:
		return StatusProcessing
	}
}
