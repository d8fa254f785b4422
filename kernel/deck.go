package kernel

import (
	"code.hybscloud.com/monokernel/internal/klog"
	"code.hybscloud.com/monokernel/ring"
)

// DeckID identifies one of the four per-subsystem workers a routing
// entry can be dispatched to.
type DeckID uint8

const (
	DeckNone DeckID = iota
	DeckStorage
	DeckOperations
	DeckHardware
	DeckNetwork
	deckCount
)

func (d DeckID) String() string {
	switch d {
	case DeckStorage:
		return "storage"
	case DeckOperations:
		return "operations"
	case DeckHardware:
		return "hardware"
	case DeckNetwork:
		return "network"
	default:
		return "none"
	}
}

// RouteFor is the pure routing function Center uses to compute the
// ordered deck prefix for an event (§4.4 step 2): memory and file
// families go to Storage, process and ipc to Operations, timer and
// device to Hardware, network to Network. Unknown families default to
// Operations.
func RouteFor(t EventType) DeckID {
	switch t.Family() {
	case FamilyMemory, FamilyFile, FamilyTagFile:
		return DeckStorage
	case FamilyProcess, FamilyIPC, FamilyGroup:
		return DeckOperations
	case FamilyTimer, FamilyDevice:
		return DeckHardware
	case FamilyNetwork:
		return DeckNetwork
	default:
		return DeckOperations
	}
}

// MaxRoutingSteps bounds a RoutingEntry's ordered deck prefix. The
// current routing function only ever produces a single step; the
// structure supports more to leave room for future fan-out without a
// format change (§4.4).
const MaxRoutingSteps = 4

// deckProcessFunc implements one deck's business logic for a single
// entry. ok=false means business-logic failure (code is recorded on the
// entry); a func should never panic on malformed input — Receiver has
// already structurally validated the payload.
type deckProcessFunc func(e *RoutingEntry) (status ResponseStatus, result []byte, code uint32, ok bool)

// Deck is the identical skeleton every deck shares (§4.6): pop one
// &RoutingEntry handle, run process, record completion or failure.
type Deck struct {
	id      DeckID
	queue   *ring.SPSCIndirect
	table   *RoutingTable
	process deckProcessFunc
	metrics *Metrics
	log     *klog.Logger
}

// NewDeck builds a Deck bound to its own input queue and process
// function.
func NewDeck(id DeckID, queue *ring.SPSCIndirect, table *RoutingTable, process deckProcessFunc, metrics *Metrics, log *klog.Logger) *Deck {
	return &Deck{id: id, queue: queue, table: table, process: process, metrics: metrics, log: log}
}

func (d *Deck) ID() DeckID { return d.id }

// RunOnce pops and processes at most one dispatched entry.
func (d *Deck) RunOnce() bool {
	handle, err := d.queue.Dequeue()
	if err != nil {
		return false
	}
	id := RoutingID(handle)
	e, ok := d.table.Resolve(id)
	if !ok {
		// Stale handle: the entry was removed and its slot reused before
		// this deck got to it. Nothing to do.
		return true
	}
	idx, ok := e.IndexOfPrefix(d.id)
	if !ok {
		// Already cleared — a duplicate dispatch from a prior rotation.
		return true
	}

	status, result, code, success := d.process(e)
	if success {
		e.Complete(d.id, idx, status, result)
		d.metrics.DeckProcessed.WithLabelValues(d.id.String()).Inc()
	} else {
		e.Fail(d.id, idx, code)
		d.metrics.DeckFailed.WithLabelValues(d.id.String()).Inc()
		d.log.Debug("deck: entry failed", "deck", d.id, "event_id", e.EventID(), "code", code)
	}
	return true
}
