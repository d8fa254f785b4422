package kernel

import (
	"code.hybscloud.com/monokernel/internal/klog"
	"code.hybscloud.com/monokernel/ring"
)

// guideBatchBuckets is the number of routing-table buckets Guide visits
// per RunOnce call (§4.5: "a bounded batch (e.g. 16 buckets)").
const guideBatchBuckets = 16

// Guide is the single scanner over the routing table: it advances each
// processing entry to its next deck, or to Execution once its route is
// exhausted or it has been aborted (§4.5).
type Guide struct {
	table          *RoutingTable
	deckQueues     [deckCount]*ring.SPSCIndirect
	executionQueue *ring.SPSCIndirect
	scanPos        uint64
	metrics        *Metrics
	log            *klog.Logger
}

// NewGuide wires Guide to the routing table, the four deck input
// queues, and the Execution queue.
func NewGuide(table *RoutingTable, deckQueues [deckCount]*ring.SPSCIndirect, executionQueue *ring.SPSCIndirect, metrics *Metrics, log *klog.Logger) *Guide {
	return &Guide{table: table, deckQueues: deckQueues, executionQueue: executionQueue, metrics: metrics, log: log}
}

// RunOnce scans guideBatchBuckets buckets starting from the rotating
// scan_position, advancing every processing entry it finds.
func (g *Guide) RunOnce() bool {
	did := false
	tableSize := g.table.TableSize()
	for i := 0; i < guideBatchBuckets; i++ {
		bucket := int(g.scanPos % uint64(tableSize))
		g.scanPos++
		g.table.ForEachBucket(bucket, func(e *RoutingEntry, id RoutingID) {
			if e.State() != EntryProcessing {
				return
			}
			did = true
			g.advance(e, id)
		})
	}
	return did
}

func (g *Guide) advance(e *RoutingEntry, id RoutingID) {
	if e.Aborted() {
		if g.toExecution(id) {
			e.ClearAllPrefixes()
			e.SetState(EntryError)
		}
		// On a full execution queue, abort_flag and the prefixes are left
		// untouched; the next rotation retries the same handoff.
		return
	}

	deckID, _, ok := e.NextPrefix()
	if !ok {
		if g.toExecution(id) {
			e.SetState(EntrySuccess)
		}
		return
	}

	q := g.deckQueues[deckID]
	if q == nil {
		// No deck wired for this id; treat as a routing failure rather
		// than spin on it forever.
		if g.toExecution(id) {
			e.ClearAllPrefixes()
			e.SetState(EntryError)
		}
		return
	}
	// Deck queue momentarily full: leave the prefix populated so the
	// next rotation retries the dispatch.
	_ = q.Enqueue(uintptr(id))
}

// toExecution pushes id to the Execution queue and reports success. The
// caller only commits its state transition once this returns true, so a
// momentarily full queue leaves the entry unchanged for the next scan.
func (g *Guide) toExecution(id RoutingID) bool {
	if err := g.executionQueue.Enqueue(uintptr(id)); err != nil {
		return false
	}
	return true
}
