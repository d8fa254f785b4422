package kernel

import (
	"code.hybscloud.com/spin"

	"code.hybscloud.com/monokernel/internal/klog"
	"code.hybscloud.com/monokernel/ring"
)

// centerRetrySpins bounds Center's busy-wait when pushing a denial
// Response directly to the user-facing ring.
const centerRetrySpins = 1_000_000

// maxMemoryAlloc is the deny-list threshold for oversize allocations
// (§4.4: "oversize memory allocations (> 1 GiB)").
const maxMemoryAlloc = 1 << 30

// SecurityPolicy is Center's pre-routing deny-list. The zero value
// denies nothing but oversize allocations.
type SecurityPolicy struct {
	ForbiddenPaths map[string]bool
}

func (p *SecurityPolicy) denies(ev Event) bool {
	switch ev.Type {
	case EventMemoryAlloc:
		if pl, ok := DecodeMemoryAlloc(&ev); ok && pl.Size > maxMemoryAlloc {
			return true
		}
	case EventFileOpen:
		if path, ok := DecodeFileOpenPath(&ev); ok && p.pathForbidden(path) {
			return true
		}
	case EventFileStat:
		if path, ok := DecodeFileStatPath(&ev); ok && p.pathForbidden(path) {
			return true
		}
	case EventFileCreateTagged:
		if pl, ok := DecodeFileCreateTagged(&ev); ok && p.pathForbidden(pl.Path) {
			return true
		}
	}
	return false
}

func (p *SecurityPolicy) pathForbidden(path string) bool {
	return p.ForbiddenPaths != nil && p.ForbiddenPaths[path]
}

// Center consumes validated events from Receiver, applies the security
// deny-list, determines a route, and inserts a RoutingEntry (§4.4).
type Center struct {
	in       *ring.SPSC[Event]
	out      *ring.SPSC[Response] // kernel-to-user, used only for denials
	table    *RoutingTable
	policy   *SecurityPolicy
	metrics  *Metrics
	log      *klog.Logger
}

// NewCenter wires Center between the Receiver-to-Center ring, the
// kernel-to-user ring (for direct denials), and the routing table.
func NewCenter(in *ring.SPSC[Event], out *ring.SPSC[Response], table *RoutingTable, policy *SecurityPolicy, metrics *Metrics, log *klog.Logger) *Center {
	if policy == nil {
		policy = &SecurityPolicy{}
	}
	return &Center{in: in, out: out, table: table, policy: policy, metrics: metrics, log: log}
}

// RunOnce processes at most one event.
func (c *Center) RunOnce() bool {
	ev, err := c.in.Dequeue()
	if err != nil {
		return false
	}

	if c.policy.denies(ev) {
		c.metrics.EventsDenied.Inc()
		c.denyDirect(ev)
		return true
	}

	route := []DeckID{RouteFor(ev.Type)}
	if _, _, err := c.table.Insert(ev.ID, ev, route, nowTSC()); err != nil {
		c.metrics.RoutingFull.Inc()
		c.metrics.RoutingErrors.Inc()
		c.log.Warn("center: dropped event, routing table full", "id", ev.ID, "bucket_collisions", c.table.Collisions())
		return true
	}
	c.metrics.RoutingTableLen.Set(float64(c.table.Size()))
	return true
}

// denyDirect builds a denial Response and pushes it straight to the
// kernel-to-user ring, bypassing the routing table entirely (§4.4).
func (c *Center) denyDirect(ev Event) {
	resp := Response{
		EventID:   ev.ID,
		Status:    StatusDenied,
		ErrorCode: uint32(ErrPermissionDenied),
		Timestamp: nowTSC(),
	}
	sw := spin.Wait{}
	for i := 0; i < centerRetrySpins; i++ {
		if err := c.out.Enqueue(&resp); err == nil {
			return
		}
		sw.Once()
	}
	c.log.Warn("center: dropped denial response, user ring full", "id", ev.ID)
}
