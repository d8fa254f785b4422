package kernel

// NetworkDeck stubs net_* events: there is no real network stack under
// this kernel, so every request completes with a fake handle rather
// than failing outright (§4.6).
type NetworkDeck struct {
	nextHandle uint64
}

// NewNetworkDeck builds the Network deck's shared state. Handles start
// at 1 so a zero handle always reads as "none".
func NewNetworkDeck() *NetworkDeck {
	return &NetworkDeck{nextHandle: 1}
}

// Process is NetworkDeck's deckProcessFunc.
func (d *NetworkDeck) Process(e *RoutingEntry) (ResponseStatus, []byte, uint32, bool) {
	ev := &e.EventCopy
	switch ev.Type {
	case EventNetSocket, EventNetConnect:
		h := d.nextHandle
		d.nextHandle++
		var resp Response
		resp.SetResult(u64le(h))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventNetSend:
		var resp Response
		resp.SetResult(u32le(ev.DataLen))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventNetRecv:
		return StatusSuccess, nil, 0, true

	default:
		return 0, nil, uint32(ErrInvalidEvent), false
	}
}
