package kernel

import (
	"code.hybscloud.com/atomix"
)

// EntryState is a RoutingEntry's lifecycle state (§3).
type EntryState uint32

const (
	EntryProcessing EntryState = iota
	EntrySuccess
	EntryError
	EntryDenied
)

// DeckResult is one deck's completed result, written once by the deck
// that owns deckID and read once by Execution. It is not itself atomic:
// visibility is established by the acquire/release pair on the entry's
// prefix slot and completion bitmask (see Complete/Fail below).
type DeckResult struct {
	Present   bool
	Status    ResponseStatus
	ErrorCode uint32
	Data      [ResultSize]byte
	DataLen   uint32
}

// RoutingEntry is the in-table record tracking one in-flight event: its
// snapshot, remaining route, per-deck results, and status (§3). Entries
// live in a fixed arena (see RoutingTable) and are addressed by
// RoutingID, never by raw pointer, per the DESIGN NOTES arena+index
// resolution (§9).
type RoutingEntry struct {
	eventID atomix.Uint64 // primary key; 0 means empty slot

	EventCopy Event

	prefixes        [MaxRoutingSteps]atomix.Uint64 // DeckID; DeckNone is the "cleared" sentinel
	deckResults     [deckCount]DeckResult
	deckTimestamps  [deckCount]atomix.Uint64
	completionFlags atomix.Uint64 // bit i set once deck i has completed
	abortFlag       atomix.Bool
	errorCode       atomix.Uint64
	state           atomix.Uint64

	CreatedAt  uint64
	generation atomix.Uint64
}

// EventID returns the entry's event id, or 0 if the slot is currently
// unoccupied.
func (e *RoutingEntry) EventID() uint64 { return e.eventID.LoadAcquire() }

// State returns the entry's current lifecycle state.
func (e *RoutingEntry) State() EntryState { return EntryState(uint32(e.state.LoadAcquire())) }

// SetState updates the entry's lifecycle state (called by Guide/Execution).
func (e *RoutingEntry) SetState(s EntryState) { e.state.StoreRelease(uint64(s)) }

// Aborted reports whether a deck has aborted this entry.
func (e *RoutingEntry) Aborted() bool { return e.abortFlag.LoadAcquire() }

// ErrorCode returns the entry's recorded error code, if any.
func (e *RoutingEntry) ErrorCode() uint32 { return uint32(e.errorCode.LoadAcquire()) }

// NextPrefix returns the first non-NONE deck in the ordered route, and
// whether one was found. Guide uses this to decide the next dispatch
// target (§4.5).
func (e *RoutingEntry) NextPrefix() (DeckID, int, bool) {
	for i := range e.prefixes {
		if d := DeckID(e.prefixes[i].LoadAcquire()); d != DeckNone {
			return d, i, true
		}
	}
	return DeckNone, -1, false
}

// IndexOfPrefix finds the prefix slot currently holding id, for a deck
// to locate its own step without Guide having to pass the index through
// the dispatch queue.
func (e *RoutingEntry) IndexOfPrefix(id DeckID) (int, bool) {
	for i := range e.prefixes {
		if DeckID(e.prefixes[i].LoadAcquire()) == id {
			return i, true
		}
	}
	return -1, false
}

// ClearPrefix clears the prefix slot at index i to NONE — the signal a
// deck uses to hand the entry back to Guide (§4.5, §4.6).
func (e *RoutingEntry) ClearPrefix(i int) {
	e.prefixes[i].StoreRelease(uint64(DeckNone))
}

// ClearAllPrefixes is used by Guide when abort_flag is set, to
// short-circuit remaining steps (§4.5).
func (e *RoutingEntry) ClearAllPrefixes() {
	for i := range e.prefixes {
		e.prefixes[i].StoreRelease(uint64(DeckNone))
	}
}

// DeckResult returns the result a deck recorded, if any.
func (e *RoutingEntry) DeckResult(id DeckID) (DeckResult, uint64) {
	return e.deckResults[id], e.deckTimestamps[id].LoadAcquire()
}

// CompletionFlags returns the bitmask of decks that have completed.
func (e *RoutingEntry) CompletionFlags() uint64 { return e.completionFlags.LoadAcquire() }

// Complete is called by a deck on success (§4.6): records the result,
// stamps the completion time, clears the deck's prefix slot, and sets
// the completion bit. The write order (result, then release-store of
// prefix/flags) is what makes the result visible to Guide/Execution
// without an entry-wide lock.
func (e *RoutingEntry) Complete(id DeckID, prefixIndex int, status ResponseStatus, data []byte) {
	dr := DeckResult{Present: true, Status: status}
	dr.DataLen = uint32(copy(dr.Data[:], data))
	e.deckResults[id] = dr
	e.deckTimestamps[id].StoreRelease(nowTSC())
	e.completionFlags.StoreRelease(e.completionFlags.LoadRelaxed() | (1 << uint(id)))
	e.ClearPrefix(prefixIndex)
}

// Fail is called by a deck on business-logic failure (§4.6): sets
// abort_flag and error_code, then clears the prefix so Guide can proceed
// straight to Execution with state=error.
func (e *RoutingEntry) Fail(id DeckID, prefixIndex int, code uint32) {
	e.errorCode.StoreRelease(uint64(code))
	e.abortFlag.StoreRelease(true)
	e.deckTimestamps[id].StoreRelease(nowTSC())
	e.ClearPrefix(prefixIndex)
}

// RoutingID addresses one arena slot plus its generation, so a handle
// queued for dispatch that outlives the slot's reuse is detected instead
// of silently operating on an unrelated entry (§9).
type RoutingID uintptr

func packRoutingID(slot uint32, generation uint32) RoutingID {
	return RoutingID(uintptr(generation)<<32 | uintptr(slot))
}

func (id RoutingID) slot() uint32       { return uint32(uintptr(id) & 0xFFFFFFFF) }
func (id RoutingID) generation() uint32 { return uint32(uintptr(id) >> 32) }

// BucketSize is the fixed capacity of one routing-table bucket. A full
// bucket rejects the insert ("collision") rather than chaining (§3).
const BucketSize = 4

type routingBucket struct {
	lock      tasLock
	populated int
	slots     [BucketSize]uint32 // arena slot indices, 0 = unused within this bucket
}

// RoutingTable is the open-addressed bucketed map event_id -> RoutingEntry
// (§4.2), backed by a fixed arena so entries never move and references
// into it stay valid for the table's lifetime.
type RoutingTable struct {
	tableSize uint64
	mask      uint64
	buckets   []routingBucket
	arena     []RoutingEntry

	collisions      atomix.Uint64
	routingErrors   atomix.Uint64
	size            atomix.Uint64
}

// ErrRoutingFull indicates a bucket has no free slot (collision, §4.2).
var ErrRoutingFull = newSentinelError("kernel: routing bucket full")

// ErrRoutingMissing indicates lookup/remove found no entry for the id.
var ErrRoutingMissing = newSentinelError("kernel: routing entry not found")

// NewRoutingTable creates a table with tableSize buckets (rounded to the
// next power of two) of BucketSize entries each.
func NewRoutingTable(tableSize int) *RoutingTable {
	n := uint64(roundUpPow2(tableSize))
	arenaCap := n * BucketSize
	return &RoutingTable{
		tableSize: n,
		mask:      n - 1,
		buckets:   make([]routingBucket, n),
		arena:     make([]RoutingEntry, arenaCap),
	}
}

func roundUpPow2(n int) int {
	if n < 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// fmix64 is MurmurHash3's 64-bit finalizer mixer, used to spread
// sequentially-assigned event ids across buckets (§4.2, §9).
func fmix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

func (t *RoutingTable) bucketIndex(eventID uint64) uint64 {
	return fmix64(eventID) & t.mask
}

// Insert allocates a fresh arena slot in event_id's bucket, snapshots
// event into it, sets the given route, and publishes it. Returns the
// RoutingID to address it and ErrRoutingFull on a full bucket (the
// caller increments routing_errors and drops the event per §4.4).
func (t *RoutingTable) Insert(eventID uint64, event Event, route []DeckID, createdAt uint64) (RoutingID, *RoutingEntry, error) {
	if eventID == 0 {
		panic("kernel: routing entry event id must be non-zero")
	}
	bi := t.bucketIndex(eventID)
	b := &t.buckets[bi]
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.populated >= BucketSize {
		t.collisions.AddAcqRel(1)
		return 0, nil, ErrRoutingFull
	}

	var localIdx int = -1
	for i, s := range b.slots {
		if s == 0 {
			localIdx = i
			break
		}
	}
	if localIdx < 0 {
		t.collisions.AddAcqRel(1)
		return 0, nil, ErrRoutingFull
	}

	arenaSlot := uint32(bi)*BucketSize + uint32(localIdx) + 1 // +1: slot 0 stays the "unused" sentinel
	entry := &t.arena[arenaSlot-1]

	entry.EventCopy = event
	for i := range entry.prefixes {
		entry.prefixes[i].StoreRelaxed(uint64(DeckNone))
	}
	for i := range route {
		if i >= MaxRoutingSteps {
			break
		}
		entry.prefixes[i].StoreRelaxed(uint64(route[i]))
	}
	for i := range entry.deckResults {
		entry.deckResults[i] = DeckResult{}
	}
	entry.completionFlags.StoreRelaxed(0)
	entry.abortFlag.StoreRelaxed(false)
	entry.errorCode.StoreRelaxed(0)
	entry.state.StoreRelaxed(uint64(EntryProcessing))
	entry.CreatedAt = createdAt

	gen := entry.generation.LoadRelaxed() + 1
	entry.generation.StoreRelaxed(gen)

	b.slots[localIdx] = arenaSlot
	b.populated++
	t.size.AddAcqRel(1)

	entry.eventID.StoreRelease(eventID) // publish last

	return packRoutingID(arenaSlot, uint32(gen)), entry, nil
}

// Lookup finds the entry for eventID, if any.
func (t *RoutingTable) Lookup(eventID uint64) (*RoutingEntry, RoutingID, bool) {
	bi := t.bucketIndex(eventID)
	b := &t.buckets[bi]
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, arenaSlot := range b.slots {
		if arenaSlot == 0 {
			continue
		}
		e := &t.arena[arenaSlot-1]
		if e.eventID.LoadAcquire() == eventID {
			return e, packRoutingID(arenaSlot, uint32(e.generation.LoadRelaxed())), true
		}
	}
	return nil, 0, false
}

// Resolve looks an entry up by RoutingID, validating slot and
// generation so a handle still sitting in a deck queue after its entry
// was removed and reused is rejected rather than corrupting the new
// occupant (§9).
func (t *RoutingTable) Resolve(id RoutingID) (*RoutingEntry, bool) {
	slot := id.slot()
	if slot == 0 || slot > uint32(len(t.arena)) {
		return nil, false
	}
	e := &t.arena[slot-1]
	if uint32(e.generation.LoadAcquire()) != id.generation() {
		return nil, false
	}
	if e.eventID.LoadAcquire() == 0 {
		return nil, false
	}
	return e, true
}

// Remove deletes the entry for eventID, bumping its generation so any
// stale RoutingID referencing it is rejected by a future Resolve.
func (t *RoutingTable) Remove(eventID uint64) error {
	bi := t.bucketIndex(eventID)
	b := &t.buckets[bi]
	b.lock.Lock()
	defer b.lock.Unlock()

	for i, arenaSlot := range b.slots {
		if arenaSlot == 0 {
			continue
		}
		e := &t.arena[arenaSlot-1]
		if e.eventID.LoadAcquire() == eventID {
			e.eventID.StoreRelease(0)
			e.generation.StoreRelease(e.generation.LoadRelaxed() + 1)
			b.slots[i] = 0
			b.populated--
			t.size.AddAcqRel(^uint64(0)) // -1 via two's complement
			return nil
		}
	}
	return ErrRoutingMissing
}

// Collisions returns the cumulative bucket-full counter.
func (t *RoutingTable) Collisions() uint64 { return t.collisions.LoadRelaxed() }

// Size returns the number of currently occupied entries.
func (t *RoutingTable) Size() uint64 { return t.size.LoadRelaxed() }

// TableSize returns the number of buckets.
func (t *RoutingTable) TableSize() int { return int(t.tableSize) }

// ForEachBucket exposes one bucket's live entries to Guide's scanner
// (§4.5) without leaking the bucket lock beyond the callback's scope.
func (t *RoutingTable) ForEachBucket(bucketIdx int, fn func(e *RoutingEntry, id RoutingID)) {
	b := &t.buckets[bucketIdx&int(t.mask)]
	b.lock.Lock()
	slots := b.slots
	b.lock.Unlock()

	for _, arenaSlot := range slots {
		if arenaSlot == 0 {
			continue
		}
		e := &t.arena[arenaSlot-1]
		if e.eventID.LoadAcquire() == 0 {
			continue
		}
		fn(e, packRoutingID(arenaSlot, uint32(e.generation.LoadRelaxed())))
	}
}
