package kernel

import (
	"errors"
	"testing"
)

func TestRoutingInsertLookupRemove(t *testing.T) {
	rt := NewRoutingTable(4)

	ev := Event{ID: 1, Type: EventMemoryAlloc, UserID: 7}
	id, entry, err := rt.Insert(ev.ID, ev, []DeckID{DeckStorage}, 100)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if entry.EventID() != 1 {
		t.Fatalf("EventID: got %d, want 1", entry.EventID())
	}

	got, gotID, ok := rt.Lookup(1)
	if !ok || got != entry || gotID != id {
		t.Fatalf("Lookup: got (%v, %v, %v), want matching entry/id", got, gotID, ok)
	}

	if err := rt.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, ok := rt.Lookup(1); ok {
		t.Fatalf("Lookup after Remove: found entry, want none")
	}
}

func TestRoutingResolveRejectsStaleGeneration(t *testing.T) {
	rt := NewRoutingTable(4)

	ev := Event{ID: 1, Type: EventMemoryAlloc, UserID: 7}
	id, _, err := rt.Insert(ev.ID, ev, []DeckID{DeckStorage}, 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := rt.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	// Reinsert a different event; it may or may not land in the same
	// arena slot, but the old handle must never resolve to it.
	ev2 := Event{ID: 2, Type: EventMemoryAlloc, UserID: 7}
	if _, _, err := rt.Insert(ev2.ID, ev2, []DeckID{DeckStorage}, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, ok := rt.Resolve(id); ok {
		t.Fatalf("Resolve(stale id): got ok=true, want false")
	}
}

func TestRoutingBucketFullReturnsErrRoutingFull(t *testing.T) {
	rt := NewRoutingTable(1) // 1 bucket, BucketSize=4 slots

	for i := uint64(1); i <= BucketSize; i++ {
		ev := Event{ID: i, Type: EventMemoryAlloc, UserID: 1}
		if _, _, err := rt.Insert(ev.ID, ev, []DeckID{DeckStorage}, 0); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	ev := Event{ID: BucketSize + 1, Type: EventMemoryAlloc, UserID: 1}
	if _, _, err := rt.Insert(ev.ID, ev, []DeckID{DeckStorage}, 0); !errors.Is(err, ErrRoutingFull) {
		t.Fatalf("Insert past bucket capacity: got %v, want ErrRoutingFull", err)
	}
	if rt.Collisions() == 0 {
		t.Fatalf("Collisions: got 0, want > 0")
	}
}

func TestRoutingEntryCompleteAndFail(t *testing.T) {
	rt := NewRoutingTable(4)
	ev := Event{ID: 1, Type: EventFileOpen, UserID: 1}
	_, entry, err := rt.Insert(ev.ID, ev, []DeckID{DeckStorage}, 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	idx, ok := entry.IndexOfPrefix(DeckStorage)
	if !ok {
		t.Fatalf("IndexOfPrefix: not found")
	}
	entry.Complete(DeckStorage, idx, StatusSuccess, []byte("ok"))

	if _, _, ok := entry.NextPrefix(); ok {
		t.Fatalf("NextPrefix after Complete: got a step, want none")
	}
	dr, _ := entry.DeckResult(DeckStorage)
	if !dr.Present || string(dr.Data[:dr.DataLen]) != "ok" {
		t.Fatalf("DeckResult: got %+v, want Present with data 'ok'", dr)
	}

	ev2 := Event{ID: 2, Type: EventFileOpen, UserID: 1}
	_, entry2, _ := rt.Insert(ev2.ID, ev2, []DeckID{DeckStorage}, 0)
	idx2, _ := entry2.IndexOfPrefix(DeckStorage)
	entry2.Fail(DeckStorage, idx2, uint32(ErrResourceNotFound))

	if !entry2.Aborted() {
		t.Fatalf("Aborted after Fail: got false, want true")
	}
	if entry2.ErrorCode() != uint32(ErrResourceNotFound) {
		t.Fatalf("ErrorCode after Fail: got %d, want %d", entry2.ErrorCode(), ErrResourceNotFound)
	}
}
