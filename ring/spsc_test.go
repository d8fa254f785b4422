// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring_test

import (
	"errors"
	"sync"
	"testing"

	"code.hybscloud.com/monokernel/ring"
)

func TestSPSCBasic(t *testing.T) {
	q := ring.NewSPSC[int](3)

	if q.Cap() != 4 {
		t.Fatalf("Cap: got %d, want 4", q.Cap())
	}

	for i := range 4 {
		v := i + 100
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	v := 999
	if err := q.Enqueue(&v); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("Enqueue on full: got %v, want ErrWouldBlock", err)
	}

	for i := range 4 {
		val, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue(%d): %v", i, err)
		}
		if val != i+100 {
			t.Fatalf("Dequeue(%d): got %d, want %d", i, val, i+100)
		}
	}

	if _, err := q.Dequeue(); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("Dequeue on empty: got %v, want ErrWouldBlock", err)
	}
}

func TestSPSCWrapAround(t *testing.T) {
	q := ring.NewSPSC[int](4)

	for round := range 10 {
		for i := range 4 {
			v := round*100 + i
			if err := q.Enqueue(&v); err != nil {
				t.Fatalf("round %d enqueue %d: %v", round, i, err)
			}
		}
		for i := range 4 {
			val, err := q.Dequeue()
			if err != nil {
				t.Fatalf("round %d dequeue %d: %v", round, i, err)
			}
			if want := round*100 + i; val != want {
				t.Fatalf("round %d dequeue %d: got %d, want %d", round, i, val, want)
			}
		}
	}
}

func TestSPSCBatch(t *testing.T) {
	q := ring.NewSPSC[int](8)
	in := []int{1, 2, 3, 4, 5}
	if n := q.PushBatch(in); n != 5 {
		t.Fatalf("PushBatch: got %d, want 5", n)
	}

	out := make([]int, 5)
	if n := q.PopBatch(out); n != 5 {
		t.Fatalf("PopBatch: got %d, want 5", n)
	}
	for i, v := range out {
		if v != in[i] {
			t.Fatalf("PopBatch[%d]: got %d, want %d", i, v, in[i])
		}
	}
}

func TestSPSCIndirectBasic(t *testing.T) {
	q := ring.NewSPSCIndirect(4)

	for i := range 4 {
		if err := q.Enqueue(uintptr(i + 100)); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if err := q.Enqueue(999); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("Enqueue on full: got %v, want ErrWouldBlock", err)
	}
	for i := range 4 {
		v, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue(%d): %v", i, err)
		}
		if v != uintptr(i+100) {
			t.Fatalf("Dequeue(%d): got %d, want %d", i, v, i+100)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("Dequeue on empty: got %v, want ErrWouldBlock", err)
	}
}

func TestMPSCBasic(t *testing.T) {
	q := ring.NewMPSC[int](4)

	for i := range 4 {
		v := i
		if err := q.Enqueue(&v); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	v := 99
	if err := q.Enqueue(&v); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("Enqueue on full: got %v, want ErrWouldBlock", err)
	}
	for i := range 4 {
		val, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue(%d): %v", i, err)
		}
		if val != i {
			t.Fatalf("Dequeue(%d): got %d, want %d", i, val, i)
		}
	}
}

// TestMPSCConcurrentProducers exercises the FAA path with many concurrent
// senders draining into a single consumer, mirroring how several tasks
// sending IPC messages to one mailbox behave.
func TestMPSCConcurrentProducers(t *testing.T) {
	if ring.RaceEnabled {
		t.Skip("generic MPSC acquire/release orderings trip the race detector")
	}

	const producers = 8
	const perProducer = 500
	q := ring.NewMPSC[int](4096)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := range perProducer {
				v := base + i
				for q.Enqueue(&v) != nil {
				}
			}
		}(p * perProducer)
	}

	got := make(map[int]bool, producers*perProducer)
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	total := producers * perProducer
	count := 0
	for count < total {
		v, err := q.Dequeue()
		if err != nil {
			select {
			case <-done:
			default:
			}
			continue
		}
		mu.Lock()
		got[v] = true
		mu.Unlock()
		count++
	}

	if len(got) != total {
		t.Fatalf("got %d distinct values, want %d", len(got), total)
	}
}
