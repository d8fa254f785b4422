package task

import (
	"container/list"
	"errors"
	"sync"
)

var (
	ErrTaskNotFound    = errors.New("task: not found")
	ErrTaskLimitReached = errors.New("task: table full")
)

// MaxTasks bounds the scheduler's task table.
const MaxTasks = 4096

// Scheduler is the cooperative round-robin task table and run queue
// (§4.8). A single coarse mutex guards it — the Go analogue of the
// original design's spinlock, appropriate here since task operations
// are short and run to completion without blocking.
type Scheduler struct {
	mu       sync.Mutex
	tasks    map[uint64]*TCB
	runQueue *list.List // elements are *TCB, run order front-to-back
	elems    map[uint64]*list.Element
	nextID   uint64
	current  uint64
}

// NewScheduler builds an empty scheduler. Task ids start at 1.
func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:    make(map[uint64]*TCB),
		runQueue: list.New(),
		elems:    make(map[uint64]*list.Element),
		nextID:   1,
	}
}

// Create allocates a TCB in state running and enqueues it (§4.8).
func (s *Scheduler) Create(name string, entryAddress uint64, energy uint8, now uint64) (*TCB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) >= MaxTasks {
		return nil, ErrTaskLimitReached
	}

	t := &TCB{
		ID:               s.nextID,
		Name:             name,
		EntryAddress:     entryAddress,
		Energy:           energy,
		State:            StateRunning,
		LastRunTime:      now,
		LastProgressTime: now,
		EnergyEfficiency: 100,
	}
	s.nextID++
	s.tasks[t.ID] = t
	s.elems[t.ID] = s.runQueue.PushBack(t)
	return t, nil
}

// Get returns the TCB for id.
func (s *Scheduler) Get(id uint64) (*TCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Next returns the head of the run queue, moving it to the tail and
// marking it current (§4.8's scheduler_next).
func (s *Scheduler) Next() *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	front := s.runQueue.Front()
	if front == nil {
		return nil
	}
	t := front.Value.(*TCB)
	s.runQueue.MoveToBack(front)
	s.current = t.ID
	return t
}

// Exit transitions a task to dead, releasing its run-queue slot. The
// caller (Operations deck) is responsible for telling package ipc to
// release the task's mailbox.
func (s *Scheduler) Exit(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.State = StateDead
	if e, ok := s.elems[id]; ok {
		s.runQueue.Remove(e)
		delete(s.elems, id)
	}
	delete(s.tasks, id)
	return nil
}

// Kill is Exit under the name the proc_kill operation uses.
func (s *Scheduler) Kill(id uint64) error { return s.Exit(id) }

// Sleep transitions running -> sleeping and unlinks the task from the
// run queue until sleepUntil (TSC ticks) is reached (§4.8).
func (s *Scheduler) Sleep(id uint64, sleepUntil uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.State = StateSleeping
	t.SleepUntil = sleepUntil
	if e, ok := s.elems[id]; ok {
		s.runQueue.Remove(e)
		delete(s.elems, id)
	}
	return nil
}

// Wake transitions sleeping -> running and re-queues the task,
// whether called explicitly or by WakeExpired (§4.8).
func (s *Scheduler) Wake(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wakeLocked(id)
}

func (s *Scheduler) wakeLocked(id uint64) error {
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.State != StateSleeping {
		return nil
	}
	t.State = StateRunning
	t.SleepUntil = 0
	if _, already := s.elems[id]; !already {
		s.elems[id] = s.runQueue.PushBack(t)
	}
	return nil
}

// WakeExpired wakes every sleeping task whose sleep_until has passed.
func (s *Scheduler) WakeExpired(now uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var woken []uint64
	for id, t := range s.tasks {
		if t.State == StateSleeping && now >= t.SleepUntil {
			_ = s.wakeLocked(id)
			woken = append(woken, id)
		}
	}
	return woken
}

// Pause transitions running -> throttled, unlinking from the run queue
// (§4.8's task_pause).
func (s *Scheduler) Pause(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.State = StateThrottled
	if e, ok := s.elems[id]; ok {
		s.runQueue.Remove(e)
		delete(s.elems, id)
	}
	return nil
}

// Resume transitions throttled -> running (§4.8's task_resume).
func (s *Scheduler) Resume(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.State != StateThrottled {
		return nil
	}
	t.State = StateRunning
	if _, already := s.elems[id]; !already {
		s.elems[id] = s.runQueue.PushBack(t)
	}
	return nil
}

// Boost raises energy by delta, clamped to MaxEnergy.
func (s *Scheduler) Boost(id uint64, delta uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	e := int(t.Energy) + int(delta)
	if e > MaxEnergy {
		e = MaxEnergy
	}
	t.Energy = uint8(e)
	return nil
}

// Throttle lowers energy by delta, floored at 0.
func (s *Scheduler) Throttle(id uint64, delta uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	e := int(t.Energy) - int(delta)
	if e < 0 {
		e = 0
	}
	t.Energy = uint8(e)
	return nil
}

// Current returns the id of the task scheduler_next most recently
// returned.
func (s *Scheduler) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// MarkProgress records that id made forward progress at tick now, for
// the health updater's progress bucket.
func (s *Scheduler) MarkProgress(id uint64, now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.LastProgressTime = now
		t.LastRunTime = now
	}
}

// Snapshot returns every live task, for the health updater to iterate
// without holding the scheduler's lock.
func (s *Scheduler) Snapshot() []*TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TCB, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}
