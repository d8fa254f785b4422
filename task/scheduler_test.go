package task_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/monokernel/task"
)

func TestSchedulerCreateAndNext(t *testing.T) {
	s := task.NewScheduler()

	a, err := s.Create("alpha", 0x1000, 50, 0)
	if err != nil {
		t.Fatalf("Create(alpha): %v", err)
	}
	b, err := s.Create("beta", 0x2000, 50, 0)
	if err != nil {
		t.Fatalf("Create(beta): %v", err)
	}

	if n := s.Next(); n.ID != a.ID {
		t.Fatalf("Next: got %d, want %d", n.ID, a.ID)
	}
	if n := s.Next(); n.ID != b.ID {
		t.Fatalf("Next: got %d, want %d", n.ID, b.ID)
	}
	// a was moved to the back on its first Next(), so it comes up again.
	if n := s.Next(); n.ID != a.ID {
		t.Fatalf("Next (round-robin wrap): got %d, want %d", n.ID, a.ID)
	}
}

func TestSchedulerSleepWake(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("sleeper", 0, 50, 0)

	if err := s.Sleep(a.ID, 1000); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	got, _ := s.Get(a.ID)
	if got.State != task.StateSleeping {
		t.Fatalf("State after Sleep: got %v, want sleeping", got.State)
	}

	if woken := s.WakeExpired(500); len(woken) != 0 {
		t.Fatalf("WakeExpired before deadline: got %v, want none", woken)
	}
	woken := s.WakeExpired(1000)
	if len(woken) != 1 || woken[0] != a.ID {
		t.Fatalf("WakeExpired at deadline: got %v, want [%d]", woken, a.ID)
	}
	got, _ = s.Get(a.ID)
	if got.State != task.StateRunning {
		t.Fatalf("State after WakeExpired: got %v, want running", got.State)
	}
}

func TestSchedulerPauseResume(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("pausable", 0, 50, 0)

	if err := s.Pause(a.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	got, _ := s.Get(a.ID)
	if got.State != task.StateThrottled {
		t.Fatalf("State after Pause: got %v, want throttled", got.State)
	}

	if err := s.Resume(a.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, _ = s.Get(a.ID)
	if got.State != task.StateRunning {
		t.Fatalf("State after Resume: got %v, want running", got.State)
	}
}

func TestSchedulerBoostThrottleClamp(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("energetic", 0, 90, 0)

	if err := s.Boost(a.ID, 50); err != nil {
		t.Fatalf("Boost: %v", err)
	}
	got, _ := s.Get(a.ID)
	if got.Energy != task.MaxEnergy {
		t.Fatalf("Energy after Boost past ceiling: got %d, want %d", got.Energy, task.MaxEnergy)
	}

	if err := s.Throttle(a.ID, 200); err != nil {
		t.Fatalf("Throttle: %v", err)
	}
	got, _ = s.Get(a.ID)
	if got.Energy != 0 {
		t.Fatalf("Energy after Throttle past floor: got %d, want 0", got.Energy)
	}
}

func TestSchedulerExitRemovesFromRunQueue(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("a", 0, 50, 0)
	b, _ := s.Create("b", 0, 50, 0)

	if err := s.Exit(a.ID); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if _, ok := s.Get(a.ID); ok {
		t.Fatalf("Get after Exit: still present")
	}
	if n := s.Next(); n.ID != b.ID {
		t.Fatalf("Next after Exit: got %d, want %d", n.ID, b.ID)
	}
}

func TestSchedulerNotFound(t *testing.T) {
	s := task.NewScheduler()
	if err := s.Sleep(999, 0); !errors.Is(err, task.ErrTaskNotFound) {
		t.Fatalf("Sleep on unknown task: got %v, want ErrTaskNotFound", err)
	}
}

func TestSchedulerTaskLimit(t *testing.T) {
	s := task.NewScheduler()
	for i := 0; i < task.MaxTasks; i++ {
		if _, err := s.Create("t", 0, 50, 0); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := s.Create("overflow", 0, 50, 0); !errors.Is(err, task.ErrTaskLimitReached) {
		t.Fatalf("Create past limit: got %v, want ErrTaskLimitReached", err)
	}
}
