package task_test

import (
	"testing"

	"code.hybscloud.com/monokernel/task"
)

func TestEvaluateFreshTaskScoresHigh(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("fresh", 0, 50, 1000)

	h := task.Evaluate(a, 1000)
	if h.Overall < 90 {
		t.Fatalf("Overall for a just-created task: got %.1f, want >= 90", h.Overall)
	}
}

func TestUpdateHealthMarksStalledAndAutoRecovers(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("stale", 0, 10, 0)
	a.ErrorRatePct = 90 // depresses Stability so Overall drops below the auto_recover threshold
	a.EnergyEfficiency = 10

	const farFuture = 10_000_000_000 // well past stalledThreshold (5s of ticks)
	boosted := s.UpdateHealth(farFuture)

	got, _ := s.Get(a.ID)
	if got.State != task.StateStalled {
		t.Fatalf("State after UpdateHealth: got %v, want stalled", got.State)
	}
	if len(boosted) != 1 || boosted[0] != a.ID {
		t.Fatalf("boosted: got %v, want [%d]", boosted, a.ID)
	}
	if got.Energy <= 10 {
		t.Fatalf("Energy after auto_recover: got %d, want > 10", got.Energy)
	}
}

func TestUpdateHealthSkipsDeadTasks(t *testing.T) {
	s := task.NewScheduler()
	a, _ := s.Create("doomed", 0, 50, 0)
	_ = s.Exit(a.ID)

	// Exit removes the task outright, so nothing should be touched and
	// the call must not panic walking an empty snapshot.
	if boosted := s.UpdateHealth(10_000_000_000); len(boosted) != 0 {
		t.Fatalf("boosted after Exit: got %v, want none", boosted)
	}
}
