package task

// stalledThreshold is how long (in TSC ticks) a task can go without
// progress before the health updater marks it stalled (§4.8).
const stalledThreshold = 5_000_000_000 // ~5s at a 1ns-per-tick clock

// autoRecoverThreshold and autoRecoverBoost implement "auto_recover
// boosts energy by 20 for tasks whose overall health falls below 30 and
// are stalled" (§4.8).
const (
	autoRecoverThreshold = 30
	autoRecoverBoost     = 20
)

func bucket(delta uint64, thresholds [3]uint64, scores [4]float64) float64 {
	for i, th := range thresholds {
		if delta <= th {
			return scores[i]
		}
	}
	return scores[3]
}

// activityThresholds/activityScores bucket "now - last_*_time"
// into a score: recent activity scores high, long silence scores low.
var activityThresholds = [3]uint64{1_000_000, 500_000_000, 2_000_000_000}
var activityScores = [4]float64{100, 75, 40, 10}

// Evaluate computes t's Health at tick now (§4.8): the arithmetic mean
// of responsiveness, efficiency, stability, and progress.
func Evaluate(t *TCB, now uint64) Health {
	h := Health{
		Responsiveness: bucket(now-t.LastRunTime, activityThresholds, activityScores),
		Efficiency:     t.EnergyEfficiency,
		Stability:      100 - t.ErrorRatePct,
		Progress:       bucket(now-t.LastProgressTime, activityThresholds, activityScores),
	}
	h.Overall = (h.Responsiveness + h.Efficiency + h.Stability + h.Progress) / 4
	return h
}

// UpdateHealth runs the health pass over every live task: recomputes
// state (marking long-silent running tasks stalled) and applies
// auto_recover. Returns the ids it boosted.
func (s *Scheduler) UpdateHealth(now uint64) []uint64 {
	var boosted []uint64
	for _, t := range s.Snapshot() {
		if t.State == StateDead {
			continue
		}
		if t.State == StateRunning && now-t.LastProgressTime > stalledThreshold {
			s.mu.Lock()
			t.State = StateStalled
			s.mu.Unlock()
		}
		h := Evaluate(t, now)
		if t.State == StateStalled && h.Overall < autoRecoverThreshold {
			_ = s.Boost(t.ID, autoRecoverBoost)
			boosted = append(boosted, t.ID)
		}
	}
	return boosted
}
