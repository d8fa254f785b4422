package kernel

import "time"

// bootTime anchors nowTSC's output to a process-relative monotonic
// counter instead of wall-clock time, matching the spec's tsc-style
// timestamps (§3: "Timestamp (assigned by Receiver, not wall-clock)").
var bootTime = time.Now()

// nowTSC returns a monotonically increasing tick count since the
// package was loaded. It stands in for the real TSC read the original
// design performs in Receiver and on deck completion.
func nowTSC() uint64 {
	return uint64(time.Since(bootTime))
}

// idleYield backs off briefly when an iteration found no work, so the
// iteration loop doesn't spin a core at 100% while the pipeline is empty.
func idleYield() {
	time.Sleep(100 * time.Microsecond)
}
