package kernel

import (
	"sync"

	"code.hybscloud.com/monokernel/task"
)

// maxTimers bounds the Hardware deck's timer table (§4.6).
const maxTimers = 64

const msInTicks = 1_000_000 // nowTSC is in nanoseconds; 1ms = 1e6ns

type timerDescriptor struct {
	id           uint64
	ownerTaskID  uint64
	expiration   uint64
	intervalTick uint64
	active       bool
}

// HardwareDeck dispatches timer_* events against a fixed timer table and
// stubs device_* events, since there is no real device layer underneath
// this in-process kernel (§4.6).
type HardwareDeck struct {
	mu        sync.Mutex
	timers    [maxTimers]timerDescriptor
	nextTimer uint64
	scheduler *task.Scheduler
}

// NewHardwareDeck builds the Hardware deck's shared state.
func NewHardwareDeck(scheduler *task.Scheduler) *HardwareDeck {
	return &HardwareDeck{nextTimer: 1, scheduler: scheduler}
}

// Process is HardwareDeck's deckProcessFunc.
func (d *HardwareDeck) Process(e *RoutingEntry) (ResponseStatus, []byte, uint32, bool) {
	ev := &e.EventCopy
	switch ev.Type {
	case EventTimerCreate:
		p, ok := DecodeTimerCreate(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		id, ok := d.create(ev.UserID, p.DelayMs, p.IntervalMs)
		if !ok {
			return 0, nil, uint32(ErrResourceExhausted), false
		}
		var resp Response
		resp.SetResult(u64le(id))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventTimerCancel:
		timerID, ok := DecodeTimerCancel(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if !d.cancel(timerID) {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventTimerSleep:
		r := newPayloadReader(ev.Data[:ev.DataLen])
		delayMs, ok := r.u64()
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		until := nowTSC() + delayMs*msInTicks
		if err := d.scheduler.Sleep(ev.UserID, until); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventTimerGetTicks:
		var resp Response
		resp.SetResult(u64le(nowTSC()))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventDeviceOpen, EventDeviceIoctl, EventDeviceRead, EventDeviceWrite:
		// No device layer sits under this kernel; every device_* request
		// completes successfully with a fake handle/empty result.
		var resp Response
		resp.SetResult(u64le(ev.ID))
		return StatusSuccess, resp.ResultBytes(), 0, true

	default:
		return 0, nil, uint32(ErrInvalidEvent), false
	}
}

func (d *HardwareDeck) create(ownerTaskID uint64, delayMs, intervalMs uint64) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.timers {
		if !d.timers[i].active {
			id := d.nextTimer
			d.nextTimer++
			d.timers[i] = timerDescriptor{
				id:           id,
				ownerTaskID:  ownerTaskID,
				expiration:   nowTSC() + delayMs*msInTicks,
				intervalTick: intervalMs * msInTicks,
				active:       true,
			}
			return id, true
		}
	}
	return 0, false
}

func (d *HardwareDeck) cancel(timerID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.timers {
		if d.timers[i].active && d.timers[i].id == timerID {
			d.timers[i] = timerDescriptor{}
			return true
		}
	}
	return false
}

// CheckExpired wakes the owner of every timer whose expiration has
// passed, rearming periodic timers, and is driven once per System
// iteration independent of the event pipeline (§4.6's timer_check_expired).
func (d *HardwareDeck) CheckExpired(now uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.timers {
		t := &d.timers[i]
		if !t.active || now < t.expiration {
			continue
		}
		_ = d.scheduler.Wake(t.ownerTaskID)
		if t.intervalTick == 0 {
			*t = timerDescriptor{}
			continue
		}
		t.expiration = now + t.intervalTick
	}
}
