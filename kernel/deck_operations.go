package kernel

import (
	"code.hybscloud.com/monokernel/ipc"
	"code.hybscloud.com/monokernel/task"
)

// OperationsDeck wires proc_* events to package task's Scheduler,
// ipc_* events to package ipc's Bus, and group_* events to package
// task's GroupTable — group_broadcast composes the two, asking
// GroupTable for the group's members and handing them to Bus.Broadcast
// (§4.7, §4.8, §4.9).
type OperationsDeck struct {
	scheduler *task.Scheduler
	groups    *task.GroupTable
	bus       *ipc.Bus
}

// NewOperationsDeck builds the Operations deck's shared state.
func NewOperationsDeck(scheduler *task.Scheduler, groups *task.GroupTable, bus *ipc.Bus) *OperationsDeck {
	return &OperationsDeck{scheduler: scheduler, groups: groups, bus: bus}
}

// Process is OperationsDeck's deckProcessFunc. ev.UserID identifies the
// calling task for every operation that is implicitly self-directed
// (proc_exit, proc_getpid, ipc_recv) since those payloads carry no
// explicit task id of their own.
func (d *OperationsDeck) Process(e *RoutingEntry) (ResponseStatus, []byte, uint32, bool) {
	ev := &e.EventCopy
	switch ev.Type {
	case EventProcCreate:
		p, ok := DecodeProcCreate(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		t, err := d.scheduler.Create(p.Name, p.EntryAddress, p.Energy, nowTSC())
		if err != nil {
			return 0, nil, uint32(ErrTaskLimitReached), false
		}
		d.bus.CreateMailbox(t.ID)
		var resp Response
		resp.SetResult(u64le(t.ID))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventProcExit:
		if err := d.scheduler.Exit(ev.UserID); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		d.bus.RemoveMailbox(ev.UserID)
		return StatusSuccess, nil, 0, true

	case EventProcKill:
		p, ok := DecodeProcKill(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if err := d.scheduler.Kill(p.TaskID); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		d.bus.RemoveMailbox(p.TaskID)
		return StatusSuccess, nil, 0, true

	case EventProcWait:
		p, ok := DecodeProcWait(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		t, ok := d.scheduler.Get(p.TaskID)
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		var resp Response
		resp.SetResult([]byte{byte(t.State)})
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventProcGetPID:
		var resp Response
		resp.SetResult(u64le(ev.UserID))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventProcSignal:
		p, ok := DecodeProcSignal(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if err := d.dispatchSignal(p); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventIPCSend:
		p, ok := DecodeIPCSend(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if err := d.bus.Send(ev.UserID, p.ReceiverID, p.Data); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventIPCRecv:
		msg, err := d.bus.Receive(ev.UserID)
		if err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		var resp Response
		resp.SetResult(msg.Data)
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventIPCShmCreate, EventIPCShmAttach, EventIPCPipeCreate:
		// No process-level shared memory or pipe backing exists in this
		// single-process kernel; these complete with a fresh fake handle
		// so callers relying on a non-zero id don't stall.
		var resp Response
		resp.SetResult(u64le(ev.ID))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventGroupCreate:
		grp, err := d.groups.Create()
		if err != nil {
			return 0, nil, uint32(ErrResourceExhausted), false
		}
		var resp Response
		resp.SetResult(u64le(grp.ID))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventGroupAdd:
		p, ok := DecodeGroupAdd(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if err := d.groups.Add(p.GroupID, p.TaskID); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventGroupRemove:
		p, ok := DecodeGroupRemove(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if err := d.groups.Remove(p.GroupID, p.TaskID); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventGroupSetMemLimit:
		p, ok := DecodeGroupSetMemLimit(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		if err := d.groups.SetMemLimit(p.GroupID, p.Limit); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventGroupBroadcast:
		p, ok := DecodeGroupBroadcast(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		members, err := d.groups.Members(p.GroupID)
		if err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		d.bus.Broadcast(ev.UserID, members, p.Data)
		return StatusSuccess, nil, 0, true

	default:
		return 0, nil, uint32(ErrInvalidEvent), false
	}
}

func (d *OperationsDeck) dispatchSignal(p ProcSignalPayload) error {
	switch p.Op {
	case SignalPause:
		return d.scheduler.Pause(p.TaskID)
	case SignalResume:
		return d.scheduler.Resume(p.TaskID)
	case SignalBoost:
		return d.scheduler.Boost(p.TaskID, uint8(p.Value))
	case SignalThrottle:
		return d.scheduler.Throttle(p.TaskID, uint8(p.Value))
	case SignalWake:
		return d.scheduler.Wake(p.TaskID)
	default:
		return ErrUnknownSignal
	}
}
