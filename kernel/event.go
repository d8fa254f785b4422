// Package kernel implements the syscall-less, event-routed execution core:
// Receiver, Center, Guide, the per-family decks, and Execution, all
// communicating through the lock-free rings in package ring and a
// bucketed routing table.
package kernel

// EventDataSize is the size in bytes of an Event's opaque payload. Chosen
// so the largest payload in the event namespace (file_write's inline
// bytes for small writes) fits without a separate allocation.
const EventDataSize = 224

// EventType is drawn from the closed event namespace (§6): every
// operation the kernel understands has its own tag, so a deck's dispatch
// never needs to parse a sub-operation out of the payload — the payload
// layout for each tag is exactly what §6 specifies, with no added framing.
type EventType uint32

const (
	EventNone EventType = iota

	EventMemoryAlloc
	EventMemoryFree
	EventMemoryMap

	EventFileOpen
	EventFileClose
	EventFileRead
	EventFileWrite
	EventFileStat
	EventFileCreateTagged
	EventFileQuery
	EventFileTagAdd
	EventFileTagRemove
	EventFileTagGet

	EventProcCreate
	EventProcExit
	EventProcKill
	EventProcWait
	EventProcGetPID
	EventProcSignal

	EventIPCSend
	EventIPCRecv
	EventIPCShmCreate
	EventIPCShmAttach
	EventIPCPipeCreate

	EventTimerCreate
	EventTimerCancel
	EventTimerSleep
	EventTimerGetTicks

	EventDeviceOpen
	EventDeviceIoctl
	EventDeviceRead
	EventDeviceWrite

	EventNetSocket
	EventNetConnect
	EventNetSend
	EventNetRecv

	EventGroupCreate
	EventGroupAdd
	EventGroupRemove
	EventGroupSetMemLimit
	EventGroupBroadcast

	eventTypeCount
)

// Family is the coarse operation-tag family (memory, file, tag-file,
// process, ipc, timer, device, network) the data model and Center's
// routing decision (§4.4) are expressed in terms of.
type Family uint32

const (
	FamilyNone Family = iota
	FamilyMemory
	FamilyFile
	FamilyTagFile
	FamilyProcess
	FamilyIPC
	FamilyTimer
	FamilyDevice
	FamilyNetwork
	FamilyGroup
)

func (f Family) String() string {
	switch f {
	case FamilyMemory:
		return "memory"
	case FamilyFile:
		return "file"
	case FamilyTagFile:
		return "tag-file"
	case FamilyProcess:
		return "process"
	case FamilyIPC:
		return "ipc"
	case FamilyTimer:
		return "timer"
	case FamilyDevice:
		return "device"
	case FamilyNetwork:
		return "network"
	case FamilyGroup:
		return "group"
	default:
		return "none"
	}
}

// Valid reports whether t is a recognized, non-zero event type.
func (t EventType) Valid() bool {
	return t > EventNone && t < eventTypeCount
}

// Family returns the coarse family a fine-grained EventType belongs to.
// Unknown types return FamilyNone, which Center's routing (§4.4) defaults
// to the Operations deck.
func (t EventType) Family() Family {
	switch t {
	case EventMemoryAlloc, EventMemoryFree, EventMemoryMap:
		return FamilyMemory
	case EventFileOpen, EventFileClose, EventFileRead, EventFileWrite, EventFileStat:
		return FamilyFile
	case EventFileCreateTagged, EventFileQuery, EventFileTagAdd, EventFileTagRemove, EventFileTagGet:
		return FamilyTagFile
	case EventProcCreate, EventProcExit, EventProcKill, EventProcWait, EventProcGetPID, EventProcSignal:
		return FamilyProcess
	case EventIPCSend, EventIPCRecv, EventIPCShmCreate, EventIPCShmAttach, EventIPCPipeCreate:
		return FamilyIPC
	case EventTimerCreate, EventTimerCancel, EventTimerSleep, EventTimerGetTicks:
		return FamilyTimer
	case EventDeviceOpen, EventDeviceIoctl, EventDeviceRead, EventDeviceWrite:
		return FamilyDevice
	case EventNetSocket, EventNetConnect, EventNetSend, EventNetRecv:
		return FamilyNetwork
	case EventGroupCreate, EventGroupAdd, EventGroupRemove, EventGroupSetMemLimit, EventGroupBroadcast:
		return FamilyGroup
	default:
		return FamilyNone
	}
}

func (t EventType) String() string {
	switch t {
	case EventMemoryAlloc:
		return "memory_alloc"
	case EventMemoryFree:
		return "memory_free"
	case EventMemoryMap:
		return "memory_map"
	case EventFileOpen:
		return "file_open"
	case EventFileClose:
		return "file_close"
	case EventFileRead:
		return "file_read"
	case EventFileWrite:
		return "file_write"
	case EventFileStat:
		return "file_stat"
	case EventFileCreateTagged:
		return "file_create_tagged"
	case EventFileQuery:
		return "file_query"
	case EventFileTagAdd:
		return "file_tag_add"
	case EventFileTagRemove:
		return "file_tag_remove"
	case EventFileTagGet:
		return "file_tag_get"
	case EventProcCreate:
		return "proc_create"
	case EventProcExit:
		return "proc_exit"
	case EventProcKill:
		return "proc_kill"
	case EventProcWait:
		return "proc_wait"
	case EventProcGetPID:
		return "proc_getpid"
	case EventProcSignal:
		return "proc_signal"
	case EventIPCSend:
		return "ipc_send"
	case EventIPCRecv:
		return "ipc_recv"
	case EventIPCShmCreate:
		return "ipc_shm_create"
	case EventIPCShmAttach:
		return "ipc_shm_attach"
	case EventIPCPipeCreate:
		return "ipc_pipe_create"
	case EventTimerCreate:
		return "timer_create"
	case EventTimerCancel:
		return "timer_cancel"
	case EventTimerSleep:
		return "timer_sleep"
	case EventTimerGetTicks:
		return "timer_getticks"
	case EventDeviceOpen:
		return "device_open"
	case EventDeviceIoctl:
		return "device_ioctl"
	case EventDeviceRead:
		return "device_read"
	case EventDeviceWrite:
		return "device_write"
	case EventNetSocket:
		return "net_socket"
	case EventNetConnect:
		return "net_connect"
	case EventNetSend:
		return "net_send"
	case EventNetRecv:
		return "net_recv"
	case EventGroupCreate:
		return "group_create"
	case EventGroupAdd:
		return "group_add"
	case EventGroupRemove:
		return "group_remove"
	case EventGroupSetMemLimit:
		return "group_set_mem_limit"
	case EventGroupBroadcast:
		return "group_broadcast"
	default:
		return "none"
	}
}

// Event is the fixed-size record user space pushes into the
// user_to_kernel ring. ID is zero on input; Receiver assigns both ID and
// Timestamp. Data's schema depends on Type — see the payload codecs in
// payload.go.
type Event struct {
	ID        uint64
	Type      EventType
	UserID    uint64
	Timestamp uint64
	DataLen   uint32
	Data      [EventDataSize]byte
}

// ResponseStatus is the completion status carried on a Response.
type ResponseStatus uint32

const (
	StatusProcessing ResponseStatus = iota
	StatusSuccess
	StatusError
	StatusDenied
)

func (s ResponseStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// ResultSize is the capacity of a Response's inline result buffer.
const ResultSize = 192

// Response is the completion record Execution (or Center, on a denial)
// pushes into the kernel_to_user ring. Emitted at most once per EventID.
type Response struct {
	EventID    uint64
	Status     ResponseStatus
	ErrorCode  uint32
	Timestamp  uint64
	ResultSize uint32
	Result     [ResultSize]byte
}

// SetResult copies data into the inline result buffer, truncating if it
// does not fit (callers size their payloads to stay under ResultSize).
func (r *Response) SetResult(data []byte) {
	n := copy(r.Result[:], data)
	r.ResultSize = uint32(n)
}

// ResultBytes returns the populated portion of Result.
func (r *Response) ResultBytes() []byte {
	return r.Result[:r.ResultSize]
}
