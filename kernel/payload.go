package kernel

import (
	"encoding/binary"
	"errors"
)

// ErrPayloadTooLarge is returned by a payload encoder when the caller's
// data does not fit in EventDataSize bytes.
var ErrPayloadTooLarge = errors.New("kernel: payload exceeds inline buffer")

// SignalOp is the op sub-field of proc_signal's payload (§6).
type SignalOp uint32

const (
	SignalPause SignalOp = iota
	SignalResume
	SignalBoost
	SignalThrottle
	SignalWake
)

// payload writer/reader — little-endian, matching the on-wire ABI in §6.

type payloadWriter struct {
	buf []byte
}

func (w *payloadWriter) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *payloadWriter) u32(v uint32)   { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *payloadWriter) u64(v uint64)   { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *payloadWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *payloadWriter) encodeInto(data *[EventDataSize]byte) (uint32, error) {
	if len(w.buf) > len(data) {
		return 0, ErrPayloadTooLarge
	}
	n := copy(data[:], w.buf)
	return uint32(n), nil
}

type payloadReader struct {
	buf []byte
	off int
}

func newPayloadReader(data []byte) *payloadReader { return &payloadReader{buf: data} }

func (r *payloadReader) u8() (uint8, bool) {
	if r.off+1 > len(r.buf) {
		return 0, false
	}
	v := r.buf[r.off]
	r.off++
	return v, true
}

func (r *payloadReader) u32() (uint32, bool) {
	if r.off+4 > len(r.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, true
}

func (r *payloadReader) u64() (uint64, bool) {
	if r.off+8 > len(r.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, true
}

func (r *payloadReader) take(n int) ([]byte, bool) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

// ---- memory_alloc / memory_free / memory_map: u64 size (or address) ----

type MemoryAllocPayload struct {
	Size uint64
}

func EncodeMemoryAlloc(ev *Event, p MemoryAllocPayload) error {
	w := &payloadWriter{}
	w.u64(p.Size)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventMemoryAlloc
	ev.DataLen = n
	return nil
}

func DecodeMemoryAlloc(ev *Event) (MemoryAllocPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	size, ok := r.u64()
	return MemoryAllocPayload{Size: size}, ok
}

type MemoryFreePayload struct {
	Address uint64
}

func EncodeMemoryFree(ev *Event, p MemoryFreePayload) error {
	w := &payloadWriter{}
	w.u64(p.Address)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventMemoryFree
	ev.DataLen = n
	return nil
}

func DecodeMemoryFree(ev *Event) (MemoryFreePayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	addr, ok := r.u64()
	return MemoryFreePayload{Address: addr}, ok
}

// ---- file_open: NUL-terminated path ----

func EncodeFileOpen(ev *Event, path string) error {
	w := &payloadWriter{}
	w.bytes([]byte(path))
	w.u8(0)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileOpen
	ev.DataLen = n
	return nil
}

// DecodeFileOpenPath returns the path without its NUL terminator.
func DecodeFileOpenPath(ev *Event) (string, bool) {
	buf := ev.Data[:ev.DataLen]
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), true
		}
	}
	return "", false
}

// ---- file_close / file_stat: i32 fd or NUL-terminated path ----

type FileClosePayload struct {
	FD int32
}

func EncodeFileClose(ev *Event, p FileClosePayload) error {
	w := &payloadWriter{}
	w.u32(uint32(p.FD))
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileClose
	ev.DataLen = n
	return nil
}

func DecodeFileClose(ev *Event) (FileClosePayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	fd, ok := r.u32()
	return FileClosePayload{FD: int32(fd)}, ok
}

func EncodeFileStat(ev *Event, path string) error {
	w := &payloadWriter{}
	w.bytes([]byte(path))
	w.u8(0)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileStat
	ev.DataLen = n
	return nil
}

func DecodeFileStatPath(ev *Event) (string, bool) {
	return DecodeFileOpenPath(ev)
}

// ---- file_read: i32 fd, u64 size ----

type FileReadPayload struct {
	FD   int32
	Size uint64
}

func EncodeFileRead(ev *Event, p FileReadPayload) error {
	w := &payloadWriter{}
	w.u32(uint32(p.FD))
	w.u64(p.Size)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileRead
	ev.DataLen = n
	return nil
}

func DecodeFileRead(ev *Event) (FileReadPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	fd, ok := r.u32()
	if !ok {
		return FileReadPayload{}, false
	}
	size, ok := r.u64()
	return FileReadPayload{FD: int32(fd), Size: size}, ok
}

// ---- file_write: i32 fd, u64 size, bytes[size] ----

type FileWritePayload struct {
	FD   int32
	Size uint64
	Data []byte
}

func EncodeFileWrite(ev *Event, p FileWritePayload) error {
	w := &payloadWriter{}
	w.u32(uint32(p.FD))
	w.u64(p.Size)
	w.bytes(p.Data)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileWrite
	ev.DataLen = n
	return nil
}

func DecodeFileWrite(ev *Event) (FileWritePayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	fd, ok := r.u32()
	if !ok {
		return FileWritePayload{}, false
	}
	size, ok := r.u64()
	if !ok {
		return FileWritePayload{}, false
	}
	data, ok := r.take(int(size))
	return FileWritePayload{FD: int32(fd), Size: size, Data: data}, ok
}

// ---- file_create_tagged / file_query / file_tag_add / file_tag_remove /
// file_tag_get: create_tagged carries a u32-length-prefixed path and a
// tag list; query a match-any byte and a tag list; tag_add/tag_remove
// an fd and one tag; tag_get an fd only ----

type TagFilePayload struct {
	FD   int32 // used by tag_add/tag_remove/tag_get
	Path string
	Tags []Tag
}

// Tag is a wire-level (key, value) pair, mirrored from tagfs.Tag so the
// event payload codec does not need to import package tagfs.
type Tag struct {
	Key   string
	Value string
}

func encodeTags(w *payloadWriter, tags []Tag) {
	w.u32(uint32(len(tags)))
	for _, t := range tags {
		w.u8(uint8(len(t.Key)))
		w.bytes([]byte(t.Key))
		w.u8(uint8(len(t.Value)))
		w.bytes([]byte(t.Value))
	}
}

func decodeTags(r *payloadReader) ([]Tag, bool) {
	count, ok := r.u32()
	if !ok {
		return nil, false
	}
	tags := make([]Tag, 0, count)
	for i := uint32(0); i < count; i++ {
		klen, ok := r.u8()
		if !ok {
			return nil, false
		}
		key, ok := r.take(int(klen))
		if !ok {
			return nil, false
		}
		vlen, ok := r.u8()
		if !ok {
			return nil, false
		}
		val, ok := r.take(int(vlen))
		if !ok {
			return nil, false
		}
		tags = append(tags, Tag{Key: string(key), Value: string(val)})
	}
	return tags, true
}

func EncodeFileCreateTagged(ev *Event, path string, tags []Tag) error {
	w := &payloadWriter{}
	w.u32(uint32(len(path)))
	w.bytes([]byte(path))
	encodeTags(w, tags)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileCreateTagged
	ev.DataLen = n
	return nil
}

func DecodeFileCreateTagged(ev *Event) (TagFilePayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	plen, ok := r.u32()
	if !ok {
		return TagFilePayload{}, false
	}
	path, ok := r.take(int(plen))
	if !ok {
		return TagFilePayload{}, false
	}
	tags, ok := decodeTags(r)
	return TagFilePayload{Path: string(path), Tags: tags}, ok
}

func EncodeFileQuery(ev *Event, tags []Tag, matchAny bool) error {
	w := &payloadWriter{}
	if matchAny {
		w.u8(1)
	} else {
		w.u8(0)
	}
	encodeTags(w, tags)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileQuery
	ev.DataLen = n
	return nil
}

func DecodeFileQuery(ev *Event) (tags []Tag, matchAny bool, ok bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	anyByte, ok := r.u8()
	if !ok {
		return nil, false, false
	}
	tags, ok = decodeTags(r)
	return tags, anyByte != 0, ok
}

func encodeFDAndTag(ev *Event, typ EventType, fd int32, tag Tag) error {
	w := &payloadWriter{}
	w.u32(uint32(fd))
	w.u8(uint8(len(tag.Key)))
	w.bytes([]byte(tag.Key))
	w.u8(uint8(len(tag.Value)))
	w.bytes([]byte(tag.Value))
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = typ
	ev.DataLen = n
	return nil
}

func decodeFDAndTag(ev *Event) (int32, Tag, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	fd, ok := r.u32()
	if !ok {
		return 0, Tag{}, false
	}
	klen, ok := r.u8()
	if !ok {
		return 0, Tag{}, false
	}
	key, ok := r.take(int(klen))
	if !ok {
		return 0, Tag{}, false
	}
	vlen, ok := r.u8()
	if !ok {
		return 0, Tag{}, false
	}
	val, ok := r.take(int(vlen))
	return int32(fd), Tag{Key: string(key), Value: string(val)}, ok
}

func EncodeFileTagAdd(ev *Event, fd int32, tag Tag) error {
	return encodeFDAndTag(ev, EventFileTagAdd, fd, tag)
}
func DecodeFileTagAdd(ev *Event) (int32, Tag, bool) { return decodeFDAndTag(ev) }

func EncodeFileTagRemove(ev *Event, fd int32, tag Tag) error {
	return encodeFDAndTag(ev, EventFileTagRemove, fd, tag)
}
func DecodeFileTagRemove(ev *Event) (int32, Tag, bool) { return decodeFDAndTag(ev) }

func EncodeFileTagGet(ev *Event, fd int32) error {
	w := &payloadWriter{}
	w.u32(uint32(fd))
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventFileTagGet
	ev.DataLen = n
	return nil
}

func DecodeFileTagGet(ev *Event) (int32, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	fd, ok := r.u32()
	return int32(fd), ok
}

// ---- proc_create: u32 name_len, name_bytes, u64 entry_address, u8 energy ----

type ProcCreatePayload struct {
	Name         string
	EntryAddress uint64
	Energy       uint8
}

func EncodeProcCreate(ev *Event, p ProcCreatePayload) error {
	w := &payloadWriter{}
	w.u32(uint32(len(p.Name)))
	w.bytes([]byte(p.Name))
	w.u64(p.EntryAddress)
	w.u8(p.Energy)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventProcCreate
	ev.DataLen = n
	return nil
}

func DecodeProcCreate(ev *Event) (ProcCreatePayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	nameLen, ok := r.u32()
	if !ok {
		return ProcCreatePayload{}, false
	}
	nameBytes, ok := r.take(int(nameLen))
	if !ok {
		return ProcCreatePayload{}, false
	}
	entry, ok := r.u64()
	if !ok {
		return ProcCreatePayload{}, false
	}
	energy, ok := r.u8()
	return ProcCreatePayload{Name: string(nameBytes), EntryAddress: entry, Energy: energy}, ok
}

// ---- proc_kill / proc_wait / proc_getpid: u64 task_id (getpid takes none) ----

type TaskIDPayload struct {
	TaskID uint64
}

func encodeTaskID(ev *Event, typ EventType, taskID uint64) error {
	w := &payloadWriter{}
	w.u64(taskID)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = typ
	ev.DataLen = n
	return nil
}

func decodeTaskID(ev *Event) (TaskIDPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	id, ok := r.u64()
	return TaskIDPayload{TaskID: id}, ok
}

func EncodeProcKill(ev *Event, taskID uint64) error { return encodeTaskID(ev, EventProcKill, taskID) }
func DecodeProcKill(ev *Event) (TaskIDPayload, bool) { return decodeTaskID(ev) }

func EncodeProcWait(ev *Event, taskID uint64) error { return encodeTaskID(ev, EventProcWait, taskID) }
func DecodeProcWait(ev *Event) (TaskIDPayload, bool) { return decodeTaskID(ev) }

// ---- proc_signal: u64 task_id, u32 op, u32 value ----

type ProcSignalPayload struct {
	TaskID uint64
	Op     SignalOp
	Value  uint32
}

func EncodeProcSignal(ev *Event, p ProcSignalPayload) error {
	w := &payloadWriter{}
	w.u64(p.TaskID)
	w.u32(uint32(p.Op))
	w.u32(p.Value)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventProcSignal
	ev.DataLen = n
	return nil
}

func DecodeProcSignal(ev *Event) (ProcSignalPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	taskID, ok := r.u64()
	if !ok {
		return ProcSignalPayload{}, false
	}
	op, ok := r.u32()
	if !ok {
		return ProcSignalPayload{}, false
	}
	value, ok := r.u32()
	return ProcSignalPayload{TaskID: taskID, Op: SignalOp(op), Value: value}, ok
}

// ---- ipc_send / ipc_recv: u64 receiver_id, bytes ----

type IPCSendPayload struct {
	ReceiverID uint64
	Data       []byte
}

func EncodeIPCSend(ev *Event, p IPCSendPayload) error {
	w := &payloadWriter{}
	w.u64(p.ReceiverID)
	w.bytes(p.Data)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventIPCSend
	ev.DataLen = n
	return nil
}

func DecodeIPCSend(ev *Event) (IPCSendPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	receiver, ok := r.u64()
	if !ok {
		return IPCSendPayload{}, false
	}
	return IPCSendPayload{ReceiverID: receiver, Data: r.buf[r.off:]}, true
}

// ---- timer_create: u64 delay_ms, u64 interval_ms (interval==0 => one-shot) ----

type TimerCreatePayload struct {
	DelayMs    uint64
	IntervalMs uint64
}

func EncodeTimerCreate(ev *Event, p TimerCreatePayload) error {
	w := &payloadWriter{}
	w.u64(p.DelayMs)
	w.u64(p.IntervalMs)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventTimerCreate
	ev.DataLen = n
	return nil
}

func DecodeTimerCreate(ev *Event) (TimerCreatePayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	delay, ok := r.u64()
	if !ok {
		return TimerCreatePayload{}, false
	}
	interval, ok := r.u64()
	return TimerCreatePayload{DelayMs: delay, IntervalMs: interval}, ok
}

// ---- timer_cancel: u64 timer_id ----

func EncodeTimerCancel(ev *Event, timerID uint64) error {
	w := &payloadWriter{}
	w.u64(timerID)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventTimerCancel
	ev.DataLen = n
	return nil
}

func DecodeTimerCancel(ev *Event) (uint64, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	return r.u64()
}

// ---- group_create: no payload ----

func EncodeGroupCreate(ev *Event) error {
	ev.Type = EventGroupCreate
	ev.DataLen = 0
	return nil
}

// ---- group_add / group_remove: u64 group_id, u64 task_id ----

type GroupMemberPayload struct {
	GroupID uint64
	TaskID  uint64
}

func encodeGroupMember(ev *Event, typ EventType, p GroupMemberPayload) error {
	w := &payloadWriter{}
	w.u64(p.GroupID)
	w.u64(p.TaskID)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = typ
	ev.DataLen = n
	return nil
}

func decodeGroupMember(ev *Event) (GroupMemberPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	groupID, ok := r.u64()
	if !ok {
		return GroupMemberPayload{}, false
	}
	taskID, ok := r.u64()
	return GroupMemberPayload{GroupID: groupID, TaskID: taskID}, ok
}

func EncodeGroupAdd(ev *Event, p GroupMemberPayload) error {
	return encodeGroupMember(ev, EventGroupAdd, p)
}
func DecodeGroupAdd(ev *Event) (GroupMemberPayload, bool) { return decodeGroupMember(ev) }

func EncodeGroupRemove(ev *Event, p GroupMemberPayload) error {
	return encodeGroupMember(ev, EventGroupRemove, p)
}
func DecodeGroupRemove(ev *Event) (GroupMemberPayload, bool) { return decodeGroupMember(ev) }

// ---- group_set_mem_limit: u64 group_id, u64 limit ----

type GroupMemLimitPayload struct {
	GroupID uint64
	Limit   uint64
}

func EncodeGroupSetMemLimit(ev *Event, p GroupMemLimitPayload) error {
	w := &payloadWriter{}
	w.u64(p.GroupID)
	w.u64(p.Limit)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventGroupSetMemLimit
	ev.DataLen = n
	return nil
}

func DecodeGroupSetMemLimit(ev *Event) (GroupMemLimitPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	groupID, ok := r.u64()
	if !ok {
		return GroupMemLimitPayload{}, false
	}
	limit, ok := r.u64()
	return GroupMemLimitPayload{GroupID: groupID, Limit: limit}, ok
}

// ---- group_broadcast: u64 group_id, bytes ----

type GroupBroadcastPayload struct {
	GroupID uint64
	Data    []byte
}

func EncodeGroupBroadcast(ev *Event, p GroupBroadcastPayload) error {
	w := &payloadWriter{}
	w.u64(p.GroupID)
	w.bytes(p.Data)
	n, err := w.encodeInto(&ev.Data)
	if err != nil {
		return err
	}
	ev.Type = EventGroupBroadcast
	ev.DataLen = n
	return nil
}

func DecodeGroupBroadcast(ev *Event) (GroupBroadcastPayload, bool) {
	r := newPayloadReader(ev.Data[:ev.DataLen])
	groupID, ok := r.u64()
	if !ok {
		return GroupBroadcastPayload{}, false
	}
	return GroupBroadcastPayload{GroupID: groupID, Data: r.buf[r.off:]}, true
}
