package kernel_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/monokernel/kernel"
)

func newTestSystem(t *testing.T) *kernel.System {
	t.Helper()
	cfg := kernel.DefaultConfig()
	cfg.RoutingTableSize = 16
	cfg.UserRingCapacity = 64
	cfg.DeckRingCapacity = 64
	cfg.TagFSBlocks = 256
	cfg.TagFSInodes = 64
	return kernel.New(cfg, prometheus.NewRegistry())
}

// drive runs ProcessOneIteration until it goes idle or the cap is hit,
// enough for a handful of events to work their way end to end through
// Receiver -> Center -> Guide -> a deck -> Execution.
func drive(sys *kernel.System, maxIterations int) {
	for i := 0; i < maxIterations; i++ {
		sys.ProcessOneIteration()
	}
}

func submit(t *testing.T, sys *kernel.System, ev kernel.Event) {
	t.Helper()
	if err := sys.UserToKernel.Enqueue(&ev); err != nil {
		t.Fatalf("Enqueue user event: %v", err)
	}
}

func TestPipelineMemoryAllocSuccess(t *testing.T) {
	sys := newTestSystem(t)

	var ev kernel.Event
	ev.UserID = 1
	if err := kernel.EncodeMemoryAlloc(&ev, kernel.MemoryAllocPayload{Size: 4096}); err != nil {
		t.Fatalf("EncodeMemoryAlloc: %v", err)
	}
	submit(t, sys, ev)

	drive(sys, 50)

	resp, err := sys.KernelToUser.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue response: %v", err)
	}
	if resp.Status != kernel.StatusSuccess {
		t.Fatalf("Status: got %v, want success", resp.Status)
	}
}

func TestPipelineOversizeAllocIsDenied(t *testing.T) {
	sys := newTestSystem(t)

	var ev kernel.Event
	ev.UserID = 1
	if err := kernel.EncodeMemoryAlloc(&ev, kernel.MemoryAllocPayload{Size: 2 << 30}); err != nil {
		t.Fatalf("EncodeMemoryAlloc: %v", err)
	}
	submit(t, sys, ev)

	drive(sys, 50)

	resp, err := sys.KernelToUser.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue response: %v", err)
	}
	if resp.Status != kernel.StatusDenied {
		t.Fatalf("Status: got %v, want denied", resp.Status)
	}
}

func TestPipelineFileWriteThenReadRoundTrip(t *testing.T) {
	sys := newTestSystem(t)

	var openEv kernel.Event
	openEv.UserID = 1
	kernel.EncodeFileOpen(&openEv, "/data/report.csv")
	submit(t, sys, openEv)
	drive(sys, 20)

	openResp, err := sys.KernelToUser.Dequeue()
	if err != nil || openResp.Status != kernel.StatusSuccess {
		t.Fatalf("file_open response: %+v, err=%v", openResp, err)
	}
	fd := int32(openResp.Result[0]) | int32(openResp.Result[1])<<8 | int32(openResp.Result[2])<<16 | int32(openResp.Result[3])<<24

	var writeEv kernel.Event
	writeEv.UserID = 1
	kernel.EncodeFileWrite(&writeEv, kernel.FileWritePayload{FD: fd, Size: 5, Data: []byte("hello")})
	submit(t, sys, writeEv)
	drive(sys, 20)

	if resp, err := sys.KernelToUser.Dequeue(); err != nil || resp.Status != kernel.StatusSuccess {
		t.Fatalf("file_write response: %+v, err=%v", resp, err)
	}

	var readEv kernel.Event
	readEv.UserID = 1
	kernel.EncodeFileRead(&readEv, kernel.FileReadPayload{FD: fd, Size: 5})
	submit(t, sys, readEv)
	drive(sys, 20)

	readResp, err := sys.KernelToUser.Dequeue()
	if err != nil || readResp.Status != kernel.StatusSuccess {
		t.Fatalf("file_read response: %+v, err=%v", readResp, err)
	}
	if string(readResp.ResultBytes()) != "hello" {
		t.Fatalf("file_read data: got %q, want hello", readResp.ResultBytes())
	}
}

func TestPipelineProcCreateRegistersTask(t *testing.T) {
	sys := newTestSystem(t)

	var createEv kernel.Event
	createEv.UserID = 1
	kernel.EncodeProcCreate(&createEv, kernel.ProcCreatePayload{Name: "worker", EntryAddress: 0x1000, Energy: 50})
	submit(t, sys, createEv)
	drive(sys, 20)

	resp, err := sys.KernelToUser.Dequeue()
	if err != nil || resp.Status != kernel.StatusSuccess {
		t.Fatalf("proc_create response: %+v, err=%v", resp, err)
	}

	snap := sys.Scheduler.Snapshot()
	if len(snap) != 1 || snap[0].Name != "worker" {
		t.Fatalf("Scheduler.Snapshot: got %+v, want one task named worker", snap)
	}
}

func TestPipelineFileOpenByOtherUserIsDenied(t *testing.T) {
	sys := newTestSystem(t)

	var openEv kernel.Event
	openEv.UserID = 1
	kernel.EncodeFileOpen(&openEv, "/data/private.csv")
	submit(t, sys, openEv)
	drive(sys, 20)
	if resp, err := sys.KernelToUser.Dequeue(); err != nil || resp.Status != kernel.StatusSuccess {
		t.Fatalf("owner file_open: %+v, err=%v", resp, err)
	}

	var reopenEv kernel.Event
	reopenEv.UserID = 2
	kernel.EncodeFileOpen(&reopenEv, "/data/private.csv")
	submit(t, sys, reopenEv)
	drive(sys, 20)

	resp, err := sys.KernelToUser.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue response: %v", err)
	}
	if resp.Status != kernel.StatusError || resp.ErrorCode != uint32(kernel.ErrPermissionDenied) {
		t.Fatalf("non-owner file_open: got status=%v code=%v, want error/permission_denied", resp.Status, resp.ErrorCode)
	}
}

func TestPipelineGroupBroadcastFansOutToMembers(t *testing.T) {
	sys := newTestSystem(t)

	var groupEv kernel.Event
	groupEv.UserID = 1
	kernel.EncodeGroupCreate(&groupEv)
	submit(t, sys, groupEv)
	drive(sys, 20)
	groupResp, err := sys.KernelToUser.Dequeue()
	if err != nil || groupResp.Status != kernel.StatusSuccess {
		t.Fatalf("group_create response: %+v, err=%v", groupResp, err)
	}
	groupID := u64FromResult(groupResp.ResultBytes())

	var createEv kernel.Event
	createEv.UserID = 1
	kernel.EncodeProcCreate(&createEv, kernel.ProcCreatePayload{Name: "member", EntryAddress: 0x2000, Energy: 50})
	submit(t, sys, createEv)
	drive(sys, 20)
	createResp, err := sys.KernelToUser.Dequeue()
	if err != nil || createResp.Status != kernel.StatusSuccess {
		t.Fatalf("proc_create response: %+v, err=%v", createResp, err)
	}
	memberID := u64FromResult(createResp.ResultBytes())

	var addEv kernel.Event
	addEv.UserID = 1
	kernel.EncodeGroupAdd(&addEv, kernel.GroupMemberPayload{GroupID: groupID, TaskID: memberID})
	submit(t, sys, addEv)
	drive(sys, 20)
	if resp, err := sys.KernelToUser.Dequeue(); err != nil || resp.Status != kernel.StatusSuccess {
		t.Fatalf("group_add response: %+v, err=%v", resp, err)
	}

	// Broadcast skips the sender, so the broadcast comes from a user id
	// other than the member task's id (the first task created is id 1).
	var broadcastEv kernel.Event
	broadcastEv.UserID = 2
	kernel.EncodeGroupBroadcast(&broadcastEv, kernel.GroupBroadcastPayload{GroupID: groupID, Data: []byte("hi")})
	submit(t, sys, broadcastEv)
	drive(sys, 20)
	if resp, err := sys.KernelToUser.Dequeue(); err != nil || resp.Status != kernel.StatusSuccess {
		t.Fatalf("group_broadcast response: %+v, err=%v", resp, err)
	}

	counters, err := sys.IPC.CountersFor(memberID)
	if err != nil {
		t.Fatalf("CountersFor: %v", err)
	}
	if counters.BroadcastsReceived != 1 {
		t.Fatalf("BroadcastsReceived: got %d, want 1", counters.BroadcastsReceived)
	}
}

func u64FromResult(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func TestPipelineForbiddenPathIsDenied(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.RoutingTableSize = 16
	cfg.UserRingCapacity = 64
	cfg.DeckRingCapacity = 64
	cfg.TagFSBlocks = 256
	cfg.TagFSInodes = 64
	cfg.SecurityPolicy = &kernel.SecurityPolicy{ForbiddenPaths: map[string]bool{"/etc/shadow": true}}
	sys := kernel.New(cfg, prometheus.NewRegistry())

	var ev kernel.Event
	ev.UserID = 1
	kernel.EncodeFileOpen(&ev, "/etc/shadow")
	submit(t, sys, ev)
	drive(sys, 20)

	resp, err := sys.KernelToUser.Dequeue()
	if err != nil || resp.Status != kernel.StatusDenied {
		t.Fatalf("file_open on forbidden path: %+v, err=%v, want denied", resp, err)
	}
}
