package kernel

import (
	"sync"

	"code.hybscloud.com/monokernel/tagfs"
)

// maxOpenFiles bounds the Storage deck's file descriptor table (§4.6).
const maxOpenFiles = 256

// fileHandle is one open-file record.
type fileHandle struct {
	fd       int32
	inodeID  uint64
	path     string
	position uint64
	inUse    bool
}

// vmm is a bump-pointer stand-in for the original design's VMM
// interface: the kernel here runs in-process, so "memory" it manages
// is bookkeeping only, not real page tables.
type vmm struct {
	mu          sync.Mutex
	nextAddr    uint64
	allocations map[uint64]uint64 // address -> size
}

func newVMM() *vmm {
	return &vmm{nextAddr: 0x1000, allocations: make(map[uint64]uint64)}
}

func (v *vmm) alloc(size uint64) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	addr := v.nextAddr
	v.allocations[addr] = size
	v.nextAddr += (size + 0xFFF) &^ 0xFFF // page-align the bump
	return addr
}

func (v *vmm) free(addr uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.allocations[addr]; !ok {
		return false
	}
	delete(v.allocations, addr)
	return true
}

func (v *vmm) mapAnon(size uint64) uint64 {
	return v.alloc(size)
}

// StorageDeck holds the file descriptor table, the VMM stand-in, and
// the TagFS store the Storage deck's process function closes over.
type StorageDeck struct {
	mu      sync.Mutex
	fds     [maxOpenFiles]fileHandle
	nextFD  int32
	paths   map[string]uint64 // path -> inode id, for file_open and file_stat by path
	vmm     *vmm
	fs      *tagfs.Store
}

// NewStorageDeck builds the Storage deck's shared state. fs is the
// TagFS volume backing every file operation.
func NewStorageDeck(fs *tagfs.Store) *StorageDeck {
	return &StorageDeck{nextFD: 1, paths: make(map[string]uint64), vmm: newVMM(), fs: fs}
}

func (d *StorageDeck) allocFD(inodeID uint64, path string) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.fds {
		if !d.fds[i].inUse {
			fd := d.nextFD
			d.nextFD++
			d.fds[i] = fileHandle{fd: fd, inodeID: inodeID, path: path, inUse: true}
			return fd
		}
	}
	return -1
}

func (d *StorageDeck) handle(fd int32) (*fileHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.fds {
		if d.fds[i].inUse && d.fds[i].fd == fd {
			return &d.fds[i], true
		}
	}
	return nil, false
}

func (d *StorageDeck) closeFD(fd int32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.fds {
		if d.fds[i].inUse && d.fds[i].fd == fd {
			d.fds[i] = fileHandle{}
			return true
		}
	}
	return false
}

func toFSTags(tags []Tag) []tagfs.Tag {
	out := make([]tagfs.Tag, len(tags))
	for i, t := range tags {
		out[i] = tagfs.Tag{Key: t.Key, Value: t.Value}
	}
	return out
}

// Process is StorageDeck's deckProcessFunc: memory alloc/free/map, file
// open/close/read/write/stat, and TagFS create/query/tag ops (§4.6).
// File creation makes the calling user the inode's owner; open of an
// existing path, read, write, and tag add/remove/get run
// check_capability first (§4.10) and fail closed with
// ErrPermissionDenied. file_stat and file_close do not check it.
// file_write writes at the descriptor's position without moving it;
// file_read reads from that position and advances it.
func (d *StorageDeck) Process(e *RoutingEntry) (ResponseStatus, []byte, uint32, bool) {
	ev := &e.EventCopy
	switch ev.Type {
	case EventMemoryAlloc:
		p, ok := DecodeMemoryAlloc(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		addr := d.vmm.alloc(p.Size)
		var resp Response
		resp.SetResult(u64le(addr))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventMemoryFree:
		p, ok := DecodeMemoryFree(ev)
		if !ok || !d.vmm.free(p.Address) {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventMemoryMap:
		p, ok := DecodeMemoryAlloc(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		addr := d.vmm.mapAnon(p.Size)
		var resp Response
		resp.SetResult(u64le(addr))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventFileOpen:
		path, ok := DecodeFileOpenPath(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		inodeID, ok := d.paths[path]
		if !ok {
			ino, err := d.fs.CreateInode(nil, ev.UserID, 0)
			if err != nil {
				return 0, nil, uint32(ErrResourceExhausted), false
			}
			inodeID = ino.ID
			d.paths[path] = inodeID
		} else if allowed, err := d.fs.CheckCapability(inodeID, ev.UserID, 0, tagfs.CapRead); err != nil || !allowed {
			return 0, nil, uint32(ErrPermissionDenied), false
		}
		fd := d.allocFD(inodeID, path)
		if fd < 0 {
			return 0, nil, uint32(ErrResourceExhausted), false
		}
		var resp Response
		resp.SetResult(u32le(uint32(fd)))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventFileClose:
		p, ok := DecodeFileClose(ev)
		if !ok || !d.closeFD(p.FD) {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventFileStat:
		path, ok := DecodeFileStatPath(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		inodeID, ok := d.paths[path]
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		ino, err := d.fs.Inode(inodeID)
		if err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		var resp Response
		resp.SetResult(u64le(ino.Size))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventFileRead:
		p, ok := DecodeFileRead(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		h, ok := d.handle(p.FD)
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		if allowed, err := d.fs.CheckCapability(h.inodeID, ev.UserID, 0, tagfs.CapRead); err != nil || !allowed {
			return 0, nil, uint32(ErrPermissionDenied), false
		}
		data, err := d.fs.Read(h.inodeID, h.position, int(p.Size))
		if err != nil {
			return 0, nil, uint32(ErrStorageCorrupt), false
		}
		d.mu.Lock()
		h.position += uint64(len(data))
		d.mu.Unlock()
		return StatusSuccess, data, 0, true

	case EventFileWrite:
		p, ok := DecodeFileWrite(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		h, ok := d.handle(p.FD)
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		if allowed, err := d.fs.CheckCapability(h.inodeID, ev.UserID, 0, tagfs.CapWrite); err != nil || !allowed {
			return 0, nil, uint32(ErrPermissionDenied), false
		}
		n, err := d.fs.Write(h.inodeID, h.position, p.Data, nowTSC())
		if err != nil {
			return 0, nil, uint32(ErrStorageCorrupt), false
		}
		var resp Response
		resp.SetResult(u32le(uint32(n)))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventFileCreateTagged:
		p, ok := DecodeFileCreateTagged(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		ino, err := d.fs.CreateInode(toFSTags(p.Tags), ev.UserID, 0)
		if err != nil {
			return 0, nil, uint32(ErrResourceExhausted), false
		}
		d.paths[p.Path] = ino.ID
		fd := d.allocFD(ino.ID, p.Path)
		if fd < 0 {
			return 0, nil, uint32(ErrResourceExhausted), false
		}
		var resp Response
		resp.SetResult(u32le(uint32(fd)))
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventFileQuery:
		tags, matchAny, ok := DecodeFileQuery(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		ids := d.fs.Query(toFSTags(tags), matchAny)
		var resp Response
		buf := make([]byte, 0, len(ids)*8)
		for _, id := range ids {
			buf = append(buf, u64le(id)...)
		}
		resp.SetResult(buf)
		return StatusSuccess, resp.ResultBytes(), 0, true

	case EventFileTagAdd:
		fd, tag, ok := DecodeFileTagAdd(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		h, ok := d.handle(fd)
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		if allowed, err := d.fs.CheckCapability(h.inodeID, ev.UserID, 0, tagfs.CapMetadata); err != nil || !allowed {
			return 0, nil, uint32(ErrPermissionDenied), false
		}
		if err := d.fs.AddTag(h.inodeID, tagfs.Tag{Key: tag.Key, Value: tag.Value}); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventFileTagRemove:
		fd, tag, ok := DecodeFileTagRemove(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		h, ok := d.handle(fd)
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		if allowed, err := d.fs.CheckCapability(h.inodeID, ev.UserID, 0, tagfs.CapMetadata); err != nil || !allowed {
			return 0, nil, uint32(ErrPermissionDenied), false
		}
		if err := d.fs.RemoveTag(h.inodeID, tagfs.Tag{Key: tag.Key, Value: tag.Value}); err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		return StatusSuccess, nil, 0, true

	case EventFileTagGet:
		fd, ok := DecodeFileTagGet(ev)
		if !ok {
			return 0, nil, uint32(ErrInvalidEvent), false
		}
		h, ok := d.handle(fd)
		if !ok {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		if allowed, err := d.fs.CheckCapability(h.inodeID, ev.UserID, 0, tagfs.CapRead); err != nil || !allowed {
			return 0, nil, uint32(ErrPermissionDenied), false
		}
		tags, err := d.fs.Tags(h.inodeID)
		if err != nil {
			return 0, nil, uint32(ErrResourceNotFound), false
		}
		var resp Response
		w := &payloadWriter{}
		encodeTags(w, toKernelTags(tags))
		resp.SetResult(w.buf)
		return StatusSuccess, resp.ResultBytes(), 0, true

	default:
		return 0, nil, uint32(ErrInvalidEvent), false
	}
}

func toKernelTags(tags []tagfs.Tag) []Tag {
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = Tag{Key: t.Key, Value: t.Value}
	}
	return out
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func u64le(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
