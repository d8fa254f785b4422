package tagfs_test

import (
	"bytes"
	"errors"
	"testing"

	"code.hybscloud.com/monokernel/tagfs"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	s := tagfs.New(64, 16)

	ino, err := s.CreateInode([]tagfs.Tag{{Key: "project", Value: "monokernel"}}, 1, 0)
	if err != nil {
		t.Fatalf("CreateInode: %v", err)
	}

	data := bytes.Repeat([]byte("x"), tagfs.BlockSize+100) // spans two blocks
	n, err := s.Write(ino.ID, 0, data, 1000)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Write: got %d bytes, want %d", n, len(data))
	}

	got, err := s.Read(ino.ID, 0, len(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Read: round-trip mismatch (%d bytes)", len(got))
	}

	updated, err := s.Inode(ino.ID)
	if err != nil {
		t.Fatalf("Inode: %v", err)
	}
	if updated.Size != uint64(len(data)) {
		t.Fatalf("Size after Write: got %d, want %d", updated.Size, len(data))
	}
}

func TestReadSparseRangeZeroFills(t *testing.T) {
	s := tagfs.New(64, 16)
	ino, _ := s.CreateInode(nil, 1, 0)

	// Write only the tail of a 2-block span, leaving the front sparse.
	if _, err := s.Write(ino.ID, tagfs.BlockSize, []byte("tail"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read(ino.ID, 0, tagfs.BlockSize+4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := 0; i < tagfs.BlockSize; i++ {
		if got[i] != 0 {
			t.Fatalf("Read: byte %d in sparse region is %d, want 0", i, got[i])
		}
	}
	if string(got[tagfs.BlockSize:]) != "tail" {
		t.Fatalf("Read: tail got %q, want tail", got[tagfs.BlockSize:])
	}
}

func TestReadPastEOFShortReads(t *testing.T) {
	s := tagfs.New(64, 16)
	ino, _ := s.CreateInode(nil, 1, 0)
	s.Write(ino.ID, 0, []byte("hello"), 0)

	got, err := s.Read(ino.ID, 0, 100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read past EOF: got %q, want hello", got)
	}
}

func TestFreeInodeReleasesBlocksAndTags(t *testing.T) {
	s := tagfs.New(8, 4)
	ino, _ := s.CreateInode([]tagfs.Tag{{Key: "k", Value: "v"}}, 1, 0)
	s.Write(ino.ID, 0, []byte("data"), 0)

	before := s.Superblock().FreeBlocks
	if err := s.FreeInode(ino.ID); err != nil {
		t.Fatalf("FreeInode: %v", err)
	}
	after := s.Superblock().FreeBlocks
	if after <= before {
		t.Fatalf("FreeBlocks after FreeInode: got %d, want > %d", after, before)
	}

	if ids := s.Query([]tagfs.Tag{{Key: "k", Value: "v"}}, false); len(ids) != 0 {
		t.Fatalf("Query after FreeInode: got %v, want empty", ids)
	}
	if _, err := s.Inode(ino.ID); !errors.Is(err, tagfs.ErrInodeNotFound) {
		t.Fatalf("Inode after FreeInode: got %v, want ErrInodeNotFound", err)
	}
}

func TestQueryANDRequiresAllTags(t *testing.T) {
	s := tagfs.New(8, 8)
	a, _ := s.CreateInode([]tagfs.Tag{{Key: "color", Value: "red"}, {Key: "size", Value: "big"}}, 1, 0)
	b, _ := s.CreateInode([]tagfs.Tag{{Key: "color", Value: "red"}}, 1, 0)

	got := s.Query([]tagfs.Tag{{Key: "color", Value: "red"}, {Key: "size", Value: "big"}}, false)
	if len(got) != 1 || got[0] != a.ID {
		t.Fatalf("AND query: got %v, want [%d]", got, a.ID)
	}

	got = s.Query([]tagfs.Tag{{Key: "color", Value: "red"}}, false)
	ids := map[uint64]bool{}
	for _, id := range got {
		ids[id] = true
	}
	if !ids[a.ID] || !ids[b.ID] {
		t.Fatalf("AND query single tag: got %v, want both inodes", got)
	}
}

func TestQueryORMatchesAny(t *testing.T) {
	s := tagfs.New(8, 8)
	a, _ := s.CreateInode([]tagfs.Tag{{Key: "color", Value: "red"}}, 1, 0)
	b, _ := s.CreateInode([]tagfs.Tag{{Key: "color", Value: "blue"}}, 1, 0)
	_, _ = s.CreateInode([]tagfs.Tag{{Key: "color", Value: "green"}}, 1, 0)

	got := s.Query([]tagfs.Tag{{Key: "color", Value: "red"}, {Key: "color", Value: "blue"}}, true)
	ids := map[uint64]bool{}
	for _, id := range got {
		ids[id] = true
	}
	if len(ids) != 2 || !ids[a.ID] || !ids[b.ID] {
		t.Fatalf("OR query: got %v, want exactly [%d %d]", got, a.ID, b.ID)
	}
}

func TestAddRemoveTag(t *testing.T) {
	s := tagfs.New(8, 8)
	ino, _ := s.CreateInode(nil, 1, 0)

	if err := s.AddTag(ino.ID, tagfs.Tag{Key: "k", Value: "v"}); err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	if got := s.Query([]tagfs.Tag{{Key: "k", Value: "v"}}, false); len(got) != 1 {
		t.Fatalf("Query after AddTag: got %v, want 1 match", got)
	}

	if err := s.RemoveTag(ino.ID, tagfs.Tag{Key: "k", Value: "v"}); err != nil {
		t.Fatalf("RemoveTag: %v", err)
	}
	if got := s.Query([]tagfs.Tag{{Key: "k", Value: "v"}}, false); len(got) != 0 {
		t.Fatalf("Query after RemoveTag: got %v, want none", got)
	}
}

func TestNoSpace(t *testing.T) {
	s := tagfs.New(2, 4)
	ino, _ := s.CreateInode(nil, 1, 0)
	s.Write(ino.ID, 0, []byte("x"), 0) // consumes the volume's only data block

	if _, err := s.Write(ino.ID, tagfs.BlockSize, []byte("y"), 0); !errors.Is(err, tagfs.ErrNoSpace) {
		t.Fatalf("Write past capacity: got %v, want ErrNoSpace", err)
	}
}

func TestNoInodes(t *testing.T) {
	s := tagfs.New(64, 1)
	if _, err := s.CreateInode(nil, 1, 0); err != nil {
		t.Fatalf("CreateInode: %v", err)
	}
	if _, err := s.CreateInode(nil, 1, 0); !errors.Is(err, tagfs.ErrNoInodes) {
		t.Fatalf("CreateInode past capacity: got %v, want ErrNoInodes", err)
	}
}

func TestIndexRebuild(t *testing.T) {
	s := tagfs.New(8, 8)
	ino, _ := s.CreateInode([]tagfs.Tag{{Key: "k", Value: "v"}}, 1, 0)

	s.IndexRebuild()
	if got := s.Query([]tagfs.Tag{{Key: "k", Value: "v"}}, false); len(got) != 1 || got[0] != ino.ID {
		t.Fatalf("Query after IndexRebuild: got %v, want [%d]", got, ino.ID)
	}
}

func TestCheckCapabilityPrivateScopeOwnerOnly(t *testing.T) {
	s := tagfs.New(8, 8)
	ino, _ := s.CreateInode(nil, 1, 0)

	ok, err := s.CheckCapability(ino.ID, 1, 0, tagfs.CapRead)
	if err != nil || !ok {
		t.Fatalf("owner CheckCapability: got (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = s.CheckCapability(ino.ID, 2, 0, tagfs.CapRead)
	if err != nil || ok {
		t.Fatalf("non-owner CheckCapability on private scope: got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestCheckCapabilityGuildScopeAdmitsGuildmate(t *testing.T) {
	s := tagfs.New(8, 8)
	ino, _ := s.CreateInode(nil, 1, 0)

	if err := s.SetAccessScope(ino.ID, 1, tagfs.ScopeGuild, 42); err != nil {
		t.Fatalf("SetAccessScope: %v", err)
	}

	ok, err := s.CheckCapability(ino.ID, 2, 42, tagfs.CapRead)
	if err != nil || !ok {
		t.Fatalf("guildmate CheckCapability: got (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.CheckCapability(ino.ID, 2, 7, tagfs.CapRead)
	if err != nil || ok {
		t.Fatalf("non-guildmate CheckCapability: got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestSetAccessScopeRequiresOwnerOrWizard(t *testing.T) {
	s := tagfs.New(8, 8)
	ino, _ := s.CreateInode(nil, 1, 0)

	if err := s.SetAccessScope(ino.ID, 2, tagfs.ScopePublic, 0); !errors.Is(err, tagfs.ErrPermissionDenied) {
		t.Fatalf("SetAccessScope by non-owner: got %v, want ErrPermissionDenied", err)
	}
	if err := s.SetAccessScope(ino.ID, tagfs.WizardUserID, tagfs.ScopePublic, 0); err != nil {
		t.Fatalf("SetAccessScope by wizard: %v", err)
	}
	if err := s.SetOwner(ino.ID, 1, 3); err != nil {
		t.Fatalf("SetOwner by owner: %v", err)
	}
	if err := s.SetOwner(ino.ID, 1, 4); !errors.Is(err, tagfs.ErrPermissionDenied) {
		t.Fatalf("SetOwner by former owner: got %v, want ErrPermissionDenied", err)
	}
}

func TestSetContextFiltersQuery(t *testing.T) {
	s := tagfs.New(8, 8)
	a, _ := s.CreateInode([]tagfs.Tag{{Key: "color", Value: "red"}, {Key: "env", Value: "prod"}}, 1, 0)
	_, _ = s.CreateInode([]tagfs.Tag{{Key: "color", Value: "red"}, {Key: "env", Value: "dev"}}, 1, 0)

	if err := s.SetContext([]tagfs.Tag{{Key: "env", Value: "prod"}}); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	got := s.Query([]tagfs.Tag{{Key: "color", Value: "red"}}, false)
	if len(got) != 1 || got[0] != a.ID {
		t.Fatalf("Query with context set: got %v, want [%d]", got, a.ID)
	}
}

func TestSetContextRejectsTooManyTags(t *testing.T) {
	s := tagfs.New(8, 8)
	tags := make([]tagfs.Tag, tagfs.MaxContextTags+1)
	if err := s.SetContext(tags); !errors.Is(err, tagfs.ErrContextTooLarge) {
		t.Fatalf("SetContext over limit: got %v, want ErrContextTooLarge", err)
	}
}

// memDevice is a minimal io.WriterAt/io.ReaderAt backed by a growable
// byte slice, standing in for a block device in Sync/Load tests.
type memDevice struct {
	data []byte
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(d.data)) {
		grown := make([]byte, end)
		copy(grown, d.data)
		d.data = grown
	}
	copy(d.data[off:end], p)
	return len(p), nil
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(d.data)) {
		return 0, errors.New("memDevice: read past end")
	}
	copy(p, d.data[off:end])
	return len(p), nil
}

func TestSyncLoadRoundTrip(t *testing.T) {
	s := tagfs.New(64, 16)
	ino, _ := s.CreateInode([]tagfs.Tag{{Key: "k", Value: "v"}}, 7, 3)
	if err := s.SetAccessScope(ino.ID, 7, tagfs.ScopeGuild, 3); err != nil {
		t.Fatalf("SetAccessScope: %v", err)
	}
	data := bytes.Repeat([]byte("x"), tagfs.BlockSize+50)
	if _, err := s.Write(ino.ID, 0, data, 1234); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dev := &memDevice{}
	if err := s.Sync(dev); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	loaded := tagfs.New(64, 16)
	if err := loaded.Load(dev); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := loaded.Inode(ino.ID)
	if err != nil {
		t.Fatalf("Inode after Load: %v", err)
	}
	if got.OwnerID != 7 || got.GuildID != 3 || got.AccessScope != tagfs.ScopeGuild {
		t.Fatalf("Inode after Load: got %+v, want OwnerID=7 GuildID=3 AccessScope=guild", got)
	}

	readBack, err := loaded.Read(ino.ID, 0, len(data))
	if err != nil {
		t.Fatalf("Read after Load: %v", err)
	}
	if !bytes.Equal(readBack, data) {
		t.Fatalf("Read after Load: round-trip mismatch (%d bytes)", len(readBack))
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dev := &memDevice{data: make([]byte, tagfs.BlockSize)}
	s := tagfs.New(8, 8)
	if err := s.Load(dev); !errors.Is(err, tagfs.ErrBadMagic) {
		t.Fatalf("Load with zeroed device: got %v, want ErrBadMagic", err)
	}
}
