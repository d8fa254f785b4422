package tagfs

import (
	"encoding/binary"
	"errors"
	"io"
)

// On-disk constants (§6). InodeRecordSize is the packed width of one
// inode record; InodesPerBlock follows from BlockSize.
const (
	SuperblockMagic   uint64 = 0x54414746535632
	SuperblockVersion uint32 = 2

	InodeRecordSize = 512
	InodesPerBlock  = BlockSize / InodeRecordSize // 8
)

// ErrBadMagic is returned by Load when the device's first block does
// not carry SuperblockMagic — either an unformatted device or one
// formatted by something else.
var ErrBadMagic = errors.New("tagfs: superblock magic mismatch")

func inodeTableBlockCount(totalInodes uint32) uint32 {
	return (totalInodes + InodesPerBlock - 1) / InodesPerBlock
}

// Sync writes the superblock, then the inode table, then every
// allocated data block to dev, in that order (§4.10's persisted sync
// order: superblock first, then inode-table blocks ascending, then
// live data blocks — never the inverse, so a reader that stops partway
// through at least has a self-consistent superblock and inode table).
// It does not implement crash consistency: a torn write left by a
// failure mid-Sync is possible and explicitly out of scope (§1's
// Non-goals name "persistent crash-consistent filesystem").
func (s *Store) Sync(dev io.WriterAt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeSuperblockLocked(dev); err != nil {
		return err
	}
	if err := s.writeInodeTableLocked(dev); err != nil {
		return err
	}
	return s.writeDataBlocksLocked(dev)
}

func (s *Store) writeSuperblockLocked(dev io.WriterAt) error {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.sb.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], s.sb.Version)
	binary.LittleEndian.PutUint32(buf[12:16], s.sb.BlockSize)
	binary.LittleEndian.PutUint32(buf[16:20], s.sb.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], s.sb.FreeBlocks)
	binary.LittleEndian.PutUint32(buf[24:28], s.sb.TotalInodes)
	binary.LittleEndian.PutUint32(buf[28:32], s.sb.FreeInodes)
	binary.LittleEndian.PutUint32(buf[32:36], s.sb.InodeTableBlock)
	binary.LittleEndian.PutUint32(buf[36:40], s.sb.DataBlocksStart)
	binary.LittleEndian.PutUint32(buf[40:44], s.sb.TagIndexBlock)
	_, err := dev.WriteAt(buf, 0)
	return err
}

func (s *Store) writeInodeTableLocked(dev io.WriterAt) error {
	blocks := inodeTableBlockCount(s.sb.TotalInodes)
	for blk := uint32(0); blk < blocks; blk++ {
		buf := make([]byte, BlockSize)
		for slot := 0; slot < InodesPerBlock; slot++ {
			idx := int(blk)*InodesPerBlock + slot
			if idx >= len(s.inodes) {
				break
			}
			encodeInodeRecord(buf[slot*InodeRecordSize:(slot+1)*InodeRecordSize], &s.inodes[idx])
		}
		off := int64(s.sb.InodeTableBlock+blk) * BlockSize
		if _, err := dev.WriteAt(buf, off); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeDataBlocksLocked(dev io.WriterAt) error {
	for i, used := range s.blockBitmap {
		if !used {
			continue
		}
		off := int64(s.sb.DataBlocksStart+uint32(i)) * BlockSize
		if _, err := dev.WriteAt(s.blocks[i], off); err != nil {
			return err
		}
	}
	return nil
}

func encodeInodeRecord(buf []byte, ino *Inode) {
	binary.LittleEndian.PutUint64(buf[0:8], ino.ID)
	binary.LittleEndian.PutUint64(buf[8:16], ino.Size)
	binary.LittleEndian.PutUint64(buf[16:24], ino.ModificationTime)
	binary.LittleEndian.PutUint64(buf[24:32], ino.OwnerID)
	binary.LittleEndian.PutUint64(buf[32:40], ino.GuildID)
	binary.LittleEndian.PutUint32(buf[40:44], ino.Capabilities)
	buf[44] = byte(ino.AccessScope)
	if ino.InUse {
		buf[45] = 1
	}
	for i, d := range ino.Direct {
		binary.LittleEndian.PutUint32(buf[48+i*4:52+i*4], d)
	}
	binary.LittleEndian.PutUint32(buf[96:100], ino.IndirectBlock)
	binary.LittleEndian.PutUint32(buf[100:104], ino.DoubleIndirectBlock)
}

func decodeInodeRecord(buf []byte) Inode {
	var ino Inode
	ino.ID = binary.LittleEndian.Uint64(buf[0:8])
	ino.Size = binary.LittleEndian.Uint64(buf[8:16])
	ino.ModificationTime = binary.LittleEndian.Uint64(buf[16:24])
	ino.OwnerID = binary.LittleEndian.Uint64(buf[24:32])
	ino.GuildID = binary.LittleEndian.Uint64(buf[32:40])
	ino.Capabilities = binary.LittleEndian.Uint32(buf[40:44])
	ino.AccessScope = AccessScope(buf[44])
	ino.InUse = buf[45] != 0
	for i := range ino.Direct {
		ino.Direct[i] = binary.LittleEndian.Uint32(buf[48+i*4 : 52+i*4])
	}
	ino.IndirectBlock = binary.LittleEndian.Uint32(buf[96:100])
	ino.DoubleIndirectBlock = binary.LittleEndian.Uint32(buf[100:104])
	return ino
}

// Load replaces the store's contents with whatever dev's superblock
// and inode table describe, re-reading every block an inode's direct,
// indirect, or double-indirect pointers reach. Tags are not part of
// the on-disk inode record (§4.10's tag cap does not fit the 512-byte
// record this layout budgets), so the tag index comes back empty; a
// caller that needs tags back has to re-apply them after Load.
func (s *Store) Load(dev io.ReaderAt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, BlockSize)
	if _, err := dev.ReadAt(buf, 0); err != nil {
		return err
	}
	magic := binary.LittleEndian.Uint64(buf[0:8])
	if magic != SuperblockMagic {
		return ErrBadMagic
	}

	s.sb = Superblock{
		Magic:           magic,
		Version:         binary.LittleEndian.Uint32(buf[8:12]),
		BlockSize:       binary.LittleEndian.Uint32(buf[12:16]),
		TotalBlocks:     binary.LittleEndian.Uint32(buf[16:20]),
		FreeBlocks:      binary.LittleEndian.Uint32(buf[20:24]),
		TotalInodes:     binary.LittleEndian.Uint32(buf[24:28]),
		FreeInodes:      binary.LittleEndian.Uint32(buf[28:32]),
		InodeTableBlock: binary.LittleEndian.Uint32(buf[32:36]),
		DataBlocksStart: binary.LittleEndian.Uint32(buf[36:40]),
		TagIndexBlock:   binary.LittleEndian.Uint32(buf[40:44]),
	}

	s.blocks = make([][]byte, s.sb.TotalBlocks)
	s.blockBitmap = make([]bool, s.sb.TotalBlocks)
	s.inodes = make([]Inode, s.sb.TotalInodes)
	s.index = make(map[tagKey]*indexEntry)
	s.sb.FreeBlocks = s.sb.TotalBlocks

	if err := s.readInodeTableLocked(dev); err != nil {
		return err
	}

	var maxID uint64
	for i := range s.inodes {
		ino := &s.inodes[i]
		if !ino.InUse {
			continue
		}
		if ino.ID > maxID {
			maxID = ino.ID
		}
		if err := s.loadInodeBlocksLocked(dev, ino); err != nil {
			return err
		}
	}
	s.nextInodeID = maxID + 1

	return nil
}

func (s *Store) readInodeTableLocked(dev io.ReaderAt) error {
	blocks := inodeTableBlockCount(s.sb.TotalInodes)
	for blk := uint32(0); blk < blocks; blk++ {
		buf := make([]byte, BlockSize)
		off := int64(s.sb.InodeTableBlock+blk) * BlockSize
		if _, err := dev.ReadAt(buf, off); err != nil {
			return err
		}
		for slot := 0; slot < InodesPerBlock; slot++ {
			idx := int(blk)*InodesPerBlock + slot
			if idx >= len(s.inodes) {
				break
			}
			s.inodes[idx] = decodeInodeRecord(buf[slot*InodeRecordSize : (slot+1)*InodeRecordSize])
		}
	}
	return nil
}

func (s *Store) loadInodeBlocksLocked(dev io.ReaderAt, ino *Inode) error {
	for _, b := range ino.Direct {
		if err := s.loadBlockLocked(dev, b); err != nil {
			return err
		}
	}
	if ino.IndirectBlock != 0 {
		if err := s.loadBlockLocked(dev, ino.IndirectBlock); err != nil {
			return err
		}
		for _, b := range s.blockNumbers(ino.IndirectBlock) {
			if err := s.loadBlockLocked(dev, b); err != nil {
				return err
			}
		}
	}
	if ino.DoubleIndirectBlock != 0 {
		if err := s.loadBlockLocked(dev, ino.DoubleIndirectBlock); err != nil {
			return err
		}
		for _, l1 := range s.blockNumbers(ino.DoubleIndirectBlock) {
			if l1 == 0 {
				continue
			}
			if err := s.loadBlockLocked(dev, l1); err != nil {
				return err
			}
			for _, b := range s.blockNumbers(l1) {
				if err := s.loadBlockLocked(dev, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Store) loadBlockLocked(dev io.ReaderAt, blockNum uint32) error {
	if blockNum == 0 || int(blockNum) >= len(s.blocks) || s.blockBitmap[blockNum] {
		return nil
	}
	buf := make([]byte, BlockSize)
	off := int64(s.sb.DataBlocksStart+blockNum) * BlockSize
	if _, err := dev.ReadAt(buf, off); err != nil {
		return err
	}
	s.blocks[blockNum] = buf
	s.blockBitmap[blockNum] = true
	if s.sb.FreeBlocks > 0 {
		s.sb.FreeBlocks--
	}
	return nil
}
