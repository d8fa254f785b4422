package tagfs

// blockFor returns the physical block number backing logical block i
// of ino, allocating it (and any indirect blocks on the path to it) if
// alloc is true and it is currently sparse (§4.10's addressing rules).
func (s *Store) blockFor(ino *Inode, i int, alloc bool) (uint32, error) {
	switch {
	case i < DirectPointers:
		if ino.Direct[i] == 0 && alloc {
			b, err := s.allocBlock()
			if err != nil {
				return 0, err
			}
			ino.Direct[i] = b
		}
		return ino.Direct[i], nil

	case i < DirectPointers+PtrsPerBlock:
		if ino.IndirectBlock == 0 {
			if !alloc {
				return 0, nil
			}
			b, err := s.allocBlock()
			if err != nil {
				return 0, err
			}
			ino.IndirectBlock = b
		}
		idx := i - DirectPointers
		nums := s.blockNumbers(ino.IndirectBlock)
		if nums[idx] == 0 && alloc {
			b, err := s.allocBlock()
			if err != nil {
				return 0, err
			}
			s.setBlockNumber(ino.IndirectBlock, idx, b)
			return b, nil
		}
		return nums[idx], nil

	case i < DirectPointers+PtrsPerBlock+PtrsPerBlock*PtrsPerBlock:
		if ino.DoubleIndirectBlock == 0 {
			if !alloc {
				return 0, nil
			}
			b, err := s.allocBlock()
			if err != nil {
				return 0, err
			}
			ino.DoubleIndirectBlock = b
		}
		e2 := i - DirectPointers - PtrsPerBlock
		l1idx, l2idx := e2/PtrsPerBlock, e2%PtrsPerBlock

		l1nums := s.blockNumbers(ino.DoubleIndirectBlock)
		l1block := l1nums[l1idx]
		if l1block == 0 {
			if !alloc {
				return 0, nil
			}
			b, err := s.allocBlock()
			if err != nil {
				return 0, err
			}
			s.setBlockNumber(ino.DoubleIndirectBlock, l1idx, b)
			l1block = b
		}
		l2nums := s.blockNumbers(l1block)
		if l2nums[l2idx] == 0 && alloc {
			b, err := s.allocBlock()
			if err != nil {
				return 0, err
			}
			s.setBlockNumber(l1block, l2idx, b)
			return b, nil
		}
		return l2nums[l2idx], nil

	default:
		return 0, ErrFileTooBig
	}
}

// Read walks ino's logical blocks from offset for up to length bytes,
// zero-filling sparse ranges and short-reading at EOF (§4.10).
func (s *Store) Read(id uint64, offset uint64, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ino, err := s.findLocked(id)
	if err != nil {
		return nil, err
	}
	if offset >= ino.Size {
		return nil, nil
	}
	if uint64(length) > ino.Size-offset {
		length = int(ino.Size - offset)
	}

	out := make([]byte, length)
	read := 0
	for read < length {
		logical := int((offset + uint64(read)) / BlockSize)
		within := int((offset + uint64(read)) % BlockSize)
		n := BlockSize - within
		if n > length-read {
			n = length - read
		}

		blockNum, err := s.blockFor(ino, logical, false)
		if err != nil {
			return nil, err
		}
		if blockNum == 0 {
			// sparse: leave zeros
		} else {
			copy(out[read:read+n], s.blocks[blockNum][within:within+n])
		}
		read += n
	}
	return out, nil
}

// Write copies data into ino starting at offset, lazily allocating any
// missing blocks and extending size monotonically (§4.10).
func (s *Store) Write(id uint64, offset uint64, data []byte, now uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ino, err := s.findLocked(id)
	if err != nil {
		return 0, err
	}

	written := 0
	for written < len(data) {
		logical := int((offset + uint64(written)) / BlockSize)
		within := int((offset + uint64(written)) % BlockSize)
		n := BlockSize - within
		if n > len(data)-written {
			n = len(data) - written
		}

		blockNum, err := s.blockFor(ino, logical, true)
		if err != nil {
			return written, err
		}
		copy(s.blocks[blockNum][within:within+n], data[written:written+n])
		written += n
	}

	if end := offset + uint64(written); end > ino.Size {
		ino.Size = end
	}
	ino.ModificationTime = now
	return written, nil
}
