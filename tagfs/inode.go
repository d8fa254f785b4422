package tagfs

// CreateInode allocates an inode (first empty slot, monotonic id),
// indexes tags against it, and grants ownerID the full capability
// bitmask with a private access scope until SetAccessScope widens it
// (§4.10).
func (s *Store) CreateInode(tags []Tag, ownerID, guildID uint64) (*Inode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := -1
	for i := range s.inodes {
		if !s.inodes[i].InUse {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ErrNoInodes
	}

	ino := &s.inodes[slot]
	*ino = Inode{
		ID:           s.nextInodeID,
		InUse:        true,
		OwnerID:      ownerID,
		GuildID:      guildID,
		Capabilities: uint32(CapAll),
		AccessScope:  ScopePrivate,
		Tags:         append([]Tag(nil), tags...),
	}
	s.nextInodeID++
	if s.sb.FreeInodes > 0 {
		s.sb.FreeInodes--
	}

	for _, t := range tags {
		s.indexAddLocked(t, ino.ID)
	}
	return ino, nil
}

// Inode returns the inode with id, or ErrInodeNotFound.
func (s *Store) Inode(id uint64) (*Inode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

func (s *Store) findLocked(id uint64) (*Inode, error) {
	for i := range s.inodes {
		if s.inodes[i].InUse && s.inodes[i].ID == id {
			return &s.inodes[i], nil
		}
	}
	return nil, ErrInodeNotFound
}

// FreeInode releases every block the inode owns (direct, single- and
// double-indirect) plus the indirect blocks themselves, removes it
// from the tag index, and clears the slot (§4.10).
func (s *Store) FreeInode(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ino, err := s.findLocked(id)
	if err != nil {
		return err
	}

	for _, b := range ino.Direct {
		if b != 0 {
			s.freeBlock(b)
		}
	}
	if ino.IndirectBlock != 0 {
		for _, b := range s.blockNumbers(ino.IndirectBlock) {
			if b != 0 {
				s.freeBlock(b)
			}
		}
		s.freeBlock(ino.IndirectBlock)
	}
	if ino.DoubleIndirectBlock != 0 {
		for _, l1 := range s.blockNumbers(ino.DoubleIndirectBlock) {
			if l1 == 0 {
				continue
			}
			for _, b := range s.blockNumbers(l1) {
				if b != 0 {
					s.freeBlock(b)
				}
			}
			s.freeBlock(l1)
		}
		s.freeBlock(ino.DoubleIndirectBlock)
	}

	for _, t := range ino.Tags {
		s.indexRemoveLocked(t, id)
	}

	*ino = Inode{}
	s.sb.FreeInodes++
	return nil
}

// AddTag indexes an additional tag against inode id (§4.10).
func (s *Store) AddTag(id uint64, t Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ino, err := s.findLocked(id)
	if err != nil {
		return err
	}
	for _, existing := range ino.Tags {
		if existing == t {
			return nil
		}
	}
	ino.Tags = append(ino.Tags, t)
	s.indexAddLocked(t, id)
	return nil
}

// RemoveTag un-indexes a tag from inode id, if present.
func (s *Store) RemoveTag(id uint64, t Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ino, err := s.findLocked(id)
	if err != nil {
		return err
	}
	for i, existing := range ino.Tags {
		if existing == t {
			ino.Tags = append(ino.Tags[:i], ino.Tags[i+1:]...)
			s.indexRemoveLocked(t, id)
			break
		}
	}
	return nil
}

// Tags returns a copy of inode id's tag list.
func (s *Store) Tags(id uint64) ([]Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ino, err := s.findLocked(id)
	if err != nil {
		return nil, err
	}
	return append([]Tag(nil), ino.Tags...), nil
}

// IndexRebuild clears and rescans the inode table, re-adding tags for
// every populated inode (§4.10's index_rebuild). Intended for recovery
// after a crash mid-write; a no-op on a freshly-formatted store.
func (s *Store) IndexRebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[tagKey]*indexEntry)
	for i := range s.inodes {
		if !s.inodes[i].InUse {
			continue
		}
		for _, t := range s.inodes[i].Tags {
			s.indexAddLocked(t, s.inodes[i].ID)
		}
	}
}
