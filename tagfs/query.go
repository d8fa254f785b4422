package tagfs

func (s *Store) indexAddLocked(t Tag, inodeID uint64) {
	k := tagKey{t.Key, t.Value}
	e, ok := s.index[k]
	if !ok {
		e = &indexEntry{inodeIDs: make([]uint64, 0, 4)}
		s.index[k] = e
	}
	for _, id := range e.inodeIDs {
		if id == inodeID {
			return
		}
	}
	e.inodeIDs = append(e.inodeIDs, inodeID) // append doubles capacity on overflow
}

func (s *Store) indexRemoveLocked(t Tag, inodeID uint64) {
	k := tagKey{t.Key, t.Value}
	e, ok := s.index[k]
	if !ok {
		return
	}
	for i, id := range e.inodeIDs {
		if id == inodeID {
			e.inodeIDs = append(e.inodeIDs[:i], e.inodeIDs[i+1:]...)
			break
		}
	}
	if len(e.inodeIDs) == 0 {
		delete(s.index, k)
	}
}

// Query returns the ids of every inode tagged with all of tags (AND),
// or with any of tags when matchAny is true (OR) (§4.10, mirroring
// file_query's wire payload). When the store has a user_context set
// (SetContext), results are additionally filtered to inodes carrying
// every context tag — the context is an AND-filter layered on top of
// whichever match mode the caller picked.
func (s *Store) Query(tags []Tag, matchAny bool) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tags) == 0 {
		return nil
	}

	sets := make([][]uint64, 0, len(tags))
	for _, t := range tags {
		e, ok := s.index[tagKey{t.Key, t.Value}]
		if !ok {
			if matchAny {
				continue
			}
			return nil // AND against a tag with no matches is always empty
		}
		sets = append(sets, e.inodeIDs)
	}

	var ids []uint64
	if matchAny {
		ids = unionAll(sets)
	} else {
		ids = intersectAll(sets)
	}
	if len(s.context) == 0 {
		return ids
	}

	filtered := make([]uint64, 0, len(ids))
	for _, id := range ids {
		ino, err := s.findLocked(id)
		if err != nil || !s.contextMatchesLocked(ino) {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

func unionAll(sets [][]uint64) []uint64 {
	seen := make(map[uint64]bool)
	var out []uint64
	for _, set := range sets {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func intersectAll(sets [][]uint64) []uint64 {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[uint64]int)
	for _, set := range sets {
		marked := make(map[uint64]bool, len(set))
		for _, id := range set {
			if !marked[id] {
				marked[id] = true
				counts[id]++
			}
		}
	}
	var out []uint64
	for id, c := range counts {
		if c == len(sets) {
			out = append(out, id)
		}
	}
	return out
}
