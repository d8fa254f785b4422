package task

import (
	"errors"
	"sync"
)

var (
	ErrGroupNotFound  = errors.New("task: group not found")
	ErrGroupLimit     = errors.New("task: group table full")
	ErrGroupMemberCap = errors.New("task: group member list full")
)

// MaxGroups and MaxGroupMembers bound the flat group table (§4.8).
const (
	MaxGroups       = 256
	MaxGroupMembers = 128
)

// Group is a flat group descriptor with a fixed task id list.
type Group struct {
	ID        uint64
	MemberIDs []uint64
	MemLimit  uint64
}

// GroupTable is the array of group descriptors ops create/add/remove/
// set-memory-limit/broadcast operate on (§4.8).
type GroupTable struct {
	mu     sync.Mutex
	groups map[uint64]*Group
	nextID uint64
}

// NewGroupTable builds an empty group table. Group ids start at 1.
func NewGroupTable() *GroupTable {
	return &GroupTable{groups: make(map[uint64]*Group), nextID: 1}
}

// Create allocates a new, empty group.
func (g *GroupTable) Create() (*Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.groups) >= MaxGroups {
		return nil, ErrGroupLimit
	}
	grp := &Group{ID: g.nextID}
	g.nextID++
	g.groups[grp.ID] = grp
	return grp, nil
}

// Add appends taskID to groupID's member list.
func (g *GroupTable) Add(groupID, taskID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if len(grp.MemberIDs) >= MaxGroupMembers {
		return ErrGroupMemberCap
	}
	for _, id := range grp.MemberIDs {
		if id == taskID {
			return nil
		}
	}
	grp.MemberIDs = append(grp.MemberIDs, taskID)
	return nil
}

// Remove deletes taskID from groupID's member list, if present.
func (g *GroupTable) Remove(groupID, taskID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	for i, id := range grp.MemberIDs {
		if id == taskID {
			grp.MemberIDs = append(grp.MemberIDs[:i], grp.MemberIDs[i+1:]...)
			return nil
		}
	}
	return nil
}

// SetMemLimit sets groupID's memory limit.
func (g *GroupTable) SetMemLimit(groupID, limit uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	grp.MemLimit = limit
	return nil
}

// Members returns a snapshot of groupID's member task ids, for the
// Operations deck to fan a broadcast out to via package ipc.
func (g *GroupTable) Members(groupID uint64) ([]uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	out := make([]uint64, len(grp.MemberIDs))
	copy(out, grp.MemberIDs)
	return out, nil
}
