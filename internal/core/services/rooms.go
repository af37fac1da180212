package services

import (
	"sync"

	"huddle/internal/core/domain"
)

// roomTable tracks which connections are currently in which room. Rooms are
// created lazily on first add and destroyed when the last member leaves.
type roomTable struct {
	rooms map[domain.GroupID]map[domain.ConnectionID]struct{}
	mu    sync.RWMutex
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms: make(map[domain.GroupID]map[domain.ConnectionID]struct{}),
	}
}

func (t *roomTable) Add(groupID domain.GroupID, connID domain.ConnectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[groupID]
	if !ok {
		room = make(map[domain.ConnectionID]struct{})
		t.rooms[groupID] = room
	}
	room[connID] = struct{}{}
}

// Remove drops the connection from the room and reports whether the room
// became empty (and was destroyed).
func (t *roomTable) Remove(groupID domain.GroupID, connID domain.ConnectionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[groupID]
	if !ok {
		return false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(t.rooms, groupID)
		return true
	}
	return false
}

func (t *roomTable) Contains(groupID domain.GroupID, connID domain.ConnectionID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.rooms[groupID][connID]
	return ok
}

// Members returns a snapshot of the room's connections.
func (t *roomTable) Members(groupID domain.GroupID) []domain.ConnectionID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.rooms[groupID]
	members := make([]domain.ConnectionID, 0, len(room))
	for connID := range room {
		members = append(members, connID)
	}
	return members
}

// MembersExcept returns a snapshot of the room's connections without exclude.
func (t *roomTable) MembersExcept(groupID domain.GroupID, exclude domain.ConnectionID) []domain.ConnectionID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.rooms[groupID]
	members := make([]domain.ConnectionID, 0, len(room))
	for connID := range room {
		if connID != exclude {
			members = append(members, connID)
		}
	}
	return members
}

func (t *roomTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rooms)
}

// keyedMutex serializes operations on the same key while letting distinct
// keys proceed concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
