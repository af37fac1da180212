package memory

import (
	"context"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type MemoryConnectionRegistry struct {
	conns  map[domain.ConnectionID]*domain.Connection
	byUser map[domain.UserID]domain.ConnectionID
	mu     sync.RWMutex
}

func NewMemoryConnectionRegistry() ports.ConnectionRegistry {
	return &MemoryConnectionRegistry{
		conns:  make(map[domain.ConnectionID]*domain.Connection),
		byUser: make(map[domain.UserID]domain.ConnectionID),
	}
}

func (r *MemoryConnectionRegistry) Register(ctx context.Context, connID domain.ConnectionID, userID domain.UserID) (domain.ConnectionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted domain.ConnectionID
	if prev, ok := r.byUser[userID]; ok && prev != connID {
		// One live connection per user: the newest authenticate wins for
		// lookups. The superseded record stays until that socket's own
		// disconnect runs Leave and Remove; deleting it here would strand
		// the dead connection in its room.
		evicted = prev
	}

	if existing, ok := r.conns[connID]; ok {
		if existing.UserID != userID {
			delete(r.byUser, existing.UserID)
			existing.UserID = userID
		}
	} else {
		r.conns[connID] = &domain.Connection{ID: connID, UserID: userID}
	}
	r.byUser[userID] = connID

	return evicted, nil
}

func (r *MemoryConnectionRegistry) SetGroup(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return domain.ErrNotAuthenticated
	}
	conn.GroupID = groupID
	return nil
}

func (r *MemoryConnectionRegistry) Get(ctx context.Context, connID domain.ConnectionID) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}
	copied := *conn
	return &copied, nil
}

func (r *MemoryConnectionRegistry) LookupByUser(ctx context.Context, userID domain.UserID) (domain.ConnectionID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return "", domain.ErrTargetUnavailable
	}
	return connID, nil
}

func (r *MemoryConnectionRegistry) Remove(ctx context.Context, connID domain.ConnectionID) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	delete(r.conns, connID)
	// The user mapping may already point at a superseding connection.
	if r.byUser[conn.UserID] == connID {
		delete(r.byUser, conn.UserID)
	}
	copied := *conn
	return &copied, nil
}
