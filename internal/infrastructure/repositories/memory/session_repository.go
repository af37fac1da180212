package memory

import (
	"context"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type sessionKey struct {
	groupID domain.GroupID
	kind    domain.SessionKind
}

type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.CommunicationSession
	active   map[sessionKey]domain.SessionID
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.CommunicationSession),
		active:   make(map[sessionKey]domain.SessionID),
	}
}

func (r *MemorySessionRepository) FindActive(ctx context.Context, groupID domain.GroupID, kind domain.SessionKind) (*domain.CommunicationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[sessionKey{groupID, kind}]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session, ok := r.sessions[id]
	if !ok || !session.Active {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (r *MemorySessionRepository) Upsert(ctx context.Context, session *domain.CommunicationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey{session.GroupID, session.Kind}
	r.sessions[session.ID] = cloneSession(session)

	if session.Active {
		r.active[key] = session.ID
	} else if r.active[key] == session.ID {
		delete(r.active, key)
	}
	return nil
}

// cloneSession copies the record so callers never share participant maps
// with the store.
func cloneSession(s *domain.CommunicationSession) *domain.CommunicationSession {
	copied := *s
	copied.Participants = make(map[domain.UserID]domain.Participant, len(s.Participants))
	for id, p := range s.Participants {
		copied.Participants[id] = p
	}
	if s.MediaInfo != nil {
		mi := *s.MediaInfo
		copied.MediaInfo = &mi
	}
	return &copied
}
