package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupService owns group room membership and keeps the durable
// communication session consistent with it. Room membership is the live
// truth; the persisted session may lag behind it when the store misbehaves.
type GroupService struct {
	registry ports.ConnectionRegistry
	sessions ports.SessionRepository
	pusher   ports.EventPusher
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	rooms *roomTable
	// Serializes the load-modify-persist cycle per (group, kind) so that
	// concurrent joins cannot create two active sessions. Room state is
	// never mutated while this is held.
	sessionLocks *keyedMutex
}

func NewGroupService(
	registry ports.ConnectionRegistry,
	sessions ports.SessionRepository,
	pusher ports.EventPusher,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *GroupService {
	return &GroupService{
		registry:     registry,
		sessions:     sessions,
		pusher:       pusher,
		metrics:      metrics,
		logger:       logger,
		rooms:        newRoomTable(),
		sessionLocks: newKeyedMutex(),
	}
}

// JoinResult is returned to the transport so it can reply with group-joined.
type JoinResult struct {
	GroupID      domain.GroupID
	Participants []domain.UserID
	SessionID    domain.SessionID
	// Warning carries a non-fatal persistence failure; the in-memory join
	// already happened.
	Warning error
}

// Join moves the connection into the group room and upserts the caller into
// the active audio session, creating one if needed.
func (s *GroupService) Join(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, groupID domain.GroupID) (*JoinResult, error) {
	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return nil, err
	}

	// Switching groups implies leaving the previous one, otherwise the old
	// room would hold the connection until process exit.
	if conn.GroupID != "" && conn.GroupID != groupID {
		if _, err := s.Leave(ctx, connID, conn.UserID, conn.GroupID); err != nil {
			s.logger.Warnw("implicit leave failed", "connection_id", connID, "group_id", conn.GroupID, "error", err)
		}
	}

	if err := s.registry.SetGroup(ctx, connID, groupID); err != nil {
		return nil, err
	}
	s.rooms.Add(groupID, connID)
	s.metrics.SetRooms(s.rooms.Len())

	now := time.Now()

	others := s.rooms.MembersExcept(groupID, connID)
	participants := s.resolveUsers(ctx, others)

	session, warning := s.upsertSession(ctx, groupID, domain.SessionAudio, func(session *domain.CommunicationSession) {
		session.UpsertParticipant(userID, now)
	})

	s.pusher.EmitEach(others, EventUserJoined, UserJoinedPayload{
		UserID:    userID,
		Timestamp: now,
	})

	s.logger.Infow("user joined group", "user_id", userID, "group_id", groupID)

	result := &JoinResult{
		GroupID:      groupID,
		Participants: participants,
		Warning:      warning,
	}
	if session != nil {
		result.SessionID = session.ID
	}
	return result, nil
}

// Leave removes the connection from the room and marks the participant gone
// in the active audio session. A leave for a group the connection never
// joined (stale or duplicate event) is a no-op.
func (s *GroupService) Leave(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, groupID domain.GroupID) (warning error, err error) {
	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	if !conn.InGroup(groupID) {
		return nil, nil
	}

	if err := s.registry.SetGroup(ctx, connID, ""); err != nil {
		return nil, err
	}
	s.rooms.Remove(groupID, connID)
	s.metrics.SetRooms(s.rooms.Len())

	now := time.Now()

	warning = s.closeParticipant(ctx, groupID, userID, now)

	remaining := s.rooms.Members(groupID)
	s.pusher.EmitEach(remaining, EventUserLeft, UserLeftPayload{
		UserID:    userID,
		Timestamp: now,
	})

	s.logger.Infow("user left group", "user_id", userID, "group_id", groupID)
	return warning, nil
}

// ToggleMicrophone updates the caller's muted flag in the active audio
// session and tells the rest of the room. No-op unless the connection is
// tracked in the given group.
func (s *GroupService) ToggleMicrophone(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, groupID domain.GroupID, muted bool) (warning error, err error) {
	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	if !conn.InGroup(groupID) {
		return nil, nil
	}

	unlock := s.sessionLocks.Lock(sessionLockKey(groupID, domain.SessionAudio))
	session, ferr := s.sessions.FindActive(ctx, groupID, domain.SessionAudio)
	if ferr == nil {
		session.SetMuted(userID, muted)
		if perr := s.sessions.Upsert(ctx, session); perr != nil {
			warning = perr
		}
	} else if !errors.Is(ferr, domain.ErrSessionNotFound) {
		warning = ferr
	}
	unlock()

	if warning != nil {
		s.metrics.PersistenceFailure()
	}

	s.pusher.EmitEach(s.rooms.MembersExcept(groupID, connID), EventMicrophoneToggled, MicrophoneToggledPayload{
		UserID:    userID,
		Muted:     muted,
		Timestamp: time.Now(),
	})
	return warning, nil
}

// StartMusicSharing finds or creates the active music session for the group,
// replaces its media descriptor and announces it to the entire room,
// including the caller.
func (s *GroupService) StartMusicSharing(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, groupID domain.GroupID, media domain.MediaInfo) (warning error, err error) {
	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	if !conn.InGroup(groupID) {
		return nil, nil
	}

	now := time.Now()
	session, warning := s.upsertSession(ctx, groupID, domain.SessionMusic, func(session *domain.CommunicationSession) {
		mi := media
		session.MediaInfo = &mi
		session.UpsertParticipant(userID, now)
	})

	payload := MusicSharingStartedPayload{
		UserID:    userID,
		MediaInfo: media,
		Timestamp: now,
	}
	if session != nil {
		payload.SessionID = session.ID
	}
	s.pusher.EmitEach(s.rooms.Members(groupID), EventMusicSharingStarted, payload)

	s.logger.Infow("music sharing started", "user_id", userID, "group_id", groupID)
	return warning, nil
}

// StopMusicSharing ends the active music session, if any, and announces it
// to the entire room.
func (s *GroupService) StopMusicSharing(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, groupID domain.GroupID) (warning error, err error) {
	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	if !conn.InGroup(groupID) {
		return nil, nil
	}

	now := time.Now()

	unlock := s.sessionLocks.Lock(sessionLockKey(groupID, domain.SessionMusic))
	session, ferr := s.sessions.FindActive(ctx, groupID, domain.SessionMusic)
	if ferr == nil {
		session.End(now)
		if perr := s.sessions.Upsert(ctx, session); perr != nil {
			warning = perr
		}
	} else if !errors.Is(ferr, domain.ErrSessionNotFound) {
		warning = ferr
	}
	unlock()

	if warning != nil {
		s.metrics.PersistenceFailure()
	}

	if ferr == nil {
		s.pusher.EmitEach(s.rooms.Members(groupID), EventMusicSharingStopped, MusicSharingStoppedPayload{
			UserID:    userID,
			Timestamp: now,
		})
		s.logger.Infow("music sharing stopped", "user_id", userID, "group_id", groupID)
	}
	return warning, nil
}

// HandleDisconnect performs the leave steps for whatever group the
// connection was in, then drops it from the registry.
func (s *GroupService) HandleDisconnect(ctx context.Context, connID domain.ConnectionID) {
	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return
	}

	if conn.GroupID != "" {
		if _, err := s.Leave(ctx, connID, conn.UserID, conn.GroupID); err != nil {
			s.logger.Warnw("leave on disconnect failed", "connection_id", connID, "error", err)
		}
	}

	if _, err := s.registry.Remove(ctx, connID); err != nil && !errors.Is(err, domain.ErrConnectionNotFound) {
		s.logger.Warnw("registry remove failed", "connection_id", connID, "error", err)
	}
	s.logger.Infow("user disconnected", "connection_id", connID, "user_id", conn.UserID)
}

// RoomCount returns the number of live rooms, for the status surface.
func (s *GroupService) RoomCount() int {
	return s.rooms.Len()
}

// upsertSession runs the find-or-create-modify-persist cycle for the active
// session of (group, kind) under the per-key session lock. The returned
// session reflects the in-memory transition even when persistence failed;
// the error is the non-fatal warning.
func (s *GroupService) upsertSession(ctx context.Context, groupID domain.GroupID, kind domain.SessionKind, mutate func(*domain.CommunicationSession)) (*domain.CommunicationSession, error) {
	unlock := s.sessionLocks.Lock(sessionLockKey(groupID, kind))
	defer unlock()

	session, err := s.sessions.FindActive(ctx, groupID, kind)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.metrics.PersistenceFailure()
			return nil, err
		}
		session = &domain.CommunicationSession{
			ID:           domain.SessionID(uuid.NewString()),
			GroupID:      groupID,
			Kind:         kind,
			StartedAt:    time.Now(),
			Active:       true,
			Participants: make(map[domain.UserID]domain.Participant),
		}
	}

	mutate(session)

	if err := s.sessions.Upsert(ctx, session); err != nil {
		s.metrics.PersistenceFailure()
		return session, err
	}
	return session, nil
}

// closeParticipant marks the user gone in the active audio session and ends
// the session when nobody active remains.
func (s *GroupService) closeParticipant(ctx context.Context, groupID domain.GroupID, userID domain.UserID, at time.Time) error {
	unlock := s.sessionLocks.Lock(sessionLockKey(groupID, domain.SessionAudio))
	defer unlock()

	session, err := s.sessions.FindActive(ctx, groupID, domain.SessionAudio)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		s.metrics.PersistenceFailure()
		return err
	}

	if stillActive := session.MarkLeft(userID, at); !stillActive {
		session.End(at)
	}

	if err := s.sessions.Upsert(ctx, session); err != nil {
		s.metrics.PersistenceFailure()
		return err
	}
	return nil
}

// resolveUsers maps room connections back to user identities, skipping
// connections that vanished in between.
func (s *GroupService) resolveUsers(ctx context.Context, connIDs []domain.ConnectionID) []domain.UserID {
	users := make([]domain.UserID, 0, len(connIDs))
	for _, connID := range connIDs {
		conn, err := s.registry.Get(ctx, connID)
		if err != nil {
			continue
		}
		users = append(users, conn.UserID)
	}
	return users
}

func sessionLockKey(groupID domain.GroupID, kind domain.SessionKind) string {
	return fmt.Sprintf("%s:%s", groupID, kind)
}
