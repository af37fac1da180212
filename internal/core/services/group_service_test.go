package services

import (
	"context"
	"testing"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type groupFixture struct {
	svc      *GroupService
	registry ports.ConnectionRegistry
	sessions ports.SessionRepository
	pusher   *fakePusher
	metrics  *countingMetrics
}

func newGroupFixture(t *testing.T) *groupFixture {
	registry := memory.NewMemoryConnectionRegistry()
	sessions := memory.NewMemorySessionRepository()
	pusher := newFakePusher()
	metrics := &countingMetrics{}
	svc := NewGroupService(registry, sessions, pusher, metrics, zaptest.NewLogger(t).Sugar())
	return &groupFixture{svc: svc, registry: registry, sessions: sessions, pusher: pusher, metrics: metrics}
}

func (f *groupFixture) authenticate(t *testing.T, connID domain.ConnectionID, userID domain.UserID) {
	t.Helper()
	_, err := f.registry.Register(context.Background(), connID, userID)
	require.NoError(t, err)
}

func TestGroupService_FirstJoinCreatesActiveSession(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")

	result, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	require.NoError(t, result.Warning)

	assert.Equal(t, domain.GroupID("g1"), result.GroupID)
	assert.Empty(t, result.Participants)
	assert.NotEmpty(t, result.SessionID)

	session, err := f.sessions.FindActive(ctx, "g1", domain.SessionAudio)
	require.NoError(t, err)
	assert.True(t, session.Active)
	assert.Len(t, session.Participants, 1)
	assert.True(t, session.Participants["alice"].Active)

	// Nobody else was in the room, so no user-joined push.
	assert.Empty(t, f.pusher.byEvent(EventUserJoined))
}

func TestGroupService_SecondJoinSeesExistingParticipants(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	first, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)

	second, err := f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)

	assert.Equal(t, []domain.UserID{"alice"}, second.Participants)
	assert.Equal(t, first.SessionID, second.SessionID)

	joined := f.pusher.eventsTo("c1", EventUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, domain.UserID("bob"), joined[0].payload.(UserJoinedPayload).UserID)

	session, err := f.sessions.FindActive(ctx, "g1", domain.SessionAudio)
	require.NoError(t, err)
	assert.Len(t, session.Participants, 2)
}

func TestGroupService_JoinRequiresAuthentication(t *testing.T) {
	f := newGroupFixture(t)

	_, err := f.svc.Join(context.Background(), "ghost", "alice", "g1")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestGroupService_LeaveNotifiesRemaining(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	warning, err := f.svc.Leave(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	require.NoError(t, warning)

	left := f.pusher.eventsTo("c2", EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID("alice"), left[0].payload.(UserLeftPayload).UserID)

	// One active participant remains, the session stays alive.
	session, err := f.sessions.FindActive(ctx, "g1", domain.SessionAudio)
	require.NoError(t, err)
	assert.False(t, session.Participants["alice"].Active)
	require.NotNil(t, session.Participants["alice"].LeftAt)
	assert.True(t, session.Participants["bob"].Active)
}

func TestGroupService_LastLeaveEndsSession(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)

	warning, err := f.svc.Leave(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	require.NoError(t, warning)

	_, err = f.sessions.FindActive(ctx, "g1", domain.SessionAudio)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestGroupService_StaleLeaveIsNoOp(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")

	warning, err := f.svc.Leave(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	require.NoError(t, warning)
	assert.Empty(t, f.pusher.byEvent(EventUserLeft))
}

func TestGroupService_RejoinAfterLeaveStartsFreshSession(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")

	first, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Leave(ctx, "c1", "alice", "g1")
	require.NoError(t, err)

	second, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestGroupService_ToggleMicrophonePersistsAndBroadcasts(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	warning, err := f.svc.ToggleMicrophone(ctx, "c1", "alice", "g1", true)
	require.NoError(t, err)
	require.NoError(t, warning)

	session, err := f.sessions.FindActive(ctx, "g1", domain.SessionAudio)
	require.NoError(t, err)
	assert.True(t, session.Participants["alice"].Muted)

	toggled := f.pusher.eventsTo("c2", EventMicrophoneToggled)
	require.Len(t, toggled, 1)
	payload := toggled[0].payload.(MicrophoneToggledPayload)
	assert.Equal(t, domain.UserID("alice"), payload.UserID)
	assert.True(t, payload.Muted)

	// The caller learns about their own toggle from the local UI, not the
	// room broadcast.
	assert.Empty(t, f.pusher.eventsTo("c1", EventMicrophoneToggled))
}

func TestGroupService_MusicSharingLifecycle(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	warning, err := f.svc.StartMusicSharing(ctx, "c1", "alice", "g1", domain.MediaInfo{Source: "spotify", TrackID: "t-1"})
	require.NoError(t, err)
	require.NoError(t, warning)

	music, err := f.sessions.FindActive(ctx, "g1", domain.SessionMusic)
	require.NoError(t, err)
	require.NotNil(t, music.MediaInfo)
	assert.Equal(t, "t-1", music.MediaInfo.TrackID)

	// Both room members, caller included, hear about the share.
	assert.Len(t, f.pusher.byEvent(EventMusicSharingStarted), 2)

	// A second start replaces the descriptor on the same session.
	_, err = f.svc.StartMusicSharing(ctx, "c2", "bob", "g1", domain.MediaInfo{Source: "spotify", TrackID: "t-2"})
	require.NoError(t, err)

	replaced, err := f.sessions.FindActive(ctx, "g1", domain.SessionMusic)
	require.NoError(t, err)
	assert.Equal(t, music.ID, replaced.ID)
	assert.Equal(t, "t-2", replaced.MediaInfo.TrackID)

	f.pusher.reset()
	warning, err = f.svc.StopMusicSharing(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	require.NoError(t, warning)

	_, err = f.sessions.FindActive(ctx, "g1", domain.SessionMusic)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Len(t, f.pusher.byEvent(EventMusicSharingStopped), 2)
}

func TestGroupService_StopMusicWithoutSessionStaysQuiet(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	warning, err := f.svc.StopMusicSharing(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	require.NoError(t, warning)
	assert.Empty(t, f.pusher.byEvent(EventMusicSharingStopped))
}

func TestGroupService_PersistenceFailureIsNonFatal(t *testing.T) {
	registry := memory.NewMemoryConnectionRegistry()
	sessions := &failingSessionRepo{memory.NewMemorySessionRepository()}
	pusher := newFakePusher()
	metrics := &countingMetrics{}
	svc := NewGroupService(registry, sessions, pusher, metrics, zaptest.NewLogger(t).Sugar())

	ctx := context.Background()
	_, err := registry.Register(ctx, "c1", "alice")
	require.NoError(t, err)

	result, err := svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	assert.Error(t, result.Warning)
	assert.Equal(t, 1, svc.RoomCount())
	assert.Equal(t, 1, metrics.persistenceFailures)
}

func TestGroupService_HandleDisconnectLeavesAndDeregisters(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	f.svc.HandleDisconnect(ctx, "c1")

	left := f.pusher.eventsTo("c2", EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID("alice"), left[0].payload.(UserLeftPayload).UserID)

	_, err = f.registry.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestGroupService_EvictedConnectionDisconnectClearsRoom(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	// Alice reconnects; the transport closes the superseded socket and its
	// read loop runs the ordinary disconnect chain.
	evicted, err := f.registry.Register(ctx, "c3", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionID("c1"), evicted)

	f.svc.HandleDisconnect(ctx, "c1")

	assert.ElementsMatch(t, []domain.ConnectionID{"c2"}, f.svc.rooms.Members("g1"))

	left := f.pusher.eventsTo("c2", EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID("alice"), left[0].payload.(UserLeftPayload).UserID)

	// The reconnected socket keeps the user mapping.
	connID, err := f.registry.LookupByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionID("c3"), connID)
}

func TestGroupService_SwitchingGroupsLeavesPreviousRoom(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()
	f.authenticate(t, "c1", "alice")
	f.authenticate(t, "c2", "bob")

	_, err := f.svc.Join(ctx, "c1", "alice", "g1")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "c2", "bob", "g1")
	require.NoError(t, err)
	f.pusher.reset()

	result, err := f.svc.Join(ctx, "c1", "alice", "g2")
	require.NoError(t, err)
	assert.Empty(t, result.Participants)

	assert.ElementsMatch(t, []domain.ConnectionID{"c2"}, f.svc.rooms.Members("g1"))
	assert.ElementsMatch(t, []domain.ConnectionID{"c1"}, f.svc.rooms.Members("g2"))

	left := f.pusher.eventsTo("c2", EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID("alice"), left[0].payload.(UserLeftPayload).UserID)

	// The old room's audio session no longer counts alice as active.
	session, err := f.sessions.FindActive(ctx, "g1", domain.SessionAudio)
	require.NoError(t, err)
	assert.False(t, session.Participants["alice"].Active)
}
