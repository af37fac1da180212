package services

import (
	"context"
	"encoding/json"
	"testing"

	"huddle/internal/core/domain"
	"huddle/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSignalingFixture(t *testing.T) (*SignalingService, *fakePusher, *countingMetrics) {
	registry := memory.NewMemoryConnectionRegistry()
	pusher := newFakePusher()
	metrics := &countingMetrics{}
	svc := NewSignalingService(registry, pusher, metrics, zaptest.NewLogger(t).Sugar())

	ctx := context.Background()
	_, err := registry.Register(ctx, "c-alice", "alice")
	require.NoError(t, err)
	_, err = registry.Register(ctx, "c-bob", "bob")
	require.NoError(t, err)

	return svc, pusher, metrics
}

func TestSignalingService_RelayAnnotatesSender(t *testing.T) {
	svc, pusher, metrics := newSignalingFixture(t)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	err := svc.Relay(context.Background(), "c-alice", "bob", SignalData{Type: "offer", SDP: sdp})
	require.NoError(t, err)

	delivered := pusher.eventsTo("c-bob", EventSignal)
	require.Len(t, delivered, 1)

	payload := delivered[0].payload.(SignalForwardPayload)
	assert.Equal(t, domain.UserID("alice"), payload.UserID)
	assert.Equal(t, "offer", payload.Type)
	assert.JSONEq(t, string(sdp), string(payload.SDP))
	assert.Equal(t, 1, metrics.signalsRelayed)
}

func TestSignalingService_RelayCandidatePassesThroughOpaque(t *testing.T) {
	svc, pusher, _ := newSignalingFixture(t)

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54400 typ host","sdpMid":"0"}`)
	err := svc.Relay(context.Background(), "c-bob", "alice", SignalData{Candidate: candidate})
	require.NoError(t, err)

	delivered := pusher.eventsTo("c-alice", EventSignal)
	require.Len(t, delivered, 1)
	assert.JSONEq(t, string(candidate), string(delivered[0].payload.(SignalForwardPayload).Candidate))
}

func TestSignalingService_RelayRequiresAuthentication(t *testing.T) {
	svc, pusher, _ := newSignalingFixture(t)

	err := svc.Relay(context.Background(), "c-ghost", "bob", SignalData{Type: "offer"})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Empty(t, pusher.byEvent(EventSignal))
}

func TestSignalingService_RelayToOfflineTarget(t *testing.T) {
	svc, pusher, metrics := newSignalingFixture(t)

	err := svc.Relay(context.Background(), "c-alice", "nobody", SignalData{Type: "offer"})
	assert.ErrorIs(t, err, domain.ErrTargetUnavailable)
	assert.Empty(t, pusher.byEvent(EventSignal))
	assert.Equal(t, 0, metrics.signalsRelayed)
}

func TestSignalingService_DroppedTargetIsBestEffort(t *testing.T) {
	svc, pusher, metrics := newSignalingFixture(t)
	pusher.failFor("c-bob")

	err := svc.Relay(context.Background(), "c-alice", "bob", SignalData{Type: "offer"})
	assert.NoError(t, err)
	assert.Equal(t, 0, metrics.signalsRelayed)
}
