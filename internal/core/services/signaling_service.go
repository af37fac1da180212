package services

import (
	"context"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"go.uber.org/zap"
)

// SignalingService forwards opaque call-setup payloads between two live
// connections. It is stateless: no persistence, no retry.
type SignalingService struct {
	registry ports.ConnectionRegistry
	pusher   ports.EventPusher
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
}

func NewSignalingService(
	registry ports.ConnectionRegistry,
	pusher ports.EventPusher,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *SignalingService {
	return &SignalingService{
		registry: registry,
		pusher:   pusher,
		metrics:  metrics,
		logger:   logger,
	}
}

// Relay delivers the payload, annotated with the sender's user identity, to
// the target user's live connection. ErrNotAuthenticated when the sender
// never authenticated; ErrTargetUnavailable when the target has no live
// connection. Both are reported to the sender only.
func (s *SignalingService) Relay(ctx context.Context, fromConnID domain.ConnectionID, targetUserID domain.UserID, data SignalData) error {
	sender, err := s.registry.Get(ctx, fromConnID)
	if err != nil {
		return err
	}

	targetConnID, err := s.registry.LookupByUser(ctx, targetUserID)
	if err != nil {
		return err
	}

	if err := s.pusher.Emit(targetConnID, EventSignal, SignalForwardPayload{
		UserID:    sender.UserID,
		Type:      data.Type,
		SDP:       data.SDP,
		Candidate: data.Candidate,
	}); err != nil {
		// Best effort: the target dropped mid-relay.
		s.logger.Debugw("signal delivery failed",
			"from_user", sender.UserID,
			"target_user", targetUserID,
			"error", err,
		)
		return nil
	}

	s.metrics.SignalRelayed()
	s.logger.Debugw("signal relayed",
		"from_user", sender.UserID,
		"target_user", targetUserID,
		"signal_type", data.Type,
	)
	return nil
}
