package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/tracing"
	"huddle/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options carries the transport tunables from configuration.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	RateLimitEnabled    bool
	MessagesPerSecond   float64
	Burst               int
	MaxMessageSizeBytes int64

	JWTSecret      string
	AllowedOrigins []string
}

// Server is the websocket transport. It owns the connection lifecycle:
// upgrade, identity assignment, the read loop, event dispatch into the core
// services and cleanup on close.
type Server struct {
	hub       *Hub
	registry  ports.ConnectionRegistry
	groups    *services.GroupService
	signaling *services.SignalingService
	locations *services.LocationService
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(
	hub *Hub,
	registry ports.ConnectionRegistry,
	groups *services.GroupService,
	signaling *services.SignalingService,
	locations *services.LocationService,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	opts Options,
) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Server{
		hub:       hub,
		registry:  registry,
		groups:    groups,
		signaling: signaling,
		locations: locations,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients don't send an Origin header.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket upgrades the request and runs the connection until it
// closes. Each connection gets a fresh transport-level identity; user
// identity arrives either via a handshake token or an explicit authenticate
// event.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := domain.ConnectionID(uuid.NewString())
	s.hub.Add(connID, conn)
	s.metrics.SetConnections(s.hub.Count())
	s.logger.Infow("client connected", "connection_id", connID, "remote", r.RemoteAddr)

	ctx := r.Context()

	// A valid handshake token is an implicit authenticate.
	if token := r.URL.Query().Get("token"); token != "" && s.opts.JWTSecret != "" {
		if userID, terr := parseHandshakeToken(token, s.opts.JWTSecret); terr != nil {
			s.logger.Warnw("handshake token rejected", "connection_id", connID, "error", terr)
			s.sendError(connID, apperrors.NewInvalidInputError("invalid handshake token"))
		} else {
			s.authenticate(ctx, connID, userID)
		}
	}

	if s.opts.MaxMessageSizeBytes > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSizeBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.opts.RateLimitEnabled {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Message, 16)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go s.readPump(conn, messageChan, errorChan, done)

loop:
	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.sendError(connID, apperrors.NewInvalidInputError("message rate limit exceeded"))
				continue
			}
			s.handleMessage(ctx, connID, msg)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debugw("ping failed", "connection_id", connID, "error", err)
				break loop
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "connection_id", connID, "error", err)
			}
			break loop
		}
	}

	s.cleanup(connID)
}

// readPump feeds decoded frames to the connection's select loop. Once the
// loop stops consuming (the done channel closes), a full message channel
// must not strand the goroutine.
func (s *Server) readPump(conn *websocket.Conn, messages chan<- Message, errs chan<- error, done <-chan struct{}) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case errs <- err:
			case <-done:
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		select {
		case messages <- msg:
		case <-done:
			return
		}
	}
}

// cleanup tears the connection down in order: location state first, then
// group membership, which also removes the registry entry, then the hub.
func (s *Server) cleanup(connID domain.ConnectionID) {
	ctx := context.Background()

	s.locations.HandleDisconnect(ctx, connID)
	s.groups.HandleDisconnect(ctx, connID)
	s.hub.Remove(connID)
	s.metrics.SetConnections(s.hub.Count())
}

func (s *Server) handleMessage(ctx context.Context, connID domain.ConnectionID, msg Message) {
	if msg.Type == "" {
		s.sendError(connID, apperrors.NewInvalidInputError("message type is required"))
		return
	}

	ctx, span := tracing.TraceEvent(ctx, msg.Type, string(connID))
	defer span.End()

	s.metrics.EventDispatched(msg.Type)

	if err := s.dispatch(ctx, connID, msg); err != nil {
		tracing.RecordError(ctx, err)
		appErr := s.toAppError(err)
		s.logger.Infow("event failed",
			"connection_id", connID,
			"event", msg.Type,
			"code", appErr.Code,
			"error", err,
		)
		s.sendError(connID, appErr)
	}
}

func (s *Server) dispatch(ctx context.Context, connID domain.ConnectionID, msg Message) error {
	switch msg.Type {
	case EventAuthenticate:
		return s.handleAuthenticate(ctx, connID, msg.Payload)
	case EventJoinGroup:
		return s.handleJoinGroup(ctx, connID, msg.Payload)
	case EventLeaveGroup:
		return s.handleLeaveGroup(ctx, connID, msg.Payload)
	case EventSignal:
		return s.handleSignal(ctx, connID, msg.Payload)
	case EventToggleMicrophone:
		return s.handleToggleMicrophone(ctx, connID, msg.Payload)
	case EventStartMusicSharing:
		return s.handleStartMusicSharing(ctx, connID, msg.Payload)
	case EventStopMusicSharing:
		return s.handleStopMusicSharing(ctx, connID, msg.Payload)
	case EventStartTracking:
		return s.handleStartTracking(ctx, connID, msg.Payload)
	case EventUpdateLocation:
		return s.handleUpdateLocation(ctx, connID, msg.Payload)
	case EventStopTracking:
		return s.handleStopTracking(ctx, connID, msg.Payload)
	case EventSetProximitySettings:
		return s.handleSetProximitySettings(ctx, connID, msg.Payload)
	case EventGetGroupLocations:
		return s.handleGetGroupLocations(ctx, connID, msg.Payload)
	default:
		return apperrors.NewInvalidInputError("unknown message type: " + msg.Type)
	}
}

func (s *Server) handleAuthenticate(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p AuthenticatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid authenticate payload")
	}
	if err := validation.ValidateUserID(string(p.UserID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	s.authenticate(ctx, connID, p.UserID)
	return nil
}

// authenticate binds the connection to the user and supersedes any previous
// connection the user held. The evicted socket is closed; its own read loop
// performs the cleanup.
func (s *Server) authenticate(ctx context.Context, connID domain.ConnectionID, userID domain.UserID) {
	evicted, err := s.registry.Register(ctx, connID, userID)
	if err != nil {
		s.logger.Warnw("authenticate failed", "connection_id", connID, "user_id", userID, "error", err)
		s.sendError(connID, apperrors.NewInternalError("authentication failed"))
		return
	}
	if evicted != "" {
		s.logger.Infow("superseding previous connection", "user_id", userID, "evicted_connection_id", evicted)
		s.hub.Close(evicted)
	}

	s.logger.Infow("user authenticated", "connection_id", connID, "user_id", userID)
	if err := s.hub.Emit(connID, services.EventAuthenticated, AuthenticatedPayload{UserID: userID}); err != nil {
		s.logger.Debugw("authenticated reply failed", "connection_id", connID, "error", err)
	}
}

func (s *Server) handleJoinGroup(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p GroupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid join-group payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	result, err := s.groups.Join(ctx, connID, conn.UserID, p.GroupID)
	if err != nil {
		return err
	}

	if err := s.hub.Emit(connID, services.EventGroupJoined, groupJoinedReply(result)); err != nil {
		s.logger.Debugw("group-joined reply failed", "connection_id", connID, "error", err)
	}
	s.warnIfPersistenceFailed(connID, result.Warning)
	return nil
}

// groupJoinedReply builds the caller reply from a join result.
func groupJoinedReply(result *services.JoinResult) services.GroupJoinedPayload {
	participants := result.Participants
	if participants == nil {
		participants = []domain.UserID{}
	}
	return services.GroupJoinedPayload{
		GroupID:      result.GroupID,
		Participants: participants,
		SessionID:    result.SessionID,
	}
}

func (s *Server) handleLeaveGroup(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p GroupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid leave-group payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	warning, err := s.groups.Leave(ctx, connID, conn.UserID, p.GroupID)
	if err != nil {
		return err
	}
	s.warnIfPersistenceFailed(connID, warning)
	return nil
}

func (s *Server) handleSignal(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid signal payload")
	}
	if err := validation.ValidateUserID(string(p.TargetUserID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	err := s.signaling.Relay(ctx, connID, p.TargetUserID, services.SignalData{
		Type:      p.Type,
		SDP:       p.SDP,
		Candidate: p.Candidate,
	})
	if errors.Is(err, domain.ErrTargetUnavailable) {
		return apperrors.NewTargetUnavailableError(string(p.TargetUserID))
	}
	return err
}

func (s *Server) handleToggleMicrophone(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p ToggleMicrophonePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid toggle-microphone payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	warning, err := s.groups.ToggleMicrophone(ctx, connID, conn.UserID, p.GroupID, p.Muted)
	if err != nil {
		return err
	}
	s.warnIfPersistenceFailed(connID, warning)
	return nil
}

func (s *Server) handleStartMusicSharing(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p StartMusicSharingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid start-music-sharing payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	warning, err := s.groups.StartMusicSharing(ctx, connID, conn.UserID, p.GroupID, p.MediaInfo)
	if err != nil {
		return err
	}
	s.warnIfPersistenceFailed(connID, warning)
	return nil
}

func (s *Server) handleStopMusicSharing(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p GroupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid stop-music-sharing payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	warning, err := s.groups.StopMusicSharing(ctx, connID, conn.UserID, p.GroupID)
	if err != nil {
		return err
	}
	s.warnIfPersistenceFailed(connID, warning)
	return nil
}

func (s *Server) handleStartTracking(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p GroupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid start-tracking payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	settings := s.locations.StartTracking(ctx, connID, conn.UserID, p.GroupID)

	if err := s.hub.Emit(connID, services.EventTrackingStarted, services.TrackingStartedPayload{
		UserID:            conn.UserID,
		GroupID:           p.GroupID,
		Timestamp:         time.Now(),
		ProximitySettings: settings,
	}); err != nil {
		s.logger.Debugw("tracking-started reply failed", "connection_id", connID, "error", err)
	}
	return nil
}

func (s *Server) handleUpdateLocation(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p UpdateLocationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid update-location payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	coords, err := coordinatesFromWire(p.Coordinates)
	if err != nil {
		return err
	}

	warning, err := s.locations.UpdateLocation(ctx, conn.UserID, p.GroupID, coords)
	if err != nil {
		return err
	}
	s.warnIfPersistenceFailed(connID, warning)
	return nil
}

// coordinatesFromWire rejects payloads where latitude or longitude is
// absent. Zero is a legal coordinate, so absence has to be detected on the
// wire representation, not the value.
func coordinatesFromWire(p *CoordinatesPayload) (domain.Coordinates, error) {
	if p == nil || p.Latitude == nil || p.Longitude == nil {
		return domain.Coordinates{}, domain.ErrInvalidLocation
	}
	return domain.Coordinates{
		Latitude:  *p.Latitude,
		Longitude: *p.Longitude,
		Accuracy:  p.Accuracy,
		Altitude:  p.Altitude,
		Heading:   p.Heading,
		Speed:     p.Speed,
	}, nil
}

func (s *Server) handleStopTracking(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p GroupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid stop-tracking payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	s.locations.StopTracking(ctx, conn.UserID, p.GroupID)
	return nil
}

func (s *Server) handleSetProximitySettings(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p SetProximitySettingsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid set-proximity-settings payload")
	}

	if err := validation.ValidateProximityThreshold(p.Threshold); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	conn, err := s.registry.Get(ctx, connID)
	if err != nil {
		return err
	}

	settings := s.locations.SetProximitySettings(ctx, conn.UserID, p.Enabled, p.Threshold)

	if err := s.hub.Emit(connID, services.EventProximitySettingsUpdated, services.ProximitySettingsUpdatedPayload{
		UserID:    conn.UserID,
		Enabled:   settings.Enabled,
		Threshold: settings.Threshold,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Debugw("proximity-settings-updated reply failed", "connection_id", connID, "error", err)
	}
	return nil
}

func (s *Server) handleGetGroupLocations(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var p GroupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid get-group-locations payload")
	}
	if err := validation.ValidateGroupID(string(p.GroupID)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	if _, err := s.registry.Get(ctx, connID); err != nil {
		return err
	}

	snapshot := s.locations.GetGroupLocations(ctx, p.GroupID)
	entries := make([]services.GroupLocationEntry, 0, len(snapshot))
	for _, loc := range snapshot {
		entries = append(entries, services.GroupLocationEntry{
			UserID:      loc.UserID,
			Coordinates: loc.Coordinates,
			Timestamp:   loc.Timestamp,
		})
	}

	if err := s.hub.Emit(connID, services.EventGroupLocations, services.GroupLocationsPayload{
		GroupID:   p.GroupID,
		Locations: entries,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Debugw("group-locations reply failed", "connection_id", connID, "error", err)
	}
	return nil
}

// warnIfPersistenceFailed reports a non-fatal persistence warning to the
// caller. The in-memory state transition already happened.
func (s *Server) warnIfPersistenceFailed(connID domain.ConnectionID, warning error) {
	if warning == nil {
		return
	}
	s.sendError(connID, apperrors.NewPersistenceFailureError(warning))
}

// toAppError maps core errors onto wire error codes.
func (s *Server) toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return apperrors.NewNotAuthenticatedError()
	case errors.Is(err, domain.ErrTargetUnavailable):
		return apperrors.NewAppError(apperrors.ErrCodeTargetUnavailable, "target user not found or not connected")
	case errors.Is(err, domain.ErrInvalidLocation):
		return apperrors.NewInvalidLocationError()
	default:
		return apperrors.NewInternalError("internal error")
	}
}

func (s *Server) sendError(connID domain.ConnectionID, appErr *apperrors.AppError) {
	if err := s.hub.Emit(connID, services.EventError, ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	}); err != nil {
		s.logger.Debugw("error push failed", "connection_id", connID, "error", err)
	}
}
