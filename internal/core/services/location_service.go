package services

import (
	"context"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/geo"

	"go.uber.org/zap"
)

// LocationService ingests position updates, persists them to the append-only
// location log, broadcasts them to the group's location room and evaluates
// pairwise proximity. Its user-to-connection map is deliberately separate
// from the general connection registry: a user can share audio without
// sharing position.
type LocationService struct {
	locations ports.LocationRepository
	pusher    ports.EventPusher
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	defaultThreshold float64

	mu        sync.RWMutex
	userConns map[domain.UserID]domain.ConnectionID
	connUsers map[domain.ConnectionID]domain.UserID
	latest    map[domain.UserID]*domain.UserLocation
	settings  map[domain.UserID]domain.ProximitySettings

	rooms *roomTable
}

func NewLocationService(
	locations ports.LocationRepository,
	pusher ports.EventPusher,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	defaultThreshold float64,
) *LocationService {
	if defaultThreshold <= 0 {
		defaultThreshold = domain.DefaultProximityThreshold
	}
	return &LocationService{
		locations:        locations,
		pusher:           pusher,
		metrics:          metrics,
		logger:           logger,
		defaultThreshold: defaultThreshold,
		userConns:        make(map[domain.UserID]domain.ConnectionID),
		connUsers:        make(map[domain.ConnectionID]domain.UserID),
		latest:           make(map[domain.UserID]*domain.UserLocation),
		settings:         make(map[domain.UserID]domain.ProximitySettings),
		rooms:            newRoomTable(),
	}
}

// StartTracking subscribes the connection to the group's location room and
// initializes default proximity settings for the user if none exist. It
// returns the effective settings for the tracking-started reply.
func (s *LocationService) StartTracking(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, groupID domain.GroupID) domain.ProximitySettings {
	s.mu.Lock()
	s.userConns[userID] = connID
	s.connUsers[connID] = userID
	settings, ok := s.settings[userID]
	if !ok {
		settings = domain.ProximitySettings{Enabled: true, Threshold: s.defaultThreshold}
		s.settings[userID] = settings
	}
	s.mu.Unlock()

	s.rooms.Add(groupID, connID)
	s.metrics.SetTrackedUsers(s.trackedUsers())

	s.logger.Infow("location tracking started", "user_id", userID, "group_id", groupID)
	return settings
}

// UpdateLocation validates and records a position update, then broadcasts it
// and evaluates proximity. The returned warning is a non-fatal persistence
// failure; the broadcast and proximity evaluation happen regardless.
func (s *LocationService) UpdateLocation(ctx context.Context, userID domain.UserID, groupID domain.GroupID, coords domain.Coordinates) (warning error, err error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	loc := &domain.UserLocation{
		UserID:      userID,
		GroupID:     groupID,
		Coordinates: coords,
		Timestamp:   now,
	}

	s.mu.Lock()
	s.latest[userID] = loc
	connID := s.userConns[userID]
	s.mu.Unlock()

	// Persist outside any lock; a storage hiccup must not starve the
	// broadcast or the proximity alerts.
	sample := &domain.LocationSample{
		UserID:      userID,
		GroupID:     groupID,
		Timestamp:   now,
		Coordinates: coords,
	}
	if perr := s.locations.Insert(ctx, sample); perr != nil {
		s.metrics.PersistenceFailure()
		s.logger.Warnw("location persistence failed", "user_id", userID, "error", perr)
		warning = perr
	}

	s.pusher.EmitEach(s.rooms.MembersExcept(groupID, connID), EventLocationUpdated, LocationUpdatedPayload{
		UserID:      userID,
		Coordinates: coords,
		Timestamp:   now,
	})
	s.metrics.LocationUpdated()

	s.checkProximity(userID, groupID, loc)

	return warning, nil
}

// StopTracking drops the user's latest position and room subscription and
// notifies the remaining members.
func (s *LocationService) StopTracking(ctx context.Context, userID domain.UserID, groupID domain.GroupID) {
	s.mu.Lock()
	delete(s.latest, userID)
	connID := s.userConns[userID]
	s.mu.Unlock()

	s.rooms.Remove(groupID, connID)
	s.metrics.SetTrackedUsers(s.trackedUsers())

	s.pusher.EmitEach(s.rooms.Members(groupID), EventUserStoppedTracking, UserStoppedTrackingPayload{
		UserID:    userID,
		Timestamp: time.Now(),
	})

	s.logger.Infow("location tracking stopped", "user_id", userID, "group_id", groupID)
}

// SetProximitySettings replaces the user's settings. A missing or
// non-positive threshold falls back to the default.
func (s *LocationService) SetProximitySettings(ctx context.Context, userID domain.UserID, enabled bool, threshold float64) domain.ProximitySettings {
	if threshold <= 0 {
		threshold = s.defaultThreshold
	}
	settings := domain.ProximitySettings{Enabled: enabled, Threshold: threshold}

	s.mu.Lock()
	s.settings[userID] = settings
	s.mu.Unlock()

	s.logger.Infow("proximity settings updated",
		"user_id", userID,
		"enabled", enabled,
		"threshold_m", threshold,
	)
	return settings
}

// GetGroupLocations returns a point-in-time snapshot of the latest known
// position per user in the group.
func (s *LocationService) GetGroupLocations(ctx context.Context, groupID domain.GroupID) []domain.UserLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.UserLocation
	for _, loc := range s.latest {
		if loc.GroupID == groupID {
			out = append(out, *loc)
		}
	}
	return out
}

// GetLocationHistory queries the durable location log.
func (s *LocationService) GetLocationHistory(ctx context.Context, groupID domain.GroupID, q ports.LocationQuery) ([]*domain.LocationSample, error) {
	return s.locations.FindByGroup(ctx, groupID, q)
}

// HandleDisconnect clears the disconnecting user's location state and tells
// the group's location room.
func (s *LocationService) HandleDisconnect(ctx context.Context, connID domain.ConnectionID) {
	s.mu.Lock()
	userID, ok := s.connUsers[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	loc := s.latest[userID]
	delete(s.latest, userID)
	delete(s.connUsers, connID)
	if s.userConns[userID] == connID {
		delete(s.userConns, userID)
	}
	s.mu.Unlock()

	if loc != nil {
		s.rooms.Remove(loc.GroupID, connID)
		s.pusher.EmitEach(s.rooms.Members(loc.GroupID), EventUserDisconnected, UserDisconnectedPayload{
			UserID:    userID,
			Timestamp: time.Now(),
		})
	}
	s.metrics.SetTrackedUsers(s.trackedUsers())

	s.logger.Infow("user disconnected from location tracking", "user_id", userID)
}

// checkProximity compares the moving user's new position against every other
// group member's latest known position. The two directions are evaluated
// independently against each party's own settings, so a one-directional
// alert is possible when thresholds differ. Alerts re-fire on every
// qualifying update.
func (s *LocationService) checkProximity(userID domain.UserID, groupID domain.GroupID, loc *domain.UserLocation) {
	s.mu.RLock()
	mover := s.settings[userID]
	moverConn, moverOnline := s.userConns[userID]

	type neighbor struct {
		userID   domain.UserID
		connID   domain.ConnectionID
		online   bool
		loc      *domain.UserLocation
		settings domain.ProximitySettings
	}
	var neighbors []neighbor
	for otherID, otherLoc := range s.latest {
		if otherID == userID || otherLoc.GroupID != groupID {
			continue
		}
		connID, online := s.userConns[otherID]
		neighbors = append(neighbors, neighbor{
			userID:   otherID,
			connID:   connID,
			online:   online,
			loc:      otherLoc,
			settings: s.settings[otherID],
		})
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, other := range neighbors {
		distance := geo.Distance(
			loc.Coordinates.Latitude, loc.Coordinates.Longitude,
			other.loc.Coordinates.Latitude, other.loc.Coordinates.Longitude,
		)

		if mover.Enabled && distance <= mover.Threshold && moverOnline {
			s.emitAlert(moverConn, ProximityAlertPayload{
				UserID:      other.userID,
				Distance:    distance,
				Coordinates: other.loc.Coordinates,
				Timestamp:   now,
			})
		}

		if other.settings.Enabled && distance <= other.settings.Threshold && other.online {
			s.emitAlert(other.connID, ProximityAlertPayload{
				UserID:      userID,
				Distance:    distance,
				Coordinates: loc.Coordinates,
				Timestamp:   now,
			})
		}
	}
}

func (s *LocationService) emitAlert(connID domain.ConnectionID, payload ProximityAlertPayload) {
	if err := s.pusher.Emit(connID, EventProximityAlert, payload); err != nil {
		s.logger.Debugw("proximity alert delivery failed", "connection_id", connID, "error", err)
		return
	}
	s.metrics.ProximityAlertFired()
}

func (s *LocationService) trackedUsers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}
