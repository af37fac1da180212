package services

import (
	"encoding/json"
	"time"

	"huddle/internal/core/domain"
)

// Outbound event names pushed through the transport.
const (
	EventAuthenticated            = "authenticated"
	EventGroupJoined              = "group-joined"
	EventUserJoined               = "user-joined"
	EventUserLeft                 = "user-left"
	EventMicrophoneToggled        = "microphone-toggled"
	EventMusicSharingStarted      = "music-sharing-started"
	EventMusicSharingStopped      = "music-sharing-stopped"
	EventSignal                   = "signal"
	EventTrackingStarted          = "tracking-started"
	EventLocationUpdated          = "location-updated"
	EventUserStoppedTracking      = "user-stopped-tracking"
	EventProximitySettingsUpdated = "proximity-settings-updated"
	EventGroupLocations           = "group-locations"
	EventProximityAlert           = "proximity-alert"
	EventUserDisconnected         = "user-disconnected"
	EventError                    = "error"
)

// Wire payloads follow the client protocol's camelCase field naming.

type UserJoinedPayload struct {
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}

type GroupJoinedPayload struct {
	GroupID      domain.GroupID   `json:"groupId"`
	Participants []domain.UserID  `json:"participants"`
	SessionID    domain.SessionID `json:"sessionId"`
}

type UserLeftPayload struct {
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}

type MicrophoneToggledPayload struct {
	UserID    domain.UserID `json:"userId"`
	Muted     bool          `json:"muted"`
	Timestamp time.Time     `json:"timestamp"`
}

type MusicSharingStartedPayload struct {
	UserID    domain.UserID    `json:"userId"`
	MediaInfo domain.MediaInfo `json:"mediaInfo"`
	SessionID domain.SessionID `json:"sessionId"`
	Timestamp time.Time        `json:"timestamp"`
}

type MusicSharingStoppedPayload struct {
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}

// SignalData is the opaque call-setup payload taken off the wire. The relay
// never interprets SDP or candidate contents.
type SignalData struct {
	Type      string          `json:"type,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type SignalForwardPayload struct {
	UserID    domain.UserID   `json:"userId"`
	Type      string          `json:"type,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type TrackingStartedPayload struct {
	UserID            domain.UserID            `json:"userId"`
	GroupID           domain.GroupID           `json:"groupId"`
	Timestamp         time.Time                `json:"timestamp"`
	ProximitySettings domain.ProximitySettings `json:"proximitySettings"`
}

type LocationUpdatedPayload struct {
	UserID      domain.UserID      `json:"userId"`
	Coordinates domain.Coordinates `json:"coordinates"`
	Timestamp   time.Time          `json:"timestamp"`
}

type UserStoppedTrackingPayload struct {
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}

type ProximitySettingsUpdatedPayload struct {
	UserID    domain.UserID `json:"userId"`
	Enabled   bool          `json:"enabled"`
	Threshold float64       `json:"threshold"`
	Timestamp time.Time     `json:"timestamp"`
}

type GroupLocationEntry struct {
	UserID      domain.UserID      `json:"userId"`
	Coordinates domain.Coordinates `json:"coordinates"`
	Timestamp   time.Time          `json:"timestamp"`
}

type GroupLocationsPayload struct {
	GroupID   domain.GroupID       `json:"groupId"`
	Locations []GroupLocationEntry `json:"locations"`
	Timestamp time.Time            `json:"timestamp"`
}

type ProximityAlertPayload struct {
	UserID      domain.UserID      `json:"userId"`
	Distance    float64            `json:"distance"`
	Coordinates domain.Coordinates `json:"coordinates"`
	Timestamp   time.Time          `json:"timestamp"`
}

type UserDisconnectedPayload struct {
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}
