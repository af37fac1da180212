package signal

import (
	"encoding/json"

	"huddle/internal/core/domain"
)

// Inbound event names consumed from clients.
const (
	EventAuthenticate          = "authenticate"
	EventJoinGroup             = "join-group"
	EventLeaveGroup            = "leave-group"
	EventSignal                = "signal"
	EventToggleMicrophone      = "toggle-microphone"
	EventStartMusicSharing     = "start-music-sharing"
	EventStopMusicSharing      = "stop-music-sharing"
	EventStartTracking         = "start-tracking"
	EventUpdateLocation        = "update-location"
	EventStopTracking          = "stop-tracking"
	EventSetProximitySettings  = "set-proximity-settings"
	EventGetGroupLocations     = "get-group-locations"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outbound mirrors Message with an arbitrary payload for writing.
type outbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type AuthenticatePayload struct {
	UserID domain.UserID `json:"userId"`
}

type AuthenticatedPayload struct {
	UserID domain.UserID `json:"userId"`
}

type GroupPayload struct {
	UserID  domain.UserID  `json:"userId"`
	GroupID domain.GroupID `json:"groupId"`
}

type SignalPayload struct {
	UserID       domain.UserID   `json:"userId"`
	TargetUserID domain.UserID   `json:"targetUserId"`
	Type         string          `json:"type,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

type ToggleMicrophonePayload struct {
	UserID  domain.UserID  `json:"userId"`
	GroupID domain.GroupID `json:"groupId"`
	Muted   bool           `json:"muted"`
}

type StartMusicSharingPayload struct {
	UserID    domain.UserID    `json:"userId"`
	GroupID   domain.GroupID   `json:"groupId"`
	MediaInfo domain.MediaInfo `json:"mediaInfo"`
}

// CoordinatesPayload carries a position off the wire. Latitude and longitude
// are pointers so a missing field is distinguishable from zero, which is a
// legal coordinate.
type CoordinatesPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

type UpdateLocationPayload struct {
	UserID      domain.UserID       `json:"userId"`
	GroupID     domain.GroupID      `json:"groupId"`
	Coordinates *CoordinatesPayload `json:"coordinates"`
}

type SetProximitySettingsPayload struct {
	UserID    domain.UserID `json:"userId"`
	Enabled   bool          `json:"enabled"`
	Threshold float64       `json:"threshold,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
