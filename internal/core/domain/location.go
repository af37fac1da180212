package domain

import (
	"math"
	"time"
)

// Coordinates is a geographic position. Latitude and longitude are mandatory;
// the remaining fields are optional hints from the reporting device.
type Coordinates struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// Validate checks the coordinate invariant: both components finite and
// within [-90,90] / [-180,180].
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return ErrInvalidLocation
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrInvalidLocation
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidLocation
	}
	return nil
}

// LocationSample is one durable, append-only position record. Samples are
// never mutated or deleted here; retention is an external concern.
type LocationSample struct {
	UserID      UserID      `json:"user_id"`
	GroupID     GroupID     `json:"group_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Coordinates Coordinates `json:"coordinates"`
}

// UserLocation is the in-memory latest known position for a user, kept by
// the location engine for proximity evaluation and snapshots.
type UserLocation struct {
	UserID      UserID      `json:"user_id"`
	GroupID     GroupID     `json:"group_id"`
	Coordinates Coordinates `json:"coordinates"`
	Timestamp   time.Time   `json:"timestamp"`
}

// DefaultProximityThreshold is the alert distance used when a user never
// configured one, in meters.
const DefaultProximityThreshold = 100.0

// ProximitySettings is a user's ephemeral alert configuration.
type ProximitySettings struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"` // meters
}

// DefaultProximitySettings returns the settings applied on first tracking
// start.
func DefaultProximitySettings() ProximitySettings {
	return ProximitySettings{Enabled: true, Threshold: DefaultProximityThreshold}
}
