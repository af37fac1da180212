package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	// UserIDRegex validates user ID format
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

	// GroupIDRegex validates group ID format
	GroupIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)
)

// MaxProximityThreshold caps alert distances, in meters.
const MaxProximityThreshold = 100_000.0

// ValidateUserID checks a user identifier taken off the wire.
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if len(userID) > 128 {
		return fmt.Errorf("user id is too long (max 128 characters)")
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("user id contains invalid characters (only letters, numbers, _, ., - allowed)")
	}
	return nil
}

// ValidateGroupID checks a group identifier taken off the wire.
func ValidateGroupID(groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if len(groupID) > 128 {
		return fmt.Errorf("group id is too long (max 128 characters)")
	}
	if !GroupIDRegex.MatchString(groupID) {
		return fmt.Errorf("group id contains invalid characters (only letters, numbers, _, ., - allowed)")
	}
	return nil
}

// ValidateProximityThreshold checks a client-supplied alert distance.
// Non-positive values are allowed; they select the server default.
func ValidateProximityThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("threshold must be a finite number")
	}
	if threshold > MaxProximityThreshold {
		return fmt.Errorf("threshold is too large (max %.0f meters)", MaxProximityThreshold)
	}
	return nil
}
