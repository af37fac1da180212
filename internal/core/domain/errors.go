package domain

import "errors"

var (
	ErrNotAuthenticated   = errors.New("connection not authenticated")
	ErrTargetUnavailable  = errors.New("target user not connected")
	ErrInvalidLocation    = errors.New("invalid location data")
	ErrSessionNotFound    = errors.New("session not found")
	ErrConnectionNotFound = errors.New("connection not found")
)
