package ports

import (
	"context"
	"time"

	"huddle/internal/core/domain"
)

// ConnectionRegistry is the single source of truth for live connections:
// which user a connection belongs to and which group it is currently in.
type ConnectionRegistry interface {
	// Register binds a connection to a user identity. It is idempotent for
	// the same connection. When the user already holds a different live
	// connection, the prior connection is superseded and its ID is returned
	// so the transport can close it.
	Register(ctx context.Context, connID domain.ConnectionID, userID domain.UserID) (evicted domain.ConnectionID, err error)

	// SetGroup records the connection's current group; an empty group clears it.
	SetGroup(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error

	// Get returns the connection entry or domain.ErrNotAuthenticated.
	Get(ctx context.Context, connID domain.ConnectionID) (*domain.Connection, error)

	// LookupByUser resolves a user to their live connection, or
	// domain.ErrTargetUnavailable when none exists.
	LookupByUser(ctx context.Context, userID domain.UserID) (domain.ConnectionID, error)

	// Remove deletes the entry and returns its last known state for cleanup.
	Remove(ctx context.Context, connID domain.ConnectionID) (*domain.Connection, error)
}

// SessionRepository is the durable store contract for communication sessions.
type SessionRepository interface {
	// FindActive returns the single active session for (group, kind), or
	// domain.ErrSessionNotFound.
	FindActive(ctx context.Context, groupID domain.GroupID, kind domain.SessionKind) (*domain.CommunicationSession, error)
	Upsert(ctx context.Context, session *domain.CommunicationSession) error
}

// LocationQuery narrows a location history lookup.
type LocationQuery struct {
	UserID domain.UserID // optional
	Since  *time.Time
	Until  *time.Time
	Limit  int // 0 means no limit
}

// LocationRepository is the durable append-only location log contract.
type LocationRepository interface {
	Insert(ctx context.Context, sample *domain.LocationSample) error
	// FindByGroup returns samples for the group, newest first.
	FindByGroup(ctx context.Context, groupID domain.GroupID, q LocationQuery) ([]*domain.LocationSample, error)
}
