package ports

import "huddle/internal/core/domain"

// EventPusher is the one-way outbound notification channel owned by the
// transport layer. Delivery is best effort: pushes to closed or missing
// connections are dropped, never retried.
type EventPusher interface {
	// Emit pushes an event to a single connection.
	Emit(connID domain.ConnectionID, event string, payload interface{}) error

	// EmitEach pushes an event to every listed connection independently; a
	// failed write to one recipient does not affect the others.
	EmitEach(connIDs []domain.ConnectionID, event string, payload interface{})
}
