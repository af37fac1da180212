package ports

// MetricsRecorder receives operational counters from the core. The
// monitoring package provides the Prometheus-backed implementation.
type MetricsRecorder interface {
	EventDispatched(event string)
	SignalRelayed()
	LocationUpdated()
	ProximityAlertFired()
	PersistenceFailure()
	SetConnections(n int)
	SetRooms(n int)
	SetTrackedUsers(n int)
}
