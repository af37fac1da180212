package services

import (
	"context"
	"errors"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// fakePusher records every emission so tests can assert on delivery.
type fakePusher struct {
	mu        sync.Mutex
	emissions []emission
	failConns map[domain.ConnectionID]bool
}

type emission struct {
	connID  domain.ConnectionID
	event   string
	payload interface{}
}

func newFakePusher() *fakePusher {
	return &fakePusher{failConns: make(map[domain.ConnectionID]bool)}
}

func (f *fakePusher) Emit(connID domain.ConnectionID, event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConns[connID] {
		return domain.ErrConnectionNotFound
	}
	f.emissions = append(f.emissions, emission{connID: connID, event: event, payload: payload})
	return nil
}

func (f *fakePusher) EmitEach(connIDs []domain.ConnectionID, event string, payload interface{}) {
	for _, connID := range connIDs {
		f.Emit(connID, event, payload)
	}
}

func (f *fakePusher) failFor(connID domain.ConnectionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failConns[connID] = true
}

func (f *fakePusher) byEvent(event string) []emission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emission
	for _, e := range f.emissions {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakePusher) eventsTo(connID domain.ConnectionID, event string) []emission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emission
	for _, e := range f.emissions {
		if e.connID == connID && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakePusher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emissions = nil
}

// countingMetrics tallies recorder calls for assertions.
type countingMetrics struct {
	mu                  sync.Mutex
	signalsRelayed      int
	locationUpdates     int
	proximityAlerts     int
	persistenceFailures int
}

func (m *countingMetrics) EventDispatched(event string) {}

func (m *countingMetrics) SignalRelayed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalsRelayed++
}

func (m *countingMetrics) LocationUpdated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locationUpdates++
}

func (m *countingMetrics) ProximityAlertFired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proximityAlerts++
}

func (m *countingMetrics) PersistenceFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistenceFailures++
}

func (m *countingMetrics) SetConnections(n int)  {}
func (m *countingMetrics) SetRooms(n int)        {}
func (m *countingMetrics) SetTrackedUsers(n int) {}

// failingSessionRepo accepts reads but rejects every write.
type failingSessionRepo struct {
	ports.SessionRepository
}

func (f *failingSessionRepo) Upsert(ctx context.Context, session *domain.CommunicationSession) error {
	return errors.New("session store unavailable")
}

// failingLocationRepo rejects every insert.
type failingLocationRepo struct {
	ports.LocationRepository
}

func (f *failingLocationRepo) Insert(ctx context.Context, sample *domain.LocationSample) error {
	return errors.New("location store unavailable")
}
