package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements ports.MetricsRecorder on top of a
// Prometheus registry.
type PrometheusCollector struct {
	connectionsTotal prometheus.Gauge
	roomsTotal       prometheus.Gauge
	trackedUsers     prometheus.Gauge

	eventsDispatched    *prometheus.CounterVec
	signalsRelayed      prometheus.Counter
	locationUpdates     prometheus.Counter
	proximityAlerts     prometheus.Counter
	persistenceFailures prometheus.Counter
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_connections_total",
			Help: "Number of live WebSocket connections",
		}),

		roomsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_rooms_total",
			Help: "Number of live group rooms",
		}),

		trackedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_tracked_users_total",
			Help: "Number of users with a live location",
		}),

		eventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_events_dispatched_total",
			Help: "Inbound events dispatched, by type",
		}, []string{"event"}),

		signalsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_signals_relayed_total",
			Help: "Signaling payloads forwarded between peers",
		}),

		locationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_location_updates_total",
			Help: "Accepted location updates",
		}),

		proximityAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_proximity_alerts_total",
			Help: "Proximity alerts pushed to users",
		}),

		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_persistence_failures_total",
			Help: "Durable store operations that failed",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.roomsTotal,
		c.trackedUsers,
		c.eventsDispatched,
		c.signalsRelayed,
		c.locationUpdates,
		c.proximityAlerts,
		c.persistenceFailures,
	)

	return c
}

func (c *PrometheusCollector) EventDispatched(event string) {
	c.eventsDispatched.WithLabelValues(event).Inc()
}

func (c *PrometheusCollector) SignalRelayed() {
	c.signalsRelayed.Inc()
}

func (c *PrometheusCollector) LocationUpdated() {
	c.locationUpdates.Inc()
}

func (c *PrometheusCollector) ProximityAlertFired() {
	c.proximityAlerts.Inc()
}

func (c *PrometheusCollector) PersistenceFailure() {
	c.persistenceFailures.Inc()
}

func (c *PrometheusCollector) SetConnections(n int) {
	c.connectionsTotal.Set(float64(n))
}

func (c *PrometheusCollector) SetRooms(n int) {
	c.roomsTotal.Set(float64(n))
}

func (c *PrometheusCollector) SetTrackedUsers(n int) {
	c.trackedUsers.Set(float64(n))
}
