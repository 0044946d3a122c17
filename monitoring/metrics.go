package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_length_total",
			Help: "Current queue length per doctor",
		},
		[]string{"doctor_id", "queue_type"},
	)

	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_connected_clients_total",
			Help: "Current number of connected queue clients",
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "doctor_id", "status"},
	)

	broadcastsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_broadcasts_total",
			Help: "Total broadcast messages fanned out to subscribers",
		},
		[]string{"event_type"},
	)

	clientEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_client_evictions_total",
			Help: "Connections evicted by the liveness sweep",
		},
	)

	persistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_persistence_failures_total",
			Help: "Failed queue snapshot or audit writes",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active background goroutines",
		},
	)
)

// QueueSizes is one doctor's per-class entry counts.
type QueueSizes struct {
	Priority int
	Regular  int
}

// StatsSource is implemented by the queue server so the monitor can
// sample gauges without reaching into its internals.
type StatsSource interface {
	QueueSizes() map[string]QueueSizes
	ConnectedClients() int
	ActiveGoroutines() int64
}

type Monitor struct {
	mu     sync.RWMutex
	source StatsSource
	stop   chan struct{}
}

func NewMonitor() *Monitor {
	monitor := &Monitor{stop: make(chan struct{})}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

// SetSource is called once the queue server is wired up; the monitor is
// constructed first because the server's components record through it.
func (m *Monitor) SetSource(source StatsSource) {
	m.mu.Lock()
	m.source = source
	m.mu.Unlock()
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectGauges()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) collectGauges() {
	m.mu.RLock()
	source := m.source
	m.mu.RUnlock()

	if source == nil {
		return
	}

	for doctorID, sizes := range source.QueueSizes() {
		queueLength.WithLabelValues(doctorID, "priority").Set(float64(sizes.Priority))
		queueLength.WithLabelValues(doctorID, "regular").Set(float64(sizes.Regular))
	}

	connectedClients.Set(float64(source.ConnectedClients()))
	goroutineCount.Set(float64(source.ActiveGoroutines()))
}

func (m *Monitor) Stop() {
	close(m.stop)
}

// Track queue operations
func (m *Monitor) TrackQueueOperation(operation, doctorID, status string) {
	queueOperations.WithLabelValues(operation, doctorID, status).Inc()
}

// Track broadcast fan-out
func (m *Monitor) TrackBroadcast(eventType string) {
	broadcastsSent.WithLabelValues(eventType).Inc()
}

// Track liveness evictions
func (m *Monitor) TrackEviction() {
	clientEvictions.Inc()
}

// Track persistence write failures
func (m *Monitor) TrackPersistenceFailure() {
	persistenceFailures.Inc()
}
