package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"clinic-queue/config"
	"clinic-queue/models"
	"clinic-queue/monitoring"
)

// Maintenance runs the periodic liveness sweep: evict idle or dead
// connections, refresh wait-time estimates, and emit the lightweight
// positions_updated broadcast for every doctor somebody is watching.
// The sweep is best-effort; it takes each doctor's lock only briefly
// and never blocks mutating operations across the whole pass.
type Maintenance struct {
	registry   *Registry
	queues     *QueueStore
	router     *Router
	dispatcher *Dispatcher
	cfg        *config.Config
	monitor    *monitoring.Monitor

	stopChan         chan struct{}
	wg               sync.WaitGroup
	activeGoroutines int64
	started          time.Time
}

func NewMaintenance(registry *Registry, queues *QueueStore, router *Router, dispatcher *Dispatcher, cfg *config.Config, monitor *monitoring.Monitor) *Maintenance {
	return &Maintenance{
		registry:   registry,
		queues:     queues,
		router:     router,
		dispatcher: dispatcher,
		cfg:        cfg,
		monitor:    monitor,
		stopChan:   make(chan struct{}),
		started:    time.Now(),
	}
}

// Start launches the sweep goroutine.
func (m *Maintenance) Start() {
	m.wg.Add(1)
	go m.sweeper()

	log.Printf("Liveness sweep started (%v interval, %v idle timeout)",
		m.cfg.QueueUpdateInterval, m.cfg.ConnIdleTimeout)
}

func (m *Maintenance) sweeper() {
	defer m.wg.Done()
	atomic.AddInt64(&m.activeGoroutines, 1)
	defer atomic.AddInt64(&m.activeGoroutines, -1)

	ticker := time.NewTicker(m.cfg.QueueUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopChan:
			log.Println("Liveness sweep stopping")
			return
		}
	}
}

func (m *Maintenance) sweep() {
	m.evictStaleClients()
	m.refreshPositions()
}

// evictStaleClients removes connections idle past the timeout or
// flagged by a failed send. Same cleanup path as an explicit close.
func (m *Maintenance) evictStaleClients() {
	stale := m.registry.Stale(m.cfg.ConnIdleTimeout)
	for _, clientID := range stale {
		log.Printf("Evicting inactive client: %s", clientID)
		m.dispatcher.HandleDisconnect(clientID)
		m.monitor.TrackEviction()
	}
}

func (m *Maintenance) refreshPositions() {
	for _, doctorID := range m.router.DoctorsWithSubscribers() {
		m.queues.RecomputeEstimates(doctorID)

		snapshot, ok := m.queues.Snapshot(doctorID)
		if !ok {
			continue
		}

		m.router.BroadcastQueueUpdate(doctorID, "positions_updated", map[string]any{
			"totalPatients": snapshot.Len(),
		})
	}
}

// Metrics returns the operational snapshot served on /health.
func (m *Maintenance) Metrics() models.ServerMetrics {
	return models.ServerMetrics{
		TotalUpdates:     m.queues.TotalUpdates(),
		ActiveQueues:     len(m.queues.Doctors()),
		ConnectedClients: m.registry.Count(),
		Subscriptions:    m.router.SubscriptionCount(),
		UptimeMillis:     time.Since(m.started).Milliseconds(),
	}
}

// QueueSizes implements monitoring.StatsSource.
func (m *Maintenance) QueueSizes() map[string]monitoring.QueueSizes {
	return m.queues.QueueSizes()
}

// ConnectedClients implements monitoring.StatsSource.
func (m *Maintenance) ConnectedClients() int {
	return m.registry.Count()
}

// ActiveGoroutines implements monitoring.StatsSource.
func (m *Maintenance) ActiveGoroutines() int64 {
	return atomic.LoadInt64(&m.activeGoroutines)
}

// Shutdown stops the sweep and synchronously flushes every queue to
// the persistence gateway.
func (m *Maintenance) Shutdown(ctx context.Context) error {
	log.Println("Shutting down queue server...")

	close(m.stopChan)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Background goroutines stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Timeout waiting for background goroutines to stop")
	}

	if err := m.queues.Flush(ctx); err != nil {
		return err
	}

	log.Println("Queue state flushed, shutdown complete")
	return nil
}
