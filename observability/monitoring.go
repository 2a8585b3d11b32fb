// Package observability aggregates runtime telemetry for the health surface.
package observability

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is the snapshot served on the health endpoint.
type Stats struct {
	LiveConnections int     `json:"live_connections"`
	ActiveRooms     int     `json:"active_rooms"`
	DeliveredEvents uint64  `json:"delivered_events"`
	DroppedEvents   uint64  `json:"dropped_events"`
	AllocMemMB      uint64  `json:"alloc_mem_mb"`
	RSSMemMB        uint64  `json:"rss_mem_mb"`
	CPUPercent      float64 `json:"cpu_percent"`
	NumGC           uint32  `json:"num_gc"`
	CollectedAt     string  `json:"collected_at"`
}

// Manager holds the latest stats snapshot plus atomic delivery counters that
// the dispatcher increments on its hot path without taking the mutex.
type Manager struct {
	mu     sync.RWMutex
	latest Stats

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddDelivered(n uint64) { m.delivered.Add(n) }
func (m *Manager) AddDropped(n uint64)   { m.dropped.Add(n) }

// Collect merges process-level figures gathered by the monitor worker with
// the counters and Go runtime memory stats into a new snapshot.
func (m *Manager) Collect(connections, rooms int, rssBytes uint64, cpuPercent float64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = Stats{
		LiveConnections: connections,
		ActiveRooms:     rooms,
		DeliveredEvents: m.delivered.Load(),
		DroppedEvents:   m.dropped.Load(),
		AllocMemMB:      mem.Alloc >> 20,
		RSSMemMB:        rssBytes >> 20,
		CPUPercent:      cpuPercent,
		NumGC:           mem.NumGC,
		CollectedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

func (m *Manager) GetLatest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
