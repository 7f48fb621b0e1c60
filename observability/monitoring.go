// Package observability aggregates live routing metrics for the debug
// dashboard and the heartbeat worker. It never drives routing
// decisions.
package observability

import (
	"runtime"
	"sync/atomic"
)

// MonitoringStats is the snapshot served to the dashboard.
type MonitoringStats struct {
	// --- ROUTING METRICS ---
	MessagesRouted    uint64 `json:"messages_routed"`
	MessagesDelayed   uint64 `json:"messages_delayed"`
	DelayReleases     uint64 `json:"delay_releases"`
	InterjectFlushes  uint64 `json:"interject_flushes"`
	MessagesHeld      uint64 `json:"messages_held"`
	HeldReleases      uint64 `json:"held_releases"`
	ActiveRooms       int64  `json:"active_rooms"`
	PendingDelayCount int64  `json:"pending_delay_count"`

	// --- SYSTEM METRICS ---
	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`
}

// MonitoringManager collects counters from the orchestrator. All
// methods are safe for concurrent use.
type MonitoringManager struct {
	messagesRouted   atomic.Uint64
	messagesDelayed  atomic.Uint64
	delayReleases    atomic.Uint64
	interjectFlushes atomic.Uint64
	messagesHeld     atomic.Uint64
	heldReleases     atomic.Uint64
	activeRooms      atomic.Int64
	pendingDelays    atomic.Int64
}

func NewMonitoringManager() *MonitoringManager {
	return &MonitoringManager{}
}

func (m *MonitoringManager) IncRouted()        { m.messagesRouted.Add(1) }
func (m *MonitoringManager) IncDelayed()       { m.messagesDelayed.Add(1) }
func (m *MonitoringManager) IncDelayReleased() { m.delayReleases.Add(1) }
func (m *MonitoringManager) IncHeld()          { m.messagesHeld.Add(1) }

func (m *MonitoringManager) IncHeldReleased(n int) { m.heldReleases.Add(uint64(n)) }

// IncInterjectFlush records one interjection and how many pending
// messages it preempted.
func (m *MonitoringManager) IncInterjectFlush(flushed int) {
	m.interjectFlushes.Add(1)
	m.delayReleases.Add(uint64(flushed))
}

func (m *MonitoringManager) SetActiveRooms(n int)   { m.activeRooms.Store(int64(n)) }
func (m *MonitoringManager) SetPendingDelays(n int) { m.pendingDelays.Store(int64(n)) }

// GetLatest snapshots every counter plus process memory stats.
func (m *MonitoringManager) GetLatest() MonitoringStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return MonitoringStats{
		MessagesRouted:    m.messagesRouted.Load(),
		MessagesDelayed:   m.messagesDelayed.Load(),
		DelayReleases:     m.delayReleases.Load(),
		InterjectFlushes:  m.interjectFlushes.Load(),
		MessagesHeld:      m.messagesHeld.Load(),
		HeldReleases:      m.heldReleases.Load(),
		ActiveRooms:       m.activeRooms.Load(),
		PendingDelayCount: m.pendingDelays.Load(),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
	}
}
