// Package activity bridges network-layer lifecycle events (session
// established/closed, bytes routed, content hosted, route outcomes, epoch
// witnessing) into the Contribution Engine's Tracker.
//
// Grounded on original_source/src/network/activity_monitor.hpp's
// ActivityMonitor: the same event surface (on_peer_connected,
// on_bytes_routed_for, on_thing_hosted, on_route_successful, ...), but
// where the C++ original updates atomic counters and a mutex-guarded map
// directly inline on the caller's goroutine, this Monitor queues events on
// a single buffered channel consumed by one goroutine, so that a bursty
// reporter (many sessions finishing at once) normally hands its event off
// without waiting on tracker internals. When the channel is full, emit
// applies the event on the caller's goroutine instead of dropping it, and
// that call does wait on contribution.Tracker's own lock.
package activity

import (
	"time"

	"github.com/cashew-network/cashew-node/pkg/contribution"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

type event func(tracker *contribution.Tracker)

// Monitor fans events in from many goroutines and applies them to a
// contribution.Tracker one at a time.
type Monitor struct {
	tracker *contribution.Tracker
	events  chan event
	done    chan struct{}

	totalConnections   uint64
	totalBytesRouted   uint64
	totalThingsHosted  uint64
	totalRoutesWatched uint64
}

// NewMonitor starts the consumer goroutine and returns a ready Monitor.
// Callers must call Stop when finished.
func NewMonitor(tracker *contribution.Tracker, bufferSize int) *Monitor {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	m := &Monitor{
		tracker: tracker,
		events:  make(chan event, bufferSize),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Monitor) run() {
	for ev := range m.events {
		ev(m.tracker)
	}
	close(m.done)
}

// Stop closes the event channel and waits for the consumer to drain it.
func (m *Monitor) Stop() {
	close(m.events)
	<-m.done
}

func (m *Monitor) emit(ev event) {
	select {
	case m.events <- ev:
	default:
		// channel full: apply synchronously rather than drop an activity
		// record, since contribution scoring depends on completeness.
		ev(m.tracker)
	}
}

// OnSessionEstablished records that peer came online.
func (m *Monitor) OnSessionEstablished(peer identity.NodeID) {
	m.totalConnections++
	m.emit(func(t *contribution.Tracker) { t.RecordOnline(peer) })
}

// OnSessionClosed records that peer went offline.
func (m *Monitor) OnSessionClosed(peer identity.NodeID) {
	m.emit(func(t *contribution.Tracker) { t.RecordOffline(peer) })
}

// OnBytesSent records bytes sent directly to peer.
func (m *Monitor) OnBytesSent(peer identity.NodeID, bytes uint64) {
	m.emit(func(t *contribution.Tracker) { t.RecordTraffic(peer, bytes, 0) })
}

// OnBytesReceived records bytes received directly from peer.
func (m *Monitor) OnBytesReceived(peer identity.NodeID, bytes uint64) {
	m.emit(func(t *contribution.Tracker) { t.RecordTraffic(peer, 0, bytes) })
}

// OnBytesRoutedFor records bytes this node relayed on behalf of node.
func (m *Monitor) OnBytesRoutedFor(node identity.NodeID, bytes uint64) {
	m.totalBytesRouted += bytes
	m.emit(func(t *contribution.Tracker) { t.RecordBytesRouted(node, bytes) })
}

// OnThingHosted records that node started hosting sizeBytes of content.
func (m *Monitor) OnThingHosted(node identity.NodeID, sizeBytes uint64) {
	m.totalThingsHosted++
	m.emit(func(t *contribution.Tracker) { t.RecordThingHosted(node, 1, int64(sizeBytes)) })
}

// OnThingRemoved records that node stopped hosting sizeBytes of content.
func (m *Monitor) OnThingRemoved(node identity.NodeID, sizeBytes uint64) {
	m.emit(func(t *contribution.Tracker) { t.RecordThingHosted(node, -1, -int64(sizeBytes)) })
}

// OnRouteSuccessful records a successful routed request for node.
func (m *Monitor) OnRouteSuccessful(node identity.NodeID) {
	m.totalRoutesWatched++
	m.emit(func(t *contribution.Tracker) { t.RecordSuccessfulRoute(node) })
}

// OnRouteFailed records a failed routed request for node.
func (m *Monitor) OnRouteFailed(node identity.NodeID) {
	m.totalRoutesWatched++
	m.emit(func(t *contribution.Tracker) { t.RecordFailedRoute(node) })
}

// OnEpochWitnessed records that node participated in an epoch.
func (m *Monitor) OnEpochWitnessed(node identity.NodeID) {
	m.emit(func(t *contribution.Tracker) { t.RecordEpochWitness(node) })
}

// OnEpochMissed records that node failed to participate in an epoch.
func (m *Monitor) OnEpochMissed(node identity.NodeID) {
	m.emit(func(t *contribution.Tracker) { t.RecordEpochMissed(node) })
}

// Stats is a snapshot of the monitor's own lifetime counters, mirroring
// ActivityMonitor's total_connections_monitored/total_bytes_routed/
// total_things_hosted/total_routes_monitored.
type Stats struct {
	TotalConnections   uint64
	TotalBytesRouted   uint64
	TotalThingsHosted  uint64
	TotalRoutesWatched uint64
	SnapshotAt         time.Time
}

// GetStats returns the monitor's lifetime counters.
func (m *Monitor) GetStats() Stats {
	return Stats{
		TotalConnections:   m.totalConnections,
		TotalBytesRouted:   m.totalBytesRouted,
		TotalThingsHosted:  m.totalThingsHosted,
		TotalRoutesWatched: m.totalRoutesWatched,
		SnapshotAt:         time.Now(),
	}
}
