package router

import (
	"sync/atomic"
	"time"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

// Action is what the Router decided to do with a ContentRequest, mirroring
// the teacher onion router's Action/RoutingDecision split (there:
// ActionForward/ActionDeliver; here extended with ActionDrop for requests
// this node must refuse outright).
type Action int

const (
	ActionDrop Action = iota
	ActionForward
	ActionServe
)

// Decision is the result of handling one ContentRequest.
type Decision struct {
	Action  Action
	NextHop identity.NodeID // set when Action == ActionForward
	// Served is true when Action == ActionServe: the content is advertised
	// in the table by this node itself rather than by a remote host.
	Served bool
}

// Stats mirrors the teacher router's packet counters, generalized from
// onion-packet processing to content-request handling.
type Stats struct {
	RequestsProcessed uint64
	RequestsForwarded uint64
	RequestsServed    uint64
	RequestsDropped   uint64
}

// Router handles incoming ContentRequests against a Table: the same
// parse/validate/branch shape as the teacher's onion.Router.ProcessPacket,
// generalized from Sphinx packet processing to content-addressed request
// routing.
type Router struct {
	self  identity.NodeID
	table *Table

	requestsProcessed uint64
	requestsForwarded uint64
	requestsServed    uint64
	requestsDropped   uint64
}

// NewRouter constructs a Router for the local node over an existing Table.
func NewRouter(self identity.NodeID, table *Table) *Router {
	return &Router{self: self, table: table}
}

// HandleContentRequest implements the five-step handling rule: (1) reject
// requests at or past the hop limit, (2) reject requests whose hop limit is
// not positive or exceeds MaxHopLimit, (3) serve locally if this node
// hosts the content, (4) otherwise select the best known remote host and
// forward, (5) drop if no eligible host is known.
func (r *Router) HandleContentRequest(req ContentRequest) Decision {
	atomic.AddUint64(&r.requestsProcessed, 1)

	if req.HopLimit <= 0 || req.HopLimit > MaxHopLimit || req.HopsUsed >= req.HopLimit {
		atomic.AddUint64(&r.requestsDropped, 1)
		return Decision{Action: ActionDrop}
	}

	if r.localHosts(req.ContentHash) {
		atomic.AddUint64(&r.requestsServed, 1)
		return Decision{Action: ActionServe, Served: true}
	}

	host, ok := r.table.SelectBestHost(req.ContentHash)
	if !ok {
		atomic.AddUint64(&r.requestsDropped, 1)
		return Decision{Action: ActionDrop}
	}

	atomic.AddUint64(&r.requestsForwarded, 1)
	return Decision{Action: ActionForward, NextHop: host}
}

func (r *Router) localHosts(hash ContentHash) bool {
	entry, ok := r.table.GetEntry(r.self)
	if !ok {
		return false
	}
	_, hosts := entry.AdvertisedContent[hash]
	return hosts
}

// GetStats returns a snapshot of the router's request counters.
func (r *Router) GetStats() Stats {
	return Stats{
		RequestsProcessed: atomic.LoadUint64(&r.requestsProcessed),
		RequestsForwarded: atomic.LoadUint64(&r.requestsForwarded),
		RequestsServed:    atomic.LoadUint64(&r.requestsServed),
		RequestsDropped:   atomic.LoadUint64(&r.requestsDropped),
	}
}

// MaintenanceLoop runs Table.CleanupStale on an interval until stop is
// closed, mirroring the teacher's cmd/ghostnodes cleanupLoop ticker.
func (r *Router) MaintenanceLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.table.CleanupStale()
		}
	}
}
