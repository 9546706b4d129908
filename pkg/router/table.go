// Package router implements the content-addressed routing layer: a flat
// advertisement index (explicitly not a Kademlia-style k-bucket DHT) that
// tracks which nodes host which content hashes, and the request/response
// machinery built on top of it.
//
// Grounded on original_source/src/network/router.hpp for the data model
// (RoutingEntry, ContentRequest/Response, PendingRequest, the constants)
// and on the teacher's pkg/onion/router.go for the Go shape of "parse a
// wire struct, walk a decision tree of drop/forward/serve, return a typed
// decision" — this package's HandleContentRequest mirrors
// onion.Router.ProcessPacket's structure and its Decision mirrors
// the teacher's Action/RoutingDecision types, extended with a Drop action.
package router

import (
	"sort"
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

const (
	// EntryTTL is how long a routing entry survives without being refreshed.
	EntryTTL = 3600 * time.Second
	// MinReliabilityScore is the floor below which a host is never selected.
	MinReliabilityScore = 0.3
)

// ContentHash identifies a piece of content, independent of who hosts it.
type ContentHash [32]byte

// Entry is what the table knows about one node: which content it
// advertises hosting, how far away it is, and how reliable it has been.
type Entry struct {
	NodeID             identity.NodeID
	AdvertisedContent  map[ContentHash]struct{}
	HopDistance        int
	LastSeen           time.Time
	Reliability        float64
}

// IsStale reports whether the entry has not been refreshed within EntryTTL.
func (e Entry) IsStale() bool {
	return time.Since(e.LastSeen) > EntryTTL
}

// Table is the flat advertisement index: one lock guards both the node
// entries and the content->hosts index, so AdvertiseContent and
// RemoveContentAdvertisement update both atomically.
type Table struct {
	mu           sync.RWMutex
	entries      map[identity.NodeID]*Entry
	contentIndex map[ContentHash]map[identity.NodeID]struct{}
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	return &Table{
		entries:      make(map[identity.NodeID]*Entry),
		contentIndex: make(map[ContentHash]map[identity.NodeID]struct{}),
	}
}

func (t *Table) entryLocked(id identity.NodeID) *Entry {
	e, ok := t.entries[id]
	if !ok {
		e = &Entry{NodeID: id, AdvertisedContent: make(map[ContentHash]struct{}), Reliability: 1.0}
		t.entries[id] = e
	}
	return e
}

// AddNode registers or refreshes a node at the given hop distance.
func (t *Table) AddNode(id identity.NodeID, hopDistance int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(id)
	e.HopDistance = hopDistance
	e.LastSeen = time.Now()
}

// RemoveNode drops a node and every content advertisement it held.
func (t *Table) RemoveNode(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return
	}
	for hash := range e.AdvertisedContent {
		t.unindexLocked(hash, id)
	}
	delete(t.entries, id)
}

// UpdateNodeSeen refreshes a node's last-seen timestamp.
func (t *Table) UpdateNodeSeen(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.LastSeen = time.Now()
	}
}

// UpdateReliability sets a node's reliability score directly (callers
// typically derive this from contribution.Metrics.RoutingReliability).
func (t *Table) UpdateReliability(id identity.NodeID, score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.Reliability = score
	}
}

// GetEntry returns a copy of one node's entry.
func (t *Table) GetEntry(id identity.NodeID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// GetAllEntries returns a copy of every entry in the table.
func (t *Table) GetAllEntries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	all := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, *e)
	}
	return all
}

// AdvertiseContent records that node hosts hash, creating the node entry
// if needed. Index and node-side set are updated under one lock.
func (t *Table) AdvertiseContent(id identity.NodeID, hash ContentHash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(id)
	e.AdvertisedContent[hash] = struct{}{}
	e.LastSeen = time.Now()

	if t.contentIndex[hash] == nil {
		t.contentIndex[hash] = make(map[identity.NodeID]struct{})
	}
	t.contentIndex[hash][id] = struct{}{}
}

// RemoveContentAdvertisement undoes AdvertiseContent.
func (t *Table) RemoveContentAdvertisement(id identity.NodeID, hash ContentHash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		delete(e.AdvertisedContent, hash)
	}
	t.unindexLocked(hash, id)
}

func (t *Table) unindexLocked(hash ContentHash, id identity.NodeID) {
	hosts := t.contentIndex[hash]
	if hosts == nil {
		return
	}
	delete(hosts, id)
	if len(hosts) == 0 {
		delete(t.contentIndex, hash)
	}
}

// HasContentRoute reports whether any node advertises hash.
func (t *Table) HasContentRoute(hash ContentHash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.contentIndex[hash]) > 0
}

// FindHostsForContent returns every node id currently advertising hash.
func (t *Table) FindHostsForContent(hash ContentHash) []identity.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hosts := t.contentIndex[hash]
	out := make([]identity.NodeID, 0, len(hosts))
	for id := range hosts {
		out = append(out, id)
	}
	return out
}

// candidateScore is reliability / (1 + hopDistance): higher is better.
func candidateScore(e Entry) float64 {
	return e.Reliability / (1 + float64(e.HopDistance))
}

// eligible hosts are non-stale and at or above the minimum reliability.
func (t *Table) eligibleHostsLocked(hash ContentHash) []Entry {
	hosts := t.contentIndex[hash]
	out := make([]Entry, 0, len(hosts))
	for id := range hosts {
		e := t.entries[id]
		if e == nil || e.IsStale() || e.Reliability < MinReliabilityScore {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// SelectBestHost returns the single best-scoring eligible host for hash,
// ties broken by NodeID byte order.
func (t *Table) SelectBestHost(hash ContentHash) (identity.NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hosts := t.eligibleHostsLocked(hash)
	if len(hosts) == 0 {
		return identity.NodeID{}, false
	}

	best := hosts[0]
	for _, h := range hosts[1:] {
		if betterCandidate(h, best) {
			best = h
		}
	}
	return best.NodeID, true
}

func betterCandidate(a, b Entry) bool {
	sa, sb := candidateScore(a), candidateScore(b)
	if sa != sb {
		return sa > sb
	}
	return a.NodeID.Less(b.NodeID)
}

// SelectMultipleHosts returns up to k eligible hosts for hash, best first.
func (t *Table) SelectMultipleHosts(hash ContentHash, k int) []identity.NodeID {
	t.mu.RLock()
	hosts := t.eligibleHostsLocked(hash)
	t.mu.RUnlock()

	sort.Slice(hosts, func(i, j int) bool {
		return betterCandidate(hosts[i], hosts[j])
	})

	if k > len(hosts) {
		k = len(hosts)
	}
	out := make([]identity.NodeID, k)
	for i := 0; i < k; i++ {
		out[i] = hosts[i].NodeID
	}
	return out
}

// CleanupStale removes every entry that has not been refreshed within
// EntryTTL, along with its content advertisements.
func (t *Table) CleanupStale() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, e := range t.entries {
		if e.IsStale() {
			for hash := range e.AdvertisedContent {
				t.unindexLocked(hash, id)
			}
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// EntryCount returns the number of nodes tracked.
func (t *Table) EntryCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// ContentIndexSize returns the number of distinct content hashes indexed.
func (t *Table) ContentIndexSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.contentIndex)
}
