package gossip

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxSeen bounds the number of message ids the SeenCache remembers.
// This fixes the teacher relay's replay cache, which was only age-pruned
// and could grow without bound under sustained traffic.
const DefaultMaxSeen = 10000

// SeenMessageTTL is how long an id is remembered even if the cache has
// room, matching the age-based sweep the teacher's cleanupReplayCache ran
// on a 5-minute ticker.
const SeenMessageTTL = 600 * time.Second

type seenEntry struct {
	id   MessageID
	seen time.Time
}

// SeenCache is a size-and-age bounded deduplication set: the oldest entry
// is evicted first once the cache is full, and a periodic sweep removes
// anything older than SeenMessageTTL even if there's room to spare.
type SeenCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = oldest
	index   map[MessageID]*list.Element
}

// NewSeenCache constructs a SeenCache bounded to maxSize entries.
func NewSeenCache(maxSize int) *SeenCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSeen
	}
	return &SeenCache{
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[MessageID]*list.Element),
	}
}

// Seen reports whether id has been recorded, without recording it.
func (c *SeenCache) Seen(id MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Record marks id as seen, evicting the oldest entry if the cache is full.
// Returns false if id was already present (a no-op in that case).
func (c *SeenCache) Record(id MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; ok {
		return false
	}

	el := c.order.PushBack(seenEntry{id: id, seen: time.Now()})
	c.index[id] = el

	for c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(seenEntry).id)
	}
	return true
}

// Cleanup removes entries older than SeenMessageTTL. Intended to be called
// from a periodic ticker goroutine.
func (c *SeenCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-SeenMessageTTL)
	for {
		front := c.order.Front()
		if front == nil {
			break
		}
		entry := front.Value.(seenEntry)
		if entry.seen.After(cutoff) {
			break
		}
		c.order.Remove(front)
		delete(c.index, entry.id)
		removed++
	}
	return removed
}

// Len returns the number of entries currently recorded.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
