package router

import (
	"crypto/ed25519"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

const (
	// DefaultHopLimit is how many hops a ContentRequest travels by default.
	DefaultHopLimit = 8
	// MaxHopLimit is the most hops a requester may ask for.
	MaxHopLimit = 16

	// MaxRetries bounds how many times a PendingRequest is retried before
	// giving up.
	MaxRetries = 3
	// RequestTimeout is how long a PendingRequest waits for a response
	// before it is considered timed out.
	RequestTimeout = 30 * time.Second
)

// RequestID uniquely identifies one ContentRequest.
type RequestID [32]byte

// ContentRequest asks the network for a piece of content.
type ContentRequest struct {
	ID          RequestID
	ContentHash ContentHash
	Requester   identity.NodeID
	HopLimit    int
	HopsUsed    int
	IssuedAt    time.Time
}

// ComputeRequestID derives a RequestID from the content hash, requester and
// issue time.
func ComputeRequestID(hash ContentHash, requester identity.NodeID, issuedAt time.Time) RequestID {
	buf := make([]byte, 0, 32+32+8)
	buf = append(buf, hash[:]...)
	buf = append(buf, requester[:]...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(issuedAt.UnixNano()))
	buf = append(buf, ts[:]...)
	return cryptoprim.BLAKE3(buf)
}

// NewContentRequest builds a ContentRequest with a freshly computed ID and
// the default hop limit.
func NewContentRequest(hash ContentHash, requester identity.NodeID) ContentRequest {
	now := time.Now()
	return ContentRequest{
		ID:          ComputeRequestID(hash, requester, now),
		ContentHash: hash,
		Requester:   requester,
		HopLimit:    DefaultHopLimit,
		IssuedAt:    now,
	}
}

// ContentResponse answers a ContentRequest.
type ContentResponse struct {
	RequestID RequestID
	Host      identity.NodeID
	Payload   []byte
	Signature []byte
}

func (r ContentResponse) signedBytes() []byte {
	buf := make([]byte, 0, 32+32+len(r.Payload))
	buf = append(buf, r.RequestID[:]...)
	buf = append(buf, r.Host[:]...)
	buf = append(buf, r.Payload...)
	return buf
}

// Sign signs the response with the hosting node's identity key.
func (r *ContentResponse) Sign(priv ed25519.PrivateKey) {
	r.Signature = ed25519.Sign(priv, r.signedBytes())
}

// VerifySignature checks the response against the host's claimed public key.
func (r ContentResponse) VerifySignature(hostPub ed25519.PublicKey) bool {
	return ed25519.Verify(hostPub, r.signedBytes(), r.Signature)
}

// RouteHop records one step a ContentRequest took, so a ContentResponse
// can be routed back hop-by-hop instead of re-broadcast via gossip.
type RouteHop struct {
	From identity.NodeID
	To   identity.NodeID
}

// PendingRequest tracks a ContentRequest this node originated or is
// waiting on a response for.
type PendingRequest struct {
	Request    ContentRequest
	SentAt     time.Time
	Retries    int
	ReversePath []RouteHop
}

// HasTimedOut reports whether the request has been outstanding past RequestTimeout.
func (p PendingRequest) HasTimedOut() bool {
	return time.Since(p.SentAt) > RequestTimeout
}

// PendingTable tracks outstanding ContentRequests awaiting a response,
// keyed by RequestID, and the reverse path used to route the response
// back hop-by-hop.
type PendingTable struct {
	mu      sync.Mutex
	pending map[RequestID]*PendingRequest
}

// NewPendingTable constructs an empty PendingTable.
func NewPendingTable() *PendingTable {
	return &PendingTable{pending: make(map[RequestID]*PendingRequest)}
}

// Add registers a freshly sent request.
func (t *PendingTable) Add(req ContentRequest, reversePath []RouteHop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[req.ID] = &PendingRequest{Request: req, SentAt: time.Now(), ReversePath: reversePath}
}

// Get returns the pending request for an id, if any.
func (t *PendingTable) Get(id RequestID) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return PendingRequest{}, false
	}
	return *p, true
}

// Resolve removes a pending request, typically once its response arrives.
func (t *PendingTable) Resolve(id RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

// RetryOrExpire increments the retry counter for a timed-out request,
// removing it once MaxRetries is exceeded. Returns (shouldRetry, ok).
func (t *PendingTable) RetryOrExpire(id RequestID) (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[id]
	if !ok {
		return false, false
	}
	if p.Retries >= MaxRetries {
		delete(t.pending, id)
		return false, true
	}
	p.Retries++
	p.SentAt = time.Now()
	return true, true
}

// TimedOut returns every request id that has been outstanding past RequestTimeout.
func (t *PendingTable) TimedOut() []RequestID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []RequestID
	for id, p := range t.pending {
		if p.HasTimedOut() {
			ids = append(ids, id)
		}
	}
	return ids
}
