// Package e2e exercises the Core modules wired together the way
// cmd/cashewnode wires them, without depending on cmd/cashewnode itself
// (an unimportable main package): each TestNode stands up its own
// router.Table/Router, store.ContentStore and revocation.Broadcaster
// behind an httptest server, mirroring the teacher's own e2e harness
// style of hand-rolling a minimal node over a mux.Router rather than
// standing up real TLS.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/revocation"
	"github.com/cashew-network/cashew-node/pkg/router"
	"github.com/cashew-network/cashew-node/pkg/store"
	"github.com/gorilla/mux"
)

// TestNode is a minimal stand-in for cmd/cashewnode.Node: enough wiring
// to exercise content request/response routing and revocation
// propagation over real HTTP, without mTLS or onion-wrapping.
type TestNode struct {
	ID      identity.NodeID
	Self    *identity.Identity
	Table   *router.Table
	Engine  *router.Router
	Content *store.ContentStore
	Revoked *revocation.Broadcaster
	Server  *httptest.Server

	peers map[identity.NodeID]string
}

func newTestNode(t *testing.T) *TestNode {
	t.Helper()
	self, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	table := router.NewTable()
	n := &TestNode{
		ID:      self.ID(),
		Self:    self,
		Table:   table,
		Engine:  router.NewRouter(self.ID(), table),
		Content: store.NewContentStore(store.NewMemoryStorage()),
		Revoked: revocation.NewBroadcaster(),
		peers:   make(map[identity.NodeID]string),
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/content/request", n.handleContentRequest).Methods("POST")
	r.HandleFunc("/v1/revocation", n.handleRevocation).Methods("POST")
	r.HandleFunc("/health", n.handleHealth).Methods("GET")
	n.Server = httptest.NewServer(r)
	return n
}

func (n *TestNode) knows(peer *TestNode) {
	n.peers[peer.ID] = peer.Server.URL
	n.Table.AddNode(peer.ID, 1)
}

func (n *TestNode) handleContentRequest(w http.ResponseWriter, r *http.Request) {
	var req router.ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	decision := n.Engine.HandleContentRequest(req)
	switch decision.Action {
	case router.ActionServe:
		data, err := n.Content.RetrieveContent(req.ContentHash)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if cryptoprim.BLAKE3(data) != req.ContentHash {
			http.Error(w, "corrupt content", http.StatusInternalServerError)
			return
		}
		resp := router.ContentResponse{RequestID: req.ID, Host: n.ID, Payload: data}
		resp.Sign(n.Self.PrivateKey)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	case router.ActionForward:
		addr, ok := n.peers[decision.NextHop]
		if !ok {
			http.Error(w, "no route", http.StatusServiceUnavailable)
			return
		}
		req.HopsUsed++
		body, _ := json.Marshal(req)
		fresp, err := http.Post(addr+"/v1/content/request", "application/json", bytes.NewReader(body))
		if err != nil {
			http.Error(w, "forward failed", http.StatusBadGateway)
			return
		}
		defer fresp.Body.Close()
		w.WriteHeader(fresp.StatusCode)
		var resp router.ContentResponse
		json.NewDecoder(fresp.Body).Decode(&resp)
		json.NewEncoder(w).Encode(resp)
	default:
		http.Error(w, "no known host", http.StatusNotFound)
	}
}

func (n *TestNode) handleRevocation(w http.ResponseWriter, r *http.Request) {
	var rev revocation.Revocation
	if err := json.NewDecoder(r.Body).Decode(&rev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := n.Revoked.ProcessRevocation(rev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (n *TestNode) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (n *TestNode) Close() {
	n.Server.Close()
}

func requestContent(t *testing.T, from *TestNode, hash router.ContentHash) router.ContentResponse {
	t.Helper()
	req := router.NewContentRequest(hash, from.ID)
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(from.Server.URL+"/v1/content/request", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST content request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("content request status = %d, want 200", resp.StatusCode)
	}

	var out router.ContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// TestContentRequestServedLocally covers the simplest case: a node
// hosting the content answers its own request directly.
func TestContentRequestServedLocally(t *testing.T) {
	node := newTestNode(t)
	defer node.Close()

	data := []byte("local content bytes")
	hash := cryptoprim.BLAKE3(data)
	if err := node.Content.PersistContent(hash, data); err != nil {
		t.Fatalf("PersistContent: %v", err)
	}
	node.Table.AdvertiseContent(node.ID, hash)

	resp := requestContent(t, node, hash)
	if string(resp.Payload) != string(data) {
		t.Fatalf("payload = %q, want %q", resp.Payload, data)
	}
	if !resp.VerifySignature(node.Self.PublicKey) {
		t.Fatal("response signature did not verify")
	}
}

// TestContentRequestForwardedOneHop covers a requester whose own table
// has no route, but a directly known peer hosts the content.
func TestContentRequestForwardedOneHop(t *testing.T) {
	requester := newTestNode(t)
	host := newTestNode(t)
	defer requester.Close()
	defer host.Close()

	requester.knows(host)
	host.knows(requester)

	data := []byte("hosted on the second node")
	hash := cryptoprim.BLAKE3(data)
	if err := host.Content.PersistContent(hash, data); err != nil {
		t.Fatalf("PersistContent: %v", err)
	}
	host.Table.AdvertiseContent(host.ID, hash)
	requester.Table.AdvertiseContent(host.ID, hash)

	resp := requestContent(t, requester, hash)
	if string(resp.Payload) != string(data) {
		t.Fatalf("payload = %q, want %q", resp.Payload, data)
	}
	if resp.Host != host.ID {
		t.Fatalf("response host = %s, want %s", resp.Host, host.ID)
	}
	if !resp.VerifySignature(host.Self.PublicKey) {
		t.Fatal("forwarded response signature did not verify")
	}
}

// TestContentRequestMultiHop chains the forward through an
// intermediate relay that knows the true host but the requester does
// not, exercising router.Router's per-hop decision independently at
// each node.
func TestContentRequestMultiHop(t *testing.T) {
	requester := newTestNode(t)
	relay := newTestNode(t)
	host := newTestNode(t)
	defer requester.Close()
	defer relay.Close()
	defer host.Close()

	requester.knows(relay)
	relay.knows(host)

	data := []byte("two hops away")
	hash := cryptoprim.BLAKE3(data)
	if err := host.Content.PersistContent(hash, data); err != nil {
		t.Fatalf("PersistContent: %v", err)
	}
	host.Table.AdvertiseContent(host.ID, hash)
	relay.Table.AdvertiseContent(host.ID, hash)
	requester.Table.AdvertiseContent(relay.ID, hash)

	resp := requestContent(t, requester, hash)
	if string(resp.Payload) != string(data) {
		t.Fatalf("payload = %q, want %q", resp.Payload, data)
	}
	if !resp.VerifySignature(host.Self.PublicKey) {
		t.Fatal("multi-hop response signature did not verify")
	}
}

// TestContentRequestNoKnownHost covers the case no node in the
// requester's table advertises the hash at all.
func TestContentRequestNoKnownHost(t *testing.T) {
	node := newTestNode(t)
	defer node.Close()

	req := router.NewContentRequest(router.ContentHash{0xde, 0xad}, node.ID)
	body, _ := json.Marshal(req)
	resp, err := http.Post(node.Server.URL+"/v1/content/request", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

// TestRevocationPropagation covers a node accepting and later
// recognizing a revoked key, including a replacement key pointer.
func TestRevocationPropagation(t *testing.T) {
	node := newTestNode(t)
	defer node.Close()

	victim, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	replacement, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	rev := revocation.Revocation{
		RevokedKey:     victim.PublicKey,
		ReplacementKey: replacement.PublicKey,
		Reason:         revocation.ReasonScheduledRotation,
		RevokedAt:      time.Now(),
		Revoker:        victim.ID(),
	}
	revocation.SignRevocation(&rev, replacement.PrivateKey)

	body, err := json.Marshal(rev)
	if err != nil {
		t.Fatalf("marshal revocation: %v", err)
	}
	resp, err := http.Post(node.Server.URL+"/v1/revocation", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST revocation: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	if !node.Revoked.IsKeyRevoked(victim.PublicKey) {
		t.Fatal("victim key should be recognized as revoked")
	}
	repl, ok := node.Revoked.GetReplacementKey(victim.PublicKey)
	if !ok || string(repl) != string(replacement.PublicKey) {
		t.Fatalf("replacement key = %x, ok=%v, want %x", repl, ok, replacement.PublicKey)
	}
}

// TestRevocationRejectsBadSignature covers a revocation signed by
// neither the revoked nor the replacement key.
func TestRevocationRejectsBadSignature(t *testing.T) {
	node := newTestNode(t)
	defer node.Close()

	victim, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	impostor, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	rev := revocation.Revocation{
		RevokedKey: victim.PublicKey,
		Reason:     revocation.ReasonSuspectedCompromise,
		RevokedAt:  time.Now(),
		Revoker:    victim.ID(),
	}
	revocation.SignRevocation(&rev, impostor.PrivateKey)

	body, _ := json.Marshal(rev)
	resp, err := http.Post(node.Server.URL+"/v1/revocation", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST revocation: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a revocation signed by neither the victim nor a replacement", resp.StatusCode)
	}
	if node.Revoked.IsKeyRevoked(victim.PublicKey) {
		t.Fatal("a badly signed revocation must not be accepted")
	}
}

// TestHealthCheck covers the liveness endpoint every node exposes.
func TestHealthCheck(t *testing.T) {
	node := newTestNode(t)
	defer node.Close()

	resp, err := http.Get(node.Server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["status"] != "healthy" {
		t.Fatalf("status field = %q, want healthy", result["status"])
	}
}

// TestConcurrentContentRequests exercises many simultaneous requests
// against one host to catch any data race in Table/ContentStore access.
func TestConcurrentContentRequests(t *testing.T) {
	requester := newTestNode(t)
	host := newTestNode(t)
	defer requester.Close()
	defer host.Close()

	requester.knows(host)

	const n = 16
	hashes := make([]router.ContentHash, n)
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("payload-%d", i))
		hash := cryptoprim.BLAKE3(data)
		hashes[i] = hash
		if err := host.Content.PersistContent(hash, data); err != nil {
			t.Fatalf("PersistContent: %v", err)
		}
		host.Table.AdvertiseContent(host.ID, hash)
		requester.Table.AdvertiseContent(host.ID, hash)
	}

	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			resp := requestContentNoFatal(requester, hashes[i])
			if resp == nil {
				done <- fmt.Errorf("request %d: no response", i)
				return
			}
			want := fmt.Sprintf("payload-%d", i)
			if string(resp.Payload) != want {
				done <- fmt.Errorf("request %d payload = %q, want %q", i, resp.Payload, want)
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}

func requestContentNoFatal(from *TestNode, hash router.ContentHash) *router.ContentResponse {
	req := router.NewContentRequest(hash, from.ID)
	body, err := json.Marshal(req)
	if err != nil {
		return nil
	}
	resp, err := http.Post(from.Server.URL+"/v1/content/request", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var out router.ContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil
	}
	return &out
}
