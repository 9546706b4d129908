package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/activity"
	"github.com/cashew-network/cashew-node/pkg/config"
	"github.com/cashew-network/cashew-node/pkg/contribution"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/gossip"
	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/middleware"
	"github.com/cashew-network/cashew-node/pkg/notify"
	"github.com/cashew-network/cashew-node/pkg/peermanager"
	"github.com/cashew-network/cashew-node/pkg/revocation"
	"github.com/cashew-network/cashew-node/pkg/router"
	"github.com/cashew-network/cashew-node/pkg/session"
	"github.com/cashew-network/cashew-node/pkg/store"
	"github.com/cashew-network/cashew-node/pkg/transport"
)

// Node wires every Core and Transport package into one running process,
// the same role cmd/ghostnodes.Server played for the onion/swarm/directory
// stack: one struct, one Start/WaitForShutdown lifecycle.
type Node struct {
	cfg      *config.Config
	self     *identity.Identity
	selfID   identity.NodeID
	onionKey struct {
		pub, priv [32]byte
	}

	sessions   *session.Manager
	gossipProto *gossip.Protocol
	gossipSched *gossip.Scheduler
	routerTable *router.Table
	routerEngine *router.Router
	pending     *router.PendingTable
	contribTracker *contribution.Tracker
	contribEngine  *contribution.Engine
	revocations    *revocation.Broadcaster
	peers          *peermanager.Manager
	activityMon    *activity.Monitor
	contentStore   *store.ContentStore
	notifier       *notify.Notifier

	bandwidth *middleware.BandwidthLimiter
	rateLimit *middleware.RateLimiter

	client *transport.Client
	server *transport.Server

	identityKeysMu sync.RWMutex
	identityKeys   map[identity.NodeID]ed25519.PublicKey
	onionKeysMu    sync.RWMutex
	onionKeys      map[identity.NodeID][32]byte

	reverseRoutesMu sync.Mutex
	reverseRoutes   map[router.RequestID]string

	waitersMu sync.Mutex
	waiters   map[router.RequestID]chan router.ContentResponse

	stop chan struct{}
}

// NewNode constructs a Node from loaded configuration and identity. It
// wires every handler but does not start listening or dialing; call
// Start for that.
func NewNode(cfg *config.Config, self *identity.Identity) (*Node, error) {
	onionPub, onionPriv, err := cryptoprim.X25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate onion routing keypair: %w", err)
	}

	n := &Node{
		cfg:          cfg,
		self:         self,
		selfID:       self.ID(),
		identityKeys:  make(map[identity.NodeID]ed25519.PublicKey),
		onionKeys:     make(map[identity.NodeID][32]byte),
		reverseRoutes: make(map[router.RequestID]string),
		waiters:       make(map[router.RequestID]chan router.ContentResponse),
		stop:          make(chan struct{}),
	}
	copy(n.onionKey.pub[:], onionPub)
	copy(n.onionKey.priv[:], onionPriv)

	n.sessions = session.NewManager(self)
	n.routerTable = router.NewTable()
	n.routerEngine = router.NewRouter(n.selfID, n.routerTable)
	n.pending = router.NewPendingTable()
	n.contribTracker = contribution.NewTracker()
	n.contribEngine = contribution.NewEngine(n.contribTracker)
	n.revocations = revocation.NewBroadcaster()
	n.activityMon = activity.NewMonitor(n.contribTracker, 256)

	policy := peermanager.Policy{
		MinConnections:    cfg.ConnectionPolicy.MinConnections,
		MaxConnections:    cfg.ConnectionPolicy.MaxConnections,
		TargetConnections: cfg.ConnectionPolicy.TargetConnections,
		IdleTimeout:       time.Duration(cfg.ConnectionPolicy.IdleTimeoutSec) * time.Second,
		MaintenanceEvery:  time.Duration(cfg.ConnectionPolicy.MaintenanceSec) * time.Second,
	}
	n.peers = peermanager.NewManager(policy, n.dialPeer)

	n.gossipProto = gossip.NewProtocol(n.selfID, n.sendGossip, cfg.Gossip.MaxSeenMessages)
	if cfg.Gossip.Fanout > 0 {
		n.gossipProto.SetFanout(cfg.Gossip.Fanout)
	}
	n.gossipSched = gossip.NewScheduler(n.gossipProto, n.buildPeerAnnouncement, n.buildNetworkStateUpdate)
	if cfg.Gossip.PeerIntervalSec > 0 {
		n.gossipSched.SetPeerAnnounceInterval(time.Duration(cfg.Gossip.PeerIntervalSec) * time.Second)
	}
	if cfg.Gossip.StateIntervalSec > 0 {
		n.gossipSched.SetStateUpdateInterval(time.Duration(cfg.Gossip.StateIntervalSec) * time.Second)
	}
	n.gossipProto.RegisterHandler(gossip.PeerAnnouncement, n.handlePeerAnnouncement)
	n.gossipProto.RegisterHandler(gossip.ContentAnnouncement, n.handleContentAnnouncement)
	n.gossipProto.RegisterHandler(gossip.KeyRevocationMsg, n.handleGossipRevocation)
	n.gossipProto.RegisterHandler(gossip.NetworkStateUpdate, n.handleNetworkStateUpdate)

	var storageBackend store.Storage
	if cfg.Storage.Backend == "rocksdb" && cfg.Storage.Path != "" {
		rdb, err := store.NewRocksDBStorage(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open rocksdb storage: %w", err)
		}
		storageBackend = rdb
	} else {
		storageBackend = store.NewMemoryStorage()
	}
	n.contentStore = store.NewContentStore(storageBackend)

	if cfg.Notify.Enabled {
		notifier, err := newNotifierFromConfig(cfg.Notify)
		if err != nil {
			log.Printf("notify: disabled, failed to configure: %v", err)
		} else {
			n.notifier = notifier
		}
	}

	if cfg.RateLimit.Enabled {
		n.rateLimit = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	n.bandwidth = middleware.NewBandwidthLimiter(int(cfg.ConnectionPolicy.MaxConnections)*1<<20, 64<<20)

	if err := n.loadPersistedState(); err != nil {
		log.Printf("warning: failed to rehydrate persisted state: %v", err)
	}

	if err := n.loadBootstrapNodes(); err != nil {
		return nil, fmt.Errorf("load bootstrap nodes: %w", err)
	}

	client, err := transport.NewClient(transport.ClientConfig{
		CAFile:   cfg.MTLS.CAFile,
		CertFile: cfg.MTLS.CertFile,
		KeyFile:  cfg.MTLS.KeyFile,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		log.Printf("warning: transport client unavailable (mTLS not configured): %v", err)
	}
	n.client = client

	n.server = transport.NewServer(transport.ServerConfig{
		ListenAddress: cfg.ListenAddress,
		CertFile:      cfg.MTLS.CertFile,
		KeyFile:       cfg.MTLS.KeyFile,
		CAFile:        cfg.MTLS.CAFile,
	}, sessionHandler{n}, gossipHandler{n}, routerRequestHandler{n}, routerResponseHandler{n}, revocationHandler{n})
	n.server.SetMiddleware(n.httpMiddleware)

	return n, nil
}

// loadPersistedState rehydrates the routing table and revocation
// broadcaster from whatever a previous run left in the content store.
func (n *Node) loadPersistedState() error {
	ads, err := n.contentStore.LoadAdvertisements()
	if err != nil {
		return err
	}
	for _, ad := range ads {
		n.routerTable.AdvertiseContent(ad.Node, ad.Hash)
	}

	revs, err := n.contentStore.LoadRevocations()
	if err != nil {
		return err
	}
	for _, r := range revs {
		_ = n.revocations.ProcessRevocation(r)
	}
	return nil
}

func (n *Node) loadBootstrapNodes() error {
	for _, bn := range n.cfg.BootstrapNodes {
		pub, err := hex.DecodeString(bn.PublicKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("bootstrap node %s: invalid public_key", bn.Address)
		}
		id := identity.DeriveNodeID(pub)
		n.rememberIdentityKey(id, pub)
		n.peers.AddBootstrap(id, bn.Address)
	}
	return nil
}

func (n *Node) rememberIdentityKey(id identity.NodeID, pub ed25519.PublicKey) {
	n.identityKeysMu.Lock()
	defer n.identityKeysMu.Unlock()
	n.identityKeys[id] = append(ed25519.PublicKey(nil), pub...)
}

func (n *Node) lookupIdentityKey(id identity.NodeID) (ed25519.PublicKey, bool) {
	n.identityKeysMu.RLock()
	defer n.identityKeysMu.RUnlock()
	pub, ok := n.identityKeys[id]
	return pub, ok
}

func (n *Node) rememberOnionKey(id identity.NodeID, pub [32]byte) {
	n.onionKeysMu.Lock()
	defer n.onionKeysMu.Unlock()
	n.onionKeys[id] = pub
}

func (n *Node) lookupOnionKey(id identity.NodeID) ([32]byte, bool) {
	n.onionKeysMu.RLock()
	defer n.onionKeysMu.RUnlock()
	pub, ok := n.onionKeys[id]
	return pub, ok
}

func (n *Node) recordReverseRoute(id router.RequestID, prevAddress string) {
	n.reverseRoutesMu.Lock()
	defer n.reverseRoutesMu.Unlock()
	n.reverseRoutes[id] = prevAddress
}

func (n *Node) takeReverseRoute(id router.RequestID) (string, bool) {
	n.reverseRoutesMu.Lock()
	defer n.reverseRoutesMu.Unlock()
	addr, ok := n.reverseRoutes[id]
	if ok {
		delete(n.reverseRoutes, id)
	}
	return addr, ok
}

func (n *Node) forgetReverseRoute(id router.RequestID) {
	n.reverseRoutesMu.Lock()
	defer n.reverseRoutesMu.Unlock()
	delete(n.reverseRoutes, id)
}

// RequestContent issues a ContentRequest for hash, blocking until a
// response arrives, the request times out, or ctx-equivalent deadline
// isn't reached (RequestContent itself does not take a context, matching
// router.PendingRequest's own fixed RequestTimeout). Returns the served
// payload bytes.
func (n *Node) RequestContent(hash router.ContentHash) ([]byte, error) {
	req := router.NewContentRequest(hash, n.selfID)

	waiter := make(chan router.ContentResponse, 1)
	n.waitersMu.Lock()
	n.waiters[req.ID] = waiter
	n.waitersMu.Unlock()
	defer func() {
		n.waitersMu.Lock()
		delete(n.waiters, req.ID)
		n.waitersMu.Unlock()
	}()

	n.pending.Add(req, nil)

	decision := n.routerEngine.HandleContentRequest(req)
	switch decision.Action {
	case router.ActionServe:
		if err := n.serveContentRequest(req); err != nil {
			n.pending.Resolve(req.ID)
			return nil, err
		}
	case router.ActionForward:
		if err := n.forwardContentRequest(req, decision.NextHop); err != nil {
			n.pending.Resolve(req.ID)
			return nil, err
		}
	default:
		n.pending.Resolve(req.ID)
		return nil, fmt.Errorf("no known host for content %x", hash)
	}

	select {
	case resp := <-waiter:
		return resp.Payload, nil
	case <-time.After(router.RequestTimeout):
		n.pending.Resolve(req.ID)
		return nil, fmt.Errorf("content request %x timed out", hash)
	}
}

// completeDelivery hands a ContentResponse back to whichever local
// RequestContent call is waiting on it, if any.
func (n *Node) completeDelivery(resp router.ContentResponse) {
	n.waitersMu.Lock()
	waiter, ok := n.waiters[resp.RequestID]
	n.waitersMu.Unlock()
	if !ok {
		return
	}
	select {
	case waiter <- resp:
	default:
	}
}

// httpMiddleware wraps the whole route tree with per-IP rate limiting,
// when enabled. Bandwidth accounting is per-peer rather than per-IP, so it
// is enforced inside the session/router handlers instead of here.
func (n *Node) httpMiddleware(next http.Handler) http.Handler {
	if n.rateLimit == nil {
		return next
	}
	return n.rateLimit.Middleware(next)
}

// Start brings up the transport server, the gossip scheduler, and every
// background maintenance loop.
func (n *Node) Start() error {
	if err := n.server.Start(); err != nil {
		return fmt.Errorf("start transport server: %w", err)
	}
	n.gossipSched.Start()
	go n.peers.MaintenanceLoop(n.stop)
	go n.maintenanceLoop()

	n.contribTracker.RecordOnline(n.selfID)
	log.Printf("cashewnode %s listening on %s", n.selfID, n.cfg.ListenAddress)
	return nil
}

// WaitForShutdown blocks until an interrupt, then tears everything down.
func (n *Node) WaitForShutdown() {
	n.server.WaitForShutdown()
	n.Close()
}

// Close stops every background loop and releases held resources.
func (n *Node) Close() {
	close(n.stop)
	n.gossipSched.Stop()
	n.activityMon.Stop()
	n.sessions.CloseAll()
	if n.client != nil {
		n.client.Close()
	}
	if n.notifier != nil {
		n.notifier.Close()
	}
}
