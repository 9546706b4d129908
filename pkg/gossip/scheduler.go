package gossip

import (
	"sync"
	"time"
)

const (
	// DefaultPeerAnnounceInterval is how often the scheduler re-announces
	// this node's own presence.
	DefaultPeerAnnounceInterval = 300 * time.Second
	// DefaultStateUpdateInterval is how often the scheduler pushes a
	// network state summary.
	DefaultStateUpdateInterval = 600 * time.Second
)

// Scheduler periodically originates PeerAnnouncement and
// NetworkStateUpdate gossip messages, mirroring the teacher's
// cmd/ghostnodes cleanupLoop ticker-goroutine idiom.
type Scheduler struct {
	mu sync.Mutex

	protocol *Protocol

	peerInterval  time.Duration
	stateInterval time.Duration

	announcePeer  func() []byte
	announceState func() []byte

	stop    chan struct{}
	running bool
}

// NewScheduler constructs a Scheduler. announcePeer and announceState build
// the payload for each respective message type at broadcast time.
func NewScheduler(p *Protocol, announcePeer, announceState func() []byte) *Scheduler {
	return &Scheduler{
		protocol:      p,
		peerInterval:  DefaultPeerAnnounceInterval,
		stateInterval: DefaultStateUpdateInterval,
		announcePeer:  announcePeer,
		announceState: announceState,
		stop:          make(chan struct{}),
	}
}

// SetPeerAnnounceInterval overrides the peer-announcement cadence.
func (s *Scheduler) SetPeerAnnounceInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerInterval = d
}

// SetStateUpdateInterval overrides the state-update cadence.
func (s *Scheduler) SetStateUpdateInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateInterval = d
}

// IsRunning reports whether the scheduler's background loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the background ticker loop. Calling Start twice without an
// intervening Stop is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	peerInterval := s.peerInterval
	stateInterval := s.stateInterval
	s.mu.Unlock()

	go s.loop(peerInterval, stateInterval, s.stop)
}

// Stop halts the background loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
}

func (s *Scheduler) loop(peerInterval, stateInterval time.Duration, stop chan struct{}) {
	peerTicker := time.NewTicker(peerInterval)
	stateTicker := time.NewTicker(stateInterval)
	defer peerTicker.Stop()
	defer stateTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-peerTicker.C:
			if s.announcePeer != nil {
				_ = s.protocol.BroadcastMessage(PeerAnnouncement, s.announcePeer())
			}
		case <-stateTicker.C:
			if s.announceState != nil {
				_ = s.protocol.BroadcastMessage(NetworkStateUpdate, s.announceState())
			}
		}
	}
}
