package middleware

import (
	"testing"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

func TestBandwidthLimiterAllowsWithinBurst(t *testing.T) {
	bl := NewBandwidthLimiter(1000, 5000)
	var peer identity.NodeID
	peer[0] = 0x01

	if !bl.Allow(peer, 4000) {
		t.Error("expected first burst-sized send to be allowed")
	}
}

func TestBandwidthLimiterRejectsOverBurst(t *testing.T) {
	bl := NewBandwidthLimiter(10, 100)
	var peer identity.NodeID
	peer[0] = 0x02

	if bl.Allow(peer, 10000) {
		t.Error("expected a send far exceeding burst to be rejected")
	}
}

func TestBandwidthLimiterTracksPeersIndependently(t *testing.T) {
	bl := NewBandwidthLimiter(10, 50)
	var a, b identity.NodeID
	a[0], b[0] = 0x01, 0x02

	if !bl.Allow(a, 50) {
		t.Fatal("peer a should be allowed its own burst")
	}
	if !bl.Allow(b, 50) {
		t.Error("peer b should have its own independent budget")
	}
}

func TestBandwidthLimiterCleanupResetsBudgets(t *testing.T) {
	bl := NewBandwidthLimiter(10, 50)
	var peer identity.NodeID
	peer[0] = 0x03

	bl.Allow(peer, 50)
	bl.Cleanup()

	if !bl.Allow(peer, 50) {
		t.Error("expected budget to be reset after Cleanup")
	}
}
