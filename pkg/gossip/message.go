// Package gossip implements the epidemic broadcast layer: bounded-hop,
// deduplicated propagation of peer announcements, content announcements,
// network state updates, key revocations and node capability advertisements.
package gossip

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// MessageType identifies the payload carried by a GossipMessage.
type MessageType byte

const (
	PeerAnnouncement   MessageType = 0x01
	ContentAnnouncement MessageType = 0x02
	NetworkStateUpdate MessageType = 0x03
	KeyRevocationMsg   MessageType = 0x04
	NodeCapability     MessageType = 0x05
)

const (
	// MaxHops bounds how many times a message is forwarded before it is
	// silently dropped regardless of novelty.
	MaxHops = 10
	// MaxAge bounds how long after creation a message is still eligible
	// for propagation.
	MaxAge = 300 * time.Second

	messageIDSize = 32
)

// MessageID uniquely identifies a gossip message for dedup purposes.
type MessageID [messageIDSize]byte

// GossipMessage is the epidemic broadcast envelope. Payload's encoding is
// determined by Type.
type GossipMessage struct {
	Type      MessageType
	ID        MessageID
	Payload   []byte
	CreatedAt time.Time
	HopCount  byte
}

// ComputeID derives a MessageID from the message's originator, type,
// payload and creation time, so retransmissions of the same logical event
// collide in the seen cache.
func ComputeID(originator identity.NodeID, t MessageType, payload []byte, createdAt time.Time) MessageID {
	buf := make([]byte, 0, len(originator)+1+len(payload)+8)
	buf = append(buf, originator[:]...)
	buf = append(buf, byte(t))
	buf = append(buf, payload...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(createdAt.Unix()))
	buf = append(buf, ts[:]...)
	return cryptoprim.BLAKE3(buf)
}

// NewMessage builds a fresh GossipMessage originated by self, with
// HopCount 0 and an id computed over the current time.
func NewMessage(self identity.NodeID, t MessageType, payload []byte) GossipMessage {
	now := time.Now()
	return GossipMessage{
		Type:      t,
		ID:        ComputeID(self, t, payload, now),
		Payload:   payload,
		CreatedAt: now,
		HopCount:  0,
	}
}

// IsTooOld reports whether the message has aged out of propagation.
func (m GossipMessage) IsTooOld() bool {
	return time.Since(m.CreatedAt) > MaxAge
}

// HasExceededHops reports whether the message has been forwarded too many times.
func (m GossipMessage) HasExceededHops() bool {
	return m.HopCount >= MaxHops
}

// Encode serializes a GossipMessage: type(1) || id(32) || hop_count(1) ||
// created_at(8) || payload_len(4) || payload.
func Encode(m GossipMessage) []byte {
	buf := make([]byte, 0, 1+32+1+8+4+len(m.Payload))
	buf = append(buf, byte(m.Type))
	buf = append(buf, m.ID[:]...)
	buf = append(buf, m.HopCount)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(m.CreatedAt.Unix()))
	buf = append(buf, ts[:]...)
	var plen [4]byte
	binary.LittleEndian.PutUint32(plen[:], uint32(len(m.Payload)))
	buf = append(buf, plen[:]...)
	buf = append(buf, m.Payload...)
	return buf
}

// Decode parses a GossipMessage produced by Encode.
func Decode(data []byte) (GossipMessage, error) {
	const headerSize = 1 + 32 + 1 + 8 + 4
	if len(data) < headerSize {
		return GossipMessage{}, fmt.Errorf("%w: gossip message shorter than header", cashewerr.ErrDecode)
	}

	var m GossipMessage
	m.Type = MessageType(data[0])
	copy(m.ID[:], data[1:33])
	m.HopCount = data[33]
	m.CreatedAt = time.Unix(int64(binary.LittleEndian.Uint64(data[34:42])), 0)
	plen := binary.LittleEndian.Uint32(data[42:46])

	if uint32(len(data)-headerSize) < plen {
		return GossipMessage{}, fmt.Errorf("%w: gossip payload truncated", cashewerr.ErrDecode)
	}
	m.Payload = append([]byte(nil), data[headerSize:headerSize+int(plen)]...)
	return m, nil
}
