// Package notify sends operator push alerts (key reward issuance, key
// revocation) via APNs, adapted from the teacher's pkg/apns: the same
// token-based client setup and device-registration bookkeeping, but the
// payload is an Alert about network events instead of an
// end-user message notification, and registrations key by operator
// device rather than by chat session.
package notify

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

// EventType identifies which kind of network event triggered an alert.
type EventType string

const (
	EventKeyRewardIssued EventType = "key_reward_issued"
	EventKeyRevoked      EventType = "key_revoked"
	EventPeerUnreachable EventType = "peer_unreachable"
)

// Alert is what gets pushed to an operator's device.
type Alert struct {
	Type      EventType
	Node      identity.NodeID
	Detail    string
	Timestamp time.Time
}

// DeviceRegistration is an operator device subscribed to alerts.
type DeviceRegistration struct {
	OperatorID   string
	DeviceToken  string
	RegisteredAt time.Time
	LastSeen     time.Time
}

// Config configures the APNs client, identical in shape to the teacher's
// apns.Config (token-based auth only — certificate-based auth was never
// wired up in the teacher either, so it is not reintroduced here).
type Config struct {
	KeyID     string
	TeamID    string
	P8KeyData []byte

	Topic      string
	Production bool
}

// Notifier sends operator alerts via APNs.
type Notifier struct {
	client        *apns2.Client
	topic         string
	registrations map[string]*DeviceRegistration // operatorID -> registration
	mu            sync.RWMutex
	production    bool
}

// NewNotifier builds a Notifier from token-based APNs credentials.
func NewNotifier(config Config) (*Notifier, error) {
	if config.KeyID == "" || config.TeamID == "" {
		return nil, errors.New("KeyID and TeamID are required")
	}
	if len(config.P8KeyData) == 0 {
		return nil, errors.New("P8KeyData must be provided")
	}

	block, _ := pem.Decode(config.P8KeyData)
	if block == nil {
		return nil, errors.New("failed to decode P8 key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse P8 key: %w", err)
	}
	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not ECDSA")
	}

	authKey := &token.Token{AuthKey: ecdsaKey, KeyID: config.KeyID, TeamID: config.TeamID}

	var client *apns2.Client
	if config.Production {
		client = apns2.NewTokenClient(authKey).Production()
	} else {
		client = apns2.NewTokenClient(authKey).Development()
	}

	return &Notifier{
		client:        client,
		topic:         config.Topic,
		registrations: make(map[string]*DeviceRegistration),
		production:    config.Production,
	}, nil
}

// RegisterDevice subscribes an operator's device to alerts.
func (n *Notifier) RegisterDevice(operatorID, deviceToken string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	n.registrations[operatorID] = &DeviceRegistration{
		OperatorID:   operatorID,
		DeviceToken:  deviceToken,
		RegisteredAt: now,
		LastSeen:     now,
	}
	log.Printf("[notify] registered device for operator %s", operatorID)
}

// UnregisterDevice removes an operator's subscription.
func (n *Notifier) UnregisterDevice(operatorID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.registrations, operatorID)
	log.Printf("[notify] unregistered device for operator %s", operatorID)
}

// GetRegistration returns an operator's device registration, if any.
func (n *Notifier) GetRegistration(operatorID string) (DeviceRegistration, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	reg, ok := n.registrations[operatorID]
	if !ok {
		return DeviceRegistration{}, false
	}
	return *reg, true
}

func alertTitle(t EventType) string {
	switch t {
	case EventKeyRewardIssued:
		return "Key reward issued"
	case EventKeyRevoked:
		return "Key revoked"
	case EventPeerUnreachable:
		return "Peer unreachable"
	default:
		return "Network event"
	}
}

// SendAlert pushes one alert to the named operator's registered device.
func (n *Notifier) SendAlert(ctx context.Context, operatorID string, alert Alert) error {
	reg, exists := n.GetRegistration(operatorID)
	if !exists {
		return fmt.Errorf("no device registered for operator %s", operatorID)
	}

	notification := &apns2.Notification{
		DeviceToken: reg.DeviceToken,
		Topic:       n.topic,
		Payload: map[string]interface{}{
			"aps": map[string]interface{}{
				"alert": map[string]interface{}{
					"title": alertTitle(alert.Type),
					"body":  alert.Detail,
				},
				"sound": "default",
			},
			"event_type": string(alert.Type),
			"node_id":    alert.Node.String(),
			"timestamp":  alert.Timestamp.Unix(),
		},
		Priority:   apns2.PriorityHigh,
		Expiration: time.Now().Add(24 * time.Hour),
	}

	response, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	if response.StatusCode != 200 {
		if response.Reason == apns2.ReasonBadDeviceToken || response.Reason == apns2.ReasonUnregistered {
			n.UnregisterDevice(operatorID)
			log.Printf("[notify] removed invalid device token for operator %s: %s", operatorID, response.Reason)
		}
		return fmt.Errorf("APNs error: %s (status %d)", response.Reason, response.StatusCode)
	}

	n.mu.Lock()
	if reg, exists := n.registrations[operatorID]; exists {
		reg.LastSeen = time.Now()
	}
	n.mu.Unlock()

	return nil
}

// SendBatch pushes one alert to many operators concurrently.
func (n *Notifier) SendBatch(ctx context.Context, operatorIDs []string, alert Alert) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(operatorIDs))

	for _, id := range operatorIDs {
		wg.Add(1)
		go func(operatorID string) {
			defer wg.Done()
			if err := n.SendAlert(ctx, operatorID, alert); err != nil {
				errs <- fmt.Errorf("operator %s: %w", operatorID, err)
			}
		}(id)
	}

	wg.Wait()
	close(errs)

	var failed int
	for range errs {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("batch alert errors: %d/%d failed", failed, len(operatorIDs))
	}
	return nil
}

// Cleanup removes device registrations not seen in 30 days.
func (n *Notifier) Cleanup() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	threshold := time.Now().Add(-30 * 24 * time.Hour)
	removed := 0
	for operatorID, reg := range n.registrations {
		if reg.LastSeen.Before(threshold) {
			delete(n.registrations, operatorID)
			removed++
		}
	}
	return removed
}

// Close releases the notifier. The APNs client needs no explicit teardown.
func (n *Notifier) Close() error {
	return nil
}
