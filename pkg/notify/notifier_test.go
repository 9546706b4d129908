package notify

import (
	"testing"
	"time"
)

func TestNewNotifierInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "empty config", config: Config{}},
		{name: "missing KeyID", config: Config{TeamID: "TEAM123", P8KeyData: []byte("x")}},
		{name: "missing TeamID", config: Config{KeyID: "KEY123", P8KeyData: []byte("x")}},
		{name: "missing P8KeyData", config: Config{KeyID: "KEY123", TeamID: "TEAM123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewNotifier(tt.config); err == nil {
				t.Error("NewNotifier() expected an error, got nil")
			}
		})
	}
}

func TestRegisterAndUnregisterDevice(t *testing.T) {
	n := &Notifier{registrations: make(map[string]*DeviceRegistration), topic: "com.cashew.node"}

	n.RegisterDevice("operator-1", "device-token-123")
	reg, ok := n.GetRegistration("operator-1")
	if !ok {
		t.Fatal("expected registration to exist")
	}
	if reg.DeviceToken != "device-token-123" {
		t.Errorf("DeviceToken = %q, want %q", reg.DeviceToken, "device-token-123")
	}

	n.UnregisterDevice("operator-1")
	if _, ok := n.GetRegistration("operator-1"); ok {
		t.Error("expected registration to be gone after UnregisterDevice")
	}
}

func TestCleanupRemovesStaleRegistrations(t *testing.T) {
	n := &Notifier{registrations: make(map[string]*DeviceRegistration)}

	n.registrations["stale"] = &DeviceRegistration{
		OperatorID:  "stale",
		DeviceToken: "tok",
		LastSeen:    time.Now().Add(-31 * 24 * time.Hour),
	}
	n.registrations["fresh"] = &DeviceRegistration{
		OperatorID:  "fresh",
		DeviceToken: "tok",
		LastSeen:    time.Now(),
	}

	removed := n.Cleanup()
	if removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if _, ok := n.GetRegistration("stale"); ok {
		t.Error("stale registration should have been removed")
	}
	if _, ok := n.GetRegistration("fresh"); !ok {
		t.Error("fresh registration should remain")
	}
}

func TestAlertTitleCoversKnownEventTypes(t *testing.T) {
	for _, et := range []EventType{EventKeyRewardIssued, EventKeyRevoked, EventPeerUnreachable, EventType("unknown")} {
		if alertTitle(et) == "" {
			t.Errorf("alertTitle(%q) returned empty string", et)
		}
	}
}
