package main

import (
	"fmt"
	"os"

	"github.com/cashew-network/cashew-node/pkg/config"
	"github.com/cashew-network/cashew-node/pkg/notify"
)

// newNotifierFromConfig builds a notify.Notifier from the node's
// configured APNs credentials.
func newNotifierFromConfig(cfg config.NotifyConfig) (*notify.Notifier, error) {
	keyData, err := os.ReadFile(cfg.AuthKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read apns auth key: %w", err)
	}

	return notify.NewNotifier(notify.Config{
		KeyID:      cfg.KeyID,
		TeamID:     cfg.TeamID,
		P8KeyData:  keyData,
		Topic:      cfg.Topic,
		Production: cfg.Production,
	})
}
