package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cashew-network/cashew-node/pkg/config"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	version := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *version {
		fmt.Printf("cashewnode %s (built %s)\n", Version, BuildTime)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	self, err := loadOrGenerateIdentity(cfg)
	if err != nil {
		log.Fatalf("failed to load identity: %v", err)
	}

	node, err := NewNode(cfg, self)
	if err != nil {
		log.Fatalf("failed to initialize node: %v", err)
	}

	if err := node.Start(); err != nil {
		log.Fatalf("failed to start node: %v", err)
	}

	node.WaitForShutdown()
}

// loadOrGenerateIdentity decrypts the configured identity file, or
// generates and persists a fresh identity if none exists yet.
func loadOrGenerateIdentity(cfg *config.Config) (*identity.Identity, error) {
	password := []byte(cfg.IdentityPassword)

	data, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		id, err := identity.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate identity: %w", err)
		}

		encoded, err := identity.Encode(id, password)
		if err != nil {
			return nil, fmt.Errorf("encode fresh identity: %w", err)
		}
		if err := os.WriteFile(cfg.IdentityFile, encoded, 0600); err != nil {
			log.Printf("warning: failed to persist identity file: %v", err)
		}
		return id, nil
	}

	id, err := identity.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode identity file: %w", err)
	}
	return id, nil
}
