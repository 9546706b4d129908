// Package config loads the node's YAML configuration, following the same
// nested-struct-per-concern layout the teacher used for its relay config.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// BootstrapNode is a statically configured entry point into the network.
type BootstrapNode struct {
	Address     string `yaml:"address"`
	PublicKey   string `yaml:"public_key"`
	Description string `yaml:"description"`
}

// ConnectionPolicy overrides the Peer Manager's defaults (see pkg/peermanager).
// Zero-valued fields fall back to the documented defaults at load time.
type ConnectionPolicy struct {
	MinConnections    int `yaml:"min_connections"`
	MaxConnections    int `yaml:"max_connections"`
	TargetConnections int `yaml:"target_connections"`
	IdleTimeoutSec    int `yaml:"idle_timeout_seconds"`
	MaintenanceSec    int `yaml:"maintenance_interval_seconds"`
}

// GossipConfig overrides the Gossip Layer's defaults (see pkg/gossip).
type GossipConfig struct {
	Fanout           int `yaml:"fanout"`
	MaxSeenMessages  int `yaml:"max_seen_messages"`
	PeerIntervalSec  int `yaml:"peer_announce_interval_seconds"`
	StateIntervalSec int `yaml:"state_update_interval_seconds"`
}

// PoWConfig overrides the Proof-of-Work engine's defaults (see pkg/pow).
type PoWConfig struct {
	Enabled           bool `yaml:"enabled"`
	StartingDifficulty int `yaml:"starting_difficulty"`
}

// MTLSConfig configures the inter-node mutual TLS transport.
type MTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "rocksdb"
	Path      string `yaml:"path"`
	MaxSizeGB int    `yaml:"max_size_gb"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// NotifyConfig configures the operator push-notification channel.
type NotifyConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AuthKeyFile string `yaml:"auth_key_file"`
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	Topic       string `yaml:"topic"`
	Production  bool   `yaml:"production"`
}

// RateLimitConfig configures the HTTP request-rate middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// Config is the node's full configuration, loaded once at startup.
type Config struct {
	NodeID           string `yaml:"node_id"`
	IdentityFile     string `yaml:"identity_file"`
	IdentityPassword string `yaml:"identity_password"`

	ListenAddress string `yaml:"listen_address"`
	PublicAddress string `yaml:"public_address"`

	BootstrapNodes []BootstrapNode `yaml:"bootstrap_nodes"`

	ConnectionPolicy ConnectionPolicy `yaml:"connection_policy"`
	Gossip           GossipConfig     `yaml:"gossip"`
	PoW              PoWConfig        `yaml:"pow"`
	MTLS             MTLSConfig       `yaml:"mtls"`
	Storage          StorageConfig    `yaml:"storage"`
	RateLimit        RateLimitConfig  `yaml:"rate_limit"`
	Metrics          MetricsConfig    `yaml:"metrics"`
	Logging          LoggingConfig    `yaml:"logging"`
	Notify           NotifyConfig     `yaml:"notify"`
}

// Load reads and parses a YAML config file, applying documented defaults to
// any zero-valued field that has one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ConnectionPolicy.MinConnections == 0 {
		cfg.ConnectionPolicy.MinConnections = 4
	}
	if cfg.ConnectionPolicy.MaxConnections == 0 {
		cfg.ConnectionPolicy.MaxConnections = 64
	}
	if cfg.ConnectionPolicy.TargetConnections == 0 {
		cfg.ConnectionPolicy.TargetConnections = 16
	}
	if cfg.ConnectionPolicy.IdleTimeoutSec == 0 {
		cfg.ConnectionPolicy.IdleTimeoutSec = 1800
	}
	if cfg.ConnectionPolicy.MaintenanceSec == 0 {
		cfg.ConnectionPolicy.MaintenanceSec = 10
	}
	if cfg.Gossip.Fanout == 0 {
		cfg.Gossip.Fanout = 3
	}
	if cfg.Gossip.MaxSeenMessages == 0 {
		cfg.Gossip.MaxSeenMessages = 10000
	}
	if cfg.Gossip.PeerIntervalSec == 0 {
		cfg.Gossip.PeerIntervalSec = 300
	}
	if cfg.Gossip.StateIntervalSec == 0 {
		cfg.Gossip.StateIntervalSec = 600
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 50
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 100
	}
}
