package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte("node_id: test-node\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.NodeID != "test-node" {
		t.Errorf("NodeID = %q, want %q", cfg.NodeID, "test-node")
	}
	if cfg.Gossip.Fanout != 3 {
		t.Errorf("Gossip.Fanout = %d, want 3", cfg.Gossip.Fanout)
	}
	if cfg.ConnectionPolicy.TargetConnections != 16 {
		t.Errorf("ConnectionPolicy.TargetConnections = %d, want 16", cfg.ConnectionPolicy.TargetConnections)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "memory")
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	content := "node_id: test-node\ngossip:\n  fanout: 7\nstorage:\n  backend: rocksdb\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gossip.Fanout != 7 {
		t.Errorf("Gossip.Fanout = %d, want 7", cfg.Gossip.Fanout)
	}
	if cfg.Storage.Backend != "rocksdb" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "rocksdb")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load succeeded for a missing file")
	}
}
