package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Engine.DefaultTopology != shared.TopologyMesh {
		t.Errorf("expected default topology mesh, got %s", cfg.Engine.DefaultTopology)
	}
	if cfg.Engine.StateSyncIntervalMs != 1000 {
		t.Errorf("expected sync interval 1000ms, got %d", cfg.Engine.StateSyncIntervalMs)
	}
	if cfg.Healing.MaxRestartAttempts != 3 {
		t.Errorf("expected 3 restart attempts, got %d", cfg.Healing.MaxRestartAttempts)
	}
	if cfg.Engine.AdaptiveStarThreshold != 5 || cfg.Engine.AdaptiveHierarchicalThreshold != 20 {
		t.Errorf("unexpected adaptive thresholds: %d/%d",
			cfg.Engine.AdaptiveStarThreshold, cfg.Engine.AdaptiveHierarchicalThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarmflow.yaml")
	content := `
engine:
  default_topology: ring
  consensus_algorithm: gossip
  state_sync_interval_ms: 250
store:
  path: ` + filepath.Join(dir, "test.db") + `
web:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SWARMFLOW_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Engine.DefaultTopology != shared.TopologyRing {
		t.Errorf("expected ring, got %s", cfg.Engine.DefaultTopology)
	}
	if cfg.Engine.ConsensusAlgorithm != shared.AlgorithmGossip {
		t.Errorf("expected gossip, got %s", cfg.Engine.ConsensusAlgorithm)
	}
	if cfg.Engine.StateSyncIntervalMs != 250 {
		t.Errorf("expected 250, got %d", cfg.Engine.StateSyncIntervalMs)
	}
	if cfg.Web.Enabled {
		t.Error("web should be disabled")
	}
	// Values absent from the file keep their defaults.
	if cfg.Healing.LatencyWindowSize != 20 {
		t.Errorf("expected default latency window 20, got %d", cfg.Healing.LatencyWindowSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWARMFLOW_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SWARMFLOW_TOPOLOGY", "star")
	t.Setenv("SWARMFLOW_SYNC_INTERVAL_MS", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.DefaultTopology != shared.TopologyStar {
		t.Errorf("expected star, got %s", cfg.Engine.DefaultTopology)
	}
	if cfg.Engine.StateSyncIntervalMs != 500 {
		t.Errorf("expected 500, got %d", cfg.Engine.StateSyncIntervalMs)
	}
}

func TestValidateRejectsBadTopology(t *testing.T) {
	cfg := Default()
	cfg.Engine.DefaultTopology = "torus"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
}
