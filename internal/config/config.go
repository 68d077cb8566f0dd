// Package config loads the engine configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Config is the top-level engine configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Store     StoreConfig     `yaml:"store"`
	Healing   HealingConfig   `yaml:"healing"`
	Retention RetentionConfig `yaml:"retention"`
	Web       WebConfig       `yaml:"web"`
}

// EngineConfig holds coordinator-level settings.
type EngineConfig struct {
	DefaultTopology     shared.TopologyKind           `yaml:"default_topology"`
	ConsensusAlgorithm  shared.ConsensusAlgorithmType `yaml:"consensus_algorithm"`
	MaxAgents           int                           `yaml:"max_agents"`
	StateSyncIntervalMs int                           `yaml:"state_sync_interval_ms"`
	MetricsEnabled      bool                          `yaml:"metrics_enabled"`
	HealthChecksEnabled bool                          `yaml:"health_checks_enabled"`
	SnapshotDir         string                        `yaml:"snapshot_dir"`

	// Adaptive topology size thresholds. Asserted defaults, not hard
	// requirements, so they stay tunable.
	AdaptiveStarThreshold         int `yaml:"adaptive_star_threshold"`
	AdaptiveHierarchicalThreshold int `yaml:"adaptive_hierarchical_threshold"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HealingConfig holds self-healing settings.
type HealingConfig struct {
	SelfHealingEnabled         bool `yaml:"self_healing_enabled"`
	PredictiveHealingEnabled   bool `yaml:"predictive_healing_enabled"`
	BottleneckDetectionEnabled bool `yaml:"bottleneck_detection_enabled"`
	MaxRestartAttempts         int  `yaml:"max_restart_attempts"`
	LatencyWindowSize          int  `yaml:"latency_window_size"`
	MissedProbeThreshold       int  `yaml:"missed_probe_threshold"`
	PredictiveWindowStreak     int  `yaml:"predictive_window_streak"`
	BottleneckIntervals        int  `yaml:"bottleneck_intervals"`
}

// RetentionConfig holds settings for the metric pruning job.
type RetentionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	Days     int    `yaml:"days"`
}

// WebConfig holds settings for the HTTP boundary.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// SyncInterval returns the state sync interval as a duration.
func (e EngineConfig) SyncInterval() time.Duration {
	return time.Duration(e.StateSyncIntervalMs) * time.Millisecond
}

func defaults() Config {
	return Config{
		Engine: EngineConfig{
			DefaultTopology:               shared.TopologyMesh,
			ConsensusAlgorithm:            shared.AlgorithmQuorum,
			MaxAgents:                     64,
			StateSyncIntervalMs:           1000,
			MetricsEnabled:                true,
			HealthChecksEnabled:           true,
			SnapshotDir:                   "data/sessions",
			AdaptiveStarThreshold:         5,
			AdaptiveHierarchicalThreshold: 20,
		},
		Store: StoreConfig{
			Path: "data/swarmflow.db",
		},
		Healing: HealingConfig{
			SelfHealingEnabled:         true,
			PredictiveHealingEnabled:   true,
			BottleneckDetectionEnabled: true,
			MaxRestartAttempts:         3,
			LatencyWindowSize:          20,
			MissedProbeThreshold:       3,
			PredictiveWindowStreak:     5,
			BottleneckIntervals:        3,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "0 3 * * *",
			Days:     30,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Default returns the built-in defaults without touching the filesystem.
func Default() Config {
	return defaults()
}

// Load reads the config file pointed to by SWARMFLOW_CONFIG (falling back to
// config/swarmflow.yaml), layering file values and then environment overrides
// on top of the defaults. A missing file is not an error.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("SWARMFLOW_CONFIG")
	if path == "" {
		path = "config/swarmflow.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWARMFLOW_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SWARMFLOW_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SWARMFLOW_TOPOLOGY"); v != "" {
		cfg.Engine.DefaultTopology = shared.TopologyKind(v)
	}
	if v := os.Getenv("SWARMFLOW_CONSENSUS"); v != "" {
		cfg.Engine.ConsensusAlgorithm = shared.ConsensusAlgorithmType(v)
	}
	if v := os.Getenv("SWARMFLOW_SYNC_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Engine.StateSyncIntervalMs = ms
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !shared.IsValidTopology(c.Engine.DefaultTopology) {
		return fmt.Errorf("%w: unknown default_topology %q", shared.ErrInvalidConfig, c.Engine.DefaultTopology)
	}
	if !shared.IsValidAlgorithm(c.Engine.ConsensusAlgorithm) {
		return fmt.Errorf("%w: unknown consensus_algorithm %q", shared.ErrInvalidConfig, c.Engine.ConsensusAlgorithm)
	}
	if c.Engine.MaxAgents <= 0 {
		return fmt.Errorf("%w: max_agents must be positive", shared.ErrInvalidConfig)
	}
	if c.Engine.StateSyncIntervalMs <= 0 {
		return fmt.Errorf("%w: state_sync_interval_ms must be positive", shared.ErrInvalidConfig)
	}
	if c.Healing.MaxRestartAttempts <= 0 {
		return fmt.Errorf("%w: max_restart_attempts must be positive", shared.ErrInvalidConfig)
	}
	return nil
}
