// Package config loads the scheduler's node-level configuration from a
// YAML file: engine tunables, task-manager defaults, and raft bind/data-dir
// settings. Job definitions are not part of this file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of settings a schedulerd node reads at startup.
type Config struct {
	NodeID   string `yaml:"nodeId"`
	BindAddr string `yaml:"bindAddr"`
	DataDir  string `yaml:"dataDir"`

	Bootstrap bool `yaml:"bootstrap"`

	Engine EngineConfig `yaml:"engine"`
	Raft   RaftConfig   `yaml:"raft"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig configures the scheduler engine's horizon, failure retry
// delay, and auto-disable threshold. DefaultEpsilon is read from the file but
// is not passed to the engine, which uses each job's own Epsilon.
type EngineConfig struct {
	ScheduleHorizon      time.Duration `yaml:"scheduleHorizon"`
	DefaultEpsilon       time.Duration `yaml:"defaultEpsilon"`
	FailureRetryDelay    time.Duration `yaml:"failureRetryDelay"`
	DisableAfterFailures int           `yaml:"disableAfterFailures"`
}

// RaftConfig configures the leader latch's timeouts, mirroring
// pkg/leader.Config's fields one-to-one so the YAML file and the runtime
// struct stay in lockstep.
type RaftConfig struct {
	HeartbeatTimeout   time.Duration `yaml:"heartbeatTimeout"`
	ElectionTimeout    time.Duration `yaml:"electionTimeout"`
	CommitTimeout      time.Duration `yaml:"commitTimeout"`
	LeaderLeaseTimeout time.Duration `yaml:"leaderLeaseTimeout"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is supplied, tuned
// the same way pkg/leader.Config.withDefaults tunes a bare Config for
// sub-10s failover.
func Default() Config {
	return Config{
		BindAddr:  "127.0.0.1:7946",
		DataDir:   "./data",
		Bootstrap: true,
		Engine: EngineConfig{
			ScheduleHorizon:      10 * time.Second,
			DefaultEpsilon:       0,
			FailureRetryDelay:    30 * time.Second,
			DisableAfterFailures: 0,
		},
		Raft: RaftConfig{
			HeartbeatTimeout:   500 * time.Millisecond,
			ElectionTimeout:    500 * time.Millisecond,
			CommitTimeout:      50 * time.Millisecond,
			LeaderLeaseTimeout: 250 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses a YAML config file, starting from Default() so a
// partial file only overrides the fields it sets.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.NodeID == "" {
		return Config{}, fmt.Errorf("config %s: nodeId is required", path)
	}
	return cfg, nil
}
