package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as a string like
// "2s" in the YAML config file, matching how operators actually write
// durations rather than as raw nanosecond integers.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// LeaderConfig configures the leader process: the ring it expects to
// fill, and the 2PC timeouts that must be tunable rather than compiled
// in.
type LeaderConfig struct {
	Capacity        int      `yaml:"capacity"`
	Redundancy      int      `yaml:"redundancy"`
	MaxThreads      int      `yaml:"max_threads"`
	Hostname        string   `yaml:"hostname"`
	Port            int      `yaml:"port"`
	VoteTimeout     Duration `yaml:"vote_timeout"`
	RetryBackoffMin Duration `yaml:"retry_backoff_min"`
	RetryBackoffMax Duration `yaml:"retry_backoff_max"`
}

// FollowerConfig configures a follower process: where it stores data
// and which leader it registers with.
type FollowerConfig struct {
	Dirname    string `yaml:"dirname"`
	Hostname   string `yaml:"hostname"`
	Port       int    `yaml:"port"`
	LeaderAddr string `yaml:"leader_addr"`
	MaxThreads int    `yaml:"max_threads"`
}

func defaultLeaderConfig() LeaderConfig {
	return LeaderConfig{
		Capacity:        3,
		Redundancy:      2,
		MaxThreads:      64,
		Hostname:        "0.0.0.0",
		Port:            8080,
		VoteTimeout:     Duration{2 * time.Second},
		RetryBackoffMin: Duration{50 * time.Millisecond},
		RetryBackoffMax: Duration{2 * time.Second},
	}
}

func defaultFollowerConfig() FollowerConfig {
	return FollowerConfig{
		Dirname:    "data",
		Hostname:   "0.0.0.0",
		Port:       9000,
		LeaderAddr: "127.0.0.1:8080",
		MaxThreads: 64,
	}
}

// LoadLeaderConfig builds a LeaderConfig from documented defaults, an
// optional YAML file at path (skipped entirely if path is empty), and
// environment variable overrides, in that order of increasing priority.
func LoadLeaderConfig(path string) (*LeaderConfig, error) {
	cfg := defaultLeaderConfig()
	if path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.Capacity = getenvInt("LEADER_CAPACITY", cfg.Capacity)
	cfg.Redundancy = getenvInt("LEADER_REDUNDANCY", cfg.Redundancy)
	cfg.MaxThreads = getenvInt("LEADER_MAX_THREADS", cfg.MaxThreads)
	cfg.Hostname = getenv("LEADER_HOSTNAME", cfg.Hostname)
	cfg.Port = getenvInt("LEADER_PORT", cfg.Port)
	cfg.VoteTimeout.Duration = getenvDuration("LEADER_VOTE_TIMEOUT", cfg.VoteTimeout.Duration)
	cfg.RetryBackoffMin.Duration = getenvDuration("LEADER_RETRY_BACKOFF_MIN", cfg.RetryBackoffMin.Duration)
	cfg.RetryBackoffMax.Duration = getenvDuration("LEADER_RETRY_BACKOFF_MAX", cfg.RetryBackoffMax.Duration)

	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("config: capacity must be >= 1")
	}
	if cfg.Redundancy < 1 || cfg.Redundancy > cfg.Capacity {
		return nil, fmt.Errorf("config: redundancy must satisfy 1 <= R <= capacity")
	}
	return &cfg, nil
}

// LoadFollowerConfig is LoadLeaderConfig's counterpart for a follower
// process.
func LoadFollowerConfig(path string) (*FollowerConfig, error) {
	cfg := defaultFollowerConfig()
	if path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.Dirname = getenv("FOLLOWER_DIRNAME", cfg.Dirname)
	cfg.Hostname = getenv("FOLLOWER_HOSTNAME", cfg.Hostname)
	cfg.Port = getenvInt("FOLLOWER_PORT", cfg.Port)
	cfg.LeaderAddr = getenv("FOLLOWER_LEADER_ADDR", cfg.LeaderAddr)
	cfg.MaxThreads = getenvInt("FOLLOWER_MAX_THREADS", cfg.MaxThreads)

	if cfg.Dirname == "" {
		return nil, fmt.Errorf("config: dirname must not be empty")
	}
	return &cfg, nil
}

func loadYAMLFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// getenv retrieves an environment variable with a default fallback.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
