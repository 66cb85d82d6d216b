// Package config loads leader and follower process configuration from an
// optional YAML file with environment-variable overrides layered on top.
// The YAML file covers the checked-in, per-environment defaults;
// environment variables cover container/orchestrator overrides, read with
// getenv-style helpers that fall back to the value from the
// gopkg.in/yaml.v3 file or the compiled-in defaults.
package config
