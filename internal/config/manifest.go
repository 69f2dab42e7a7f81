package config

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Manifest defaults.
const (
	DefaultConcurrency = 4
)

// Manifest is the YAML scan manifest. It tunes the probe catalog and the run
// itself; a missing manifest means all defaults.
type Manifest struct {
	// Concurrency caps simultaneously outstanding probes per run.
	Concurrency int `yaml:"concurrency"`

	// GlobalTimeoutMS is the overall run deadline in milliseconds. Zero
	// disables the global deadline.
	GlobalTimeoutMS int64 `yaml:"global_timeout_ms"`

	// Schedule is an optional cron spec for periodic scans (empty disables).
	Schedule string `yaml:"schedule"`

	// Probes overrides built-in probe settings, keyed by probe id.
	Probes map[string]ProbeSettings `yaml:"probes"`
}

// ProbeSettings tunes one built-in probe. Pointer fields distinguish "unset"
// from explicit zero values.
type ProbeSettings struct {
	Enabled                *bool  `yaml:"enabled"`
	TimeoutMS              int64  `yaml:"timeout_ms"`
	MaxRetries             *int   `yaml:"max_retries"`
	RetryBackoffMS         int64  `yaml:"retry_backoff_ms"`
	ExponentialBackoff     *bool  `yaml:"exponential_backoff"`
	RunOnDependencyFailure *bool  `yaml:"run_on_dependency_failure"`
	Target                 string `yaml:"target"`
}

// DefaultManifest returns the manifest used when no file is configured.
func DefaultManifest() Manifest {
	return Manifest{Concurrency: DefaultConcurrency}
}

// LoadManifest reads and parses the YAML manifest at path. An empty path
// yields the default manifest.
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	m := DefaultManifest()
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Concurrency <= 0 {
		m.Concurrency = DefaultConcurrency
	}
	return m, nil
}

// GlobalTimeout returns the run deadline as a duration, zero when disabled.
func (m Manifest) GlobalTimeout() time.Duration {
	if m.GlobalTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(m.GlobalTimeoutMS) * time.Millisecond
}

// Settings returns the overrides for a probe id, or the zero value when the
// manifest has none.
func (m Manifest) Settings(id string) ProbeSettings {
	return m.Probes[id]
}
