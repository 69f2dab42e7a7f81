// Package probes ships the built-in capability probe catalog. Each probe
// satisfies the registry executor contract; the catalog is parameterized by
// the scan manifest (enable/disable, timeouts, retries, targets).
package probes

import (
	"time"

	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/registry"
)

// Probe categories.
const (
	CategorySystem  = "system"
	CategoryStorage = "storage"
	CategoryNetwork = "network"
)

// Built-in probe ids.
const (
	IDSysInfo      = "sys.info"
	IDDiskSpace    = "storage.disk-space"
	IDScratchWrite = "storage.scratch-write"
	IDDNS          = "net.dns"
	IDTCP          = "net.tcp"
	IDTLS          = "net.tls"
	IDSpeedtest    = "net.speedtest"
)

// builtin pairs a probe's default definition with its catalog behavior.
type builtin struct {
	def              registry.Definition
	defaultTarget    string
	enabledByDefault bool
	exec             func(target string) registry.Executor
}

// builtins returns the catalog in registration order. Dependencies always
// precede their dependents.
func builtins() []builtin {
	return []builtin{
		{
			def: registry.Definition{
				ID:       IDSysInfo,
				Name:     "System information",
				Category: CategorySystem,
				Timeout:  2 * time.Second,
			},
			enabledByDefault: true,
			exec:             func(string) registry.Executor { return sysInfoExecutor() },
		},
		{
			def: registry.Definition{
				ID:       IDDiskSpace,
				Name:     "Disk space",
				Category: CategoryStorage,
				Timeout:  2 * time.Second,
			},
			defaultTarget:    "/",
			enabledByDefault: true,
			exec:             diskSpaceExecutor,
		},
		{
			def: registry.Definition{
				ID:       IDScratchWrite,
				Name:     "Scratch file write",
				Category: CategoryStorage,
				Requires: []string{IDDiskSpace},
				Timeout:  5 * time.Second,
			},
			enabledByDefault: true,
			exec:             scratchWriteExecutor,
		},
		{
			def: registry.Definition{
				ID:           IDDNS,
				Name:         "DNS resolution",
				Category:     CategoryNetwork,
				Timeout:      5 * time.Second,
				MaxRetries:   1,
				RetryBackoff: 500 * time.Millisecond,
			},
			defaultTarget:    "example.com",
			enabledByDefault: true,
			exec:             dnsExecutor,
		},
		{
			def: registry.Definition{
				ID:           IDTCP,
				Name:         "TCP connectivity",
				Category:     CategoryNetwork,
				Requires:     []string{IDDNS},
				Timeout:      5 * time.Second,
				MaxRetries:   1,
				RetryBackoff: 500 * time.Millisecond,
			},
			defaultTarget:    "example.com:443",
			enabledByDefault: true,
			exec:             tcpExecutor,
		},
		{
			def: registry.Definition{
				ID:       IDTLS,
				Name:     "TLS handshake",
				Category: CategoryNetwork,
				Requires: []string{IDTCP},
				Timeout:  10 * time.Second,
			},
			defaultTarget:    "example.com:443",
			enabledByDefault: true,
			exec:             tlsExecutor,
		},
		{
			def: registry.Definition{
				ID:       IDSpeedtest,
				Name:     "Network throughput",
				Category: CategoryNetwork,
				Requires: []string{IDDNS},
				Timeout:  2 * time.Minute,
			},
			// Heavy network work; opt in via the manifest.
			enabledByDefault: false,
			exec:             func(string) registry.Executor { return speedtestExecutor() },
		},
	}
}

// Catalog builds the built-in probe definitions with manifest overrides
// applied. Dependencies on disabled probes are pruned so the resulting set
// always freezes cleanly.
func Catalog(m config.Manifest) []registry.Definition {
	all := builtins()

	enabled := make(map[string]bool, len(all))
	for _, b := range all {
		on := b.enabledByDefault
		if s := m.Settings(b.def.ID); s.Enabled != nil {
			on = *s.Enabled
		}
		enabled[b.def.ID] = on
	}

	var defs []registry.Definition
	for _, b := range all {
		if !enabled[b.def.ID] {
			continue
		}
		def := b.def
		s := m.Settings(def.ID)

		if s.TimeoutMS > 0 {
			def.Timeout = time.Duration(s.TimeoutMS) * time.Millisecond
		}
		if s.MaxRetries != nil && *s.MaxRetries >= 0 {
			def.MaxRetries = *s.MaxRetries
		}
		if s.RetryBackoffMS > 0 {
			def.RetryBackoff = time.Duration(s.RetryBackoffMS) * time.Millisecond
		}
		if s.ExponentialBackoff != nil {
			def.ExponentialBackoff = *s.ExponentialBackoff
		}
		if s.RunOnDependencyFailure != nil {
			def.RunOnDependencyFailure = *s.RunOnDependencyFailure
		}

		target := b.defaultTarget
		if s.Target != "" {
			target = s.Target
		}
		def.Exec = b.exec(target)

		var requires []string
		for _, dep := range def.Requires {
			if enabled[dep] {
				requires = append(requires, dep)
			}
		}
		def.Requires = requires

		defs = append(defs, def)
	}
	return defs
}
