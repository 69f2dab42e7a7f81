package probes

import (
	"testing"
	"time"

	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/registry"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func freezeAll(t *testing.T, defs []registry.Definition) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("Register %s: %v", def.ID, err)
		}
	}
	if err := reg.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return reg
}

func TestCatalogDefaultsFreezeCleanly(t *testing.T) {
	defs := Catalog(config.DefaultManifest())
	reg := freezeAll(t, defs)

	if _, ok := reg.Get(IDSysInfo); !ok {
		t.Errorf("%s missing from default catalog", IDSysInfo)
	}
	// The throughput probe moves real traffic; it is opt-in.
	if _, ok := reg.Get(IDSpeedtest); ok {
		t.Errorf("%s enabled by default, want opt-in", IDSpeedtest)
	}
}

func TestCatalogDependenciesPrecedeDependents(t *testing.T) {
	defs := Catalog(config.DefaultManifest())

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		for _, dep := range def.Requires {
			if !seen[dep] {
				t.Errorf("%s requires %s, which is registered later", def.ID, dep)
			}
		}
		seen[def.ID] = true
	}
}

func TestCatalogEnableSpeedtest(t *testing.T) {
	m := config.DefaultManifest()
	m.Probes = map[string]config.ProbeSettings{
		IDSpeedtest: {Enabled: boolPtr(true)},
	}

	reg := freezeAll(t, Catalog(m))
	def, ok := reg.Get(IDSpeedtest)
	if !ok {
		t.Fatalf("%s not in catalog after enabling", IDSpeedtest)
	}
	if len(def.Requires) != 1 || def.Requires[0] != IDDNS {
		t.Errorf("%s Requires = %v, want [%s]", IDSpeedtest, def.Requires, IDDNS)
	}
}

func TestCatalogDisablePrunesDependencies(t *testing.T) {
	m := config.DefaultManifest()
	m.Probes = map[string]config.ProbeSettings{
		IDDNS: {Enabled: boolPtr(false)},
	}

	defs := Catalog(m)
	reg := freezeAll(t, defs)

	if _, ok := reg.Get(IDDNS); ok {
		t.Fatalf("%s still present after disabling", IDDNS)
	}

	// net.tcp depended on net.dns; the reference must be pruned so the
	// registry still freezes.
	tcp, ok := reg.Get(IDTCP)
	if !ok {
		t.Fatalf("%s missing", IDTCP)
	}
	for _, dep := range tcp.Requires {
		if dep == IDDNS {
			t.Errorf("%s still requires disabled probe %s", IDTCP, IDDNS)
		}
	}
}

func TestCatalogAppliesOverrides(t *testing.T) {
	m := config.DefaultManifest()
	m.Probes = map[string]config.ProbeSettings{
		IDTCP: {
			TimeoutMS:          1500,
			MaxRetries:         intPtr(4),
			RetryBackoffMS:     250,
			ExponentialBackoff: boolPtr(true),
			Target:             "db.internal:5432",
		},
		IDScratchWrite: {
			RunOnDependencyFailure: boolPtr(true),
		},
	}

	reg := freezeAll(t, Catalog(m))

	tcp, _ := reg.Get(IDTCP)
	if tcp.Timeout != 1500*time.Millisecond {
		t.Errorf("Timeout = %v, want 1.5s", tcp.Timeout)
	}
	if tcp.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", tcp.MaxRetries)
	}
	if tcp.RetryBackoff != 250*time.Millisecond {
		t.Errorf("RetryBackoff = %v, want 250ms", tcp.RetryBackoff)
	}
	if !tcp.ExponentialBackoff {
		t.Error("ExponentialBackoff not applied")
	}

	scratch, _ := reg.Get(IDScratchWrite)
	if !scratch.RunOnDependencyFailure {
		t.Error("RunOnDependencyFailure not applied")
	}
}

func TestCatalogExecutorsPresent(t *testing.T) {
	for _, def := range Catalog(config.DefaultManifest()) {
		if def.Exec == nil {
			t.Errorf("%s has no executor", def.ID)
		}
		if def.Category == "" {
			t.Errorf("%s has no category", def.ID)
		}
	}
}
