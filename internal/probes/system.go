package probes

import (
	"context"
	"fmt"

	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
)

// sysInfoExecutor reports the environment snapshot back as a supported
// capability. It anchors the catalog: every run records what it ran against.
func sysInfoExecutor() registry.Executor {
	return registry.ExecutorFunc(func(_ context.Context, env model.Environment) (model.Outcome, error) {
		return model.Outcome{
			Status: model.StatusSupported,
			Details: fmt.Sprintf("%s/%s, %d CPUs, %s on %s",
				env.OS, env.Arch, env.NumCPU, env.GoVersion, env.Hostname),
			Payload: map[string]any{
				"hostname":   env.Hostname,
				"os":         env.OS,
				"arch":       env.Arch,
				"num_cpu":    env.NumCPU,
				"go_version": env.GoVersion,
			},
		}, nil
	})
}
