// Package envinfo identifies the host environment a run executes against.
package envinfo

import (
	"os"
	"runtime"

	"github.com/probelab/capscan/internal/model"
)

// Snapshot captures the read-only environment record supplied to every probe
// for the duration of one run.
func Snapshot() model.Environment {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return model.Environment{
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
}
