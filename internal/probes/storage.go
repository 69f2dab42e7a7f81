package probes

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"syscall"

	units "github.com/docker/go-units"

	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
)

// Free-space thresholds for the disk-space probe.
const (
	diskFullPercent = 10.0 // below this, the capability is only partial
)

// scratchSize is how many bytes the scratch-write probe round-trips.
const scratchSize = 64 * 1024

// diskSpaceExecutor checks available disk space on the target path.
func diskSpaceExecutor(path string) registry.Executor {
	return registry.ExecutorFunc(func(_ context.Context, _ model.Environment) (model.Outcome, error) {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			return model.Outcome{}, fmt.Errorf("statfs %s: %w", path, err)
		}

		freeBytes := stat.Bavail * uint64(stat.Bsize)
		totalBytes := stat.Blocks * uint64(stat.Bsize)
		if totalBytes == 0 {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("filesystem at %s reports zero size", path),
			}, nil
		}
		freePercent := float64(freeBytes) / float64(totalBytes) * 100

		status := model.StatusSupported
		if freePercent < diskFullPercent {
			status = model.StatusPartial
		}
		score := int(freePercent)

		return model.Outcome{
			Status: status,
			Details: fmt.Sprintf("%s free of %s on %s (%.1f%%)",
				units.HumanSize(float64(freeBytes)), units.HumanSize(float64(totalBytes)), path, freePercent),
			Score: &score,
			Payload: map[string]any{
				"path":         path,
				"free_bytes":   freeBytes,
				"total_bytes":  totalBytes,
				"free_percent": freePercent,
			},
		}, nil
	})
}

// scratchWriteExecutor round-trips a scratch file through the target
// directory (the system temp directory by default).
func scratchWriteExecutor(dir string) registry.Executor {
	return registry.ExecutorFunc(func(_ context.Context, _ model.Environment) (model.Outcome, error) {
		if dir == "" {
			dir = os.TempDir()
		}

		f, err := os.CreateTemp(dir, "capscan-scratch-*")
		if err != nil {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("cannot create scratch file in %s: %v", dir, err),
			}, nil
		}
		name := f.Name()
		defer os.Remove(name)

		payload := make([]byte, scratchSize)
		if _, err := rand.Read(payload); err != nil {
			f.Close()
			return model.Outcome{}, fmt.Errorf("generate scratch payload: %w", err)
		}
		if _, err := f.Write(payload); err != nil {
			f.Close()
			return model.Outcome{
				Status:  model.StatusPartial,
				Details: fmt.Sprintf("scratch file created but write failed: %v", err),
			}, nil
		}
		if err := f.Close(); err != nil {
			return model.Outcome{}, fmt.Errorf("close scratch file: %w", err)
		}

		read, err := os.ReadFile(name)
		if err != nil {
			return model.Outcome{
				Status:  model.StatusPartial,
				Details: fmt.Sprintf("scratch file written but read back failed: %v", err),
			}, nil
		}
		if !bytes.Equal(read, payload) {
			return model.Outcome{
				Status:  model.StatusPartial,
				Details: "scratch file contents did not survive the round trip",
			}, nil
		}

		return model.Outcome{
			Status:  model.StatusSupported,
			Details: fmt.Sprintf("wrote and read back %s in %s", units.HumanSize(scratchSize), dir),
			Payload: map[string]any{"dir": dir, "bytes": scratchSize},
		}, nil
	})
}
