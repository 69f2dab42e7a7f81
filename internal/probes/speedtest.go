package probes

import (
	"context"
	"fmt"

	st "github.com/showwin/speedtest-go/speedtest"

	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
)

// speedtestExecutor measures network throughput against the nearest
// speedtest.net server. It moves real traffic, so the catalog ships it
// disabled by default.
func speedtestExecutor() registry.Executor {
	return registry.ExecutorFunc(func(ctx context.Context, _ model.Environment) (model.Outcome, error) {
		client := st.New()

		servers, err := client.FetchServerListContext(ctx)
		if err != nil {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("cannot reach speedtest server directory: %v", err),
			}, nil
		}

		targets, err := servers.FindServer(nil)
		if err != nil || len(targets) == 0 {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: "no reachable speedtest server",
			}, nil
		}
		server := targets[0]

		if err := server.PingTestContext(ctx, nil); err != nil {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("ping test against %s failed: %v", server.Host, err),
			}, nil
		}

		if err := server.DownloadTestContext(ctx); err != nil {
			return model.Outcome{}, fmt.Errorf("download test: %w", err)
		}
		if err := server.UploadTestContext(ctx); err != nil {
			return model.Outcome{}, fmt.Errorf("upload test: %w", err)
		}

		dl := server.DLSpeed.Mbps()
		ul := server.ULSpeed.Mbps()

		score := int(dl)
		if score > 100 {
			score = 100
		}

		return model.Outcome{
			Status: model.StatusSupported,
			Details: fmt.Sprintf("%.1f Mbps down / %.1f Mbps up via %s (latency %s)",
				dl, ul, server.Host, server.Latency),
			Score: &score,
			Payload: map[string]any{
				"server":        server.Host,
				"download_mbps": dl,
				"upload_mbps":   ul,
				"latency_ms":    server.Latency.Milliseconds(),
			},
		}, nil
	})
}
