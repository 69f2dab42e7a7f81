package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/capscan/internal/api"
	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/service"
	"github.com/probelab/capscan/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capscan HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := config.NewLogger(os.Stdout, cfg.LogLevel)

		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.ListenAddr = addr
		}
		if path, _ := cmd.Flags().GetString("database"); path != "" {
			cfg.DBPath = path
		}
		cfg.ManifestPath = manifestPath(cmd, cfg.ManifestPath)

		logger.Info("capscan: starting",
			"listen_addr", cfg.ListenAddr,
			"db_path", cfg.DBPath,
			"manifest", cfg.ManifestPath,
		)

		manifest, err := config.LoadManifest(cfg.ManifestPath)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}

		db, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		svc := service.New(db, manifest, logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if cfg.ManifestPath != "" {
			if err := config.WatchManifest(ctx, cfg.ManifestPath, logger, svc.Reload); err != nil {
				logger.Error("manifest watch unavailable", "path", cfg.ManifestPath, "error", err)
			}
		}

		scheduled, err := svc.StartSchedule()
		if err != nil {
			return fmt.Errorf("start schedule: %w", err)
		}
		if scheduled {
			logger.Info("periodic scans enabled", "schedule", manifest.Schedule)
			defer svc.StopSchedule()
		}

		srv := api.NewServer(cfg.ListenAddr, db, svc, logger)
		return srv.Run()
	},
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (host:port)")
	serveCmd.Flags().StringP("database", "d", "", "SQLite database path")
	rootCmd.AddCommand(serveCmd)
}
