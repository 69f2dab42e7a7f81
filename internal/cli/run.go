package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/envinfo"
	"github.com/probelab/capscan/internal/events"
	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/probes"
	"github.com/probelab/capscan/internal/registry"
	"github.com/probelab/capscan/internal/scheduler"
)

// runOutput is the JSON document printed by `capscan run --json`.
type runOutput struct {
	Environment model.Environment `json:"environment"`
	Results     []model.Result    `json:"results"`
	Summary     model.RunSummary  `json:"summary"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a one-shot capability scan and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		manifest, err := config.LoadManifest(manifestPath(cmd, cfg.ManifestPath))
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			manifest.Concurrency = c
		}
		if t, _ := cmd.Flags().GetInt64("timeout-ms"); t > 0 {
			manifest.GlobalTimeoutMS = t
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		reg := registry.New()
		for _, def := range probes.Catalog(manifest) {
			if err := reg.Register(def); err != nil {
				return fmt.Errorf("register probe: %w", err)
			}
		}
		if err := reg.Freeze(); err != nil {
			return fmt.Errorf("freeze registry: %w", err)
		}

		bus := events.NewBus()
		if !asJSON {
			bus.Subscribe(printProgress)
		}

		ctx, stop := contextWithInterrupt(context.Background())
		defer stop()

		env := envinfo.Snapshot()
		results, summary, err := scheduler.Run(ctx, reg, env, bus, scheduler.Options{
			Concurrency:   manifest.Concurrency,
			GlobalTimeout: manifest.GlobalTimeout(),
		})
		if err != nil {
			return err
		}
		bus.Close()

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runOutput{Environment: env, Results: results, Summary: summary})
		}

		printTable(results, summary)
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("json", false, "Print results as JSON")
	runCmd.Flags().IntP("concurrency", "c", 0, "Maximum probes in flight at once")
	runCmd.Flags().Int64("timeout-ms", 0, "Overall scan deadline in milliseconds (0 disables)")
	rootCmd.AddCommand(runCmd)
}

// printProgress writes per-probe lifecycle lines to stderr as the scan runs.
func printProgress(e model.Event) {
	switch e.Type {
	case model.EventProbeStart:
		fmt.Fprintf(os.Stderr, "  ... %s\n", e.ProbeID)
	case model.EventProbeRetry:
		fmt.Fprintf(os.Stderr, "  retrying %s (attempt %d)\n", e.ProbeID, e.Attempt)
	case model.EventProbeSuccess, model.EventProbeError, model.EventProbeSkipped:
		if e.Result != nil {
			fmt.Fprintf(os.Stderr, "  %-11s %s\n", e.Result.Status, e.ProbeID)
		}
	}
}

// printTable renders the final results as an aligned table plus a summary line.
func printTable(results []model.Result, summary model.RunSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROBE\tCATEGORY\tSTATUS\tSCORE\tATTEMPTS\tDURATION\tDETAILS")
	for _, res := range results {
		score := "-"
		if res.Score != nil {
			score = fmt.Sprintf("%d", *res.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
			res.ProbeID, res.Category, res.Status, score, res.Attempts, res.DurationMS, res.Details)
	}
	w.Flush()

	fmt.Printf("\n%d probes: %d supported, %d partial, %d unsupported, %d errors\n",
		summary.Total, summary.Supported, summary.Partial, summary.Unsupported, summary.Errors)
	fmt.Printf("overall score: %d/100 in %dms\n", summary.OverallScore, summary.DurationMS)
	if summary.Aborted {
		fmt.Printf("scan aborted: %s\n", summary.AbortReason)
	}
}

// contextWithInterrupt cancels the returned context on SIGINT or SIGTERM so a
// one-shot scan can wind down cooperatively.
func contextWithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
