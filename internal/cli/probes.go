package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/probes"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List the probes a scan would execute",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		manifest, err := config.LoadManifest(manifestPath(cmd, cfg.ManifestPath))
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}

		defs := probes.Catalog(manifest)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(defs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tREQUIRES\tTIMEOUT\tRETRIES")
		for _, def := range defs {
			requires := "-"
			if len(def.Requires) > 0 {
				requires = strings.Join(def.Requires, ",")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				def.ID, def.Name, def.Category, requires, def.Timeout, def.MaxRetries)
		}
		return w.Flush()
	},
}

func init() {
	probesCmd.Flags().Bool("json", false, "Print probe definitions as JSON")
	rootCmd.AddCommand(probesCmd)
}
