// Package cli implements the capscan command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/probelab/capscan/internal/cli.Version=..."
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "capscan",
	Short:   "Host capability scanner",
	Long:    `Capscan runs dependency-ordered capability probes against the local host and reports what the environment supports.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("manifest", "m", "", "Scan manifest path (YAML)")
}

// manifestPath resolves the manifest flag, falling back to the environment.
func manifestPath(cmd *cobra.Command, envPath string) string {
	if path, _ := cmd.Flags().GetString("manifest"); path != "" {
		return path
	}
	return envPath
}
