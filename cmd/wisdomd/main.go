// Package main implements the wisdomd CLI for maintenance operations
// against the learning store.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wisdomd",
	Short: "Maintenance CLI for the wisdomd learning store",
	Long: `wisdomd is a command-line interface for operating the self-sufficiency
learning store. It provides commands for inspecting system statistics,
running edge decay, and seeding composition templates.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(seedCmd)
}
