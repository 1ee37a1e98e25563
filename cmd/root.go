// Package cmd is the CLI entry point: a cobra root command with a serve
// subcommand that wires config, model host, template engine, generator and
// scheduler together, then runs until an interrupt triggers a graceful
// shutdown.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "infercore",
	Short: "infercore runs the concurrent inference scheduler",
}

// Execute runs the root command, matching the teacher's single-call
// main.go wiring.
func Execute() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (optional)")
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
