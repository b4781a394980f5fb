// Wemoctl is a command-line controller for Belkin WeMo devices.
//
// It provides device discovery, direct switch control, live event
// watching, and an interactive terminal control panel. All communication
// happens over the local network; no cloud account is required.
//
// Usage:
//
//	wemoctl [command] [flags]
//
// Running without arguments launches the interactive control panel.
// See 'wemoctl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wemokit/wemokit/internal/logging"
	"github.com/wemokit/wemokit/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wemoctl",
	Short: "WeMo Device Controller",
	Long: `A command-line controller for Belkin WeMo smart plugs and switches.

Provides device discovery, on/off control, live event watching, and an
interactive terminal control panel.

If no command is specified, the interactive panel will launch automatically.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent by default; WEMO_LOG_LEVEL enables output
		return logging.InitializeFromEnv()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the panel when no subcommand provided
		return runPanel(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wemoctl %s (commit: %s)\n", version.Version, version.Commit)
	},
}
