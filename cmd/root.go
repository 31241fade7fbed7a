// Package cmd implements the livedesk command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	version    string = "dev"
	commit     string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livedesk",
	Short: "Real-time operator console for live chat",
	Long: `Operator console core for a live-chat support system.

livedesk keeps one WebSocket connection to the chat server, tracks which
visitors are online and typing, projects messages into the conversation list
and the focused transcript, and forwards operator commands.

Quick Start:
  livedesk serve --config configs/livedesk.toml   # Connect and serve the local API
  livedesk status                                 # Print the console state`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
