package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatkit",
	Short: "Marketplace chat client",
	Long: `chatkit is the real-time chat client core for the marketplace,
driven from the terminal.

Available commands:
  login        Save the API credential for later runs
  chat         Open a room and chat interactively
  topics       Inspect the event catalog
  demo-server  Run a self-contained fake backend

Use "chatkit [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
