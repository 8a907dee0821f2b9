// Package commands provides the CLI commands for Hatchling.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "hatchling",
	Short: "Hatchling - LLM chat with MCP tool calling",
	Long: `Hatchling is an interactive chat client for local and remote LLMs
with tool calling over the Model Context Protocol.

Run 'hatchling chat' to start an interactive session, or
'hatchling chat "your question"' for a single exchange.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr instead of the log file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("hatchling %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(serversCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
