package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/logging"
	"github.com/kozo2/Hatchling/internal/mcp"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Probe the configured MCP servers",
	Long:  `Connect to every MCP server in the configuration and report its status and tool count.`,
	RunE:  runServers,
}

func runServers(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	settings, err := config.Load(wd)
	if err != nil {
		return err
	}
	if len(settings.MCP) == 0 {
		fmt.Println("no MCP servers configured")
		return nil
	}

	logging.Init(logging.Config{Level: logging.ParseLevel(logLevel), Output: os.Stderr})

	client := mcp.NewClient(nil)
	defer client.Close()

	for name, cfg := range settings.MCP {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		if err := client.AddServer(ctx, name, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		cancel()
	}

	for _, s := range client.Status() {
		line := fmt.Sprintf("%-20s %-12s %d tools", s.Name, s.Status, s.ToolCount)
		if s.Error != "" {
			line += "  (" + s.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}
