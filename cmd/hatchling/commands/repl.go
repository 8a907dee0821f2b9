package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/kozo2/Hatchling/internal/chat"
	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/mcp"
	"github.com/kozo2/Hatchling/internal/provider"
)

const replHelp = `Commands:
  /help                 Show this help
  /provider [name]      Show or switch the LLM backend
  /model [name]         Show or switch the model
  /tools                List MCP tools
  /tools enable NAME    Enable a tool
  /tools disable NAME   Disable a tool
  /servers              Show MCP server status
  /set KEY VALUE        Change a setting (max-iterations, max-working-time)
  /save                 Write current settings to the global config file
  /usage                Toggle the usage report after each answer
  /clear                Clear the conversation
  /quit                 Exit`

// runREPL is the interactive loop: read a line, dispatch slash commands,
// send everything else to the session.
func runREPL(ctx context.Context, session *chat.Session, renderer *renderer, usage *event.UsageStats, settings *config.Settings, mcpClient *mcp.Client, registry *provider.Registry) error {
	rl, err := readline.New(color.New(color.FgGreen, color.Bold).Sprint("you> "))
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("hatchling %s — %s/%s. Type /help for commands.\n", Version, settings.LLM.Provider, settings.LLM.Model)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, line, session, settings, mcpClient, registry)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		usage.Reset()
		if _, err := session.SendMessage(ctx, line); err != nil {
			renderer.Flush()
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		renderer.Flush()
		if settings.UI.ShowUsage {
			fmt.Println(color.New(color.Faint).Sprint(usage.Report()))
		}
	}
}

func handleCommand(ctx context.Context, line string, session *chat.Session, settings *config.Settings, mcpClient *mcp.Client, registry *provider.Registry) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help":
		fmt.Println(replHelp)
	case "/provider":
		if len(args) == 0 {
			fmt.Printf("provider: %s (available: %s)\n", settings.LLM.Provider, strings.Join(registry.IDs(), ", "))
			return false, nil
		}
		id := strings.ToLower(args[0])
		if err := session.SwitchProvider(ctx, id); err != nil {
			return false, err
		}
		fmt.Printf("switched to %s/%s\n", settings.LLM.Provider, settings.LLM.Model)
	case "/model":
		if len(args) == 0 {
			fmt.Printf("model: %s\n", settings.LLM.Model)
			return false, nil
		}
		if err := session.SetModel(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Printf("model set to %s\n", settings.LLM.Model)
	case "/tools":
		return false, handleToolsCommand(args, mcpClient)
	case "/servers":
		printServerStatus(mcpClient)
	case "/set":
		return false, handleSetCommand(args, settings)
	case "/save":
		path := config.GlobalConfigPath()
		if err := config.Save(settings, path); err != nil {
			return false, fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Printf("settings saved to %s\n", path)
	case "/usage":
		settings.UI.ShowUsage = !settings.UI.ShowUsage
		fmt.Printf("usage report: %v\n", settings.UI.ShowUsage)
	case "/clear":
		session.Clear()
		fmt.Println("conversation cleared")
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func handleToolsCommand(args []string, mcpClient *mcp.Client) error {
	if mcpClient == nil {
		fmt.Println("tools are disabled")
		return nil
	}
	if len(args) == 0 {
		tools := mcpClient.AllTools()
		if len(tools) == 0 {
			fmt.Println("no tools available")
			return nil
		}
		for _, t := range tools {
			state := " "
			if !t.Enabled {
				state = "disabled"
			}
			fmt.Printf("  %-30s %-8s %s\n", t.Name, state, t.Description)
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: /tools [enable|disable] NAME")
	}
	switch args[0] {
	case "enable":
		return mcpClient.EnableTool(args[1])
	case "disable":
		return mcpClient.DisableTool(args[1])
	default:
		return fmt.Errorf("usage: /tools [enable|disable] NAME")
	}
}

func printServerStatus(mcpClient *mcp.Client) {
	if mcpClient == nil {
		fmt.Println("tools are disabled")
		return
	}
	statuses := mcpClient.Status()
	if len(statuses) == 0 {
		fmt.Println("no MCP servers configured")
		return
	}
	for _, s := range statuses {
		line := fmt.Sprintf("  %-20s %-12s %d tools", s.Name, s.Status, s.ToolCount)
		if s.Error != "" {
			line += "  (" + s.Error + ")"
		}
		fmt.Println(line)
	}
}

func handleSetCommand(args []string, settings *config.Settings) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: /set KEY VALUE")
	}
	key, value := args[0], args[1]
	switch key {
	case "max-iterations":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("max-iterations must be a positive integer")
		}
		settings.ToolCalling.MaxIterations = n
	case "max-working-time":
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil || secs < 0 {
			return fmt.Errorf("max-working-time must be a non-negative number of seconds")
		}
		settings.ToolCalling.MaxWorkingTimeSeconds = secs
	default:
		return fmt.Errorf("unknown setting %s (max-iterations, max-working-time)", key)
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}
