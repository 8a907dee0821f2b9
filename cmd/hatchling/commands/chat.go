package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozo2/Hatchling/internal/chat"
	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
	"github.com/kozo2/Hatchling/internal/mcp"
	"github.com/kozo2/Hatchling/internal/provider"
	"github.com/kozo2/Hatchling/internal/storage"
)

var (
	chatProvider string
	chatModel    string
	chatDir      string
	chatNoTools  bool
	chatSystem   string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session against the configured backend.

With message arguments, runs a single exchange and exits.

Examples:
  hatchling chat
  hatchling chat "What is 6 times 7?"
  hatchling chat --provider openai --model gpt-4o "Summarize this"`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "LLM backend (ollama|openai)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model name")
	chatCmd.Flags().StringVar(&chatDir, "directory", "", "Working directory for project config")
	chatCmd.Flags().BoolVar(&chatNoTools, "no-tools", false, "Disable MCP tool calling")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System prompt override")
}

func runChat(cmd *cobra.Command, args []string) error {
	workDir := chatDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = wd
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	settings, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if chatProvider != "" {
		settings.LLM.Provider = strings.ToLower(chatProvider)
	}
	if chatModel != "" {
		settings.LLM.Model = chatModel
	}

	closer, err := setupLogging(paths)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store := storage.New(paths.StoragePath())
	registry := provider.NewDefaultRegistry(settings)

	var mcpClient *mcp.Client
	if !chatNoTools {
		mcpClient = mcp.NewClient(nil)
		connectMCPServers(ctx, mcpClient, settings)
		mcpClient.StartHealthLoop(ctx, 0)
	}

	session := chat.NewSession(settings, registry, mcpClient, store)
	defer session.Close()
	if chatSystem != "" {
		session.History().SetSystem(chatSystem)
	}

	renderer := newRenderer(os.Stdout, settings.UI)
	session.Subscribe(renderer)
	usage := event.NewUsageStats()
	session.Subscribe(usage)

	if message := strings.Join(args, " "); message != "" {
		return runOnce(ctx, session, renderer, usage, settings, message)
	}
	return runREPL(ctx, session, renderer, usage, settings, mcpClient, registry)
}

// runOnce sends a single message and exits, for scripted use.
func runOnce(ctx context.Context, session *chat.Session, renderer *renderer, usage *event.UsageStats, settings *config.Settings, message string) error {
	if _, err := session.SendMessage(ctx, message); err != nil {
		return err
	}
	renderer.Flush()
	if settings.UI.ShowUsage {
		fmt.Println(usage.Report())
	}
	return nil
}

func setupLogging(paths *config.Paths) (io.Closer, error) {
	level := logging.ParseLevel(logLevel)
	if printLogs {
		logging.Init(logging.Config{Level: level, Output: os.Stderr})
		return nil, nil
	}
	return logging.InitFile(paths.LogPath(), level)
}

// connectMCPServers dials every enabled server from the config. A server
// that fails to connect is reported and skipped; the chat still works
// without it.
func connectMCPServers(ctx context.Context, client *mcp.Client, settings *config.Settings) {
	for name, cfg := range settings.MCP {
		dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := client.AddServer(dialCtx, name, cfg)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: MCP server %s unavailable: %v\n", name, err)
		}
	}
}
