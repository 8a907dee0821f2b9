package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
)

const defaultConnectTimeout = 5 * time.Second

// session is the subset of the SDK client session the client uses.
type session interface {
	CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error)
	Ping(ctx context.Context, params *sdkmcp.PingParams) error
	Close() error
}

// server is one configured MCP server and its live session.
type server struct {
	name    string
	cfg     config.MCPServerConfig
	session session
	tools   []Tool
	// originals maps prefixed tool names back to server-side names.
	originals map[string]string
	status    Status
	lastErr   string
}

// Client manages MCP server connections and publishes lifecycle events.
type Client struct {
	mu        sync.RWMutex
	servers   map[string]*server
	disabled  map[string]bool // prefixed tool name -> disabled
	publisher *event.Publisher
	sdkClient *sdkmcp.Client
}

// NewClient creates an MCP client publishing lifecycle events to pub.
func NewClient(pub *event.Publisher) *Client {
	sdkClient := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "hatchling",
		Version: "1.0.0",
	}, nil)

	return &Client{
		servers:   make(map[string]*server),
		disabled:  make(map[string]bool),
		publisher: pub,
		sdkClient: sdkClient,
	}
}

// SetPublisher swaps the publisher lifecycle events go to. Used when the
// active provider changes.
func (c *Client) SetPublisher(pub *event.Publisher) {
	c.mu.Lock()
	c.publisher = pub
	c.mu.Unlock()
}

func (c *Client) publish(t event.Type, data map[string]any) {
	c.mu.RLock()
	pub := c.publisher
	c.mu.RUnlock()
	if pub != nil {
		pub.Publish(t, data)
	}
}

// AddServer connects to an MCP server and announces it. A disabled config
// is recorded but never connected.
func (c *Client) AddServer(ctx context.Context, name string, cfg config.MCPServerConfig) error {
	c.mu.Lock()
	if _, ok := c.servers[name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("server already exists: %s", name)
	}
	c.mu.Unlock()

	if !cfg.IsEnabled() {
		c.mu.Lock()
		c.servers[name] = &server{name: name, cfg: cfg, status: StatusDisabled}
		c.mu.Unlock()
		return nil
	}

	srv, err := c.connect(ctx, name, cfg)
	if err != nil {
		c.mu.Lock()
		c.servers[name] = &server{name: name, cfg: cfg, status: StatusFailed, lastErr: err.Error()}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.servers[name] = srv
	c.mu.Unlock()

	c.publish(event.MCPServerUp, map[string]any{
		"name":       name,
		"tool_count": len(srv.tools),
	})
	for _, tool := range srv.tools {
		c.publish(event.MCPToolEnabled, map[string]any{
			"server": name,
			"tool":   tool.Name,
		})
	}
	return nil
}

// connect establishes a session and discovers the server's tools.
func (c *Client) connect(ctx context.Context, name string, cfg config.MCPServerConfig) (*server, error) {
	sess, err := c.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	srv := &server{
		name:      name,
		cfg:       cfg,
		session:   sess,
		originals: make(map[string]string),
		status:    StatusConnected,
	}
	if err := c.discoverTools(ctx, srv, sess); err != nil {
		sess.Close()
		return nil, fmt.Errorf("list tools on %s: %w", name, err)
	}
	return srv, nil
}

// dial opens a session over the transport the config implies: a command
// means stdio, a URL means streamable HTTP with SSE fallback.
func (c *Client) dial(ctx context.Context, cfg config.MCPServerConfig) (*sdkmcp.ClientSession, error) {
	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	switch {
	case len(cfg.Command) > 0:
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
		return c.sdkClient.Connect(connectCtx, &sdkmcp.CommandTransport{Command: cmd}, nil)

	case cfg.URL != "":
		httpClient := httpClientWithHeaders(cfg.Headers)
		transports := []sdkmcp.Transport{
			&sdkmcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient},
			&sdkmcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient},
		}
		var lastErr error
		for _, transport := range transports {
			sess, err := c.sdkClient.Connect(connectCtx, transport, nil)
			if err == nil {
				return sess, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, lastErr)

	default:
		return nil, fmt.Errorf("server config needs a command or a url")
	}
}

// discoverTools loads the server's tool list into prefixed form.
func (c *Client) discoverTools(ctx context.Context, srv *server, sess *sdkmcp.ClientSession) error {
	listCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	result, err := sess.ListTools(listCtx, nil)
	if err != nil {
		return err
	}

	srv.tools = srv.tools[:0]
	for _, t := range result.Tools {
		prefixed := prefixedToolName(srv.name, t.Name)
		srv.originals[prefixed] = t.Name
		srv.tools = append(srv.tools, Tool{
			Name:        prefixed,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
			Server:      srv.name,
			Enabled:     true,
		})
	}
	return nil
}

// schemaToMap converts an SDK JSON schema to a plain map for providers.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// RemoveServer disconnects a server and announces its departure.
func (c *Client) RemoveServer(name string) error {
	c.mu.Lock()
	srv, ok := c.servers[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("server not found: %s", name)
	}
	if srv.session != nil {
		srv.session.Close()
	}
	for _, tool := range srv.tools {
		delete(c.disabled, tool.Name)
	}
	delete(c.servers, name)
	c.mu.Unlock()

	c.publish(event.MCPServerDown, map[string]any{"name": name})
	return nil
}

// Tools returns the enabled tools of all connected servers, sorted by name.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var tools []Tool
	for _, srv := range c.servers {
		if srv.status != StatusConnected {
			continue
		}
		for _, tool := range srv.tools {
			if c.disabled[tool.Name] {
				continue
			}
			tools = append(tools, tool)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// AllTools returns every discovered tool with its enabled flag, sorted.
func (c *Client) AllTools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var tools []Tool
	for _, srv := range c.servers {
		for _, tool := range srv.tools {
			tool.Enabled = !c.disabled[tool.Name]
			tools = append(tools, tool)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// EnableTool re-enables a previously disabled tool.
func (c *Client) EnableTool(name string) error {
	srv, err := c.findToolServer(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.disabled, name)
	c.mu.Unlock()
	c.publish(event.MCPToolEnabled, map[string]any{"server": srv, "tool": name})
	return nil
}

// DisableTool hides a tool from the chat session without disconnecting
// its server.
func (c *Client) DisableTool(name string) error {
	srv, err := c.findToolServer(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.disabled[name] = true
	c.mu.Unlock()
	c.publish(event.MCPToolDisabled, map[string]any{"server": srv, "tool": name})
	return nil
}

func (c *Client) findToolServer(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, srv := range c.servers {
		if _, ok := srv.originals[name]; ok {
			return srv.name, nil
		}
	}
	return "", fmt.Errorf("tool not found: %s", name)
}

// ExecuteTool runs a tool by its prefixed name and returns the text output.
func (c *Client) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.RLock()
	var target *server
	var original string
	for _, srv := range c.servers {
		if orig, ok := srv.originals[name]; ok {
			target = srv
			original = orig
			break
		}
	}
	disabled := c.disabled[name]
	var sess session
	var status Status
	if target != nil {
		sess = target.session
		status = target.status
	}
	c.mu.RUnlock()

	if target == nil {
		return "", fmt.Errorf("no server found for tool: %s", name)
	}
	if disabled {
		return "", fmt.Errorf("tool disabled: %s", name)
	}
	if status != StatusConnected || sess == nil {
		return "", fmt.Errorf("server not connected: %s", target.name)
	}

	if timeout := target.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := sess.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      original,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}

	if result.IsError {
		for _, content := range result.Content {
			if text, ok := content.(*sdkmcp.TextContent); ok {
				return "", fmt.Errorf("tool error: %s", text.Text)
			}
		}
		return "", fmt.Errorf("tool execution failed")
	}

	var output strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			output.WriteString(text.Text)
		}
	}
	return output.String(), nil
}

// CheckHealth pings every connected server and publishes reachability
// transitions. Unreachable servers get a bounded reconnect attempt.
func (c *Client) CheckHealth(ctx context.Context) {
	c.mu.RLock()
	names := make([]string, 0, len(c.servers))
	for name, srv := range c.servers {
		if srv.status == StatusConnected || srv.status == StatusUnreachable {
			names = append(names, name)
		}
	}
	c.mu.RUnlock()

	for _, name := range names {
		c.checkServer(ctx, name)
	}
}

func (c *Client) checkServer(ctx context.Context, name string) {
	c.mu.RLock()
	srv, ok := c.servers[name]
	if !ok || srv.session == nil {
		c.mu.RUnlock()
		return
	}
	sess := srv.session
	status := srv.status
	c.mu.RUnlock()

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	err := sess.Ping(pingCtx, nil)
	cancel()

	switch {
	case err == nil && status == StatusUnreachable:
		c.setStatus(name, StatusConnected, "")
		c.publish(event.MCPServerReachable, map[string]any{"name": name})

	case err != nil && status == StatusConnected:
		logging.Warn().Str("server", name).Err(err).Msg("mcp server unreachable")
		c.setStatus(name, StatusUnreachable, err.Error())
		c.publish(event.MCPServerUnreachable, map[string]any{
			"name":  name,
			"error": err.Error(),
		})
		c.reconnect(ctx, name)

	case err != nil && status == StatusUnreachable:
		c.reconnect(ctx, name)
	}
}

// reconnect retries the connection with exponential backoff, bounded so a
// dead server does not stall the health sweep.
func (c *Client) reconnect(ctx context.Context, name string) {
	c.mu.RLock()
	srv, ok := c.servers[name]
	c.mu.RUnlock()
	if !ok {
		return
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	fresh, err := backoff.RetryWithData(func() (*server, error) {
		return c.connect(ctx, name, srv.cfg)
	}, policy)
	if err != nil {
		return
	}

	c.mu.Lock()
	if old, ok := c.servers[name]; ok && old.session != nil {
		old.session.Close()
	}
	c.servers[name] = fresh
	c.mu.Unlock()

	c.publish(event.MCPServerReachable, map[string]any{"name": name})
}

// StartHealthLoop runs periodic health sweeps until ctx is canceled.
func (c *Client) StartHealthLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CheckHealth(ctx)
			}
		}
	}()
}

func (c *Client) setStatus(name string, status Status, errMsg string) {
	c.mu.Lock()
	if srv, ok := c.servers[name]; ok {
		srv.status = status
		srv.lastErr = errMsg
	}
	c.mu.Unlock()
}

// Status returns a snapshot of every configured server, sorted by name.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(c.servers))
	for name, srv := range c.servers {
		statuses = append(statuses, ServerStatus{
			Name:      name,
			Status:    srv.status,
			ToolCount: len(srv.tools),
			Error:     srv.lastErr,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Close disconnects every server without publishing events.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, srv := range c.servers {
		if srv.session != nil {
			srv.session.Close()
		}
	}
	c.servers = make(map[string]*server)
	c.disabled = make(map[string]bool)
	return nil
}

// httpClientWithHeaders wraps the default client so every request carries
// the configured headers.
func httpClientWithHeaders(headers map[string]string) *http.Client {
	client := &http.Client{}
	if len(headers) == 0 {
		return client
	}
	client.Transport = &headerRoundTripper{headers: headers, next: http.DefaultTransport}
	return client
}

type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return h.next.RoundTrip(cloned)
}
