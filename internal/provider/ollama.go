package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
)

// OllamaID is the registry identifier of the Ollama backend.
const OllamaID = "ollama"

// NewOllama creates a provider backed by a local or remote Ollama server.
func NewOllama(settings *config.Settings) Provider {
	host := strings.TrimRight(settings.LLM.OllamaHost, "/")
	if host == "" {
		host = config.DefaultOllamaHost
	}
	model := settings.LLM.Model

	return &langchainProvider{
		id:        OllamaID,
		name:      "Ollama",
		model:     model,
		publisher: event.NewPublisher(OllamaID),
		newClient: func(ctx context.Context) (llms.Model, error) {
			return ollama.New(
				ollama.WithServerURL(host),
				ollama.WithModel(model),
			)
		},
		checkHealth: func(ctx context.Context) error {
			return ollamaHealth(ctx, host)
		},
		listModels: func(ctx context.Context) ([]string, error) {
			return ollamaModels(ctx, host)
		},
	}
}

// ollamaModels lists the models installed on the server.
func ollamaModels(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama unreachable at %s: %w", host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing ollama models: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding ollama model list: %w", err)
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ollamaHealth probes the server's tag listing endpoint.
func ollamaHealth(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}
