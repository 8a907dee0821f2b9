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
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
)

// OpenAIID is the registry identifier of the OpenAI backend.
const OpenAIID = "openai"

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// NewOpenAI creates a provider backed by the OpenAI API or a compatible
// gateway.
func NewOpenAI(settings *config.Settings) Provider {
	apiKey := settings.LLM.OpenAIAPIKey
	baseURL := strings.TrimRight(settings.LLM.OpenAIBaseURL, "/")
	model := settings.LLM.Model

	return &langchainProvider{
		id:        OpenAIID,
		name:      "OpenAI",
		model:     model,
		publisher: event.NewPublisher(OpenAIID),
		newClient: func(ctx context.Context) (llms.Model, error) {
			if apiKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY not set")
			}
			opts := []openai.Option{
				openai.WithToken(apiKey),
				openai.WithModel(model),
			}
			if baseURL != "" {
				opts = append(opts, openai.WithBaseURL(baseURL))
			}
			return openai.New(opts...)
		},
		checkHealth: func(ctx context.Context) error {
			return openaiHealth(ctx, baseURL, apiKey)
		},
		listModels: func(ctx context.Context) ([]string, error) {
			return openaiModels(ctx, baseURL, apiKey)
		},
	}
}

// openaiModels lists the models visible to the configured credentials.
func openaiModels(ctx context.Context, baseURL, apiKey string) ([]string, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing openai models: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding openai model list: %w", err)
	}
	names := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		names = append(names, m.ID)
	}
	sort.Strings(names)
	return names, nil
}

// openaiHealth probes the models endpoint with the configured credentials.
func openaiHealth(ctx context.Context, baseURL, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY not set")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("openai health check: invalid API key")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("openai health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}
