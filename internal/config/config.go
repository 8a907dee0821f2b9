package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/hatchling/)
// 3. Project config (hatchling.json/.jsonc in directory)
// 4. HATCHLING_CONFIG file
// 5. HATCHLING_CONFIG_CONTENT inline JSON
// 6. Environment variables
func Load(directory string) (*Settings, error) {
	// A project .env feeds the env-var layer and {env:...} interpolation.
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	settings := NewSettings()

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, settings, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 2. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "hatchling.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "hatchling.jsonc"), globalPath)

	// 3. Project config
	if directory != "" {
		loadOnce(filepath.Join(directory, "hatchling.json"), directory)
		loadOnce(filepath.Join(directory, "hatchling.jsonc"), directory)
	}

	// 4. HATCHLING_CONFIG file override
	if configPath := os.Getenv("HATCHLING_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 5. HATCHLING_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("HATCHLING_CONFIG_CONTENT"); configContent != "" {
		var inline Settings
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inline); err == nil {
			mergeSettings(settings, &inline)
		}
	}

	// 6. Environment variables (highest priority)
	applyEnvOverrides(settings)

	normalize(settings)

	return settings, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, settings *Settings, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileSettings Settings
	if err := json.Unmarshal(data, &fileSettings); err != nil {
		return err
	}

	mergeSettings(settings, &fileSettings)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeSettings merges source settings into target.
func mergeSettings(target, source *Settings) {
	if source.LLM.Provider != "" {
		target.LLM.Provider = source.LLM.Provider
	}
	if source.LLM.Model != "" {
		target.LLM.Model = source.LLM.Model
	}
	if source.LLM.OllamaHost != "" {
		target.LLM.OllamaHost = source.LLM.OllamaHost
	}
	if source.LLM.OpenAIAPIKey != "" {
		target.LLM.OpenAIAPIKey = source.LLM.OpenAIAPIKey
	}
	if source.LLM.OpenAIBaseURL != "" {
		target.LLM.OpenAIBaseURL = source.LLM.OpenAIBaseURL
	}

	if source.ToolCalling.MaxIterations > 0 {
		target.ToolCalling.MaxIterations = source.ToolCalling.MaxIterations
	}
	if source.ToolCalling.MaxWorkingTimeSeconds != 0 {
		target.ToolCalling.MaxWorkingTimeSeconds = source.ToolCalling.MaxWorkingTimeSeconds
	}

	if source.UI.Colors != nil {
		target.UI.Colors = source.UI.Colors
	}
	if source.UI.ShowUsage {
		target.UI.ShowUsage = true
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]MCPServerConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(settings *Settings) {
	if provider := os.Getenv("HATCHLING_PROVIDER"); provider != "" {
		settings.LLM.Provider = provider
	}
	if model := os.Getenv("HATCHLING_MODEL"); model != "" {
		settings.LLM.Model = model
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		settings.LLM.OllamaHost = host
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		settings.LLM.OpenAIAPIKey = key
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		settings.LLM.OpenAIBaseURL = base
	}
	if n := os.Getenv("HATCHLING_MAX_ITERATIONS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			settings.ToolCalling.MaxIterations = v
		}
	}
	if n := os.Getenv("HATCHLING_MAX_WORKING_TIME"); n != "" {
		if v, err := strconv.ParseFloat(n, 64); err == nil && v >= 0 {
			settings.ToolCalling.MaxWorkingTimeSeconds = v
		}
	}
}

// normalize fills derived defaults after all sources are merged.
func normalize(settings *Settings) {
	settings.LLM.Provider = strings.ToLower(strings.TrimSpace(settings.LLM.Provider))
	if settings.LLM.Provider == "" {
		settings.LLM.Provider = DefaultProvider
	}
	if settings.LLM.Model == "" {
		switch settings.LLM.Provider {
		case "openai":
			settings.LLM.Model = DefaultOpenAIModel
		default:
			settings.LLM.Model = DefaultOllamaModel
		}
	}
	if settings.LLM.OllamaHost == "" {
		settings.LLM.OllamaHost = DefaultOllamaHost
	}
	if settings.ToolCalling.MaxIterations <= 0 {
		settings.ToolCalling.MaxIterations = DefaultMaxIterations
	}
	if settings.ToolCalling.MaxWorkingTimeSeconds < 0 {
		settings.ToolCalling.MaxWorkingTimeSeconds = 0
	}
}

// Save saves the settings to a file.
func Save(settings *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
