// Package config provides configuration loading, merging, and path management
// for Hatchling.
//
// # Configuration Loading
//
// The Load function merges configuration from multiple sources in priority
// order:
//
//  1. Built-in defaults
//  2. Global config (~/.config/hatchling/hatchling.json or .jsonc)
//  3. Project config (hatchling.json or .jsonc in the working directory)
//  4. HATCHLING_CONFIG file
//  5. HATCHLING_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// A .env file in the working directory is loaded first so its variables are
// visible to both the environment layer and interpolation.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted; comments are
// stripped using tidwall/jsonc before parsing.
//
// # Variable Interpolation
//
// Configuration files support two placeholder forms:
//   - {env:VAR_NAME} - expands to an environment variable value
//   - {file:path} - expands to file contents (escaped for JSON)
//
// Example:
//
//	{
//	  "llm": {
//	    "provider": "openai",
//	    "openaiApiKey": "{env:OPENAI_API_KEY}"
//	  },
//	  "mcp": {
//	    "calculator": {"command": ["hatchling-calculator"]}
//	  }
//	}
//
// # Environment Variable Overrides
//
// The highest-priority layer reads:
//   - HATCHLING_PROVIDER, HATCHLING_MODEL
//   - OLLAMA_HOST, OPENAI_API_KEY, OPENAI_BASE_URL
//   - HATCHLING_MAX_ITERATIONS, HATCHLING_MAX_WORKING_TIME
//   - HATCHLING_CONFIG, HATCHLING_CONFIG_CONTENT
//
// # Path Management
//
// The Paths type provides XDG Base Directory compliant locations for data,
// config, cache, and state, adapted to APPDATA on Windows.
package config
