package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	loadDotEnv()

	// Start with defaults
	cfg := DefaultConfig()

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to DefaultConfig when the file does not
// exist and the path was not chosen explicitly
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv populates the environment from .env when present.
// Variables already set in the environment win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Validate store
	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendRedis, BackendSQLite, c.Store.Backend)
	}

	// Validate defaults
	if c.Defaults.MaxContextTokens <= 0 {
		return fmt.Errorf("defaults.max_context_tokens must be positive")
	}
	if c.Defaults.ResponseReserveTokens < 0 {
		return fmt.Errorf("defaults.response_reserve_tokens must not be negative")
	}

	// Validate providers
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	seen := make(map[string]bool)
	for i, provider := range c.Providers {
		if provider.Name == "" {
			return fmt.Errorf("provider[%d].name is required", i)
		}
		if seen[strings.ToLower(provider.Name)] {
			return fmt.Errorf("provider[%d].name %q is duplicated", i, provider.Name)
		}
		seen[strings.ToLower(provider.Name)] = true

		if len(provider.Models) == 0 {
			return fmt.Errorf("provider[%d] must have at least one model", i)
		}

		for j, model := range provider.Models {
			if model.ID == "" {
				return fmt.Errorf("provider[%d].models[%d].id is required", i, j)
			}
			if model.DisplayName == "" {
				return fmt.Errorf("provider[%d].models[%d].display_name is required", i, j)
			}
			if model.ContextWindow < 0 {
				return fmt.Errorf("provider[%d].models[%d].context_window must not be negative", i, j)
			}
		}
	}

	if c.FallbackProvider != "" && !seen[strings.ToLower(c.FallbackProvider)] {
		return fmt.Errorf("fallback_provider references unknown provider: %s", c.FallbackProvider)
	}

	// Validate system prompts
	names := make(map[string]bool)
	for i, sp := range c.SystemPrompts {
		if sp.Name == "" {
			return fmt.Errorf("system_prompts[%d].name is required", i)
		}
		names[sp.Name] = true
	}
	if c.DefaultSystemPrompt != "" && !names[c.DefaultSystemPrompt] {
		return fmt.Errorf("default_system_prompt references unknown prompt: %s", c.DefaultSystemPrompt)
	}

	return nil
}

// GetProvider returns a provider by name, case-insensitively
func (c *Config) GetProvider(name string) (*Provider, error) {
	for i := range c.Providers {
		if strings.EqualFold(c.Providers[i].Name, name) {
			return &c.Providers[i], nil
		}
	}
	return nil, fmt.Errorf("provider %s not found", name)
}

// GetModel returns a model of a provider
func (c *Config) GetModel(providerName, modelID string) (*Provider, *Model, error) {
	provider, err := c.GetProvider(providerName)
	if err != nil {
		return nil, nil, err
	}

	for i := range provider.Models {
		if provider.Models[i].ID == modelID {
			return provider, &provider.Models[i], nil
		}
	}

	return nil, nil, fmt.Errorf("model %s not found in provider %s", modelID, provider.Name)
}

// ResolveModel returns the provider and model for a model reference (e.g., "openai/gpt-4o")
func (c *Config) ResolveModel(modelRef string) (*Provider, *Model, error) {
	providerName, modelID, ok := strings.Cut(modelRef, "/")
	if !ok || providerName == "" || modelID == "" {
		return nil, nil, fmt.Errorf("invalid model reference: %s (expected format: provider/model)", modelRef)
	}

	return c.GetModel(providerName, modelID)
}
