package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Store               StoreConfig    `yaml:"store"`
	Defaults            DefaultsConfig `yaml:"defaults"`
	Providers           []Provider     `yaml:"providers"`
	FallbackProvider    string         `yaml:"fallback_provider"`
	EnabledModels       []string       `yaml:"enabled_models"`
	SystemPrompts       []SystemPrompt `yaml:"system_prompts"`
	DefaultSystemPrompt string         `yaml:"default_system_prompt"`
	Logging             LoggingConfig  `yaml:"logging"`
}

// Store backends
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// StoreConfig selects and configures the thread store
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Redis   RedisConfig  `yaml:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address     string `yaml:"address"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DefaultsConfig holds defaults applied when a request or model does not say otherwise
type DefaultsConfig struct {
	MaxContextTokens      int `yaml:"max_context_tokens"`
	ResponseReserveTokens int `yaml:"response_reserve_tokens"`
	ConversationTTLHours  int `yaml:"conversation_ttl_hours"`
	MessageHistoryLimit   int `yaml:"message_history_limit"`
	TitleMaxLength        int `yaml:"title_max_length"`
}

// ConversationTTL returns the conversation TTL as a Duration
func (d *DefaultsConfig) ConversationTTL() time.Duration {
	return time.Duration(d.ConversationTTLHours) * time.Hour
}

// Provider represents an LLM provider configuration
type Provider struct {
	Name        string  `yaml:"name"`
	DisplayName string  `yaml:"display_name"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Models      []Model `yaml:"models"`
}

// Model represents an LLM model configuration
type Model struct {
	ID            string `yaml:"id"`
	DisplayName   string `yaml:"display_name"`
	ContextWindow int    `yaml:"context_window"`
	FallbackModel string `yaml:"fallback_model,omitempty"`
}

// SystemPrompt represents a named system prompt
type SystemPrompt struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content"`
	Default bool   `yaml:"default,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "json" or "console"
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// ContextBudget returns the token budget for a model: its context window minus
// the response reserve, or the default budget when the window is unknown
func (c *Config) ContextBudget(model *Model) int {
	if model != nil && model.ContextWindow > 0 {
		budget := model.ContextWindow - c.Defaults.ResponseReserveTokens
		if budget > 0 {
			return budget
		}
	}
	return c.Defaults.MaxContextTokens
}

// GetDefaultSystemPrompt returns the default system prompt content
func (c *Config) GetDefaultSystemPrompt() (string, error) {
	// Use explicit default if set
	if c.DefaultSystemPrompt != "" {
		for _, sp := range c.SystemPrompts {
			if sp.Name == c.DefaultSystemPrompt {
				return sp.Content, nil
			}
		}
		return "", fmt.Errorf("default system prompt '%s' not found", c.DefaultSystemPrompt)
	}

	// Find first prompt marked as default
	for _, sp := range c.SystemPrompts {
		if sp.Default {
			return sp.Content, nil
		}
	}

	// Use first prompt if none marked as default
	if len(c.SystemPrompts) > 0 {
		return c.SystemPrompts[0].Content, nil
	}

	return "", fmt.Errorf("no system prompts configured")
}

// GetSystemPromptByName returns a system prompt by name
func (c *Config) GetSystemPromptByName(name string) (string, error) {
	for _, sp := range c.SystemPrompts {
		if sp.Name == name {
			return sp.Content, nil
		}
	}
	return "", fmt.Errorf("system prompt '%s' not found", name)
}
