// Package provider resolves provider and model selections against the configured catalog.
package provider

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/s33g/chatctx/internal/config"
)

var (
	// ErrUnknownProvider is returned for a provider missing from the catalog
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownModel is returned for a model missing from its provider's catalog
	ErrUnknownModel = errors.New("unknown model")
	// ErrModelNotEnabled is returned for a model excluded by enabled_models
	ErrModelNotEnabled = errors.New("model not enabled")
)

// Resolution is the provider and model a request will actually be prepared for
type Resolution struct {
	Provider      string
	ModelID       string
	Model         *config.Model // nil when the fallback model is not in the catalog
	HasAPIKey     bool
	UsingFallback bool
}

// Ref returns the "provider/model" reference of the resolution
func (r Resolution) Ref() string {
	return r.Provider + "/" + r.ModelID
}

// ModelInfo describes an enabled catalog model
type ModelInfo struct {
	Provider            string
	ProviderDisplayName string
	ModelID             string
	DisplayName         string
	ContextWindow       int
	HasAPIKey           bool
}

// Ref returns the "provider/model" reference of the model
func (m ModelInfo) Ref() string {
	return m.Provider + "/" + m.ModelID
}

// Registry manages the provider catalog and the API keys available for it
type Registry struct {
	mu      sync.RWMutex
	config  *config.Config
	apiKeys map[string]string // key: lowercased provider name
	logger  zerolog.Logger
}

// NewRegistry creates a new provider registry, reading API keys from the environment
func NewRegistry(cfg *config.Config, logger zerolog.Logger) *Registry {
	return &Registry{
		config:  cfg,
		apiKeys: loadAPIKeys(cfg),
		logger:  logger,
	}
}

func loadAPIKeys(cfg *config.Config) map[string]string {
	keys := make(map[string]string, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.APIKeyEnv != "" {
			keys[strings.ToLower(p.Name)] = os.Getenv(p.APIKeyEnv)
		}
	}
	return keys
}

// HasValidAPIKey reports whether a provider has a usable API key: non-empty and
// not the "your_<provider>_api_key_here" placeholder
func (r *Registry) HasValidAPIKey(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hasValidAPIKey(providerName)
}

func (r *Registry) hasValidAPIKey(providerName string) bool {
	name := strings.ToLower(providerName)
	key := r.apiKeys[name]
	return key != "" && key != fmt.Sprintf("your_%s_api_key_here", name)
}

// FallbackModel returns the configured fallback model ID for a model, if any
func (r *Registry) FallbackModel(providerName, modelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, model, err := r.config.GetModel(providerName, modelID)
	if err != nil || model.FallbackModel == "" {
		return "", false
	}
	return model.FallbackModel, true
}

// Resolve determines the effective provider and model for a selection.
// When the provider has no valid API key and the model names a fallback whose
// provider does, the fallback is returned instead.
func (r *Registry) Resolve(providerName, modelID string) (Resolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, err := r.config.GetProvider(providerName)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	_, model, err := r.config.GetModel(provider.Name, modelID)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %s/%s", ErrUnknownModel, provider.Name, modelID)
	}

	ref := provider.Name + "/" + model.ID
	if !r.isEnabled(ref) {
		return Resolution{}, fmt.Errorf("%w: %s", ErrModelNotEnabled, ref)
	}

	res := Resolution{
		Provider:  provider.Name,
		ModelID:   model.ID,
		Model:     model,
		HasAPIKey: r.hasValidAPIKey(provider.Name),
	}
	if res.HasAPIKey {
		return res, nil
	}

	fallbackProvider := r.config.FallbackProvider
	if model.FallbackModel != "" && fallbackProvider != "" && r.hasValidAPIKey(fallbackProvider) {
		fb := Resolution{
			Provider:      fallbackProvider,
			ModelID:       model.FallbackModel,
			HasAPIKey:     true,
			UsingFallback: true,
		}
		if fp, err := r.config.GetProvider(fallbackProvider); err == nil {
			fb.Provider = fp.Name
			if _, fm, err := r.config.GetModel(fp.Name, model.FallbackModel); err == nil {
				fb.Model = fm
			}
		}

		r.logger.Info().
			Str("requested", ref).
			Str("fallback", fb.Ref()).
			Msg("No valid API key, using fallback model")
		return fb, nil
	}

	r.logger.Warn().
		Str("provider", provider.Name).
		Str("model", model.ID).
		Msg("No valid API key for provider")
	return res, nil
}

// Available returns every enabled catalog model in configuration order
func (r *Registry) Available() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []ModelInfo
	for _, p := range r.config.Providers {
		hasKey := r.hasValidAPIKey(p.Name)
		for _, m := range p.Models {
			if !r.isEnabled(p.Name + "/" + m.ID) {
				continue
			}
			models = append(models, ModelInfo{
				Provider:            p.Name,
				ProviderDisplayName: p.DisplayName,
				ModelID:             m.ID,
				DisplayName:         m.DisplayName,
				ContextWindow:       m.ContextWindow,
				HasAPIKey:           hasKey,
			})
		}
	}
	return models
}

// Reload swaps in a new configuration and re-reads API keys
func (r *Registry) Reload(cfg *config.Config) error {
	keys := loadAPIKeys(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = cfg
	r.apiKeys = keys

	return nil
}

func (r *Registry) isEnabled(modelRef string) bool {
	// No patterns means every catalog model is enabled
	if len(r.config.EnabledModels) == 0 {
		return true
	}
	for _, pattern := range r.config.EnabledModels {
		if matchesModelPattern(modelRef, pattern) {
			return true
		}
	}
	return false
}

// matchesModelPattern checks if a model reference matches a pattern
func matchesModelPattern(modelRef, pattern string) bool {
	if pattern == "*" {
		return true
	}

	// Exact match
	if modelRef == pattern {
		return true
	}

	// Wildcard match (e.g., "openai/*")
	if strings.HasSuffix(pattern, "/*") {
		prefix := pattern[:len(pattern)-2]
		return strings.HasPrefix(modelRef, prefix+"/")
	}

	return false
}
