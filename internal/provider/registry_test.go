package provider

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/s33g/chatctx/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.Provider{
		{
			Name:      "openai",
			APIKeyEnv: "TEST_OPENAI_KEY",
			Models: []config.Model{
				{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000, FallbackModel: "HuggingFaceM4/idefics-9b"},
				{ID: "gpt-3.5", DisplayName: "GPT-3.5", ContextWindow: 4096},
			},
		},
		{
			Name:      "gemini",
			APIKeyEnv: "TEST_GEMINI_KEY",
			Models: []config.Model{
				{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", ContextWindow: 1000000, FallbackModel: "meta-llama/Llama-3-8b-chat-hf"},
			},
		},
		{
			Name:      "huggingface",
			APIKeyEnv: "TEST_HF_KEY",
			Models: []config.Model{
				{ID: "meta-llama/Llama-3-8b-chat-hf", DisplayName: "Llama 3", ContextWindow: 8192},
			},
		},
	}
	cfg.FallbackProvider = "huggingface"
	cfg.EnabledModels = []string{"*"}
	return cfg
}

func TestHasValidAPIKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-real")
	t.Setenv("TEST_GEMINI_KEY", "your_gemini_api_key_here")
	t.Setenv("TEST_HF_KEY", "")

	r := NewRegistry(testConfig(), zerolog.Nop())

	tests := []struct {
		provider string
		want     bool
	}{
		{"openai", true},
		{"OpenAI", true},
		{"gemini", false}, // placeholder value
		{"huggingface", false},
		{"unknown", false},
	}

	for _, tt := range tests {
		if got := r.HasValidAPIKey(tt.provider); got != tt.want {
			t.Errorf("HasValidAPIKey(%q) = %v, want %v", tt.provider, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		openaiKey    string
		hfKey        string
		provider     string
		model        string
		wantProvider string
		wantModel    string
		wantFallback bool
		wantHasKey   bool
		wantErr      error
	}{
		{
			name:         "primary with key",
			openaiKey:    "sk-real",
			provider:     "openai",
			model:        "gpt-4o",
			wantProvider: "openai",
			wantModel:    "gpt-4o",
			wantHasKey:   true,
		},
		{
			name:         "fallback when primary key missing",
			hfKey:        "hf-real",
			provider:     "openai",
			model:        "gpt-4o",
			wantProvider: "huggingface",
			wantModel:    "HuggingFaceM4/idefics-9b",
			wantFallback: true,
			wantHasKey:   true,
		},
		{
			name:         "no fallback model configured",
			hfKey:        "hf-real",
			provider:     "openai",
			model:        "gpt-3.5",
			wantProvider: "openai",
			wantModel:    "gpt-3.5",
		},
		{
			name:         "fallback provider has no key either",
			provider:     "openai",
			model:        "gpt-4o",
			wantProvider: "openai",
			wantModel:    "gpt-4o",
		},
		{
			name:     "unknown provider",
			provider: "anthropic",
			model:    "claude",
			wantErr:  ErrUnknownProvider,
		},
		{
			name:     "unknown model",
			provider: "openai",
			model:    "gpt-9",
			wantErr:  ErrUnknownModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_OPENAI_KEY", tt.openaiKey)
			t.Setenv("TEST_HF_KEY", tt.hfKey)
			r := NewRegistry(testConfig(), zerolog.Nop())

			got, err := r.Resolve(tt.provider, tt.model)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			if got.Provider != tt.wantProvider || got.ModelID != tt.wantModel {
				t.Errorf("Resolve() = %s, want %s/%s", got.Ref(), tt.wantProvider, tt.wantModel)
			}
			if got.UsingFallback != tt.wantFallback {
				t.Errorf("UsingFallback = %v, want %v", got.UsingFallback, tt.wantFallback)
			}
			if got.HasAPIKey != tt.wantHasKey {
				t.Errorf("HasAPIKey = %v, want %v", got.HasAPIKey, tt.wantHasKey)
			}
		})
	}
}

func TestResolve_FallbackModelInCatalog(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "")
	t.Setenv("TEST_HF_KEY", "hf-real")
	r := NewRegistry(testConfig(), zerolog.Nop())

	got, err := r.Resolve("gemini", "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !got.UsingFallback {
		t.Fatal("expected fallback resolution")
	}
	if got.Model == nil || got.Model.ContextWindow != 8192 {
		t.Errorf("Model = %+v, want catalog entry with ContextWindow 8192", got.Model)
	}
}

func TestResolve_NotEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledModels = []string{"gemini/*"}
	r := NewRegistry(cfg, zerolog.Nop())

	if _, err := r.Resolve("openai", "gpt-4o"); !errors.Is(err, ErrModelNotEnabled) {
		t.Errorf("Resolve() error = %v, want ErrModelNotEnabled", err)
	}
	if _, err := r.Resolve("gemini", "gemini-1.5-pro"); err != nil {
		t.Errorf("Resolve() error = %v", err)
	}
}

func TestFallbackModel(t *testing.T) {
	r := NewRegistry(testConfig(), zerolog.Nop())

	if got, ok := r.FallbackModel("openai", "gpt-4o"); !ok || got != "HuggingFaceM4/idefics-9b" {
		t.Errorf("FallbackModel(openai, gpt-4o) = %q, %v", got, ok)
	}
	if _, ok := r.FallbackModel("openai", "gpt-3.5"); ok {
		t.Error("FallbackModel(openai, gpt-3.5) should not exist")
	}
	if _, ok := r.FallbackModel("nope", "x"); ok {
		t.Error("FallbackModel(nope, x) should not exist")
	}
}

func TestAvailable(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-real")
	cfg := testConfig()
	cfg.EnabledModels = []string{"openai/*", "huggingface/meta-llama/Llama-3-8b-chat-hf"}
	r := NewRegistry(cfg, zerolog.Nop())

	got := r.Available()
	want := []string{"openai/gpt-4o", "openai/gpt-3.5", "huggingface/meta-llama/Llama-3-8b-chat-hf"}
	if len(got) != len(want) {
		t.Fatalf("Available() returned %d models, want %d", len(got), len(want))
	}
	for i, ref := range want {
		if got[i].Ref() != ref {
			t.Errorf("Available()[%d] = %s, want %s", i, got[i].Ref(), ref)
		}
	}
	if !got[0].HasAPIKey || got[2].HasAPIKey {
		t.Errorf("HasAPIKey flags = %v, %v, want true, false", got[0].HasAPIKey, got[2].HasAPIKey)
	}
}

func TestReload(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	r := NewRegistry(testConfig(), zerolog.Nop())
	if r.HasValidAPIKey("openai") {
		t.Fatal("openai should start without a key")
	}

	t.Setenv("TEST_OPENAI_KEY", "sk-new")
	cfg := testConfig()
	cfg.EnabledModels = []string{"openai/gpt-4o"}
	if err := r.Reload(cfg); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if !r.HasValidAPIKey("openai") {
		t.Error("Reload() should re-read API keys")
	}
	if n := len(r.Available()); n != 1 {
		t.Errorf("Available() after reload = %d models, want 1", n)
	}
}

func TestMatchesModelPattern(t *testing.T) {
	tests := []struct {
		name     string
		modelRef string
		pattern  string
		want     bool
	}{
		{name: "star matches everything", modelRef: "openai/gpt-4o", pattern: "*", want: true},
		{name: "exact", modelRef: "openai/gpt-4o", pattern: "openai/gpt-4o", want: true},
		{name: "exact mismatch", modelRef: "openai/gpt-4o", pattern: "openai/gpt-4", want: false},
		{name: "provider wildcard", modelRef: "openai/gpt-4o", pattern: "openai/*", want: true},
		{name: "other provider wildcard", modelRef: "gemini/gemini-1.5-pro", pattern: "openai/*", want: false},
		{name: "wildcard over slashed model id", modelRef: "huggingface/meta-llama/Llama-3-8b-chat-hf", pattern: "huggingface/*", want: true},
		{name: "prefix is not a provider", modelRef: "openai2/gpt", pattern: "openai/*", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesModelPattern(tt.modelRef, tt.pattern)
			if got != tt.want {
				t.Errorf("matchesModelPattern(%q, %q) = %v, want %v", tt.modelRef, tt.pattern, got, tt.want)
			}
		})
	}
}
