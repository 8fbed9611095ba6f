package config

// DefaultConfig returns sensible defaults, including the built-in provider catalog
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				DB:        0,
				KeyPrefix: "chatctx:",
			},
			SQLite: SQLiteConfig{
				Path: "data/chatctx.db",
			},
		},
		Defaults: DefaultsConfig{
			MaxContextTokens:      4096,
			ResponseReserveTokens: 1024,
			ConversationTTLHours:  168, // 7 days
			MessageHistoryLimit:   100,
			TitleMaxLength:        30,
		},
		Providers:        defaultProviders(),
		FallbackProvider: "huggingface",
		EnabledModels:    []string{"*"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultProviders() []Provider {
	return []Provider{
		{
			Name:        "openai",
			DisplayName: "OpenAI",
			APIKeyEnv:   "OPENAI_API_KEY",
			Models: []Model{
				{ID: "gpt-4", DisplayName: "GPT-4", ContextWindow: 8192, FallbackModel: "HuggingFaceM4/idefics-9b"},
				{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000, FallbackModel: "HuggingFaceM4/idefics-9b"},
				{ID: "gpt-4o-mini", DisplayName: "GPT-4o Mini", ContextWindow: 128000, FallbackModel: "Salesforce/blip-image-captioning-large"},
			},
		},
		{
			Name:        "gemini",
			DisplayName: "Gemini",
			APIKeyEnv:   "GEMINI_API_KEY",
			Models: []Model{
				{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", ContextWindow: 1000000, FallbackModel: "google/PaLI-2B"},
				{ID: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash", ContextWindow: 1000000, FallbackModel: "google/vit-large-patch16-224"},
			},
		},
		{
			Name:        "deepseek",
			DisplayName: "DeepSeek",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Models: []Model{
				{ID: "deepseek-coder", DisplayName: "DeepSeek Coder", ContextWindow: 64000, FallbackModel: "deepseek-ai/deepseek-coder-33b-instruct"},
				{ID: "deepseek-chat", DisplayName: "DeepSeek Chat", ContextWindow: 64000, FallbackModel: "deepseek-ai/deepseek-llm-7b-chat"},
			},
		},
		{
			Name:        "mistral",
			DisplayName: "Mistral",
			APIKeyEnv:   "MISTRAL_API_KEY",
			Models: []Model{
				{ID: "mistral-large", DisplayName: "Mistral Large", ContextWindow: 32000, FallbackModel: "mistralai/Mistral-7B-Instruct-v0.2"},
				{ID: "mistral-small", DisplayName: "Mistral Small", ContextWindow: 32000, FallbackModel: "mistralai/Mistral-7B-Instruct-v0.2"},
			},
		},
		{
			Name:        "huggingface",
			DisplayName: "Hugging Face",
			APIKeyEnv:   "HUGGINGFACE_API_KEY",
			Models: []Model{
				{ID: "meta-llama/Llama-3-8b-chat-hf", DisplayName: "Llama 3", ContextWindow: 8192},
				{ID: "microsoft/phi-3-mini-4k-instruct", DisplayName: "Phi-3 Mini", ContextWindow: 4096},
				{ID: "mistralai/Mixtral-8x7B-Instruct-v0.1", DisplayName: "Mixtral 8x7B", ContextWindow: 32000},
				{ID: "tiiuae/falcon-7b-instruct", DisplayName: "Falcon 7B", ContextWindow: 2048},
			},
		},
	}
}
