// Package chat ties the thread store, provider registry and context pipeline together.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/s33g/chatctx/internal/config"
	"github.com/s33g/chatctx/internal/conversation"
	"github.com/s33g/chatctx/internal/provider"
	"github.com/s33g/chatctx/internal/thread"
)

// DefaultTitle is the title of a thread before its first user message
const DefaultTitle = "New Chat"

// Service prepares outbound requests for stored threads and records replies
type Service struct {
	mu       sync.RWMutex
	cfg      *config.Config
	store    thread.Store
	registry *provider.Registry
	logger   zerolog.Logger
}

// NewService creates a new chat service
func NewService(cfg *config.Config, store thread.Store, registry *provider.Registry, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Request selects a thread and carries the new user turn
type Request struct {
	ThreadID         string
	Content          string
	Files            []thread.Attachment
	Provider         string // overrides the thread's provider when set
	Model            string // overrides the thread's model when set
	SystemPromptName string // overrides the thread's system prompt when set
	MaxTokens        int    // overrides the model budget when > 0
}

// Result is a prepared request ready to hand to a transport
type Result struct {
	Thread     *thread.Thread
	Resolution provider.Resolution
	Prepared   *conversation.Prepared
	HasImages  bool
}

// NewThread creates an empty thread bound to the default model
func (s *Service) NewThread(ctx context.Context, title string) (*thread.Thread, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	t := thread.Thread{Title: title}
	if m, ok := s.DefaultModel(); ok {
		t.Provider = m.Provider
		t.Model = m.ModelID
	}

	created, err := s.store.Create(ctx, t)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("thread", created.ID).
		Str("model", created.Provider+"/"+created.Model).
		Msg("Created thread")

	return created, nil
}

// DefaultModel returns the first enabled model whose provider has an API key,
// or the first enabled model when none do
func (s *Service) DefaultModel() (provider.ModelInfo, bool) {
	models := s.registry.Available()
	for _, m := range models {
		if m.HasAPIKey {
			return m, true
		}
	}
	if len(models) > 0 {
		return models[0], true
	}
	return provider.ModelInfo{}, false
}

// Prepare builds the provider payload for a new user turn on a stored thread.
// The user turn itself is not persisted; call Record for that.
func (s *Service) Prepare(ctx context.Context, req Request) (*Result, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	th, err := s.store.Get(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.Messages(ctx, th.ID)
	if err != nil {
		return nil, err
	}

	res, err := s.resolve(th, req)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := s.systemPrompt(cfg, th, req.SystemPromptName)
	if err != nil {
		return nil, err
	}

	files, err := thread.Files(req.Files)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.ContextBudget(res.Model)
	}

	prepared, err := conversation.Prepare(conversation.Request{
		History:      thread.History(history),
		UserMessage:  req.Content,
		SystemPrompt: systemPrompt,
		MaxTokens:    maxTokens,
		ProviderID:   res.Provider,
		Files:        files,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare thread %s: %w", th.ID, err)
	}

	log := s.logger.With().
		Str("thread", th.ID).
		Str("model", res.Ref()).
		Logger()

	if prepared.Dropped > 0 {
		log.Warn().
			Int("dropped", prepared.Dropped).
			Int("tokens", prepared.Tokens).
			Int("max_tokens", prepared.MaxTokens).
			Msg("Dropped older messages to fit context budget")
	}
	if prepared.Truncated {
		log.Warn().
			Int("max_tokens", prepared.MaxTokens).
			Msg("Truncated newest message to fit context budget")
	}
	if prepared.OverBudget() {
		log.Warn().
			Int("tokens", prepared.Tokens).
			Int("max_tokens", prepared.MaxTokens).
			Msg("System prompt exceeds context budget")
	}

	log.Debug().
		Int("messages", len(prepared.Messages)).
		Int("files", len(files)).
		Int("tokens", prepared.Tokens).
		Str("family", conversation.FamilyFor(res.Provider).String()).
		Msg("Prepared context")

	return &Result{
		Thread:     th,
		Resolution: res,
		Prepared:   prepared,
		HasImages:  hasImages(req.Files),
	}, nil
}

func (s *Service) resolve(th *thread.Thread, req Request) (provider.Resolution, error) {
	providerName, modelID := th.Provider, th.Model
	if req.Provider != "" {
		providerName = req.Provider
	}
	if req.Model != "" {
		modelID = req.Model
	}
	if providerName == "" || modelID == "" {
		m, ok := s.DefaultModel()
		if !ok {
			return provider.Resolution{}, fmt.Errorf("no model selected for thread %s and no enabled models", th.ID)
		}
		providerName, modelID = m.Provider, m.ModelID
	}

	res, err := s.registry.Resolve(providerName, modelID)
	if errors.Is(err, provider.ErrUnknownProvider) {
		// Unknown vendors still get the default wire shape
		s.logger.Warn().
			Str("provider", providerName).
			Str("model", modelID).
			Msg("Provider not in catalog, formatting with default family")
		return provider.Resolution{Provider: providerName, ModelID: modelID}, nil
	}
	return res, err
}

func (s *Service) systemPrompt(cfg *config.Config, th *thread.Thread, name string) (string, error) {
	if name != "" {
		return cfg.GetSystemPromptByName(name)
	}
	if th.SystemPrompt != "" {
		return th.SystemPrompt, nil
	}
	prompt, err := cfg.GetDefaultSystemPrompt()
	if err != nil {
		// No configured prompts means no system message
		return "", nil
	}
	return prompt, nil
}

// Record appends a message to a thread. The first user message also names the thread.
// Once the message is stored it is returned; token count and title updates only log on failure.
func (s *Service) Record(ctx context.Context, threadID string, msg thread.Message) (*thread.Message, error) {
	s.mu.RLock()
	titleMax := s.cfg.Defaults.TitleMaxLength
	s.mu.RUnlock()

	switch msg.Sender {
	case conversation.SenderUser, conversation.SenderAssistant:
	default:
		return nil, &conversation.InvalidInputError{Index: -1, Field: "sender", Reason: fmt.Sprintf("unknown sender %q", msg.Sender)}
	}

	history, err := s.store.Messages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	added, err := s.store.AddMessage(ctx, threadID, msg)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().
		Str("thread", threadID).
		Str("message", added.ID).
		Logger()

	if err := s.store.IncrementTokenCount(ctx, threadID, conversation.EstimateTokens(msg.Content)); err != nil {
		log.Warn().Err(err).Msg("Failed to update thread token count")
	}

	if msg.Sender == conversation.SenderUser && !hasUserMessage(history) {
		title := ThreadTitle(msg.Content, titleMax)
		if title != "" {
			if err := s.store.UpdateTitle(ctx, threadID, title); err != nil {
				log.Warn().Err(err).Msg("Failed to set thread title")
			}
		}
	}

	return added, nil
}

// Reload swaps in a new configuration
func (s *Service) Reload(cfg *config.Config) error {
	if err := s.registry.Reload(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	return nil
}

// ThreadTitle derives a thread title from a message: at most maxLen characters,
// with longer messages cut to maxLen-3 characters followed by "..."
func ThreadTitle(content string, maxLen int) string {
	if maxLen <= 3 {
		maxLen = 30
	}
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= maxLen {
		return content
	}

	runes := []rune(content)
	return string(runes[:maxLen-3]) + "..."
}

func hasUserMessage(msgs []thread.Message) bool {
	for _, m := range msgs {
		if m.Sender == conversation.SenderUser {
			return true
		}
	}
	return false
}

func hasImages(files []thread.Attachment) bool {
	for _, f := range files {
		if f.IsImage() {
			return true
		}
	}
	return false
}
