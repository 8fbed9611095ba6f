package chat

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/s33g/chatctx/internal/config"
	"github.com/s33g/chatctx/internal/conversation"
	"github.com/s33g/chatctx/internal/provider"
	"github.com/s33g/chatctx/internal/storage"
	"github.com/s33g/chatctx/internal/thread"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.Provider{
		{
			Name:      "openai",
			APIKeyEnv: "CHAT_TEST_OPENAI_KEY",
			Models: []config.Model{
				{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000},
			},
		},
		{
			Name:      "gemini",
			APIKeyEnv: "CHAT_TEST_GEMINI_KEY",
			Models: []config.Model{
				{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", ContextWindow: 1000000},
			},
		},
	}
	cfg.FallbackProvider = ""
	cfg.SystemPrompts = []config.SystemPrompt{
		{Name: "helpful", Content: "You are helpful.", Default: true},
		{Name: "terse", Content: "Be terse."},
	}
	return cfg
}

type testEnv struct {
	svc   *Service
	store thread.Store
	logs  *bytes.Buffer
}

func newTestService(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	store, err := thread.NewSQLiteStore(ctx, db, cfg.Defaults.MessageHistoryLimit)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)
	registry := provider.NewRegistry(cfg, logger)

	return &testEnv{
		svc:   NewService(cfg, store, registry, logger),
		store: store,
		logs:  logs,
	}
}

func (e *testEnv) record(t *testing.T, threadID string, sender conversation.Sender, content string) {
	t.Helper()
	if _, err := e.svc.Record(context.Background(), threadID, thread.Message{Sender: sender, Content: content}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestNewThread(t *testing.T) {
	t.Setenv("CHAT_TEST_OPENAI_KEY", "")
	t.Setenv("CHAT_TEST_GEMINI_KEY", "g-real")
	env := newTestService(t, testConfig())

	th, err := env.svc.NewThread(context.Background(), "")
	if err != nil {
		t.Fatalf("NewThread() error = %v", err)
	}

	if th.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", th.Title, DefaultTitle)
	}
	// First model whose provider has a key
	if th.Provider != "gemini" || th.Model != "gemini-1.5-pro" {
		t.Errorf("model = %s/%s, want gemini/gemini-1.5-pro", th.Provider, th.Model)
	}
}

func TestPrepare(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})
	env.record(t, th.ID, conversation.SenderUser, "hello")
	env.record(t, th.ID, conversation.SenderAssistant, "hi")

	res, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "how are you"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	want := []conversation.Message{
		{Role: conversation.RoleSystem, Content: "You are helpful."},
		{Role: conversation.RoleUser, Content: "hello"},
		{Role: conversation.RoleAssistant, Content: "hi"},
		{Role: conversation.RoleUser, Content: "how are you"},
	}
	got := res.Prepared.Payload.Messages
	if len(got) != len(want) {
		t.Fatalf("Payload has %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Payload[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if res.Prepared.MaxTokens != 128000-1024 {
		t.Errorf("MaxTokens = %d, want model window minus reserve", res.Prepared.MaxTokens)
	}
	if res.Resolution.Ref() != "openai/gpt-4o" {
		t.Errorf("Resolution = %s, want openai/gpt-4o", res.Resolution.Ref())
	}

	// Prepare does not persist the new turn
	msgs, _ := env.store.Messages(ctx, th.ID)
	if len(msgs) != 2 {
		t.Errorf("store has %d messages, want 2", len(msgs))
	}
}

func TestPrepare_Gemini(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})
	env.record(t, th.ID, conversation.SenderUser, "hello")
	env.record(t, th.ID, conversation.SenderAssistant, "hi")

	res, err := env.svc.Prepare(ctx, Request{
		ThreadID:         th.ID,
		Content:          "next",
		Provider:         "gemini",
		Model:            "gemini-1.5-pro",
		SystemPromptName: "terse",
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	payload := res.Prepared.Payload
	if payload.Family != conversation.FamilyGemini {
		t.Fatalf("Family = %v, want gemini", payload.Family)
	}
	if len(payload.Contents) != 3 {
		t.Fatalf("Contents has %d entries, want 3", len(payload.Contents))
	}
	first := payload.Contents[0]
	if first.Role != "user" || len(first.Parts) != 2 || first.Parts[0].Text != "Be terse." || first.Parts[1].Text != "hello" {
		t.Errorf("Contents[0] = %+v, want system part merged into first user turn", first)
	}
	if payload.Contents[1].Role != "model" {
		t.Errorf("Contents[1].Role = %q, want model", payload.Contents[1].Role)
	}
}

func TestPrepare_DropsAndLogs(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})
	env.record(t, th.ID, conversation.SenderUser, "hello there friend") // 5 tokens
	env.record(t, th.ID, conversation.SenderAssistant, "hi")            // 1 token

	// system 4 + "hi" 1 + "ok?" 1
	res, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "ok?", MaxTokens: 6})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if res.Prepared.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Prepared.Dropped)
	}
	if res.Prepared.Tokens != 6 {
		t.Errorf("Tokens = %d, want 6", res.Prepared.Tokens)
	}
	if !strings.Contains(env.logs.String(), "Dropped older messages") {
		t.Errorf("expected a dropped-messages warning, logs:\n%s", env.logs.String())
	}
}

func TestPrepare_UnknownProviderUsesDefaultFamily(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})

	res, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "hi", Provider: "acme", Model: "rocket-1"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if res.Prepared.Payload.Family != conversation.FamilyDefault {
		t.Errorf("Family = %v, want default", res.Prepared.Payload.Family)
	}
	// No model entry, so the default budget applies
	if res.Prepared.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", res.Prepared.MaxTokens)
	}
	if !strings.Contains(env.logs.String(), "Provider not in catalog") {
		t.Errorf("expected an unknown-provider warning, logs:\n%s", env.logs.String())
	}
}

func TestPrepare_Errors(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	if _, err := env.svc.Prepare(ctx, Request{ThreadID: "missing", Content: "hi"}); !errors.Is(err, thread.ErrNotFound) {
		t.Errorf("Prepare() missing thread error = %v, want ErrNotFound", err)
	}

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})

	if _, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "hi", Model: "gpt-9"}); !errors.Is(err, provider.ErrUnknownModel) {
		t.Errorf("Prepare() unknown model error = %v, want ErrUnknownModel", err)
	}
	if _, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "hi", SystemPromptName: "nope"}); err == nil {
		t.Error("Prepare() with unknown system prompt should fail")
	}

	// A corrupt sender in storage surfaces as invalid input
	if _, err := env.store.AddMessage(ctx, th.ID, thread.Message{Sender: "robot", Content: "beep"}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if _, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "hi"}); !errors.Is(err, conversation.ErrInvalidInput) {
		t.Errorf("Prepare() error = %v, want ErrInvalidInput", err)
	}
}

func textAttachment(t *testing.T, name, content string) thread.Attachment {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	url, err := thread.FileURL(path)
	if err != nil {
		t.Fatal(err)
	}
	return thread.Attachment{Name: name, Type: "text/plain", Size: int64(len(content)), URL: url}
}

func TestPrepare_HasImages(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})

	res, err := env.svc.Prepare(ctx, Request{
		ThreadID: th.ID,
		Content:  "what is this?",
		Files:    []thread.Attachment{textAttachment(t, "notes.txt", "n"), {Name: "cat.jpg", Type: "image/jpeg"}},
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !res.HasImages {
		t.Error("HasImages = false, want true")
	}

	last := res.Prepared.Payload.Messages[len(res.Prepared.Payload.Messages)-1]
	if !strings.Contains(last.Content, "--- File: cat.jpg ---\n[Image file: cat.jpg]") {
		t.Errorf("Last message = %q, want the image named", last.Content)
	}
}

func TestPrepare_Attachments(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		model     string
		wantParts []string // gemini
		wantText  string   // default
	}{
		{
			name:     "default family folds into content",
			provider: "openai",
			model:    "gpt-4o",
			wantText: "summarize\n\n--- File: notes.txt ---\nbuy milk",
		},
		{
			name:      "gemini gets a file part",
			provider:  "gemini",
			model:     "gemini-1.5-pro",
			wantParts: []string{"summarize", "Content from notes.txt:\nbuy milk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestService(t, testConfig())
			ctx := context.Background()

			th, _ := env.store.Create(ctx, thread.Thread{Provider: tt.provider, Model: tt.model})
			env.record(t, th.ID, conversation.SenderUser, "hello")

			res, err := env.svc.Prepare(ctx, Request{
				ThreadID: th.ID,
				Content:  "summarize",
				Files:    []thread.Attachment{textAttachment(t, "notes.txt", "buy milk\n")},
			})
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}

			payload := res.Prepared.Payload
			if tt.wantParts != nil {
				last := payload.Contents[len(payload.Contents)-1]
				if len(last.Parts) != len(tt.wantParts) {
					t.Fatalf("Last content = %+v, want %d parts", last, len(tt.wantParts))
				}
				for i, want := range tt.wantParts {
					if last.Parts[i].Text != want {
						t.Errorf("Parts[%d] = %q, want %q", i, last.Parts[i].Text, want)
					}
				}
				return
			}

			last := payload.Messages[len(payload.Messages)-1]
			if last.Content != tt.wantText {
				t.Errorf("Last message = %q, want %q", last.Content, tt.wantText)
			}
		})
	}
}

func TestPrepare_MissingAttachment(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})

	_, err := env.svc.Prepare(ctx, Request{
		ThreadID: th.ID,
		Content:  "read this",
		Files:    []thread.Attachment{{Name: "gone.txt", Type: "text/plain", URL: "file:///nonexistent/gone.txt"}},
	})
	if err == nil {
		t.Error("Prepare() with an unreadable attachment should fail")
	}
}

func TestRecord_SetsTitleFromFirstUserMessage(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, err := env.svc.NewThread(ctx, "")
	if err != nil {
		t.Fatalf("NewThread() error = %v", err)
	}

	env.record(t, th.ID, conversation.SenderUser, "Explain the difference between goroutines and threads")
	env.record(t, th.ID, conversation.SenderAssistant, "Sure.")
	env.record(t, th.ID, conversation.SenderUser, "Thanks")

	got, err := env.store.Get(ctx, th.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Explain the difference betw..." {
		t.Errorf("Title = %q", got.Title)
	}
	if want := conversation.EstimateTokens("Explain the difference between goroutines and threads") +
		conversation.EstimateTokens("Sure.") + conversation.EstimateTokens("Thanks"); got.TokenCount != want {
		t.Errorf("TokenCount = %d, want %d", got.TokenCount, want)
	}
}

func TestRecord_Errors(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	if _, err := env.svc.Record(ctx, "missing", thread.Message{Sender: conversation.SenderUser, Content: "hi"}); !errors.Is(err, thread.ErrNotFound) {
		t.Errorf("Record() missing thread error = %v, want ErrNotFound", err)
	}

	th, _ := env.svc.NewThread(ctx, "t")
	if _, err := env.svc.Record(ctx, th.ID, thread.Message{Sender: "system", Content: "hi"}); !errors.Is(err, conversation.ErrInvalidInput) {
		t.Errorf("Record() bad sender error = %v, want ErrInvalidInput", err)
	}
}

// flakyStore fails the bookkeeping calls that follow AddMessage
type flakyStore struct {
	thread.Store
	added int
}

func (f *flakyStore) AddMessage(ctx context.Context, threadID string, msg thread.Message) (*thread.Message, error) {
	f.added++
	return f.Store.AddMessage(ctx, threadID, msg)
}

func (f *flakyStore) IncrementTokenCount(context.Context, string, int) error {
	return errors.New("token count unavailable")
}

func (f *flakyStore) UpdateTitle(context.Context, string, string) error {
	return errors.New("title unavailable")
}

func TestRecord_FollowUpFailuresKeepMessage(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	flaky := &flakyStore{Store: env.store}
	svc := NewService(testConfig(), flaky, env.svc.registry, env.svc.logger)

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})

	msg, err := svc.Record(ctx, th.ID, thread.Message{Sender: conversation.SenderUser, Content: "hello"})
	if err != nil {
		t.Fatalf("Record() error = %v, want nil once the message is stored", err)
	}
	if msg == nil || msg.ID == "" {
		t.Fatalf("Record() = %+v, want the stored message", msg)
	}

	msgs, _ := env.store.Messages(ctx, th.ID)
	if len(msgs) != 1 || flaky.added != 1 {
		t.Errorf("Got %d stored messages after %d adds, want 1", len(msgs), flaky.added)
	}

	logs := env.logs.String()
	for _, want := range []string{"Failed to update thread token count", "Failed to set thread title"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
}

func TestReload(t *testing.T) {
	env := newTestService(t, testConfig())
	ctx := context.Background()

	th, _ := env.store.Create(ctx, thread.Thread{Provider: "openai", Model: "gpt-4o"})

	cfg := testConfig()
	cfg.DefaultSystemPrompt = "terse"
	if err := env.svc.Reload(cfg); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	res, err := env.svc.Prepare(ctx, Request{ThreadID: th.ID, Content: "hi"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if first := res.Prepared.Messages[0]; first.Content != "Be terse." {
		t.Errorf("system prompt = %q, want reloaded default", first.Content)
	}
}

func TestThreadTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{name: "short", content: "Hello", max: 30, want: "Hello"},
		{name: "exactly max", content: strings.Repeat("a", 30), max: 30, want: strings.Repeat("a", 30)},
		{name: "over max", content: strings.Repeat("a", 31), max: 30, want: strings.Repeat("a", 27) + "..."},
		{name: "trims whitespace", content: "  hi  ", max: 30, want: "hi"},
		{name: "zero max uses default", content: strings.Repeat("b", 40), max: 0, want: strings.Repeat("b", 27) + "..."},
		{name: "multibyte", content: strings.Repeat("é", 12), max: 10, want: strings.Repeat("é", 7) + "..."},
		{name: "empty", content: "", max: 30, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThreadTitle(tt.content, tt.max); got != tt.want {
				t.Errorf("ThreadTitle(%q, %d) = %q, want %q", tt.content, tt.max, got, tt.want)
			}
		})
	}
}
