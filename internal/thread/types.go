// Package thread persists chat threads and their message history.
package thread

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/s33g/chatctx/internal/conversation"
)

// ErrNotFound is returned when a thread does not exist
var ErrNotFound = errors.New("thread not found")

// Thread represents thread metadata
type Thread struct {
	ID           string
	Title        string
	Provider     string
	Model        string
	SystemPrompt string
	TokenCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attachment is a file uploaded alongside a message
type Attachment struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Type    string `json:"type"` // MIME type
	Size    int64  `json:"size"`
	URL     string `json:"url,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// IsImage reports whether the attachment has an image MIME type
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.Type, "image/")
}

// Message is a stored thread message
type Message struct {
	ID        string              `json:"id"`
	Sender    conversation.Sender `json:"sender"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
	Files     []Attachment        `json:"files,omitempty"`
}

// HasImages reports whether any attachment on the message is an image
func (m Message) HasImages() bool {
	for _, f := range m.Files {
		if f.IsImage() {
			return true
		}
	}
	return false
}

// ToMap converts thread metadata to a map for Redis HSET
func (t *Thread) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"title":         t.Title,
		"provider":      t.Provider,
		"model":         t.Model,
		"system_prompt": t.SystemPrompt,
		"token_count":   t.TokenCount,
		"created_at":    t.CreatedAt.UnixMilli(),
		"updated_at":    t.UpdatedAt.UnixMilli(),
	}
}

// FromMap populates thread metadata from Redis HGETALL result
func (t *Thread) FromMap(id string, m map[string]string) error {
	t.ID = id
	t.Title = m["title"]
	t.Provider = m["provider"]
	t.Model = m["model"]
	t.SystemPrompt = m["system_prompt"]

	var tokenCount int64
	if _, err := fmt.Sscanf(m["token_count"], "%d", &tokenCount); err == nil {
		t.TokenCount = int(tokenCount)
	}

	var createdAt, updatedAt int64
	if _, err := fmt.Sscanf(m["created_at"], "%d", &createdAt); err != nil {
		return fmt.Errorf("thread %s: bad created_at %q", id, m["created_at"])
	}
	t.CreatedAt = time.UnixMilli(createdAt)
	if _, err := fmt.Sscanf(m["updated_at"], "%d", &updatedAt); err == nil {
		t.UpdatedAt = time.UnixMilli(updatedAt)
	} else {
		t.UpdatedAt = t.CreatedAt
	}

	return nil
}

// MarshalMessage converts a Message to JSON for storage
func MarshalMessage(m Message) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalMessage converts JSON to a Message
func UnmarshalMessage(data string) (Message, error) {
	var m Message
	err := json.Unmarshal([]byte(data), &m)
	return m, err
}

// History converts stored messages into the normalizer's input form
func History(msgs []Message) []conversation.StoredMessage {
	out := make([]conversation.StoredMessage, len(msgs))
	for i, m := range msgs {
		out[i] = conversation.StoredMessage{
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}
	return out
}
