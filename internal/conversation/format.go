package conversation

import (
	"encoding/json"
	"strings"
)

// Family groups providers that share a request shape
type Family uint8

const (
	// FamilyDefault covers OpenAI-compatible, Anthropic, Mistral and unknown providers
	FamilyDefault Family = iota
	// FamilyGemini covers Google Gemini style backends
	FamilyGemini
)

func (f Family) String() string {
	switch f {
	case FamilyGemini:
		return "gemini"
	default:
		return "default"
	}
}

// FamilyFor classifies a provider identifier, case-insensitively.
// Unrecognized identifiers map to FamilyDefault.
func FamilyFor(providerID string) Family {
	id := strings.ToLower(strings.TrimSpace(providerID))
	switch {
	case id == "gemini", strings.HasPrefix(id, "gemini-"), strings.HasPrefix(id, "gemini/"):
		return FamilyGemini
	case id == "google", id == "vertex", id == "vertexai":
		return FamilyGemini
	default:
		return FamilyDefault
	}
}

// Part is a single text part of a Gemini content entry
type Part struct {
	Text string `json:"text"`
}

// Content is a Gemini content entry
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Payload is the provider-shaped message list.
// Exactly one of Messages or Contents is populated, depending on Family.
type Payload struct {
	Family   Family
	Messages []Message
	Contents []Content
}

// Len returns the number of entries in the payload
func (p Payload) Len() int {
	if p.Family == FamilyGemini {
		return len(p.Contents)
	}
	return len(p.Messages)
}

// MarshalJSON encodes the payload as the array the backend expects
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Family == FamilyGemini {
		if p.Contents == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(p.Contents)
	}
	if p.Messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Messages)
}

// Format reshapes messages into the convention providerID expects
func Format(messages []Message, providerID string) Payload {
	family := FamilyFor(providerID)
	switch family {
	case FamilyGemini:
		return Payload{Family: family, Contents: toGemini(messages)}
	default:
		out := make([]Message, len(messages))
		for i, msg := range messages {
			msg.Content = joinText(msg.Content, msg.FileText)
			msg.FileText = ""
			out[i] = msg
		}
		return Payload{Family: family, Messages: out}
	}
}

// toGemini maps roles to Gemini names. Gemini has no system role, so system
// text is merged into the first user turn as leading parts; without a user
// turn the system parts become a user entry of their own at the front.
func toGemini(messages []Message) []Content {
	var systemParts []Part
	contents := make([]Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, Part{Text: msg.Content})
		case RoleUser:
			parts := []Part{{Text: msg.Content}}
			if msg.FileText != "" {
				parts = append(parts, Part{Text: msg.FileText})
			}
			contents = append(contents, Content{Role: "user", Parts: parts})
		case RoleAssistant:
			contents = append(contents, Content{Role: "model", Parts: []Part{{Text: msg.Content}}})
		}
	}

	if len(systemParts) == 0 {
		return contents
	}

	for i := range contents {
		if contents[i].Role == "user" {
			parts := make([]Part, 0, len(systemParts)+len(contents[i].Parts))
			parts = append(parts, systemParts...)
			parts = append(parts, contents[i].Parts...)
			contents[i].Parts = parts
			return contents
		}
	}

	return append([]Content{{Role: "user", Parts: systemParts}}, contents...)
}
