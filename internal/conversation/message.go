package conversation

import (
	"errors"
	"fmt"
	"time"
)

// Role is the conversational tag attached to a message sent to a model
type Role uint8

const (
	RoleSystem Role = iota + 1
	RoleUser
	RoleAssistant
)

// String returns the wire name of the role
func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// MarshalText encodes the role as its wire name
func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("unknown role %d", uint8(r))
	}
}

// UnmarshalText parses a wire role name
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseRole converts a wire role name to a Role
func ParseRole(s string) (Role, error) {
	switch s {
	case "system":
		return RoleSystem, nil
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Message is a provider-agnostic role/content pair.
// FileText holds attachment text that Gemini receives as a separate part;
// the default family folds it into Content.
type Message struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	FileText string `json:"-"`
}

// Sender identifies who wrote a stored thread message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// StoredMessage is the read-only view of a thread message owned by the thread store
type StoredMessage struct {
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrInvalidInput is matched by every InvalidInputError
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports malformed history handed to the normalizer
type InvalidInputError struct {
	Index  int // position in the history, -1 when not tied to one entry
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: history[%d].%s: %s", e.Index, e.Field, e.Reason)
}

// Is lets errors.Is match ErrInvalidInput
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}
