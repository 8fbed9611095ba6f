package conversation

// Normalize turns stored thread history plus the turn being sent into a role/content list.
// A non-empty systemPrompt becomes the first entry; userMessage is always the last.
func Normalize(history []StoredMessage, userMessage, systemPrompt string) ([]Message, error) {
	size := len(history) + 1
	if systemPrompt != "" {
		size++
	}
	messages := make([]Message, 0, size)

	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}

	for i, stored := range history {
		var role Role
		switch stored.Sender {
		case SenderUser:
			role = RoleUser
		case SenderAssistant:
			role = RoleAssistant
		case "":
			return nil, &InvalidInputError{Index: i, Field: "sender", Reason: "missing"}
		default:
			return nil, &InvalidInputError{Index: i, Field: "sender", Reason: "unknown sender " + string(stored.Sender)}
		}
		messages = append(messages, Message{Role: role, Content: stored.Content})
	}

	messages = append(messages, Message{Role: RoleUser, Content: userMessage})
	return messages, nil
}
