package conversation

import "unicode/utf8"

// CharsPerToken is the heuristic ratio used instead of a model tokenizer
const CharsPerToken = 4

// EstimateTokens returns ceil(characters/4) for text, counting Unicode code points
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessages sums the estimated cost of every message
func EstimateMessages(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += msg.tokens()
	}
	return total
}

func (m Message) tokens() int {
	return EstimateTokens(m.Content) + EstimateTokens(m.FileText)
}

// truncateMessage cuts a message down to at most budget tokens, content first
func truncateMessage(m Message, budget int) Message {
	m.Content = truncateChars(m.Content, budget*CharsPerToken)
	m.FileText = truncateChars(m.FileText, (budget-EstimateTokens(m.Content))*CharsPerToken)
	return m
}

// truncateChars keeps at most n code points of text
func truncateChars(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
