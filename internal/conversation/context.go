package conversation

// Budgeter trims a normalized message list to an estimated token budget
type Budgeter struct {
	maxTokens int
}

// NewBudgeter creates a budgeter for a single request
func NewBudgeter(maxTokens int) *Budgeter {
	return &Budgeter{maxTokens: maxTokens}
}

// FitResult is the outcome of fitting messages into a budget
type FitResult struct {
	Messages  []Message
	Tokens    int // estimated cost of Messages
	MaxTokens int
	Dropped   int  // non-system messages left out
	Truncated bool // newest message was cut to the remaining budget
}

// OverBudget reports whether pinned system content alone exceeded the budget
func (r FitResult) OverBudget() bool {
	return r.Tokens > r.MaxTokens
}

// Fit keeps every system message and as many of the most recent other messages
// as fit. The walk runs newest to oldest and stops at the first message that
// does not fit. When not even the newest message fits, it is truncated to the
// remaining character budget instead of being dropped.
// Output is system messages first, then the kept messages in chronological order.
func (b *Budgeter) Fit(messages []Message) FitResult {
	var system, others []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			others = append(others, msg)
		}
	}

	total := EstimateMessages(system)

	// Collected newest first, reversed below
	var kept []Message
	truncated := false
	for i := len(others) - 1; i >= 0; i-- {
		msg := others[i]
		cost := msg.tokens()

		if total+cost <= b.maxTokens {
			kept = append(kept, msg)
			total += cost
			continue
		}

		// Only the newest message may be cut down
		if len(kept) == 0 && i == len(others)-1 {
			if remaining := b.maxTokens - total; remaining > 0 {
				msg = truncateMessage(msg, remaining)
				kept = append(kept, msg)
				total += msg.tokens()
				truncated = true
			}
		}
		break
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	result := make([]Message, 0, len(system)+len(kept))
	result = append(result, system...)
	result = append(result, kept...)

	return FitResult{
		Messages:  result,
		Tokens:    total,
		MaxTokens: b.maxTokens,
		Dropped:   len(others) - len(kept),
		Truncated: truncated,
	}
}
