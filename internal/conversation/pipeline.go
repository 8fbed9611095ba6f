package conversation

// Request carries everything needed to prepare one outbound chat request
type Request struct {
	History      []StoredMessage
	UserMessage  string
	SystemPrompt string
	MaxTokens    int
	ProviderID   string
	Files        []File // attachments folded into the new user turn
}

// Prepared is the budgeted, provider-shaped result of Prepare
type Prepared struct {
	Payload   Payload
	Messages  []Message // budgeted messages before provider shaping
	Tokens    int
	MaxTokens int
	Dropped   int
	Truncated bool
}

// OverBudget reports whether pinned system content exceeded MaxTokens
func (p *Prepared) OverBudget() bool {
	return p.Tokens > p.MaxTokens
}

// Prepare runs normalize, budget and format for a single request
func Prepare(req Request) (*Prepared, error) {
	messages, err := Normalize(req.History, req.UserMessage, req.SystemPrompt)
	if err != nil {
		return nil, err
	}

	attachFiles(messages, req.Files, FamilyFor(req.ProviderID))

	fit := NewBudgeter(req.MaxTokens).Fit(messages)

	return &Prepared{
		Payload:   Format(fit.Messages, req.ProviderID),
		Messages:  fit.Messages,
		Tokens:    fit.Tokens,
		MaxTokens: fit.MaxTokens,
		Dropped:   fit.Dropped,
		Truncated: fit.Truncated,
	}, nil
}
