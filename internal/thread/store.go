package thread

import (
	"context"
	"sort"
	"time"
)

// Store persists threads and their messages
type Store interface {
	// Create stores a new thread, assigning an ID and timestamps when unset
	Create(ctx context.Context, t Thread) (*Thread, error)
	Get(ctx context.Context, id string) (*Thread, error)
	// List returns threads ordered by most recent update first
	List(ctx context.Context) ([]Thread, error)
	Delete(ctx context.Context, id string) error

	// AddMessage appends a message, touches the thread and trims history to the store limit
	AddMessage(ctx context.Context, threadID string, msg Message) (*Message, error)
	// Messages returns the thread history oldest first
	Messages(ctx context.Context, threadID string) ([]Message, error)
	ClearMessages(ctx context.Context, threadID string) error

	UpdateTitle(ctx context.Context, threadID, title string) error
	UpdateModel(ctx context.Context, threadID, provider, model string) error
	UpdateSystemPrompt(ctx context.Context, threadID, prompt string) error
	IncrementTokenCount(ctx context.Context, threadID string, tokens int) error

	Close() error
}

// DateLayout is the heading format used when grouping threads by day
const DateLayout = "January 02, 2006"

// DateGroup is a set of threads last updated on the same day
type DateGroup struct {
	Date    string
	Threads []Thread
}

// GroupByDate groups threads by the local calendar day of their last update.
// Groups and the threads inside them are ordered most recent first.
func GroupByDate(threads []Thread) []DateGroup {
	sorted := make([]Thread, len(threads))
	copy(sorted, threads)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	var groups []DateGroup
	index := make(map[string]int)
	for _, t := range sorted {
		day := t.UpdatedAt.Local().Format(DateLayout)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, DateGroup{Date: day})
		}
		groups[i].Threads = append(groups[i].Threads, t)
	}
	return groups
}

func prepareThread(t Thread, now time.Time, newID func() string) Thread {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	return t
}

func prepareMessage(m Message, now time.Time, newID func() string) Message {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}
