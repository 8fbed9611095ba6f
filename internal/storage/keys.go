package storage

import (
	"fmt"
)

// Keys generates Redis keys with consistent naming
type Keys struct {
	prefix string
}

// NewKeys creates a new Keys generator
func NewKeys(prefix string) *Keys {
	return &Keys{prefix: prefix}
}

// Thread returns the key for thread metadata
func (k *Keys) Thread(threadID string) string {
	return fmt.Sprintf("%sthread:%s", k.prefix, threadID)
}

// Messages returns the key for a thread's message history
func (k *Keys) Messages(threadID string) string {
	return fmt.Sprintf("%sthread:%s:messages", k.prefix, threadID)
}

// Threads returns the key of the sorted set indexing threads by last update
func (k *Keys) Threads() string {
	return k.prefix + "threads"
}
