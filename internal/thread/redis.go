package thread

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/s33g/chatctx/internal/storage"
)

// RedisStore keeps threads in Redis hashes, messages in lists and an index in a sorted set
type RedisStore struct {
	rdb         *storage.Redis
	ttl         time.Duration
	maxMessages int
	now         func() time.Time
}

// NewRedisStore creates a new Redis-backed thread store
func NewRedisStore(rdb *storage.Redis, ttl time.Duration, maxMessages int) *RedisStore {
	return &RedisStore{
		rdb:         rdb,
		ttl:         ttl,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Create creates a new thread
func (s *RedisStore) Create(ctx context.Context, t Thread) (*Thread, error) {
	t = prepareThread(t, s.now(), uuid.NewString)
	key := s.rdb.Key

	err := s.rdb.Atomic(ctx, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key.Thread(t.ID), t.ToMap())
		pipe.ZAdd(ctx, key.Threads(), redis.Z{Score: float64(t.UpdatedAt.UnixMilli()), Member: t.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, key.Thread(t.ID), s.ttl)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	return &t, nil
}

// Get retrieves a thread by ID
func (s *RedisStore) Get(ctx context.Context, id string) (*Thread, error) {
	data, err := s.rdb.HGetAll(ctx, s.rdb.Key.Thread(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var t Thread
	if err := t.FromMap(id, data); err != nil {
		return nil, err
	}

	return &t, nil
}

// List returns all live threads, most recently updated first.
// Index entries whose thread hash has expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]Thread, error) {
	key := s.rdb.Key

	ids, err := s.rdb.ZRevRange(ctx, key.Threads(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, key.Thread(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	threads := make([]Thread, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		var t Thread
		if err := t.FromMap(ids[i], data); err != nil {
			// Skip malformed threads
			continue
		}
		threads = append(threads, t)
	}

	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, key.Threads(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune thread index: %w", err)
		}
	}

	return threads, nil
}

// Delete deletes a thread and its messages
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}

	key := s.rdb.Key
	err := s.rdb.Atomic(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key.Thread(id), key.Messages(id))
		pipe.ZRem(ctx, key.Threads(), id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	return nil
}

// AddMessage adds a message to the thread history
func (s *RedisStore) AddMessage(ctx context.Context, threadID string, msg Message) (*Message, error) {
	if err := s.exists(ctx, threadID); err != nil {
		return nil, err
	}

	now := s.now()
	msg = prepareMessage(msg, now, uuid.NewString)
	key := s.rdb.Key

	data, err := MarshalMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	err = s.rdb.Atomic(ctx, func(pipe redis.Pipeliner) {
		pipe.RPush(ctx, key.Messages(threadID), data)

		// Trim to max size
		if s.maxMessages > 0 {
			pipe.LTrim(ctx, key.Messages(threadID), -int64(s.maxMessages), -1)
		}

		s.touch(ctx, pipe, threadID, now)
		if s.ttl > 0 {
			pipe.Expire(ctx, key.Messages(threadID), s.ttl)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	return &msg, nil
}

// Messages retrieves all messages in a thread
func (s *RedisStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	data, err := s.rdb.LRange(ctx, s.rdb.Key.Messages(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]Message, 0, len(data))
	for _, d := range data {
		msg, err := UnmarshalMessage(d)
		if err != nil {
			// Skip malformed messages
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// ClearMessages removes all messages from a thread (keeps thread metadata)
func (s *RedisStore) ClearMessages(ctx context.Context, threadID string) error {
	if err := s.exists(ctx, threadID); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, s.rdb.Key.Messages(threadID)).Err(); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	return nil
}

// UpdateTitle updates the thread title
func (s *RedisStore) UpdateTitle(ctx context.Context, threadID, title string) error {
	return s.update(ctx, threadID, "title", map[string]interface{}{"title": title})
}

// UpdateModel changes the provider and model for a thread
func (s *RedisStore) UpdateModel(ctx context.Context, threadID, provider, model string) error {
	return s.update(ctx, threadID, "model", map[string]interface{}{"provider": provider, "model": model})
}

// UpdateSystemPrompt changes the system prompt for a thread
func (s *RedisStore) UpdateSystemPrompt(ctx context.Context, threadID, prompt string) error {
	return s.update(ctx, threadID, "system prompt", map[string]interface{}{"system_prompt": prompt})
}

// IncrementTokenCount adds tokens to the thread's total
func (s *RedisStore) IncrementTokenCount(ctx context.Context, threadID string, tokens int) error {
	if err := s.exists(ctx, threadID); err != nil {
		return err
	}

	if err := s.rdb.HIncrBy(ctx, s.rdb.Key.Thread(threadID), "token_count", int64(tokens)).Err(); err != nil {
		return fmt.Errorf("failed to increment token count: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) update(ctx context.Context, threadID, what string, fields map[string]interface{}) error {
	if err := s.exists(ctx, threadID); err != nil {
		return err
	}

	err := s.rdb.Atomic(ctx, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, s.rdb.Key.Thread(threadID), fields)
		s.touch(ctx, pipe, threadID, s.now())
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}

	return nil
}

func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, threadID string, now time.Time) {
	key := s.rdb.Key
	pipe.HSet(ctx, key.Thread(threadID), "updated_at", now.UnixMilli())
	pipe.ZAdd(ctx, key.Threads(), redis.Z{Score: float64(now.UnixMilli()), Member: threadID})
	if s.ttl > 0 {
		pipe.Expire(ctx, key.Thread(threadID), s.ttl)
	}
}

func (s *RedisStore) exists(ctx context.Context, threadID string) error {
	n, err := s.rdb.Exists(ctx, s.rdb.Key.Thread(threadID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check thread: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return nil
}
