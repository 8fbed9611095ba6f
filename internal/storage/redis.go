package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/s33g/chatctx/internal/config"
)

const (
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = 3 * time.Second
)

// Redis is a connected go-redis client bound to one key prefix.
// The embedded client is used directly for single commands.
type Redis struct {
	*redis.Client
	Key *Keys
}

// RedisOptions turns the store config into go-redis options.
// Address may be host:port or a redis:// URL; db and the password env var
// override whatever the URL carries when they are set.
func RedisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if strings.Contains(cfg.Address, "://") {
		parsed, err := redis.ParseURL(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid redis address: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Address}
	}

	if cfg.PasswordEnv != "" {
		if password := os.Getenv(cfg.PasswordEnv); password != "" {
			opts.Password = password
		}
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.DialTimeout = redisDialTimeout
	opts.ReadTimeout = redisIOTimeout
	opts.WriteTimeout = redisIOTimeout

	return opts, nil
}

// DialRedis connects and pings the server. The client is closed again if the ping fails.
func DialRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &Redis{Client: rdb, Key: NewKeys(cfg.KeyPrefix)}, nil
}

// Atomic queues the commands fn adds and runs them in one MULTI/EXEC
func (r *Redis) Atomic(ctx context.Context, fn func(pipe redis.Pipeliner)) error {
	_, err := r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipe)
		return nil
	})
	return err
}
