package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/reportgraph/core"
)

const defaultRedisPrefix = "reportgraph:checkpoint:"

// RedisOptions configures a Redis store.
type RedisOptions struct {
	// Prefix is prepended to every session id.
	Prefix string
	// TTL expires checkpoints; zero keeps them forever.
	TTL time.Duration
}

// RedisClient is the subset of redis.Cmdable the store uses. Every
// redis.UniversalClient satisfies it.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis stores checkpoints as JSON strings under prefixed keys.
type Redis struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

var _ core.CheckpointStore = (*Redis)(nil)

// NewRedis creates a store over an existing client.
func NewRedis(client RedisClient, optFns ...func(o *RedisOptions)) *Redis {
	opts := RedisOptions{Prefix: defaultRedisPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Redis{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

func (r *Redis) key(sessionID string) string { return r.prefix + sessionID }

// Save stores the state of a session.
func (r *Redis) Save(ctx context.Context, sessionID string, state *core.ExecutionState) error {
	if sessionID == "" {
		return errEmptySessionID
	}

	raw, err := encode(state)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(sessionID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("checkpoint: redis set: %w", err)
	}

	return nil
}

// Load returns the last saved state of a session.
func (r *Redis) Load(ctx context.Context, sessionID string) (*core.ExecutionState, error) {
	raw, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrCheckpointNotFound
		}

		return nil, fmt.Errorf("checkpoint: redis get: %w", err)
	}

	return decode(raw)
}

// Delete removes the checkpoint of a session.
func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("checkpoint: redis del: %w", err)
	}

	return nil
}
