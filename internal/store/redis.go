package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/bingohall/internal/engine"
	"github.com/redis/go-redis/v9"
)

const (
	// Key prefixes for Redis
	roundKeyPrefix     = "round:"
	completedRoundsKey = "rounds:completed"
)

// Config holds configuration for the Redis round store
type Config struct {
	RedisClient *redis.Client
	// TTL expires stored rounds; zero keeps them forever.
	TTL time.Duration
}

// Redis stores round snapshots as JSON with a sorted-set index by end time.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a new Redis-backed round store
func NewRedis(cfg *Config) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: cfg.RedisClient, ttl: cfg.TTL}, nil
}

// SaveCompletedRound persists a settled round.
func (r *Redis) SaveCompletedRound(ctx context.Context, round engine.RoundSnapshot) error {
	if err := validateSnapshot(round); err != nil {
		return err
	}

	roundJSON, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, roundKeyPrefix+round.ID, roundJSON, r.ttl)
	pipe.ZAdd(ctx, completedRoundsKey, redis.Z{
		Score:  float64(round.EndedAt.UnixMilli()),
		Member: round.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return nil
}

// GetRound retrieves a round by ID.
func (r *Redis) GetRound(ctx context.Context, id string) (engine.RoundSnapshot, error) {
	roundJSON, err := r.client.Get(ctx, roundKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return engine.RoundSnapshot{}, ErrRoundNotFound
		}
		return engine.RoundSnapshot{}, fmt.Errorf("failed to get round: %w", err)
	}

	var round engine.RoundSnapshot
	if err := json.Unmarshal([]byte(roundJSON), &round); err != nil {
		return engine.RoundSnapshot{}, fmt.Errorf("failed to unmarshal round: %w", err)
	}
	return round, nil
}

// ListRecent returns up to limit rounds, most recently ended first. Index
// entries whose round has expired are skipped and pruned.
func (r *Redis) ListRecent(ctx context.Context, limit int) ([]engine.RoundSnapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ids, err := r.client.ZRevRange(ctx, completedRoundsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roundKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get rounds: %w", err)
	}

	rounds := make([]engine.RoundSnapshot, 0, len(values))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var round engine.RoundSnapshot
		if err := json.Unmarshal([]byte(s), &round); err != nil {
			return nil, fmt.Errorf("failed to unmarshal round %s: %w", ids[i], err)
		}
		rounds = append(rounds, round)
	}

	if len(stale) > 0 {
		if err := r.client.ZRem(ctx, completedRoundsKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired rounds: %w", err)
		}
	}
	return rounds, nil
}
