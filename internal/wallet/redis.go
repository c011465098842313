package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/bingohall/internal/prize"
	"github.com/redis/go-redis/v9"
)

const (
	// Key prefixes for Redis
	balancesKey     = "wallet:balances"
	ledgerKeyPrefix = "wallet:ledger:"

	// ledgerLength caps the per-player ledger list.
	ledgerLength = 1000
)

// debitScript checks and decrements a balance atomically and appends the
// ledger entry. It returns {1, newBalance} on success and {0, balance} when
// funds are short.
var debitScript = redis.NewScript(`
local bal = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local amt = tonumber(ARGV[2])
if bal < amt then
  return {0, bal}
end
local newbal = redis.call('HINCRBY', KEYS[1], ARGV[1], -amt)
redis.call('LPUSH', KEYS[2], '{"type":"debit","amount":' .. amt .. ',"balance":' .. newbal .. ',"at":"' .. ARGV[3] .. '"}')
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[4]) - 1)
return {1, newbal}
`)

// creditScript increments a balance and appends the ledger entry.
var creditScript = redis.NewScript(`
local amt = tonumber(ARGV[2])
local newbal = redis.call('HINCRBY', KEYS[1], ARGV[1], amt)
redis.call('LPUSH', KEYS[2], '{"type":"credit","amount":' .. amt .. ',"balance":' .. newbal .. ',"at":"' .. ARGV[3] .. '"}')
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[4]) - 1)
return newbal
`)

// Config holds configuration for the Redis wallet
type Config struct {
	RedisClient *redis.Client
	Clock       quartz.Clock
}

// Redis is a wallet whose balances live in a Redis hash.
type Redis struct {
	client *redis.Client
	clock  quartz.Clock
}

// NewRedis creates a new Redis-backed wallet
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
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Redis{client: cfg.RedisClient, clock: clock}, nil
}

// Deposit adds funds outside of any round.
func (r *Redis) Deposit(ctx context.Context, playerID string, amount prize.Amount) error {
	return r.Credit(ctx, playerID, amount)
}

func (r *Redis) Debit(ctx context.Context, playerID string, amount prize.Amount) error {
	if err := validate(playerID, amount); err != nil {
		return err
	}

	res, err := debitScript.Run(ctx, r.client, r.keys(playerID), playerID, int64(amount), r.now(), ledgerLength).Int64Slice()
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", playerID, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("failed to debit %s: unexpected script result %v", playerID, res)
	}
	if res[0] == 0 {
		return insufficient(playerID, prize.Amount(res[1]), amount)
	}
	return nil
}

func (r *Redis) Credit(ctx context.Context, playerID string, amount prize.Amount) error {
	if err := validate(playerID, amount); err != nil {
		return err
	}
	if err := creditScript.Run(ctx, r.client, r.keys(playerID), playerID, int64(amount), r.now(), ledgerLength).Err(); err != nil {
		return fmt.Errorf("failed to credit %s: %w", playerID, err)
	}
	return nil
}

func (r *Redis) Balance(ctx context.Context, playerID string) (prize.Amount, error) {
	bal, err := r.client.HGet(ctx, balancesKey, playerID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return prize.Amount(bal), nil
}

// Ledger returns up to limit entries, newest first.
func (r *Redis) Ledger(ctx context.Context, playerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, ledgerKeyPrefix+playerID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, s := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Redis) keys(playerID string) []string {
	return []string{balancesKey, ledgerKeyPrefix + playerID}
}

func (r *Redis) now() string {
	return r.clock.Now().UTC().Format(time.RFC3339Nano)
}
