package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the pluggable Redis-backed Store, generalizing a plain
// INCR+EXPIRE limiter to a floating-point refill bucket: state is kept as
// a "tokens:lastRefillMs" string value and refilled read-modify-write under
// a per-key Redis lock (SET NX) to serialize concurrent callers the way the
// in-memory store's per-key mutex does.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed token bucket store. keyPrefix
// namespaces keys (e.g. "paygate:bucket:ip:" vs "paygate:bucket:subject:").
func NewRedisStore(rdb *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: keyPrefix, now: time.Now}
}

func (s *RedisStore) dataKey(key BucketKey) string { return s.prefix + key.String() }
func (s *RedisStore) lockKey(key BucketKey) string { return s.prefix + key.String() + ":lock" }

// TryConsume implements Store. The per-key lock is held only across the
// small read-refill-write computation, never across a network call to an
// external system.
func (s *RedisStore) TryConsume(key BucketKey, params Params) (Decision, error) {
	ctx := context.Background()
	nowMs := s.now().UnixMilli()

	unlock, err := s.acquireLock(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: acquiring redis lock: %w", err)
	}
	defer unlock()

	tokens, lastRefillMs, err := s.load(ctx, key, params.Capacity, nowMs)
	if err != nil {
		return Decision{}, err
	}

	elapsedSec := float64(nowMs-lastRefillMs) / 1000
	if elapsedSec < 0 {
		elapsedSec = 0
	}
	tokens = math.Min(params.Capacity, tokens+elapsedSec*params.RefillTokensPerSecond)

	var decision Decision
	if tokens >= 1 {
		tokens -= 1
		lastRefillMs = nowMs
		decision = Decision{Allowed: true}
	} else {
		var retryAfterSec int64
		if params.RefillTokensPerSecond > 0 {
			retryAfterSec = int64(math.Ceil((1 - tokens) / params.RefillTokensPerSecond))
		} else {
			retryAfterSec = 1
		}
		decision = Decision{
			Allowed:           false,
			RetryAfterSeconds: retryAfterSec,
			ResetAtMillis:     nowMs + retryAfterSec*1000,
		}
	}

	ttl := time.Duration(params.TTLSeconds) * time.Second
	if err := s.store(ctx, key, tokens, lastRefillMs, ttl); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func (s *RedisStore) acquireLock(ctx context.Context, key BucketKey) (func(), error) {
	lk := s.lockKey(key)
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok, err := s.rdb.SetNX(ctx, lk, "1", 2*time.Second).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { s.rdb.Del(ctx, lk) }, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.New("ratelimit: timed out acquiring redis lock")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *RedisStore) load(ctx context.Context, key BucketKey, capacity float64, nowMs int64) (tokens float64, lastRefillMs int64, err error) {
	val, err := s.rdb.Get(ctx, s.dataKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return capacity, nowMs, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: reading redis bucket: %w", err)
	}

	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return capacity, nowMs, nil
	}
	tokens, tErr := strconv.ParseFloat(parts[0], 64)
	lastRefillMs, lErr := strconv.ParseInt(parts[1], 10, 64)
	if tErr != nil || lErr != nil {
		return capacity, nowMs, nil
	}
	return tokens, lastRefillMs, nil
}

func (s *RedisStore) store(ctx context.Context, key BucketKey, tokens float64, lastRefillMs int64, ttl time.Duration) error {
	val := fmt.Sprintf("%f:%d", tokens, lastRefillMs)
	if err := s.rdb.Set(ctx, s.dataKey(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("ratelimit: writing redis bucket: %w", err)
	}
	return nil
}
