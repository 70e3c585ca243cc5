package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	codeKeyPrefix      = "otp:"
	rateLimitKeyPrefix = "otp_rl:"
)

// verifyAndDeleteScript compares the stored code and deletes it in one atomic
// step so a code can never be accepted twice.
var verifyAndDeleteScript = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
	return 0
end

if stored == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end

return 0
`)

// slidingWindowScript grants a request when fewer than limit requests fall in
// the rolling window ending now. Grants are kept as a sorted set of
// timestamps; entries at or past the window edge are pruned first, so the
// limit holds over every rolling window rather than fixed windows anchored at
// the first request.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisCodeStore holds one-time tracking codes and rate-limit state in a
// shared TTL-capable store, so verification works across service instances.
type RedisCodeStore struct {
	client *redis.Client
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

// Put stores a code under key with the given expiry, replacing any pending
// code for the same key.
func (s *RedisCodeStore) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	return s.client.Set(ctx, codeKeyPrefix+key, code, ttl).Err()
}

// VerifyAndDelete reports whether code matches the entry under key, consuming
// the entry on a match. Missing or expired entries verify as false.
func (s *RedisCodeStore) VerifyAndDelete(ctx context.Context, key, code string) (bool, error) {
	result, err := verifyAndDeleteScript.Run(ctx, s.client, []string{codeKeyPrefix + key}, code).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

// Allow grants a request against key when fewer than limit requests were
// granted within the rolling window ending now.
func (s *RedisCodeStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-window).UnixMilli()

	result, err := slidingWindowScript.Run(ctx, s.client,
		[]string{rateLimitKeyPrefix + key},
		cutoff, limit, now.UnixMilli(), uuid.NewString(), window.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}
