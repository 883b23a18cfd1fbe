package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitAPIPrefix = "ratelimit:apikey:"
	rateLimitIPPrefix  = "ratelimit:ip:"
	rateLimitAPITTL    = 120 * time.Second
	rateLimitIPTTL     = 10 * time.Second
)

// RateLimitResult is the outcome of one token bucket check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes atomically.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- seconds
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = now - last_update
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckAPIRateLimit consumes one token from the bucket of an API key.
// A rate of zero disables limiting.
func (c *Cache) CheckAPIRateLimit(ctx context.Context, keyID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}

	return c.checkRateLimit(ctx, rateLimitAPIPrefix+keyID, float64(ratePerMinute)/60.0, burst, int(rateLimitAPITTL.Seconds()))
}

// CheckIPRateLimit consumes one token from the bucket of a client IP.
// The IP is hashed before it reaches Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return unlimited(burst), nil
	}

	return c.checkRateLimit(ctx, rateLimitIPPrefix+hashIP(ip), float64(ratePerSecond), burst, int(rateLimitIPTTL.Seconds()))
}

func (c *Cache) checkRateLimit(ctx context.Context, key string, rate float64, burst, ttl int) (*RateLimitResult, error) {
	now := time.Now()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, now.Unix(), ttl,
	).Int64Slice()
	if err != nil {
		// Fail open.
		return unlimited(burst), nil
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		Remaining:  result[2],
		ResetAt:    now.Add(time.Duration(float64(time.Second) / rate)),
		RetryAfter: time.Duration(result[1]) * time.Second,
	}, nil
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   time.Now().Add(time.Minute),
	}
}

// hashIP returns the first 8 bytes of the SHA-256 of ip, hex encoded.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
