package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// Deletes the key only while it still holds the caller's token, so a late
// release never frees a claim that expired and was taken by someone else.
var releaseIdempotencyScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: idempotencyKeyTTL}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key, token string) error {
	return releaseIdempotencyScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, token).Err()
}
