package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims key with token, returns false if already claimed
	SetIdempotency(ctx context.Context, key, token string) (bool, error)

	// ReleaseIdempotency frees key if it is still held by token (for retry after failure)
	ReleaseIdempotency(ctx context.Context, key, token string) error
}
