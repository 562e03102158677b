package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

var ErrDuplicateRequest = fmt.Errorf("%w: duplicate request", domain.ErrConflict)

const releaseTimeout = 2 * time.Second

type idempotencyGuard struct {
	cache  port.CacheRepository
	logger *slog.Logger
}

// claim reserves scope/owner/key. The returned func must be called with the
// operation's outcome; a failed operation frees the key so the caller can
// resubmit. A nil cache or an empty key disables the guard.
func (g idempotencyGuard) claim(ctx context.Context, scope, owner, key string) (func(error), error) {
	if g.cache == nil || key == "" {
		return func(error) {}, nil
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", scope, owner, key)
	token := uuid.NewString()

	ok, err := g.cache.SetIdempotency(ctx, cacheKey, token)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	return func(opErr error) {
		if opErr == nil {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := g.cache.ReleaseIdempotency(releaseCtx, cacheKey, token); err != nil {
			g.logger.Warn("idempotency key release failed", "key", cacheKey, "error", err)
		}
	}, nil
}
