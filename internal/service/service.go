package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func lookupItem(ctx context.Context, q repository.Queries, id int64) (*domain.Item, error) {
	item, err := q.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("item %d: %w", id, domain.ErrUnknownItem)
		}
		return nil, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return item, nil
}

// invalidate drops cached read models after a committed write. A cache
// failure never fails the write that triggered it.
func invalidate(ctx context.Context, c cache.InventoryCache, op string) {
	if c == nil {
		return
	}
	if err := c.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("failed to invalidate inventory cache")
	}
}

// cacheGeneration is read before a cached model is built. ok is false when the
// cache cannot be trusted, and the caller then skips it both ways.
func cacheGeneration(ctx context.Context, c cache.InventoryCache, model string) (gen int64, ok bool) {
	gen, err := c.Generation(ctx)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("cache generation read failed")
		return 0, false
	}
	return gen, true
}

func orNoop(c cache.InventoryCache) cache.InventoryCache {
	if c == nil {
		return cache.NewNoopInventoryCache()
	}
	return c
}

func orNow(now Clock) Clock {
	if now == nil {
		return time.Now
	}
	return now
}
