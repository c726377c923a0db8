package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const inventoryKeyPrefix = "stockledger:inventory"

// InventoryCache holds derived read models stamped with a generation.
// InvalidateAll bumps the generation after every ledger write. A reader
// captures Generation before building a model and stores it under that
// generation, so a model built from a pre-write snapshot is never served
// once the write has invalidated.
type InventoryCache interface {
	Generation(ctx context.Context) (int64, error)
	GetSummary(ctx context.Context, gen int64) ([]domain.StockSummary, bool, error)
	SetSummary(ctx context.Context, gen int64, summary []domain.StockSummary) error
	GetStats(ctx context.Context, gen int64, day time.Time) (*domain.DashboardStats, bool, error)
	SetStats(ctx context.Context, gen int64, day time.Time, stats *domain.DashboardStats) error
	GetRecommendations(ctx context.Context, gen int64, days int, threshold decimal.Decimal) ([]domain.ReorderRecommendation, bool, error)
	SetRecommendations(ctx context.Context, gen int64, days int, threshold decimal.Decimal, recs []domain.ReorderRecommendation) error
	InvalidateAll(ctx context.Context) error
}

type redisInventoryCache struct {
	client *redis.Client
	ttl    time.Duration
	keys   keyspace
}

type noopInventoryCache struct{}

func NewInventoryCache(cfg config.CacheConfig) (InventoryCache, error) {
	if !cfg.Enabled {
		return &noopInventoryCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisInventoryCache(client, ttl), nil
}

// NewRedisInventoryCache wraps an existing client.
func NewRedisInventoryCache(client *redis.Client, ttl time.Duration) InventoryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisInventoryCache{client: client, ttl: ttl, keys: keyspace{prefix: inventoryKeyPrefix}}
}

func NewNoopInventoryCache() InventoryCache {
	return &noopInventoryCache{}
}

func (c *redisInventoryCache) Generation(ctx context.Context) (int64, error) {
	return readGeneration(ctx, c.client, c.keys)
}

func (c *redisInventoryCache) GetSummary(ctx context.Context, gen int64) ([]domain.StockSummary, bool, error) {
	var summary []domain.StockSummary
	ok, err := c.get(ctx, c.keys.model(gen, summaryName()), &summary)
	return summary, ok, err
}

func (c *redisInventoryCache) SetSummary(ctx context.Context, gen int64, summary []domain.StockSummary) error {
	return c.set(ctx, c.keys.model(gen, summaryName()), summary)
}

func (c *redisInventoryCache) GetStats(ctx context.Context, gen int64, day time.Time) (*domain.DashboardStats, bool, error) {
	var stats domain.DashboardStats
	ok, err := c.get(ctx, c.keys.model(gen, statsName(day)), &stats)
	if !ok {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *redisInventoryCache) SetStats(ctx context.Context, gen int64, day time.Time, stats *domain.DashboardStats) error {
	return c.set(ctx, c.keys.model(gen, statsName(day)), stats)
}

func (c *redisInventoryCache) GetRecommendations(ctx context.Context, gen int64, days int, threshold decimal.Decimal) ([]domain.ReorderRecommendation, bool, error) {
	var recs []domain.ReorderRecommendation
	ok, err := c.get(ctx, c.keys.model(gen, reorderName(days, threshold)), &recs)
	return recs, ok, err
}

func (c *redisInventoryCache) SetRecommendations(ctx context.Context, gen int64, days int, threshold decimal.Decimal, recs []domain.ReorderRecommendation) error {
	return c.set(ctx, c.keys.model(gen, reorderName(days, threshold)), recs)
}

// InvalidateAll moves readers to a fresh generation, then reclaims the
// entries of older ones. A failed sweep only leaves orphans for the TTL.
func (c *redisInventoryCache) InvalidateAll(ctx context.Context) error {
	gen, err := bumpGeneration(ctx, c.client, c.keys)
	if err != nil {
		return err
	}
	return purgeStaleModels(ctx, c.client, c.keys, gen)
}

func (c *redisInventoryCache) get(ctx context.Context, key string, dst any) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode %s cache: %w", key, err)
	}
	return true, nil
}

func (c *redisInventoryCache) set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", key, err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopInventoryCache) Generation(ctx context.Context) (int64, error) {
	return 0, nil
}

func (n *noopInventoryCache) GetSummary(ctx context.Context, gen int64) ([]domain.StockSummary, bool, error) {
	return nil, false, nil
}

func (n *noopInventoryCache) SetSummary(ctx context.Context, gen int64, summary []domain.StockSummary) error {
	return nil
}

func (n *noopInventoryCache) GetStats(ctx context.Context, gen int64, day time.Time) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (n *noopInventoryCache) SetStats(ctx context.Context, gen int64, day time.Time, stats *domain.DashboardStats) error {
	return nil
}

func (n *noopInventoryCache) GetRecommendations(ctx context.Context, gen int64, days int, threshold decimal.Decimal) ([]domain.ReorderRecommendation, bool, error) {
	return nil, false, nil
}

func (n *noopInventoryCache) SetRecommendations(ctx context.Context, gen int64, days int, threshold decimal.Decimal, recs []domain.ReorderRecommendation) error {
	return nil
}

func (n *noopInventoryCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func summaryName() string {
	return "summary"
}

func statsName(day time.Time) string {
	return "stats:" + day.UTC().Format("2006-01-02")
}

func reorderName(days int, threshold decimal.Decimal) string {
	raw := fmt.Sprintf("days=%d|threshold=%s", days, threshold.String())
	hash := sha1.Sum([]byte(raw))
	return "reorder:" + hex.EncodeToString(hash[:])
}
