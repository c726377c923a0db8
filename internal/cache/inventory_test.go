package cache

import (
	"context"
	"testing"
	"time"

	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/shopspring/decimal"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	c, err := NewInventoryCache(config.CacheConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}

	gen, err := c.Generation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetSummary(ctx, gen, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.GetSummary(ctx, gen); ok || err != nil {
		t.Errorf("expected miss, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.GetStats(ctx, gen, time.Now()); ok {
		t.Error("expected stats miss")
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestKeys(t *testing.T) {
	ks := keyspace{prefix: inventoryKeyPrefix}
	day := time.Date(2024, 6, 2, 23, 30, 0, 0, time.UTC)
	if got := ks.model(3, statsName(day)); got != "stockledger:inventory:models:3:stats:2024-06-02" {
		t.Errorf("stats key = %q", got)
	}
	if got := ks.generationKey(); got != "stockledger:inventory:generation" {
		t.Errorf("generation key = %q", got)
	}

	a := reorderName(7, decimal.NewFromInt(0))
	b := reorderName(7, decimal.NewFromInt(1))
	if a == b {
		t.Error("reorder keys must differ by threshold")
	}
	if ks.model(1, summaryName()) == ks.model(2, summaryName()) {
		t.Error("generations must not share keys")
	}
}

func TestStaleKeys(t *testing.T) {
	ks := keyspace{prefix: inventoryKeyPrefix}
	keys := []string{
		ks.model(1, summaryName()),
		ks.model(2, summaryName()),
		ks.model(12, summaryName()),
		ks.model(2, reorderName(7, decimal.Zero)),
	}

	stale := ks.staleKeys(keys, 2)
	if len(stale) != 2 || stale[0] != keys[0] || stale[1] != keys[2] {
		t.Errorf("stale = %v", stale)
	}
	if got := ks.staleKeys(nil, 2); len(got) != 0 {
		t.Errorf("expected nothing stale, got %v", got)
	}
}

func TestCacheTTL(t *testing.T) {
	if got := cacheTTL(0); got != defaultCacheTTL {
		t.Errorf("cacheTTL(0) = %s", got)
	}
	if got := cacheTTL(90); got != 90*time.Second {
		t.Errorf("cacheTTL(90) = %s", got)
	}
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisHost: "cache", RedisPort: "6380", RedisDB: 2})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Errorf("unexpected options %+v", opts)
	}

	opts, err = buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@localhost:6379/3"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Password != "secret" || opts.DB != 3 {
		t.Errorf("unexpected options from url %+v", opts)
	}

	if _, err := buildRedisOptions(config.CacheConfig{RedisURL: "http://nope"}); err == nil {
		t.Error("expected invalid url error")
	}
}
