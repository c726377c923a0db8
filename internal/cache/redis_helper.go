package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = time.Minute
	pingTimeout     = 5 * time.Second
	scanBatchSize   = 100
)

// keyspace lays out the ledger's redis keys. Read models live under
// <prefix>:models:<generation>:..., so bumping the generation counter orphans
// everything written for an older one.
type keyspace struct {
	prefix string
}

func (k keyspace) generationKey() string {
	return k.prefix + ":generation"
}

func (k keyspace) models(gen int64) string {
	return k.prefix + ":models:" + strconv.FormatInt(gen, 10) + ":"
}

func (k keyspace) model(gen int64, name string) string {
	return k.models(gen) + name
}

// staleKeys keeps the model keys that do not belong to generation current.
func (k keyspace) staleKeys(keys []string, current int64) []string {
	live := k.models(current)
	var stale []string
	for _, key := range keys {
		if !strings.HasPrefix(key, live) {
			stale = append(stale, key)
		}
	}
	return stale
}

func newRedisClient(cfg config.CacheConfig) (*redis.Client, time.Duration, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, 0, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("redis ping %s failed: %w", opts.Addr, err)
	}

	return client, cacheTTL(cfg.TTLSeconds), nil
}

func cacheTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultCacheTTL
	}
	return time.Duration(seconds) * time.Second
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// readGeneration returns the current generation, 0 before the first bump.
func readGeneration(ctx context.Context, client *redis.Client, ks keyspace) (int64, error) {
	gen, err := client.Get(ctx, ks.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis generation read failed: %w", err)
	}
	return gen, nil
}

func bumpGeneration(ctx context.Context, client *redis.Client, ks keyspace) (int64, error) {
	gen, err := client.Incr(ctx, ks.generationKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis generation bump failed: %w", err)
	}
	return gen, nil
}

// purgeStaleModels deletes model keys left behind by older generations.
// Entries of the current generation survive the sweep.
func purgeStaleModels(ctx context.Context, client *redis.Client, ks keyspace, current int64) error {
	var cursor uint64
	pattern := ks.prefix + ":models:*"
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}
		if stale := ks.staleKeys(keys, current); len(stale) > 0 {
			if err := client.Del(ctx, stale...).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
