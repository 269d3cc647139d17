package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ntentasd/ecobin-api/pkg/types"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache defines the general caching for the api.
// It abstracts time-series (ZSET) and key-values (SET).
type Cache interface {
	// Store stores a single reading (usually time-series data)
	Store(ctx context.Context, prefix string, entry types.Entry) error

	// FetchLast retrieves the N most recent entries from a sorted cache
	FetchLast(ctx context.Context, prefix string, n int) ([]types.Entry, error)

	// StoreAggregate caches a computed aggregate with a TTL
	StoreAggregate(ctx context.Context, key string, data any, ttl time.Duration) error

	// FetchAggregate retrieves an aggregate from cache
	FetchAggregate(ctx context.Context, key string) ([]byte, error)

	// Invalidate drops the given keys; missing keys are not an error
	Invalidate(ctx context.Context, keys ...string) error

	// Ping checks cache connection
	Ping(ctx context.Context) error

	// Close gracefully closes any connections
	Close()
}

// Ranker keeps the eco score leaderboard.
type Ranker interface {
	RecordEcoScore(ctx context.Context, deviceID string, score float64) error
	TopEcoScores(ctx context.Context, n int) ([]types.RankEntry, error)
}
