package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	_ Cache  = (*Valkey)(nil)
	_ Ranker = (*Valkey)(nil)
)

const seriesTTL = time.Hour

type Valkey struct {
	client  redis.UniversalClient
	metrics *CacheMetrics
}

// NewValkey connects to a single node or, given several addresses, to a
// cluster.
func NewValkey(addrs []string) *Valkey {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       addrs,
		DialTimeout: 2 * time.Second,
	})
	return NewValkeyWithClient(client)
}

func NewValkeyWithClient(client redis.UniversalClient) *Valkey {
	cm := NewCacheMetrics(metrics.ValkeyCache)
	return &Valkey{client, cm}
}

// Series members are "<unix ms>:<value>" so equal values at different
// times stay distinct.
func seriesMember(entry types.Entry) string {
	return strconv.FormatInt(entry.Timestamp.UnixMilli(), 10) + ":" +
		strconv.FormatFloat(entry.Value, 'f', -1, 64)
}

func parseSeriesMember(member string) (float64, error) {
	_, raw, ok := strings.Cut(member, ":")
	if !ok {
		raw = member
	}
	return strconv.ParseFloat(raw, 64)
}

func (v *Valkey) Store(ctx context.Context, prefix string, entry types.Entry) error {
	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*200,
	)
	defer cancel()

	start := time.Now()
	pipe := v.client.TxPipeline()
	pipe.ZAdd(ctx, prefix, redis.Z{
		Score:  float64(entry.Timestamp.UnixMilli()),
		Member: seriesMember(entry),
	})
	pipe.Expire(ctx, prefix, seriesTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	v.metrics.RecordWrite(start)

	return nil
}

func (v *Valkey) FetchLast(ctx context.Context, prefix string, n int) ([]types.Entry, error) {
	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*100,
	)
	defer cancel()

	if n <= 0 {
		return nil, nil
	}

	start := time.Now()
	entries, err := v.client.ZRevRangeWithScores(ctx, prefix, 0, int64(n-1)).
		Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		v.metrics.RecordMiss()
	} else {
		v.metrics.RecordHit(start)
	}

	ret := make([]types.Entry, 0, len(entries))

	for _, e := range entries {
		ts := time.UnixMilli(int64(e.Score)).UTC()

		s, ok := e.Member.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", e.Member)
		}

		val, err := parseSeriesMember(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value: %w", err)
		}

		ret = append(ret, types.Entry{
			Timestamp: ts,
			Value:     val,
		})
	}

	return ret, nil
}

func (v *Valkey) StoreAggregate(ctx context.Context, key string, data any, ttl time.Duration) error {
	ctx, span := otel.Tracer("ecobin-cache").Start(ctx, "cache.StoreAggregate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.driver", metrics.ValkeyCache),
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl", int64(ttl.Seconds())),
	)

	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*200,
	)
	defer cancel()

	b, err := json.Marshal(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal aggregate: %w", err)
	}

	start := time.Now()
	if err := v.client.Set(ctx, key, b, ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to store aggregate: %w", err)
	}
	v.metrics.RecordWrite(start)
	span.SetStatus(codes.Ok, "")

	return nil
}

func (v *Valkey) FetchAggregate(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer("ecobin-cache").Start(ctx, "cache.FetchAggregate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.driver", metrics.ValkeyCache),
		attribute.String("cache.key", key),
	)

	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*100,
	)
	defer cancel()

	start := time.Now()
	val, err := v.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		v.metrics.RecordMiss()
		span.SetAttributes(attribute.String("cache.result", "miss"))
		span.SetStatus(codes.Ok, "")
		return nil, ErrCacheMiss
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("cache fetch: %w", err)
	default:
		v.metrics.RecordHit(start)
		span.SetAttributes(attribute.String("cache.result", "hit"))
		span.SetStatus(codes.Ok, "")
		return val, nil
	}
}

func (v *Valkey) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, span := otel.Tracer("ecobin-cache").Start(ctx, "cache.Invalidate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.driver", metrics.ValkeyCache),
		attribute.StringSlice("cache.keys", keys),
	)

	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*200,
	)
	defer cancel()

	// one DEL per key: keys may live in different cluster slots
	pipe := v.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to invalidate keys: %w", err)
	}
	v.metrics.RecordInvalidation(len(keys))
	span.SetStatus(codes.Ok, "")

	return nil
}

func (v *Valkey) RecordEcoScore(ctx context.Context, deviceID string, score float64) error {
	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*200,
	)
	defer cancel()

	err := v.client.ZAdd(ctx, RankingKey, redis.Z{
		Score:  score,
		Member: canonicalDevice(deviceID),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record eco score: %w", err)
	}
	return nil
}

func (v *Valkey) TopEcoScores(ctx context.Context, n int) ([]types.RankEntry, error) {
	ctx, cancel := context.WithTimeout(
		ctx,
		time.Millisecond*200,
	)
	defer cancel()

	if n <= 0 {
		return []types.RankEntry{}, nil
	}

	zs, err := v.client.ZRevRangeWithScores(ctx, RankingKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ranking: %w", err)
	}

	out := make([]types.RankEntry, 0, len(zs))
	for i, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", z.Member)
		}
		out = append(out, types.RankEntry{
			Rank:     i + 1,
			DeviceID: id,
			Score:    z.Score,
		})
	}
	return out, nil
}

func (v *Valkey) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *Valkey) Close() {
	v.client.Close()
}
