package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ Cache = (*Memcached)(nil)

// maxSeriesEntries caps the JSON-encoded series kept per key.
const maxSeriesEntries = 256

type Memcached struct {
	client  *memcache.Client
	metrics *CacheMetrics
}

func NewMemcached(addr string) *Memcached {
	client := memcache.New(addr)
	client.Timeout = 100 * time.Millisecond
	cm := NewCacheMetrics(metrics.MemcachedCache)
	return &Memcached{client, cm}
}

func (m *Memcached) store(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- m.client.Set(&memcache.Item{Key: key, Value: val, Expiration: int32(ttl.Seconds())})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return context.DeadlineExceeded
	}
}

// Store adds entry to the JSON array under prefix, replacing an entry with
// the same timestamp. The read-modify-write is not atomic; concurrent
// writers to one series may lose entries.
func (m *Memcached) Store(ctx context.Context, prefix string, entry types.Entry) error {
	var series []types.Entry
	if item, err := m.client.Get(prefix); err == nil {
		if err := json.Unmarshal(item.Value, &series); err != nil {
			series = nil
		}
	} else if !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("cache fetch: %w", err)
	}

	series = mergeEntry(series, entry)

	b, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}

	start := time.Now()
	if err := m.store(ctx, prefix, b, seriesTTL); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	m.metrics.RecordWrite(start)
	return nil
}

// mergeEntry inserts entry newest first, at most once per timestamp.
func mergeEntry(series []types.Entry, entry types.Entry) []types.Entry {
	replaced := false
	for i := range series {
		if series[i].Timestamp.Equal(entry.Timestamp) {
			series[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		series = append(series, entry)
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.After(series[j].Timestamp)
	})
	if len(series) > maxSeriesEntries {
		series = series[:maxSeriesEntries]
	}
	return series
}

func (m *Memcached) FetchLast(ctx context.Context, prefix string, n int) ([]types.Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	start := time.Now()
	item, err := m.client.Get(prefix)
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		m.metrics.RecordMiss()
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("cache fetch: %w", err)
	}
	m.metrics.RecordHit(start)

	var series []types.Entry
	if err := json.Unmarshal(item.Value, &series); err != nil {
		return nil, fmt.Errorf("failed to parse series: %w", err)
	}
	if len(series) > n {
		series = series[:n]
	}
	return series, nil
}

func (m *Memcached) StoreAggregate(ctx context.Context, key string, data any, ttl time.Duration) error {
	ctx, span := otel.Tracer("ecobin-cache").Start(ctx, "cache.StoreAggregate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.driver", metrics.MemcachedCache),
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl", int64(ttl.Seconds())),
	)

	b, err := json.Marshal(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal aggregate: %w", err)
	}

	start := time.Now()
	if err := m.store(ctx, key, b, ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to store aggregate: %w", err)
	}
	m.metrics.RecordWrite(start)
	span.SetStatus(codes.Ok, "")

	return nil
}

func (m *Memcached) FetchAggregate(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer("ecobin-cache").Start(ctx, "cache.FetchAggregate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.driver", metrics.MemcachedCache),
		attribute.String("cache.key", key),
	)

	start := time.Now()
	val, err := m.client.Get(key)
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		m.metrics.RecordMiss()
		span.SetAttributes(attribute.String("cache.result", "miss"))
		span.SetStatus(codes.Ok, "")
		return nil, ErrCacheMiss
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("cache fetch: %w", err)
	default:
		m.metrics.RecordHit(start)
		span.SetAttributes(attribute.String("cache.result", "hit"))
		span.SetStatus(codes.Ok, "")
		return val.Value, nil
	}
}

func (m *Memcached) Invalidate(ctx context.Context, keys ...string) error {
	_, span := otel.Tracer("ecobin-cache").Start(ctx, "cache.Invalidate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.driver", metrics.MemcachedCache),
		attribute.StringSlice("cache.keys", keys),
	)

	var errs []error
	for _, k := range keys {
		if err := m.client.Delete(k); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	m.metrics.RecordInvalidation(len(keys))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (m *Memcached) Ping(ctx context.Context) error {
	return m.client.Ping()
}

func (m *Memcached) Close() {
	m.client.Close()
}
