// Package telemetry turns sensor readings into stored rows, cached
// projections and in-memory device snapshots.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/health"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/ntentasd/ecobin-api/internal/retry"
	"github.com/ntentasd/ecobin-api/internal/state"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

type ReadingStore interface {
	InsertReading(ctx context.Context, r types.SensorReading) error
	GetLatestReading(ctx context.Context, deviceID string) (*types.SensorReading, error)
}

type Recorder struct {
	store  ReadingStore
	cache  cache.Cache
	states *state.Store[string, types.DeviceSnapshot]
	ttl    time.Duration
	policy retry.Policy
	logger zerolog.Logger

	// per-device *sync.Mutex guarding snapshot and projection writes
	locks sync.Map
}

func NewRecorder(
	store ReadingStore,
	c cache.Cache,
	states *state.Store[string, types.DeviceSnapshot],
	ttl time.Duration,
	policy retry.Policy,
	logger zerolog.Logger,
) *Recorder {
	return &Recorder{
		store:  store,
		cache:  c,
		states: states,
		ttl:    ttl,
		policy: policy,
		logger: logger.With().Str("component", "telemetry").Logger(),
	}
}

// HandleReading validates and persists r, then refreshes every projection
// derived from it.
func (rec *Recorder) HandleReading(ctx context.Context, r types.SensorReading) error {
	r.DeviceID = types.CanonicalDeviceID(r.DeviceID)
	if err := r.Validate(); err != nil {
		return err
	}

	_, err := retry.Do(ctx, rec.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rec.store.InsertReading(ctx, r)
	})
	if err != nil {
		return fmt.Errorf("failed to persist reading: %w", err)
	}

	for _, m := range types.Metrics {
		key := cache.ReadingsKey(r.DeviceID, m, r.Timestamp)
		if err := rec.cache.Store(ctx, key, types.Entry{Timestamp: r.Timestamp, Value: r.Value(m)}); err != nil {
			rec.logger.Warn().Err(err).Str("key", key).Msg("series write failed")
		}
	}

	rec.apply(ctx, r)
	return nil
}

// Refresh recomputes the snapshot of deviceID from its latest stored
// reading.
func (rec *Recorder) Refresh(ctx context.Context, deviceID string) error {
	deviceID = types.CanonicalDeviceID(deviceID)
	latest, err := rec.store.GetLatestReading(ctx, deviceID)
	if err != nil {
		return err
	}
	if cur, ok := rec.states.Get(deviceID); ok && !latest.Timestamp.After(cur.Reading.Timestamp) {
		return nil
	}
	rec.apply(ctx, *latest)
	return nil
}

// Devices lists the devices with a known snapshot.
func (rec *Recorder) Devices() []string {
	return rec.states.Keys()
}

func (rec *Recorder) deviceLock(deviceID string) *sync.Mutex {
	mu, _ := rec.locks.LoadOrStore(deviceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// apply publishes r unless a newer reading of the device already has been.
// The snapshot and the cached projections change together under the
// device lock.
func (rec *Recorder) apply(ctx context.Context, r types.SensorReading) {
	mu := rec.deviceLock(r.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	result := health.CalculateHealthScore(r)
	taken := false
	rec.states.Update(r.DeviceID, func(cur types.DeviceSnapshot, ok bool) types.DeviceSnapshot {
		if ok && cur.Reading.Timestamp.After(r.Timestamp) {
			return cur
		}
		taken = true
		return types.DeviceSnapshot{
			DeviceID:  r.DeviceID,
			Reading:   r,
			Health:    result,
			UpdatedAt: time.Now().UTC(),
		}
	})
	if !taken {
		return
	}

	errs := errors.Join(
		rec.cache.StoreAggregate(ctx, cache.LatestKey(r.DeviceID), r, rec.ttl),
		rec.cache.StoreAggregate(ctx, cache.HealthKey(r.DeviceID), result, rec.ttl),
	)
	if errs != nil {
		rec.logger.Warn().Err(errs).Str("device_id", r.DeviceID).Msg("projection write failed")
	}

	metrics.DeviceHealthScore.WithLabelValues(r.DeviceID).Set(float64(result.Score))
}
