// Package events applies device events and eco score reports to storage,
// cache and connected clients.
package events

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/ntentasd/ecobin-api/internal/retry"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

var ErrInvalidScore = errors.New("invalid eco score")

// Store persists events and eco scores.
type Store interface {
	InsertEvent(ctx context.Context, ev types.SensorEvent) error
	StoreEcoScore(ctx context.Context, deviceID string, score float64, at time.Time) error
}

// Notifier tells connected clients which cached projections went stale.
type Notifier interface {
	NotifyInvalidation(deviceID string, keys []string)
}

type Handler struct {
	store    Store
	cache    cache.Cache
	ranker   cache.Ranker
	notifier Notifier
	policy   retry.Policy
	logger   zerolog.Logger
}

// NewHandler builds a Handler. ranker and notifier may be nil.
func NewHandler(store Store, c cache.Cache, ranker cache.Ranker, notifier Notifier, policy retry.Policy, logger zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		cache:    c,
		ranker:   ranker,
		notifier: notifier,
		policy:   policy,
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// InvalidationKeys lists the cache keys made stale by ev.
func InvalidationKeys(ev types.SensorEvent) []string {
	switch ev.Type {
	case types.EventFoodInputBefore:
		return []string{cache.SessionsKey(ev.DeviceID)}
	case types.EventFoodInputAfter:
		return []string{
			cache.SessionsKey(ev.DeviceID),
			cache.LatestKey(ev.DeviceID),
			cache.HealthKey(ev.DeviceID),
		}
	case types.EventProcessingCompleted:
		return []string{
			cache.SessionsKey(ev.DeviceID),
			cache.EcoKey(ev.DeviceID),
		}
	}
	return nil
}

// HandleEvent persists ev, drops the cache keys it invalidates and notifies
// subscribers. Only a persistence failure is returned; cache trouble is
// logged.
func (h *Handler) HandleEvent(ctx context.Context, ev types.SensorEvent) error {
	ev.DeviceID = types.CanonicalDeviceID(ev.DeviceID)
	if ev.DeviceID == "" {
		return fmt.Errorf("event %s has no device_id", ev.EventID)
	}
	metrics.DeviceEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	_, err := retry.Do(ctx, h.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.store.InsertEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("failed to persist event %s: %w", ev.EventID, err)
	}

	h.invalidate(ctx, ev.DeviceID, InvalidationKeys(ev))

	h.logger.Debug().
		Str("device_id", ev.DeviceID).
		Str("type", string(ev.Type)).
		Msg("event applied")
	return nil
}

// RecordEcoScore stores a device's eco score and updates the ranking.
func (h *Handler) RecordEcoScore(ctx context.Context, deviceID string, score float64) error {
	deviceID = types.CanonicalDeviceID(deviceID)
	if deviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidScore)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("%w: score is not a finite number", ErrInvalidScore)
	}

	now := time.Now().UTC()
	_, err := retry.Do(ctx, h.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.store.StoreEcoScore(ctx, deviceID, score, now)
	})
	if err != nil {
		return fmt.Errorf("failed to store eco score: %w", err)
	}

	if h.ranker != nil {
		if err := h.ranker.RecordEcoScore(ctx, deviceID, score); err != nil {
			h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("ranking update failed")
		}
	}

	h.invalidate(ctx, deviceID, []string{cache.EcoKey(deviceID)})
	return nil
}

func (h *Handler) invalidate(ctx context.Context, deviceID string, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := h.cache.Invalidate(ctx, keys...); err != nil {
		h.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
	if h.notifier != nil {
		h.notifier.NotifyInvalidation(deviceID, keys)
	}
}
