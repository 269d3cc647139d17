package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Source lists devices and recomputes the snapshot of one of them.
type Source interface {
	Devices() []string
	Refresh(ctx context.Context, deviceID string) error
}

// Refresher periodically recomputes device snapshots from storage so
// state converges even when telemetry messages were dropped.
type Refresher struct {
	Source   Source
	Interval time.Duration
	Timeout  time.Duration

	// Ignore matches errors that are expected for idle devices.
	Ignore func(error) bool

	logger    zerolog.Logger
	cancelCtx context.CancelFunc
	wg        sync.WaitGroup
}

// NewRefresher creates a new background worker for snapshot refresh.
func NewRefresher(src Source, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		Source:   src,
		Interval: interval,
		Timeout:  interval,
		logger:   logger.With().Str("component", "refresher").Logger(),
	}
}

func (r *Refresher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelCtx = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		r.logger.Info().Dur("interval", r.Interval).Msg("started")

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("stopped")
				return
			case <-ticker.C:
				if n := r.refreshAll(ctx); n > 0 {
					r.logger.Warn().Int("failed", n).Msg("refresh incomplete")
				}
			}
		}
	}()
}

// Stop gracefully stops the background worker.
func (r *Refresher) Stop() {
	if r.cancelCtx != nil {
		r.cancelCtx()
	}
	r.wg.Wait()
}

// refreshAll returns the number of devices that failed to refresh.
func (r *Refresher) refreshAll(ctx context.Context) int {
	failed := 0
	for _, id := range r.Source.Devices() {
		if ctx.Err() != nil {
			return failed
		}

		err := r.refreshOne(ctx, id)
		if err == nil || (r.Ignore != nil && r.Ignore(err)) {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return failed
		}
		failed++
		r.logger.Error().Err(err).Str("device_id", id).Msg("refresh failed")
	}
	return failed
}

func (r *Refresher) refreshOne(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return r.Source.Refresh(ctx, id)
}
