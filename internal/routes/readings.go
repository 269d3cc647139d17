package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/db"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/ntentasd/ecobin-api/pkg/utils"
)

const (
	defaultWindow  = time.Hour
	maxWindow      = 7 * 24 * time.Hour
	defaultHistory = 5
	maxHistory     = 500
)

// latestReading prefers the in-memory snapshot, then the cache, then the
// database.
func (app *App) latestReading(ctx context.Context, deviceID string) (types.SensorReading, error) {
	if snap, ok := app.States.Get(deviceID); ok {
		return snap.Reading, nil
	}
	return cache.Fetch(ctx, app.Cache, cache.LatestKey(deviceID), app.CacheTTL, app.Policy,
		func(ctx context.Context) (types.SensorReading, error) {
			r, err := app.Store.GetLatestReading(ctx, deviceID)
			if err != nil {
				return types.SensorReading{}, err
			}
			return *r, nil
		})
}

func (app *App) latestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	reading, err := app.latestReading(r.Context(), deviceID)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": reading,
	})
}

// aggregate reduces readings to avg/min/max per metric.
func aggregate(readings []types.SensorReading, now time.Time) map[types.Metric]types.Aggregate {
	out := make(map[types.Metric]types.Aggregate, len(types.Metrics))
	if len(readings) == 0 {
		return out
	}

	for _, m := range types.Metrics {
		first := readings[0].Value(m)
		sum, lo, hi := 0.0, first, first
		for _, r := range readings {
			v := r.Value(m)
			sum += v
			lo = min(lo, v)
			hi = max(hi, v)
		}
		out[m] = types.Aggregate{
			Avg:       sum / float64(len(readings)),
			Min:       lo,
			Max:       hi,
			Count:     len(readings),
			Timestamp: now,
		}
	}
	return out
}

func (app *App) aggregateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	window, err := durationParam(r, "window", defaultWindow, maxWindow)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	aggs, err := cache.Fetch(r.Context(), app.Cache, cache.AggregateKey(deviceID, window), app.CacheTTL, app.Policy,
		func(ctx context.Context) (map[types.Metric]types.Aggregate, error) {
			now := time.Now().UTC()
			readings, err := app.Store.GetReadings(ctx, deviceID, now.Add(-window), now)
			if err != nil {
				return nil, err
			}
			if len(readings) == 0 {
				return nil, db.ErrNoReadings
			}
			return aggregate(readings, now), nil
		})
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": aggs,
	})
}

// historyHandler serves the newest n values of one metric from today's
// series, backfilling the cache from the database when it runs short.
func (app *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	metric, err := types.ToMetric(r.URL.Query().Get("metric"))
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	n, err := intParam(r, "n", defaultHistory, maxHistory)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	now := time.Now().UTC()
	key := cache.ReadingsKey(deviceID, metric, now)

	res, err := app.Cache.FetchLast(r.Context(), key, n)
	if err != nil {
		app.logger.Warn().Err(err).Str("key", key).Msg("series fetch failed")
	}

	// Less than n, cache may be stale
	if len(res) < n {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		readings, err := app.Store.GetReadings(r.Context(), deviceID, dayStart, now)
		if err != nil {
			app.replyErr(w, r, err)
			return
		}

		res = make([]types.Entry, 0, min(n, len(readings)))
		for i, reading := range readings {
			entry := types.Entry{Timestamp: reading.Timestamp, Value: reading.Value(metric)}
			if err := app.Cache.Store(r.Context(), key, entry); err != nil {
				app.logger.Warn().Err(err).Str("key", key).Msg("series backfill failed")
			}
			if i < n {
				res = append(res, entry)
			}
		}
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": res,
	})
}
