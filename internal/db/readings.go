package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/ntentasd/ecobin-api/pkg/types"
)

var ErrNoReadings = errors.New("no readings found")

// latestLookbackDays bounds how many daily buckets GetLatestReading scans.
const latestLookbackDays = 2

func (db *DB) InsertReading(ctx context.Context, r types.SensorReading) (err error) {
	ctx, span := startSpan(ctx, "InsertReading")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	return db.Data.Query(`
INSERT INTO readings (device_id, bucket_date, timestamp, temperature, humidity, gas, weight)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, r.DeviceID, bucketOf(r.Timestamp), r.Timestamp.UTC(), r.Temperature, r.Humidity, r.Gas, r.Weight).
		WithContext(ctx).Exec()
}

// GetReadings returns all readings of a device between two timestamps, newest
// first, possibly spanning multiple bucket_dates.
func (db *DB) GetReadings(ctx context.Context, deviceID string, from, to time.Time) (readings []types.SensorReading, err error) {
	ctx, span := startSpan(ctx, "GetReadings")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetReadings", time.Now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	buckets := dayBuckets(from, to)
	readings = make([]types.SensorReading, 0, 256)

	// newest bucket first so the result stays ordered newest first
	for i := len(buckets) - 1; i >= 0; i-- {
		bucket := buckets[i]
		iter := db.Data.Query(`
SELECT timestamp, temperature, humidity, gas, weight
FROM readings
WHERE device_id = ? AND bucket_date = ? AND timestamp >= ? AND timestamp <= ?
ORDER BY timestamp DESC
`, deviceID, bucket, from.UTC(), to.UTC()).WithContext(ctx).Iter()

		readings = append(readings, scanReadings(iter, deviceID)...)

		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("failed to query bucket %s: %w", bucket.Format("2006-01-02"), err)
		}
	}

	return readings, nil
}

// GetLatestReading returns the newest reading from today's or yesterday's
// bucket.
func (db *DB) GetLatestReading(ctx context.Context, deviceID string) (latest *types.SensorReading, err error) {
	ctx, span := startSpan(ctx, "GetLatestReading")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetLatestReading", time.Now())

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	day := bucketOf(time.Now())
	for range latestLookbackDays {
		iter := db.Data.Query(`
SELECT timestamp, temperature, humidity, gas, weight
FROM readings
WHERE device_id = ? AND bucket_date = ?
ORDER BY timestamp DESC LIMIT 1
`, deviceID, day).WithContext(ctx).Iter()

		found := scanReadings(iter, deviceID)
		if err := iter.Close(); err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return &found[0], nil
		}
		day = day.Add(-24 * time.Hour)
	}

	return nil, ErrNoReadings
}

func scanReadings(iter *gocql.Iter, deviceID string) []types.SensorReading {
	var (
		out []types.SensorReading
		r   = types.SensorReading{DeviceID: deviceID}
	)
	for iter.Scan(&r.Timestamp, &r.Temperature, &r.Humidity, &r.Gas, &r.Weight) {
		out = append(out, r)
	}
	return out
}
