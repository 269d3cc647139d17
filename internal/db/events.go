package db

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/ntentasd/ecobin-api/pkg/types"
)

func (db *DB) InsertEvent(ctx context.Context, ev types.SensorEvent) (err error) {
	ctx, span := startSpan(ctx, "InsertEvent")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	return db.Data.Query(`
INSERT INTO device_events (device_id, bucket_date, timestamp, event_id, event_type, weight)
VALUES (?, ?, ?, ?, ?, ?)
`, ev.DeviceID, bucketOf(ev.Timestamp), ev.Timestamp.UTC(), ev.EventID, string(ev.Type), ev.Weight).
		WithContext(ctx).Exec()
}

// GetEvents returns a device's events between two timestamps, oldest first.
func (db *DB) GetEvents(ctx context.Context, deviceID string, from, to time.Time) (events []types.SensorEvent, err error) {
	ctx, span := startSpan(ctx, "GetEvents")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetEvents", time.Now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	events = make([]types.SensorEvent, 0, 64)

	for _, bucket := range dayBuckets(from, to) {
		iter := db.Data.Query(`
SELECT timestamp, event_id, event_type, weight
FROM device_events
WHERE device_id = ? AND bucket_date = ? AND timestamp >= ? AND timestamp <= ?
ORDER BY timestamp ASC
`, deviceID, bucket, from.UTC(), to.UTC()).WithContext(ctx).Iter()

		events = append(events, scanEvents(iter, deviceID)...)

		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("failed to query bucket %s: %w", bucket.Format("2006-01-02"), err)
		}
	}

	return events, nil
}

func scanEvents(iter *gocql.Iter, deviceID string) []types.SensorEvent {
	var (
		out       []types.SensorEvent
		ts        time.Time
		eventID   string
		eventType string
		weight    *float64
	)
	for iter.Scan(&ts, &eventID, &eventType, &weight) {
		typ, err := types.ToEventType(eventType)
		if err != nil {
			continue
		}
		ev := types.SensorEvent{
			EventID:   eventID,
			DeviceID:  deviceID,
			Type:      typ,
			Timestamp: ts,
		}
		if weight != nil {
			w := *weight
			ev.Weight = &w
		}
		out = append(out, ev)
		weight = nil
	}
	return out
}
