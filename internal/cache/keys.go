package cache

import (
	"fmt"
	"time"

	"github.com/ntentasd/ecobin-api/pkg/types"
)

const RankingKey = "ranking:eco"

func canonicalDevice(deviceID string) string {
	return types.CanonicalDeviceID(deviceID)
}

// LatestKey holds the most recent SensorReading of a device.
func LatestKey(deviceID string) string {
	return "latest:" + canonicalDevice(deviceID)
}

// HealthKey holds the HealthScoreResult of the latest reading.
func HealthKey(deviceID string) string {
	return "health:" + canonicalDevice(deviceID)
}

// EcoKey holds the graded eco score of a device.
func EcoKey(deviceID string) string {
	return "eco:" + canonicalDevice(deviceID)
}

// SessionsKey holds the assembled recent food input sessions.
func SessionsKey(deviceID string) string {
	return "sessions:" + canonicalDevice(deviceID)
}

// ReadingsKey is the per-day time series of one metric.
func ReadingsKey(deviceID string, metric types.Metric, day time.Time) string {
	return fmt.Sprintf(
		"%s:%s:%s:%s",
		"sensor",
		canonicalDevice(deviceID),
		metric,
		day.UTC().Format("2006-01-02"),
	)
}

// DeviceKeys lists every single-value key of a device.
func DeviceKeys(deviceID string) []string {
	return []string{
		LatestKey(deviceID),
		HealthKey(deviceID),
		EcoKey(deviceID),
		SessionsKey(deviceID),
	}
}

// AggregateKey holds per-metric aggregates of a device over a window.
func AggregateKey(deviceID string, window time.Duration) string {
	return fmt.Sprintf("agg:%s:%s", canonicalDevice(deviceID), window)
}
