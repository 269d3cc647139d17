// Package types
package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type Aggregate struct {
	Avg       float64   `json:"avg"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

type Device struct {
	DeviceID   uuid.UUID  `json:"device_id"`
	DeviceName string     `json:"device_name"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	PairedAt   time.Time  `json:"paired_at"`
}

type DeviceCredentials struct {
	DeviceID uuid.UUID `json:"device_id"`
	Username string    `json:"mqtt_user"`
	Password string    `json:"mqtt_pass"`
}

// CanonicalDeviceID is the form device ids take in storage, cache keys and
// in-memory state.
func CanonicalDeviceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricGas         Metric = "gas"
	MetricWeight      Metric = "weight"
)

// Metrics lists every metric in scoring order.
var Metrics = []Metric{MetricTemperature, MetricHumidity, MetricWeight, MetricGas}

var ErrInvalidMetric = fmt.Errorf("invalid metric")

func ToMetric(metric string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(metric))) {
	case MetricTemperature:
		return MetricTemperature, nil
	case MetricHumidity:
		return MetricHumidity, nil
	case MetricGas:
		return MetricGas, nil
	case MetricWeight:
		return MetricWeight, nil
	default:
		return "", ErrInvalidMetric
	}
}

var ErrInvalidReading = errors.New("invalid reading")

// SensorReading is one telemetry snapshot of an appliance.
// Units: temperature °C, humidity %, gas ppb, weight kg.
type SensorReading struct {
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Gas         float64   `json:"gas"`
	Weight      float64   `json:"weight"`
}

// Value returns the reading's value for the given metric.
func (r SensorReading) Value(m Metric) float64 {
	switch m {
	case MetricTemperature:
		return r.Temperature
	case MetricHumidity:
		return r.Humidity
	case MetricGas:
		return r.Gas
	case MetricWeight:
		return r.Weight
	}
	return math.NaN()
}

// Validate only rejects structurally broken readings. Out-of-range values
// are legal and fall into the WARNING tier when classified.
func (r SensorReading) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidReading)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidReading)
	}
	for _, m := range Metrics {
		v := r.Value(m)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidReading, m)
		}
	}
	return nil
}

type SensorStatus string

const (
	StatusSafe    SensorStatus = "SAFE"
	StatusCaution SensorStatus = "CAUTION"
	StatusWarning SensorStatus = "WARNING"
)

type HealthLevel string

const (
	HealthSafe     HealthLevel = "SAFE"
	HealthCaution  HealthLevel = "CAUTION"
	HealthWarning  HealthLevel = "WARNING"
	HealthCritical HealthLevel = "CRITICAL"
)

type HealthScoreResult struct {
	Score    int                     `json:"score"`
	Level    HealthLevel             `json:"level"`
	Statuses map[Metric]SensorStatus `json:"statuses,omitempty"`
}

type EcoScoreLevel string

const (
	EcoExcellent EcoScoreLevel = "EXCELLENT"
	EcoGood      EcoScoreLevel = "GOOD"
	EcoFair      EcoScoreLevel = "FAIR"
	EcoPoor      EcoScoreLevel = "POOR"
	EcoVeryPoor  EcoScoreLevel = "VERY_POOR"
)

type EcoScoreGrade struct {
	Score       float64       `json:"score"`
	Level       EcoScoreLevel `json:"level"`
	Color       string        `json:"color"`
	Label       string        `json:"label"`
	BarPosition float64       `json:"bar_position"`
}

type EventType string

const (
	EventFoodInputBefore     EventType = "food_input_before"
	EventFoodInputAfter      EventType = "food_input_after"
	EventProcessingCompleted EventType = "processing_completed"
)

var ErrInvalidEventType = fmt.Errorf("invalid event type")

func ToEventType(eventType string) (EventType, error) {
	switch EventType(eventType) {
	case EventFoodInputBefore, EventFoodInputAfter, EventProcessingCompleted:
		return EventType(eventType), nil
	default:
		return "", ErrInvalidEventType
	}
}

// SensorEvent is a discrete appliance event. Weight is the scale reading
// in grams at the time of the event, when the device reports one.
type SensorEvent struct {
	EventID   string    `json:"event_id"`
	DeviceID  string    `json:"device_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Weight    *float64  `json:"weight,omitempty"`
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

type WeightChange struct {
	Before *float64 `json:"before,omitempty"`
	After  *float64 `json:"after,omitempty"`
	Diff   *float64 `json:"diff,omitempty"`
}

// FoodInputSession brackets one feeding/processing cycle of a device.
type FoodInputSession struct {
	SessionID                string        `json:"session_id"`
	DeviceID                 string        `json:"device_id"`
	StartedAt                time.Time     `json:"started_at"`
	EndedAt                  *time.Time    `json:"ended_at,omitempty"`
	BeforeEvent              *SensorEvent  `json:"before_event,omitempty"`
	AfterEvent               *SensorEvent  `json:"after_event,omitempty"`
	ProcessingCompletedEvent *SensorEvent  `json:"processing_completed_event,omitempty"`
	WeightChange             *WeightChange `json:"weight_change,omitempty"`
	Status                   SessionStatus `json:"status"`
}

type ProcessingProgress struct {
	Progress         float64 `json:"progress"`
	RemainingPercent float64 `json:"remaining_percent"`
}

// DeviceSnapshot is the latest known state of a device.
type DeviceSnapshot struct {
	DeviceID  string            `json:"device_id"`
	Reading   SensorReading     `json:"reading"`
	Health    HealthScoreResult `json:"health"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type RankEntry struct {
	Rank     int     `json:"rank"`
	DeviceID string  `json:"device_id"`
	Score    float64 `json:"score"`
}
