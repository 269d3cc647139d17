package types

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestSensorReadingValidate(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	valid := SensorReading{DeviceID: "dev-1", Timestamp: ts, Temperature: 25, Humidity: 50, Gas: 100, Weight: 1.2}

	tests := []struct {
		name    string
		mutate  func(r *SensorReading)
		wantErr string
	}{
		{name: "valid", mutate: func(*SensorReading) {}},
		{name: "out of range is still valid", mutate: func(r *SensorReading) { r.Temperature = 90; r.Weight = -1 }},
		{name: "missing device", mutate: func(r *SensorReading) { r.DeviceID = "  " }, wantErr: "device_id is required"},
		{name: "zero timestamp", mutate: func(r *SensorReading) { r.Timestamp = time.Time{} }, wantErr: "timestamp is required"},
		{name: "nan gas", mutate: func(r *SensorReading) { r.Gas = math.NaN() }, wantErr: "gas is not a finite number"},
		{name: "inf humidity", mutate: func(r *SensorReading) { r.Humidity = math.Inf(-1) }, wantErr: "humidity is not a finite number"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := valid
			tc.mutate(&r)
			err := r.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
			if !errors.Is(err, ErrInvalidReading) {
				t.Fatalf("expected ErrInvalidReading, got %v", err)
			}
		})
	}
}

func TestSensorReadingValue(t *testing.T) {
	r := SensorReading{Temperature: 1, Humidity: 2, Gas: 3, Weight: 4}
	want := map[Metric]float64{MetricTemperature: 1, MetricHumidity: 2, MetricGas: 3, MetricWeight: 4}
	for m, v := range want {
		if got := r.Value(m); got != v {
			t.Errorf("Value(%s) = %v, want %v", m, got, v)
		}
	}
	if !math.IsNaN(r.Value("pressure")) {
		t.Error("unknown metric should be NaN")
	}
}

func TestToMetric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{in: "temperature", want: MetricTemperature},
		{in: " Humidity ", want: MetricHumidity},
		{in: "GAS", want: MetricGas},
		{in: "weight", want: MetricWeight},
		{in: "pressure", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ToMetric(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidMetric) {
				t.Errorf("ToMetric(%q) err = %v, want ErrInvalidMetric", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ToMetric(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestToEventType(t *testing.T) {
	for _, in := range []string{"food_input_before", "food_input_after", "processing_completed"} {
		if got, err := ToEventType(in); err != nil || string(got) != in {
			t.Errorf("ToEventType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ToEventType("FOOD_INPUT_BEFORE"); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestCanonicalDeviceID(t *testing.T) {
	if got := CanonicalDeviceID("  DEV-1A \n"); got != "dev-1a" {
		t.Fatalf("CanonicalDeviceID = %q", got)
	}
}
