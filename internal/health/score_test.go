package health

import (
	"reflect"
	"testing"

	"github.com/ntentasd/ecobin-api/pkg/types"
)

func TestCalculateHealthScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reading   types.SensorReading
		wantScore int
		wantLevel types.HealthLevel
	}{
		{
			name:      "all safe",
			reading:   types.SensorReading{Temperature: 25, Humidity: 50, Weight: 1, Gas: 100},
			wantScore: 40,
			wantLevel: types.HealthSafe,
		},
		{
			name:      "all warning",
			reading:   types.SensorReading{Temperature: 0, Humidity: 0, Weight: 0, Gas: 1000},
			wantScore: 0,
			wantLevel: types.HealthCritical,
		},
		{
			name:      "empty bin only",
			reading:   types.SensorReading{Temperature: 25, Humidity: 50, Weight: 0, Gas: 100},
			wantScore: 30,
			wantLevel: types.HealthSafe,
		},
		{
			name:      "two cautions",
			reading:   types.SensorReading{Temperature: 33, Humidity: 65, Weight: 1, Gas: 100},
			wantScore: 30,
			wantLevel: types.HealthSafe,
		},
		{
			name:      "caution tier",
			reading:   types.SensorReading{Temperature: 33, Humidity: 65, Weight: 0, Gas: 300},
			wantScore: 15,
			wantLevel: types.HealthWarning,
		},
		{
			name:      "twenty five",
			reading:   types.SensorReading{Temperature: 33, Humidity: 50, Weight: 0, Gas: 100},
			wantScore: 25,
			wantLevel: types.HealthCaution,
		},
		{
			name:      "single safe metric",
			reading:   types.SensorReading{Temperature: 25, Humidity: 0, Weight: 0, Gas: 1000},
			wantScore: 10,
			wantLevel: types.HealthWarning,
		},
		{
			name:      "single caution metric",
			reading:   types.SensorReading{Temperature: 33, Humidity: 0, Weight: 0, Gas: 1000},
			wantScore: 5,
			wantLevel: types.HealthCritical,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := CalculateHealthScore(tc.reading)
			if got.Score != tc.wantScore {
				t.Fatalf("score = %d, want %d", got.Score, tc.wantScore)
			}
			if got.Level != tc.wantLevel {
				t.Fatalf("level = %s, want %s", got.Level, tc.wantLevel)
			}
			if len(got.Statuses) != 4 {
				t.Fatalf("expected 4 statuses, got %d", len(got.Statuses))
			}
		})
	}
}

func TestLevelForThresholds(t *testing.T) {
	for score := 0; score <= MaxScore; score++ {
		got := LevelFor(score)
		var want types.HealthLevel
		switch {
		case score >= 30:
			want = types.HealthSafe
		case score >= 20:
			want = types.HealthCaution
		case score >= 10:
			want = types.HealthWarning
		default:
			want = types.HealthCritical
		}
		if got != want {
			t.Fatalf("LevelFor(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestCalculateHealthScoreIsPure(t *testing.T) {
	r := types.SensorReading{Temperature: 31, Humidity: 35, Weight: 2, Gas: 250}
	a := CalculateHealthScore(r)
	b := CalculateHealthScore(r)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("repeated calls differ: %+v vs %+v", a, b)
	}
}
