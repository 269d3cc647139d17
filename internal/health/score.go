package health

import "github.com/ntentasd/ecobin-api/pkg/types"

const (
	pointsSafe    = 10
	pointsCaution = 5
	pointsWarning = 0

	// MaxScore is reached when all four metrics are SAFE.
	MaxScore = 40
)

const (
	thresholdSafe    = 30
	thresholdCaution = 20
	thresholdWarning = 10
)

func points(s types.SensorStatus) int {
	switch s {
	case types.StatusSafe:
		return pointsSafe
	case types.StatusCaution:
		return pointsCaution
	default:
		return pointsWarning
	}
}

// LevelFor maps a composite score to its health level.
func LevelFor(score int) types.HealthLevel {
	switch {
	case score >= thresholdSafe:
		return types.HealthSafe
	case score >= thresholdCaution:
		return types.HealthCaution
	case score >= thresholdWarning:
		return types.HealthWarning
	default:
		return types.HealthCritical
	}
}

// CalculateHealthScore sums the per-metric points of a reading and grades
// the total.
func CalculateHealthScore(r types.SensorReading) types.HealthScoreResult {
	statuses := make(map[types.Metric]types.SensorStatus, len(types.Metrics))
	score := 0
	for _, m := range types.Metrics {
		s := Classify(m, r.Value(m))
		statuses[m] = s
		score += points(s)
	}

	return types.HealthScoreResult{
		Score:    score,
		Level:    LevelFor(score),
		Statuses: statuses,
	}
}
