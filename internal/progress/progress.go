// Package progress estimates how far a food input session has been
// processed.
package progress

import (
	"time"

	"github.com/ntentasd/ecobin-api/pkg/types"
)

const (
	// MotorTimePerGram mirrors the appliance firmware's grinding formula.
	MotorTimePerGram = 600 * time.Millisecond

	// TotalDuration is the fixed length of a processing cycle. It does not
	// depend on the weight fed in.
	TotalDuration = 7 * time.Minute
)

// WeightToMotorTime converts a weight delta in grams into the motor run
// time the appliance will use. Negative deltas yield zero.
func WeightToMotorTime(weightDiff float64) time.Duration {
	if weightDiff < 0 {
		weightDiff = 0
	}
	return time.Duration(weightDiff * float64(MotorTimePerGram))
}

// StartTime picks the instant processing began: the after-event, then the
// session start, then the fallback. ok is false when none is known.
func StartTime(session *types.FoodInputSession, fallback *time.Time) (time.Time, bool) {
	if session != nil {
		if session.AfterEvent != nil && !session.AfterEvent.Timestamp.IsZero() {
			return session.AfterEvent.Timestamp, true
		}
		if !session.StartedAt.IsZero() {
			return session.StartedAt, true
		}
	}
	if fallback != nil && !fallback.IsZero() {
		return *fallback, true
	}
	return time.Time{}, false
}

// Calculate is CalculateAt evaluated at the current time.
func Calculate(session *types.FoodInputSession, fallback *time.Time) *types.ProcessingProgress {
	return CalculateAt(session, fallback, time.Now())
}

// CalculateAt returns the completion percentage at now, or nil when no start
// time can be determined. Callers re-invoke it to refresh the value.
func CalculateAt(session *types.FoodInputSession, fallback *time.Time, now time.Time) *types.ProcessingProgress {
	start, ok := StartTime(session, fallback)
	if !ok {
		return nil
	}

	elapsed := now.Sub(start)
	p := float64(elapsed) / float64(TotalDuration) * 100
	p = clamp(p, 0, 100)

	return &types.ProcessingProgress{
		Progress:         p,
		RemainingPercent: 100 - p,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
