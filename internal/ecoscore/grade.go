// Package ecoscore grades the 0-100 environmental score reported for a
// device.
package ecoscore

import "github.com/ntentasd/ecobin-api/pkg/types"

type tier struct {
	min   float64
	level types.EcoScoreLevel
	color string
	label string
}

// Evaluated top-down, so a boundary value lands in the higher tier.
var tiers = []tier{
	{80, types.EcoExcellent, "#22C55E", "Excellent"},
	{60, types.EcoGood, "#84CC16", "Good"},
	{40, types.EcoFair, "#EAB308", "Fair"},
	{20, types.EcoPoor, "#F97316", "Poor"},
}

var veryPoor = tier{0, types.EcoVeryPoor, "#EF4444", "Very Poor"}

func lookup(score float64) tier {
	for _, t := range tiers {
		if score >= t.min {
			return t
		}
	}
	return veryPoor
}

// Level grades a score. Scores outside [0,100] are not clamped: 150 is
// EXCELLENT and -10 is VERY_POOR.
func Level(score float64) types.EcoScoreLevel {
	return lookup(score).level
}

// Color is the hex display colour of the score's level.
func Color(score float64) string {
	return lookup(score).color
}

// Label is the human-readable name of the score's level.
func Label(score float64) string {
	return lookup(score).label
}

// LevelColor returns the display colour of a level, or "" for an unknown
// level.
func LevelColor(level types.EcoScoreLevel) string {
	for _, t := range append(tiers, veryPoor) {
		if t.level == level {
			return t.color
		}
	}
	return ""
}

// BarPosition clamps the score to [0,100] for use as a percentage.
func BarPosition(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// Grade bundles the level, colour, label and bar position of a score.
func Grade(score float64) types.EcoScoreGrade {
	t := lookup(score)
	return types.EcoScoreGrade{
		Score:       score,
		Level:       t.level,
		Color:       t.color,
		Label:       t.label,
		BarPosition: BarPosition(score),
	}
}
