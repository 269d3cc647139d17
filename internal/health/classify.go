// Package health grades raw sensor readings.
package health

import "github.com/ntentasd/ecobin-api/pkg/types"

// Classify maps a single metric value to its status tier. Every finite
// input is accepted; anything outside the known ranges is WARNING.
func Classify(metric types.Metric, v float64) types.SensorStatus {
	switch metric {
	case types.MetricTemperature:
		switch {
		case v >= 20 && v <= 30:
			return types.StatusSafe
		case v > 30 && v <= 35:
			return types.StatusCaution
		}
	case types.MetricHumidity:
		switch {
		case v >= 40 && v <= 60:
			return types.StatusSafe
		case (v >= 30 && v < 40) || (v > 60 && v <= 70):
			return types.StatusCaution
		}
	case types.MetricGas:
		switch {
		case v >= 0 && v <= 200:
			return types.StatusSafe
		case v > 200 && v <= 400:
			return types.StatusCaution
		}
	case types.MetricWeight:
		// zero weight means nothing was fed
		if v > 0 {
			return types.StatusSafe
		}
	}
	return types.StatusWarning
}
