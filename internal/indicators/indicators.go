// Package indicators provides stateless technical-analysis math shared by
// strategies and performance metrics. Functions return math.NaN() when the
// input is too short; callers treat NaN as "no reading yet".
package indicators

import (
	"math"

	"github.com/quantloop/stratlab/pkg/types"
)

// Mean returns the arithmetic mean of values, NaN when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values, NaN when empty.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// ZScore returns how many standard deviations the latest value sits from the
// mean of the trailing window. NaN when the window is short or has zero
// variance.
func ZScore(values []float64, period int) float64 {
	if period <= 1 || len(values) < period {
		return math.NaN()
	}
	window := values[len(values)-period:]
	sd := StdDev(window)
	if sd == 0 {
		return math.NaN()
	}
	return (window[period-1] - Mean(window)) / sd
}

// ROC returns the rate of change between the latest value and the value
// period bars earlier, as a fraction.
func ROC(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return math.NaN()
	}
	base := values[len(values)-1-period]
	if base == 0 {
		return math.NaN()
	}
	return (values[len(values)-1] - base) / base
}

// ROCSeries returns the ROC at every bar, aligned one-to-one with values.
func ROCSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 {
		return out
	}
	for i := period; i < len(values); i++ {
		if values[i-period] != 0 {
			out[i] = (values[i] - values[i-period]) / values[i-period]
		}
	}
	return out
}

// ZScoreSeries returns the ZScore at every bar, aligned one-to-one with
// values.
func ZScoreSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := period - 1; i >= 0 && i < len(values); i++ {
		out[i] = ZScore(values[:i+1], period)
	}
	return out
}

// HighestHigh returns the maximum high over the trailing period.
func HighestHigh(data []types.OHLCV, period int) float64 {
	if period <= 0 || len(data) < period {
		return math.NaN()
	}
	highest := data[len(data)-period].High
	for _, bar := range data[len(data)-period:] {
		if bar.High > highest {
			highest = bar.High
		}
	}
	return highest
}

// LowestLow returns the minimum low over the trailing period.
func LowestLow(data []types.OHLCV, period int) float64 {
	if period <= 0 || len(data) < period {
		return math.NaN()
	}
	lowest := data[len(data)-period].Low
	for _, bar := range data[len(data)-period:] {
		if bar.Low < lowest {
			lowest = bar.Low
		}
	}
	return lowest
}

// HighestHighSeries returns the rolling channel top at every bar.
func HighestHighSeries(data []types.OHLCV, period int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := period - 1; i >= 0 && i < len(data); i++ {
		out[i] = HighestHigh(data[:i+1], period)
	}
	return out
}

// LowestLowSeries returns the rolling channel bottom at every bar.
func LowestLowSeries(data []types.OHLCV, period int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := period - 1; i >= 0 && i < len(data); i++ {
		out[i] = LowestLow(data[:i+1], period)
	}
	return out
}
