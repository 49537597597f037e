package indicators

import (
	"math"

	"github.com/quantloop/stratlab/pkg/types"
)

// ATR returns the Average True Range over the trailing period using the
// simple average of true ranges.
func ATR(data []types.OHLCV, period int) float64 {
	if period <= 0 || len(data) < period+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(data) - period; i < len(data); i++ {
		sum += trueRange(data[i], data[i-1].Close)
	}
	return sum / float64(period)
}

// ATRSeries returns the ATR at every bar, aligned one-to-one with data.
func ATRSeries(data []types.OHLCV, period int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(data) < period+1 {
		return out
	}
	sum := 0.0
	for i := 1; i < len(data); i++ {
		sum += trueRange(data[i], data[i-1].Close)
		if i > period {
			sum -= trueRange(data[i-period], data[i-period-1].Close)
		}
		if i >= period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(bar types.OHLCV, prevClose float64) float64 {
	hl := bar.High - bar.Low
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}
