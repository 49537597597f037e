package indicators

import "math"

// RSI returns the Relative Strength Index over the trailing period using
// simple-average gains and losses. 100 when there are no losses in the
// window, 50 when the window is completely flat.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return math.NaN()
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSISeries returns the RSI at every bar, aligned one-to-one with values.
func RSISeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := period; i < len(values); i++ {
		out[i] = RSI(values[:i+1], period)
	}
	return out
}
