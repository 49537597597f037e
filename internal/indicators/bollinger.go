package indicators

import "math"

// Bollinger returns the upper band, middle band (SMA) and lower band for the
// trailing period with the given width in standard deviations.
func Bollinger(values []float64, period int, width float64) (upper, middle, lower float64) {
	if period <= 0 || len(values) < period {
		nan := math.NaN()
		return nan, nan, nan
	}
	window := values[len(values)-period:]
	middle = Mean(window)
	sd := StdDev(window)
	return middle + width*sd, middle, middle - width*sd
}

// PercentB locates the latest value within its Bollinger bands: 0 at the
// lower band, 1 at the upper band. NaN when the bands have zero width.
func PercentB(values []float64, period int, width float64) float64 {
	upper, _, lower := Bollinger(values, period, width)
	if math.IsNaN(upper) || upper == lower {
		return math.NaN()
	}
	return (values[len(values)-1] - lower) / (upper - lower)
}

// BollingerSeries returns the three bands at every bar, each aligned
// one-to-one with values.
func BollingerSeries(values []float64, period int, width float64) (uppers, middles, lowers []float64) {
	n := len(values)
	uppers = make([]float64, n)
	middles = make([]float64, n)
	lowers = make([]float64, n)
	for i := 0; i < n; i++ {
		uppers[i] = math.NaN()
		middles[i] = math.NaN()
		lowers[i] = math.NaN()
	}
	for i := period - 1; i >= 0 && i < n; i++ {
		uppers[i], middles[i], lowers[i] = Bollinger(values[:i+1], period, width)
	}
	return uppers, middles, lowers
}
