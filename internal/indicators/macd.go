package indicators

import "math"

// MACD returns the latest MACD line, signal line and histogram for the given
// fast/slow/signal periods.
func MACD(values []float64, fastPeriod, slowPeriod, signalPeriod int) (line, signal, histogram float64) {
	lines, signals, histograms := MACDSeries(values, fastPeriod, slowPeriod, signalPeriod)
	if len(lines) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	last := len(lines) - 1
	return lines[last], signals[last], histograms[last]
}

// MACDSeries returns the MACD line, signal line and histogram at every bar,
// each aligned one-to-one with values.
func MACDSeries(values []float64, fastPeriod, slowPeriod, signalPeriod int) (lines, signals, histograms []float64) {
	n := len(values)
	lines = make([]float64, n)
	signals = make([]float64, n)
	histograms = make([]float64, n)
	for i := 0; i < n; i++ {
		lines[i] = math.NaN()
		signals[i] = math.NaN()
		histograms[i] = math.NaN()
	}
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 || n < slowPeriod {
		return lines, signals, histograms
	}

	fast := EMASeries(values, fastPeriod)
	slow := EMASeries(values, slowPeriod)
	macdStart := slowPeriod - 1
	for i := macdStart; i < n; i++ {
		lines[i] = fast[i] - slow[i]
	}

	// The signal line is an EMA over the defined portion of the MACD line.
	sig := EMASeries(lines[macdStart:], signalPeriod)
	for i, v := range sig {
		signals[macdStart+i] = v
		if !math.IsNaN(v) {
			histograms[macdStart+i] = lines[macdStart+i] - v
		}
	}
	return lines, signals, histograms
}
