package indicators

import (
	"math"

	"github.com/quantloop/stratlab/pkg/types"
)

// ADX returns the Average Directional Index (0-100) with Wilder smoothing.
// Readings above 25 indicate a trending market. Requires at least
// 2*period+1 bars.
func ADX(data []types.OHLCV, period int) float64 {
	series := ADXSeries(data, period)
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// ADXSeries returns the ADX at every bar, aligned one-to-one with data.
func ADXSeries(data []types.OHLCV, period int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(data) < 2*period+1 {
		return out
	}

	var smTR, smPlusDM, smMinusDM float64
	var adx float64
	dxCount := 0

	for i := 1; i < len(data); i++ {
		tr := trueRange(data[i], data[i-1].Close)
		upMove := data[i].High - data[i-1].High
		downMove := data[i-1].Low - data[i].Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		if i <= period {
			smTR += tr
			smPlusDM += plusDM
			smMinusDM += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/float64(period) + tr
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		}

		if smTR == 0 {
			continue
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		sumDI := plusDI + minusDI
		dx := 0.0
		if sumDI != 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sumDI
		}

		dxCount++
		if dxCount <= period {
			adx += dx
			if dxCount == period {
				adx /= float64(period)
				out[i] = adx
			}
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
			out[i] = adx
		}
	}
	return out
}
