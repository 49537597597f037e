package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/stratlab/pkg/types"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, close, high, low, volume float64) types.OHLCV {
	return types.OHLCV{
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Timestamp: testStart.Add(time.Duration(i) * time.Hour),
	}
}

func generateRisingData(n int) []types.OHLCV {
	data := make([]types.OHLCV, n)
	for i := range data {
		c := 100 + float64(i)
		data[i] = bar(i, c, c+0.5, c-0.5, 1000)
	}
	return data
}

func generateFallingData(n int) []types.OHLCV {
	data := make([]types.OHLCV, n)
	for i := range data {
		c := 100 + float64(n) - float64(i)
		data[i] = bar(i, c, c+0.5, c-0.5, 1000)
	}
	return data
}

func generateChoppyData(n int) []types.OHLCV {
	data := make([]types.OHLCV, n)
	for i := range data {
		c := 100 + float64(i%2)
		data[i] = bar(i, c, c+0.5, c-0.5, 1000)
	}
	return data
}

func lastSignal(t *testing.T, s Strategy, data []types.OHLCV) *Signal {
	t.Helper()
	sig, err := s.GenerateSignal(data[len(data)-1], data)
	require.NoError(t, err)
	require.NotNil(t, sig)
	return sig
}

func TestFamilyRegistry(t *testing.T) {
	for _, name := range []string{"momentum", "meanreversion", "breakout", "statarb", "marketmaking", "mlalpha"} {
		family, err := FamilyByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, family.Name())
	}

	_, err := FamilyByName("gradient-boost")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestFamilyNames_Sorted(t *testing.T) {
	names := FamilyNames()
	require.Len(t, names, 6)
	assert.Equal(t, []string{"breakout", "marketmaking", "meanreversion", "mlalpha", "momentum", "statarb"}, names)
}

func TestNew_DefaultsWhenNilParams(t *testing.T) {
	s, err := New("momentum", nil)
	require.NoError(t, err)
	assert.Equal(t, "momentum", s.Name())
	assert.Equal(t, 10.0, s.Parameters()["fastPeriod"])
}

func TestFamilies_DefaultsConstruct(t *testing.T) {
	for _, name := range FamilyNames() {
		t.Run(name, func(t *testing.T) {
			family, err := FamilyByName(name)
			require.NoError(t, err)

			s, err := family.New(family.Defaults())
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())
			assert.NoError(t, s.Initialize(generateRisingData(10)))
			assert.Error(t, s.Initialize(nil))
		})
	}
}

func TestFamilies_GridCombinationsConstruct(t *testing.T) {
	for _, name := range FamilyNames() {
		t.Run(name, func(t *testing.T) {
			family, err := FamilyByName(name)
			require.NoError(t, err)

			grid := family.Grid()
			require.NotEmpty(t, grid)
			for _, params := range grid {
				_, err := family.New(params)
				assert.NoError(t, err, "grid point %v", params)
			}
		})
	}
}

func TestFamilies_IndicatorSeriesAligned(t *testing.T) {
	data := generateRisingData(80)
	for _, name := range FamilyNames() {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, nil)
			require.NoError(t, err)

			series, err := s.CalculateIndicators(data)
			require.NoError(t, err)
			require.NotEmpty(t, series)
			for label, values := range series {
				assert.Len(t, values, len(data), "series %s", label)
			}
		})
	}
}

func TestFamilies_SignalsStayBounded(t *testing.T) {
	datasets := [][]types.OHLCV{
		generateRisingData(120),
		generateFallingData(120),
		generateChoppyData(120),
	}
	for _, name := range FamilyNames() {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, nil)
			require.NoError(t, err)

			for _, data := range datasets {
				for i := 1; i <= len(data); i++ {
					sig, err := s.GenerateSignal(data[i-1], data[:i])
					require.NoError(t, err)
					require.NotNil(t, sig)
					assert.GreaterOrEqual(t, sig.Strength, 0.0)
					assert.LessOrEqual(t, sig.Strength, 1.0)
					assert.GreaterOrEqual(t, sig.Confidence, 0.0)
					assert.LessOrEqual(t, sig.Confidence, 1.0)
				}
			}
		})
	}
}

func TestSetParameters_InvalidKeepsOriginal(t *testing.T) {
	m, err := NewMomentum(nil)
	require.NoError(t, err)
	original := m.Parameters()

	err = m.SetParameters(Parameters{"fastPeriod": 50, "slowPeriod": 20})
	require.Error(t, err)
	assert.Equal(t, original, m.Parameters())
}

func TestSetParameters_PartialOverridesDefaults(t *testing.T) {
	m, err := NewMomentum(Parameters{"fastPeriod": 5})
	require.NoError(t, err)

	params := m.Parameters()
	assert.Equal(t, 5.0, params["fastPeriod"])
	assert.Equal(t, 30.0, params["slowPeriod"])
}

func TestParameters_Clone(t *testing.T) {
	p := Parameters{"a": 1}
	clone := p.Clone()
	clone["a"] = 2

	assert.Equal(t, 1.0, p["a"])
	assert.Equal(t, 2.0, clone["a"])
}

func TestMomentum_Signals(t *testing.T) {
	m, err := NewMomentum(nil)
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, lastSignal(t, m, generateRisingData(100)).Action)
	assert.Equal(t, ActionSell, lastSignal(t, m, generateFallingData(100)).Action)
	assert.Equal(t, ActionHold, lastSignal(t, m, generateRisingData(10)).Action)
}

func TestMeanReversion_BuyAtLowerBand(t *testing.T) {
	m, err := NewMeanReversion(nil)
	require.NoError(t, err)

	data := make([]types.OHLCV, 0, 40)
	for i := 0; i < 30; i++ {
		data = append(data, bar(i, 100, 100.5, 99.5, 1000))
	}
	for i := 0; i < 10; i++ {
		c := 99 - float64(i)
		data = append(data, bar(30+i, c, c+0.5, c-0.5, 1000))
	}

	sig := lastSignal(t, m, data)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Greater(t, sig.Strength, 0.0)
}

func TestMeanReversion_SellAtUpperBand(t *testing.T) {
	m, err := NewMeanReversion(nil)
	require.NoError(t, err)

	data := make([]types.OHLCV, 0, 40)
	for i := 0; i < 30; i++ {
		data = append(data, bar(i, 100, 100.5, 99.5, 1000))
	}
	for i := 0; i < 10; i++ {
		c := 101 + float64(i)
		data = append(data, bar(30+i, c, c+0.5, c-0.5, 1000))
	}

	assert.Equal(t, ActionSell, lastSignal(t, m, data).Action)
}

func TestBreakout_BuyOnChannelBreak(t *testing.T) {
	b, err := NewBreakout(nil)
	require.NoError(t, err)

	data := make([]types.OHLCV, 0, 31)
	for i := 0; i < 30; i++ {
		data = append(data, bar(i, 100, 100.5, 99.5, 1000))
	}
	data = append(data, bar(30, 105, 105.5, 99.5, 2000))

	sig := lastSignal(t, b, data)
	assert.Equal(t, ActionBuy, sig.Action)
}

func TestBreakout_HoldInsideChannel(t *testing.T) {
	b, err := NewBreakout(nil)
	require.NoError(t, err)

	data := make([]types.OHLCV, 0, 31)
	for i := 0; i < 31; i++ {
		data = append(data, bar(i, 100, 100.5, 99.5, 1000))
	}

	assert.Equal(t, ActionHold, lastSignal(t, b, data).Action)
}

func TestStatArb_Signals(t *testing.T) {
	s, err := NewStatArb(nil)
	require.NoError(t, err)

	base := generateChoppyData(40)

	crash := append(append([]types.OHLCV{}, base[:39]...), bar(39, 90, 90.5, 89.5, 1000))
	assert.Equal(t, ActionBuy, lastSignal(t, s, crash).Action)

	spike := append(append([]types.OHLCV{}, base[:39]...), bar(39, 110, 110.5, 109.5, 1000))
	assert.Equal(t, ActionSell, lastSignal(t, s, spike).Action)

	// Ending on the low side of the chop keeps |z| inside both bounds.
	assert.Equal(t, ActionHold, lastSignal(t, s, base[:39]).Action)
}

func TestMarketMaking_QuotesPulledInTrend(t *testing.T) {
	m, err := NewMarketMaking(nil)
	require.NoError(t, err)

	sig := lastSignal(t, m, generateRisingData(80))
	assert.Equal(t, ActionHold, sig.Action)
	assert.Contains(t, sig.Reason, "trending")
}

func TestMarketMaking_BuyAtLowerQuote(t *testing.T) {
	m, err := NewMarketMaking(Parameters{"adxMax": 90})
	require.NoError(t, err)

	data := generateChoppyData(60)
	data[59] = bar(59, 95, 95.5, 94.5, 1000)

	assert.Equal(t, ActionBuy, lastSignal(t, m, data).Action)
}

func TestMLAlpha_TrendFollowsWithTrendHeavyWeights(t *testing.T) {
	params := Parameters{"trendWeight": 0.7, "reversionWeight": 0.15, "volumeWeight": 0.15, "threshold": 0.25}
	m, err := NewMLAlpha(params)
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, lastSignal(t, m, generateRisingData(100)).Action)
	assert.Equal(t, ActionSell, lastSignal(t, m, generateFallingData(100)).Action)
}

func TestMLAlpha_RejectsDegenerateWeights(t *testing.T) {
	_, err := NewMLAlpha(Parameters{"trendWeight": 0, "reversionWeight": 0, "volumeWeight": 0})
	assert.Error(t, err)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "HOLD", ActionHold.String())
	assert.Equal(t, "BUY", ActionBuy.String())
	assert.Equal(t, "SELL", ActionSell.String())
	assert.Equal(t, "UNKNOWN", Action(42).String())
}
