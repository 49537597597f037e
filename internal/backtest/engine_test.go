package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/types"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatBar(i int, close float64) types.OHLCV {
	return types.OHLCV{
		Open:      close,
		High:      close + 0.5,
		Low:       close - 0.5,
		Close:     close,
		Volume:    1000,
		Timestamp: testStart.Add(time.Duration(i) * time.Hour),
	}
}

func generateFlatData(n int, close float64) []types.OHLCV {
	data := make([]types.OHLCV, n)
	for i := range data {
		data[i] = flatBar(i, close)
	}
	return data
}

func generateRisingData(n int) []types.OHLCV {
	data := make([]types.OHLCV, n)
	for i := range data {
		data[i] = flatBar(i, 100+float64(i))
	}
	return data
}

// mockStrategy scripts signals per bar index and records how it was driven.
type mockStrategy struct {
	name        string
	script      func(barIndex int, current types.OHLCV) *strategy.Signal
	initErr     error
	signalErr   error
	signalCalls int
	firstLen    int
}

func (m *mockStrategy) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockStrategy) Initialize(data []types.OHLCV) error { return m.initErr }

func (m *mockStrategy) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	return map[string][]float64{}, nil
}

func (m *mockStrategy) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*strategy.Signal, error) {
	m.signalCalls++
	if m.firstLen == 0 {
		m.firstLen = len(history)
	}
	if m.signalErr != nil {
		return nil, m.signalErr
	}
	if m.script == nil {
		return strategy.Hold("scripted hold", current.Timestamp), nil
	}
	return m.script(len(history)-1, current), nil
}

func (m *mockStrategy) Parameters() strategy.Parameters         { return strategy.Parameters{} }
func (m *mockStrategy) SetParameters(strategy.Parameters) error { return nil }

var _ strategy.Strategy = (*mockStrategy)(nil)

func buyAt(indices ...int) func(int, types.OHLCV) *strategy.Signal {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return func(barIndex int, current types.OHLCV) *strategy.Signal {
		if set[barIndex] {
			return &strategy.Signal{Action: strategy.ActionBuy, Strength: 0.8, Confidence: 0.8, Timestamp: current.Timestamp}
		}
		return strategy.Hold("scripted hold", current.Timestamp)
	}
}

func buyThenSell(buyIndex, sellIndex int) func(int, types.OHLCV) *strategy.Signal {
	return func(barIndex int, current types.OHLCV) *strategy.Signal {
		switch barIndex {
		case buyIndex:
			return &strategy.Signal{Action: strategy.ActionBuy, Strength: 0.8, Confidence: 0.8, Timestamp: current.Timestamp}
		case sellIndex:
			return &strategy.Signal{Action: strategy.ActionSell, Strength: 0.8, Confidence: 0.8, Timestamp: current.Timestamp}
		}
		return strategy.Hold("scripted hold", current.Timestamp)
	}
}

func zeroCostConfig() Config {
	cfg := DefaultConfig()
	cfg.Commission = 0
	cfg.Slippage = 0
	return cfg
}

func TestRun_InvalidConfigFailsBeforeAnyBar(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCapital = 0
	mock := &mockStrategy{script: buyAt(50)}

	_, err := NewEngine(cfg).Run(mock, generateFlatData(100, 100))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "initial_capital", cfgErr.Field)
	assert.Zero(t, mock.signalCalls, "no bar may be processed on invalid config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative commission", func(c *Config) { c.Commission = -0.1 }, "commission"},
		{"commission at one", func(c *Config) { c.Commission = 1 }, "commission"},
		{"negative slippage", func(c *Config) { c.Slippage = -0.1 }, "slippage"},
		{"zero position size", func(c *Config) { c.MaxPositionSize = 0 }, "max_position_size"},
		{"oversized position", func(c *Config) { c.MaxPositionSize = 1.5 }, "max_position_size"},
		{"negative stop loss", func(c *Config) { c.StopLoss = -0.05 }, "stop_loss"},
		{"stop loss at one", func(c *Config) { c.StopLoss = 1 }, "stop_loss"},
		{"negative take profit", func(c *Config) { c.TakeProfit = -0.05 }, "take_profit"},
		{"negative risk free rate", func(c *Config) { c.RiskFreeRate = -0.01 }, "risk_free_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestRun_NeverBuyConservesCapital(t *testing.T) {
	cfg := DefaultConfig()
	mock := &mockStrategy{} // always holds

	perf, err := NewEngine(cfg).Run(mock, generateFlatData(200, 100))
	require.NoError(t, err)

	assert.Zero(t, perf.TotalTrades)
	assert.Equal(t, cfg.InitialCapital, perf.FinalCapital)
	assert.Zero(t, perf.TotalReturn)
}

func TestRun_WarmupOffset(t *testing.T) {
	mock := &mockStrategy{}
	data := generateFlatData(60, 100)

	_, err := NewEngine(DefaultConfig()).Run(mock, data)
	require.NoError(t, err)

	// First evaluated bar is index 50, seeing history up to and including it.
	assert.Equal(t, 10, mock.signalCalls)
	assert.Equal(t, WarmupBars+1, mock.firstLen)
}

func TestRun_EquityCurveCoversProcessedBars(t *testing.T) {
	mock := &mockStrategy{}
	data := generateFlatData(73, 100)

	perf, err := NewEngine(DefaultConfig()).Run(mock, data)
	require.NoError(t, err)

	assert.Len(t, perf.EquityCurve, 73-WarmupBars)
	assert.Equal(t, data[WarmupBars].Timestamp, perf.EquityCurve[0].Timestamp)
	assert.Equal(t, data[72].Timestamp, perf.EquityCurve[len(perf.EquityCurve)-1].Timestamp)
}

func TestRun_ShortSeriesYieldsEmptyReport(t *testing.T) {
	mock := &mockStrategy{script: buyAt(10)}
	data := generateFlatData(WarmupBars, 100)

	perf, err := NewEngine(DefaultConfig()).Run(mock, data)
	require.NoError(t, err)

	assert.Zero(t, mock.signalCalls)
	assert.Zero(t, perf.TotalTrades)
	assert.Equal(t, DefaultConfig().InitialCapital, perf.FinalCapital)
	assert.Zero(t, perf.SharpeRatio)
	assert.Empty(t, perf.EquityCurve)
	assert.Equal(t, WarmupBars, perf.Period.Bars)
}

func TestRun_BuyAndSellArithmetic(t *testing.T) {
	cfg := Config{
		InitialCapital:  10000,
		Commission:      0.001,
		Slippage:        0.01,
		MaxPositionSize: 0.5,
		RiskFreeRate:    0.02,
	}
	mock := &mockStrategy{script: buyThenSell(52, 55)}

	perf, err := NewEngine(cfg).Run(mock, generateFlatData(60, 100))
	require.NoError(t, err)
	require.Len(t, perf.Trades, 1)

	trade := perf.Trades[0]
	// Entry: exec 101, qty floor(5000/101) = 49, cost 4949, fee 4.949.
	assert.InDelta(t, 101.0, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 49.0, trade.Quantity, 1e-9)
	// Exit: exec 99, proceeds 4851, fee 4.851.
	assert.InDelta(t, 99.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 4.949+4.851, trade.Commission, 1e-9)
	assert.InDelta(t, 4851-4.851-(4949+4.949), trade.PnL, 1e-9)
	assert.Equal(t, "sell signal", trade.Reason)

	assert.InDelta(t, 10000-4949-4.949+4851-4.851, perf.FinalCapital, 1e-9)
	assert.InDelta(t, (perf.FinalCapital-10000)/10000, perf.TotalReturn, 1e-12)
	assert.Equal(t, 1, perf.LosingTrades)
}

func TestRun_SkipsEntryWhenOneUnitDoesNotFit(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.InitialCapital = 100
	mock := &mockStrategy{script: buyAt(50, 51, 52)}

	perf, err := NewEngine(cfg).Run(mock, generateFlatData(60, 1000))
	require.NoError(t, err)

	assert.Zero(t, perf.TotalTrades)
	assert.Equal(t, 100.0, perf.FinalCapital)
}

func TestRun_StopLossOutranksSignal(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.StopLoss = 0.05
	data := generateFlatData(60, 100)
	for i := 53; i < 60; i++ {
		data[i] = flatBar(i, 94) // -6% from entry
	}
	// The strategy screams BUY the whole way down; the stop still closes.
	mock := &mockStrategy{script: buyAt(52, 53, 54)}

	perf, err := NewEngine(cfg).Run(mock, data)
	require.NoError(t, err)
	require.NotEmpty(t, perf.Trades)

	first := perf.Trades[0]
	assert.Equal(t, "stop loss", first.Reason)
	assert.Equal(t, data[53].Timestamp, first.ExitTime)
	assert.InDelta(t, 94.0, first.ExitPrice, 1e-9)
	assert.Less(t, first.PnL, 0.0)
}

func TestRun_TakeProfitClosesPosition(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.TakeProfit = 0.05
	data := generateFlatData(60, 100)
	for i := 54; i < 60; i++ {
		data[i] = flatBar(i, 106)
	}
	mock := &mockStrategy{script: buyAt(52)}

	perf, err := NewEngine(cfg).Run(mock, data)
	require.NoError(t, err)
	require.Len(t, perf.Trades, 1)

	trade := perf.Trades[0]
	assert.Equal(t, "take profit", trade.Reason)
	assert.Equal(t, data[54].Timestamp, trade.ExitTime)
	assert.Greater(t, trade.PnL, 0.0)
	assert.Equal(t, 1, perf.WinningTrades)
}

func TestRun_ForceCloseAtFinalClose(t *testing.T) {
	cfg := zeroCostConfig()
	mock := &mockStrategy{script: buyAt(52)}
	data := generateRisingData(60)

	perf, err := NewEngine(cfg).Run(mock, data)
	require.NoError(t, err)
	require.Len(t, perf.Trades, 1)

	trade := perf.Trades[0]
	assert.Equal(t, "end of data", trade.Reason)
	assert.Equal(t, data[59].Timestamp, trade.ExitTime)
	assert.InDelta(t, data[59].Close, trade.ExitPrice, 1e-9)
	assert.InDelta(t, perf.FinalCapital, perf.EquityCurve[len(perf.EquityCurve)-1].Equity, 1e-9)
}

func TestRun_SignalErrorsAreHeld(t *testing.T) {
	mock := &mockStrategy{signalErr: errors.New("indicator blew up")}

	perf, err := NewEngine(DefaultConfig()).Run(mock, generateFlatData(80, 100))
	require.NoError(t, err)

	assert.Zero(t, perf.TotalTrades)
	assert.Equal(t, DefaultConfig().InitialCapital, perf.FinalCapital)
}

func TestRun_NonFiniteSignalIsHeld(t *testing.T) {
	mock := &mockStrategy{script: func(barIndex int, current types.OHLCV) *strategy.Signal {
		return &strategy.Signal{Action: strategy.ActionBuy, Strength: math.NaN(), Confidence: 0.9, Timestamp: current.Timestamp}
	}}

	perf, err := NewEngine(DefaultConfig()).Run(mock, generateFlatData(80, 100))
	require.NoError(t, err)

	assert.Zero(t, perf.TotalTrades)
}

func TestRun_InitializeErrorPropagates(t *testing.T) {
	mock := &mockStrategy{initErr: errors.New("needs more bars")}

	_, err := NewEngine(DefaultConfig()).Run(mock, generateFlatData(80, 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs more bars")
}

func TestRun_NilStrategyRejected(t *testing.T) {
	_, err := NewEngine(DefaultConfig()).Run(nil, generateFlatData(80, 100))
	assert.Error(t, err)
}

func TestRun_RisingMarketMomentum(t *testing.T) {
	cfg := zeroCostConfig()
	cfg.MaxPositionSize = 1.0

	momentum, err := strategy.New("momentum", nil)
	require.NoError(t, err)

	perf, err := NewEngine(cfg).Run(momentum, generateRisingData(200))
	require.NoError(t, err)

	assert.Greater(t, perf.TotalTrades, 0)
	assert.Greater(t, perf.TotalReturn, 0.0)
	assert.Zero(t, perf.MaxDrawdown, "frictionless long in a monotone rise never draws down")
	assert.Greater(t, perf.SharpeRatio, 0.0)
	assert.Equal(t, 1.0, perf.WinRate)
	// With no losing trades there is no loss denominator.
	assert.Zero(t, perf.ProfitFactor)
	assert.Zero(t, perf.SortinoRatio)
	assert.Zero(t, perf.CalmarRatio)
}

func TestRun_DrawdownPositiveAfterDip(t *testing.T) {
	cfg := zeroCostConfig()
	data := generateFlatData(70, 100)
	for i := 55; i < 60; i++ {
		data[i] = flatBar(i, 90)
	}
	mock := &mockStrategy{script: buyAt(52)}

	perf, err := NewEngine(cfg).Run(mock, data)
	require.NoError(t, err)

	assert.Greater(t, perf.MaxDrawdown, 0.0)
	assert.LessOrEqual(t, perf.MaxDrawdown, 1.0)
}
