package walkforward

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/types"
)

var wfStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func risingBars(n int) []types.OHLCV {
	data := make([]types.OHLCV, n)
	for i := range data {
		close := 100.0 + float64(i)
		data[i] = types.OHLCV{
			Timestamp: wfStart.Add(time.Duration(i) * time.Hour),
			Open:      close - 0.25,
			High:      close + 0.5,
			Low:       close - 0.5,
			Close:     close,
			Volume:    1000,
		}
	}
	return data
}

// dippedBars rises one point per bar except for a three-bar crash to 80.
func dippedBars(n int) []types.OHLCV {
	data := risingBars(n)
	for i := 55; i <= 57 && i < n; i++ {
		data[i].Open = 80.25
		data[i].High = 80.5
		data[i].Low = 79.5
		data[i].Close = 80
	}
	return data
}

// scriptedStrategy drives the engine from a call-indexed script. Each
// candidate gets its own instance, so the call counter needs no locking.
type scriptedStrategy struct {
	name    string
	params  strategy.Parameters
	initErr error
	calls   int
	script  func(call int, current types.OHLCV) *strategy.Signal
}

var _ strategy.Strategy = (*scriptedStrategy)(nil)

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Initialize(data []types.OHLCV) error { return s.initErr }

func (s *scriptedStrategy) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	return map[string][]float64{}, nil
}

func (s *scriptedStrategy) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*strategy.Signal, error) {
	call := s.calls
	s.calls++
	if s.script == nil {
		return strategy.Hold("scripted hold", current.Timestamp), nil
	}
	if sig := s.script(call, current); sig != nil {
		return sig, nil
	}
	return strategy.Hold("scripted hold", current.Timestamp), nil
}

func (s *scriptedStrategy) Parameters() strategy.Parameters { return s.params.Clone() }

func (s *scriptedStrategy) SetParameters(params strategy.Parameters) error {
	s.params = params.Clone()
	return nil
}

// tradeCycle buys on call 0, sells on call 3, and repeats every six calls.
func tradeCycle(call int, current types.OHLCV) *strategy.Signal {
	switch call % 6 {
	case 0:
		return &strategy.Signal{Action: strategy.ActionBuy, Strength: 0.9, Confidence: 0.9, Timestamp: current.Timestamp}
	case 3:
		return &strategy.Signal{Action: strategy.ActionSell, Strength: 0.9, Confidence: 0.9, Timestamp: current.Timestamp}
	}
	return nil
}

type fakeFamily struct {
	name     string
	defaults strategy.Parameters
	grid     []strategy.Parameters
	build    func(params strategy.Parameters) (strategy.Strategy, error)
}

var _ strategy.Family = fakeFamily{}

func (f fakeFamily) Name() string { return f.name }

func (f fakeFamily) New(params strategy.Parameters) (strategy.Strategy, error) {
	return f.build(params)
}

func (f fakeFamily) Defaults() strategy.Parameters { return f.defaults.Clone() }

func (f fakeFamily) Grid() []strategy.Parameters { return f.grid }

// biasFamily trades its cycle when bias is set and sits flat otherwise.
func biasFamily() fakeFamily {
	return fakeFamily{
		name:     "bias",
		defaults: strategy.Parameters{"bias": 0},
		grid:     []strategy.Parameters{{"bias": 0}, {"bias": 1}},
		build: func(params strategy.Parameters) (strategy.Strategy, error) {
			s := &scriptedStrategy{name: "bias", params: params}
			if params["bias"] > 0 {
				s.script = tradeCycle
			}
			return s, nil
		},
	}
}

func canonicalConfig() Config {
	cfg := DefaultConfig()
	cfg.InSampleBars = 50
	cfg.OutOfSampleBars = 20
	cfg.Stride = 0
	return cfg
}

func hasNote(recs []string, substr string) bool {
	for _, r := range recs {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestCarveWindows_CanonicalLayout(t *testing.T) {
	data := risingBars(150)
	windows := carveWindows(data, canonicalConfig())

	require.Len(t, windows, 5)
	for i, win := range windows {
		assert.Equal(t, i, win.Index)
		require.Len(t, win.InSample, 50)
		require.Len(t, win.OutOfSample, 20)

		start := i * 20
		assert.Equal(t, data[start].Timestamp, win.InSample[0].Timestamp)
		assert.Equal(t, data[start+50].Timestamp, win.OutOfSample[0].Timestamp)
	}
	// The last window must end exactly at the series end.
	last := windows[4]
	assert.Equal(t, data[149].Timestamp, last.OutOfSample[19].Timestamp)
}

func TestCarveWindows_StrideLeavesGaps(t *testing.T) {
	cfg := canonicalConfig()
	cfg.Stride = 10

	windows := carveWindows(risingBars(150), cfg)

	require.Len(t, windows, 3)
	for i, win := range windows {
		assert.Equal(t, wfStart.Add(time.Duration(i*30)*time.Hour), win.InSample[0].Timestamp)
	}
}

func TestCarveWindows_BelowMinimumsYieldsNone(t *testing.T) {
	data := risingBars(500)

	cfg := canonicalConfig()
	cfg.InSampleBars = MinInSampleBars - 1
	assert.Nil(t, carveWindows(data, cfg))

	cfg = canonicalConfig()
	cfg.OutOfSampleBars = MinOutOfSampleBars - 1
	assert.Nil(t, carveWindows(data, cfg))

	assert.Nil(t, carveWindows(risingBars(69), canonicalConfig()))
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"zero in-sample", func(c *Config) { c.InSampleBars = 0 }, "in_sample_bars"},
		{"negative out-of-sample", func(c *Config) { c.OutOfSampleBars = -5 }, "out_of_sample_bars"},
		{"negative stride", func(c *Config) { c.Stride = -1 }, "stride"},
		{"unknown metric", func(c *Config) { c.Metric = Metric("velocity") }, "metric"},
		{"nan sharpe floor", func(c *Config) { c.Thresholds.MinSharpe = math.NaN() }, "thresholds"},
		{"zero drawdown cap", func(c *Config) { c.Thresholds.MaxDrawdown = 0 }, "thresholds"},
		{"drawdown cap above one", func(c *Config) { c.Thresholds.MaxDrawdown = 1.5 }, "thresholds"},
		{"win rate above one", func(c *Config) { c.Thresholds.MinWinRate = 1.2 }, "thresholds"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *backtest.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestMetricScore(t *testing.T) {
	perf := &backtest.Performance{
		TotalReturn: 0.3,
		SharpeRatio: 1.2,
		WinRate:     0.6,
		MaxDrawdown: 0.2,
	}

	assert.Equal(t, 0.3, MetricTotalReturn.score(perf))
	assert.Equal(t, 1.2, MetricSharpe.score(perf))
	assert.Equal(t, 0.6, MetricWinRate.score(perf))
	assert.Equal(t, -0.2, MetricMaxDrawdown.score(perf))
	assert.True(t, math.IsNaN(Metric("velocity").score(perf)))
}

func TestThresholds_PassAndRobustness(t *testing.T) {
	th := DefaultThresholds()

	good := &backtest.Performance{SharpeRatio: 1.0, MaxDrawdown: 0.05, TotalReturn: 0.10, WinRate: 0.6}
	assert.True(t, th.pass(good))
	// Sub-scores: sharpe 1/0.5 clamps to 1, drawdown (0.25-0.05)/0.25 = 0.8,
	// return over a zero floor clamps to 1, win rate 0.6/0.4 clamps to 1.
	assert.InDelta(t, (1.0+0.8+1.0+1.0)/4, th.robustness(good), 1e-12)

	soft := &backtest.Performance{SharpeRatio: 0.4, MaxDrawdown: 0.05, TotalReturn: 0.10, WinRate: 0.6}
	assert.False(t, th.pass(soft), "one failing threshold fails the window")

	deep := &backtest.Performance{SharpeRatio: 1.0, MaxDrawdown: 0.30, TotalReturn: 0.10, WinRate: 0.6}
	assert.False(t, th.pass(deep))

	empty := &backtest.Performance{}
	assert.False(t, th.pass(empty))
	assert.InDelta(t, 0.25, th.robustness(empty), 1e-12, "only the drawdown sub-score survives an empty report")
}

func TestDegradation(t *testing.T) {
	assert.InDelta(t, 0.5, degradation(1.0, 0.5), 1e-12)
	assert.InDelta(t, -0.5, degradation(1.0, 1.5), 1e-12)
	assert.InDelta(t, -0.5, degradation(-1.0, -0.5), 1e-12, "sign comes from the spread, not the in-sample sign")
	assert.InDelta(t, 2.0, degradation(0.5, -0.5), 1e-12)

	assert.Equal(t, -1.0, degradation(0, 0.5), "flat fit that improves out of sample")
	assert.True(t, math.IsInf(degradation(0, 0), 1))
	assert.True(t, math.IsInf(degradation(0, -0.3), 1))

	for _, in := range []float64{-2, -0.5, 0, 0.5, 2} {
		for _, out := range []float64{-2, -0.5, 0, 0.5, 2} {
			assert.False(t, math.IsNaN(degradation(in, out)), "degradation(%v, %v)", in, out)
		}
	}
}

func TestEvaluate_DegenerateWindowsNeverNaN(t *testing.T) {
	// Windows at the viable minimums are shorter than the engine warm-up, so
	// every run yields an empty report and every candidate scores zero.
	family := fakeFamily{
		name:     "flat",
		defaults: strategy.Parameters{"id": 0},
		grid:     []strategy.Parameters{{"id": 0}, {"id": 1}},
		build: func(params strategy.Parameters) (strategy.Strategy, error) {
			return &scriptedStrategy{name: "flat", params: params}, nil
		},
	}

	v := NewValidator(canonicalConfig(), backtest.DefaultConfig())
	result, err := v.Evaluate(family, risingBars(150))
	require.NoError(t, err)

	require.Len(t, result.Windows, 5)
	for _, wr := range result.Windows {
		assert.True(t, math.IsInf(wr.Degradation, 1), "window %d", wr.Window)
		assert.False(t, wr.Valid)
		assert.Equal(t, 2, wr.Candidates)
		assert.Zero(t, wr.Failures)
		// Ties keep the earliest lattice entry.
		assert.Equal(t, 0.0, wr.Params["id"], "window %d", wr.Window)
	}

	assert.Zero(t, result.ValidWindows)
	assert.Zero(t, result.AvgInSampleSharpe)
	assert.Zero(t, result.AvgOutOfSampleSharpe)
	assert.Zero(t, result.AvgDegradation)
	assert.Zero(t, result.AvgRobustness)
	require.Len(t, result.Recommendations, 1)
	assert.True(t, hasNote(result.Recommendations, "no window cleared"))

	// Infinite degradation must survive serialization as a string.
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"degradation":"+inf"`)
}

func TestEvaluate_SelectsProfitableCandidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InSampleBars = 60
	cfg.OutOfSampleBars = 60

	v := NewValidator(cfg, backtest.DefaultConfig())
	result, err := v.Evaluate(biasFamily(), risingBars(240))
	require.NoError(t, err)

	require.Len(t, result.Windows, 3)
	for _, wr := range result.Windows {
		assert.Equal(t, 1.0, wr.Params["bias"], "window %d picked the flat candidate", wr.Window)
		assert.Greater(t, wr.InSample.SharpeRatio, 0.5)
		assert.Greater(t, wr.OutOfSample.SharpeRatio, 0.5)
		assert.False(t, math.IsInf(wr.Degradation, 0))
		assert.False(t, math.IsNaN(wr.Degradation))
		assert.True(t, wr.Valid)
	}

	assert.Equal(t, 3, result.ValidWindows)
	assert.Greater(t, result.AvgInSampleSharpe, 0.5)
	assert.Greater(t, result.AvgOutOfSampleSharpe, 0.5)
	assert.Greater(t, result.AvgOutOfSampleReturn, 0.0)
	assert.Greater(t, result.AvgRobustness, 0.9)
	assert.Less(t, result.AvgOutOfSampleDrawdown, 0.05)
}

func TestEvaluate_MetricDrivesSelection(t *testing.T) {
	// "wild" rides through a three-bar crash for a net gain; "calm" never
	// trades. The return metric should pick wild, the drawdown metric calm.
	family := fakeFamily{
		name:     "mixed",
		defaults: strategy.Parameters{"wild": 1},
		grid:     []strategy.Parameters{{"wild": 1}, {"wild": 0}},
		build: func(params strategy.Parameters) (strategy.Strategy, error) {
			s := &scriptedStrategy{name: "mixed", params: params}
			if params["wild"] > 0 {
				s.script = func(call int, current types.OHLCV) *strategy.Signal {
					switch call {
					case 2:
						return &strategy.Signal{Action: strategy.ActionBuy, Strength: 0.9, Confidence: 0.9, Timestamp: current.Timestamp}
					case 8:
						return &strategy.Signal{Action: strategy.ActionSell, Strength: 0.9, Confidence: 0.9, Timestamp: current.Timestamp}
					}
					return nil
				}
			}
			return s, nil
		},
	}
	data := dippedBars(120)

	cfg := DefaultConfig()
	cfg.InSampleBars = 60
	cfg.OutOfSampleBars = 60
	cfg.Metric = MetricTotalReturn

	result, err := NewValidator(cfg, backtest.DefaultConfig()).Evaluate(family, data)
	require.NoError(t, err)
	require.Len(t, result.Windows, 1)
	assert.Equal(t, 1.0, result.Windows[0].Params["wild"])
	assert.Greater(t, result.Windows[0].InSample.MaxDrawdown, 0.2)

	cfg.Metric = MetricMaxDrawdown
	result, err = NewValidator(cfg, backtest.DefaultConfig()).Evaluate(family, data)
	require.NoError(t, err)
	require.Len(t, result.Windows, 1)
	assert.Equal(t, 0.0, result.Windows[0].Params["wild"])
	assert.Zero(t, result.Windows[0].InSample.MaxDrawdown)
}

func TestEvaluate_ToleratesFailingCandidates(t *testing.T) {
	family := fakeFamily{
		name:     "flaky",
		defaults: strategy.Parameters{"mode": 3},
		grid: []strategy.Parameters{
			{"mode": 0}, // constructor error
			{"mode": 1}, // constructor panic
			{"mode": 2}, // initialize error
			{"mode": 3}, // works, never trades
		},
		build: func(params strategy.Parameters) (strategy.Strategy, error) {
			switch params["mode"] {
			case 0:
				return nil, errors.New("bad parameters")
			case 1:
				panic("constructor blew up")
			case 2:
				return &scriptedStrategy{name: "flaky", params: params, initErr: errors.New("needs more data")}, nil
			}
			return &scriptedStrategy{name: "flaky", params: params}, nil
		},
	}

	cfg := DefaultConfig()
	cfg.InSampleBars = 60
	cfg.OutOfSampleBars = 60

	result, err := NewValidator(cfg, backtest.DefaultConfig()).Evaluate(family, risingBars(120))
	require.NoError(t, err)

	require.Len(t, result.Windows, 1)
	wr := result.Windows[0]
	assert.Equal(t, 4, wr.Candidates)
	assert.Equal(t, 3, wr.Failures)
	assert.Equal(t, 3.0, wr.Params["mode"], "the only surviving candidate wins")
}

func TestEvaluate_AllFailuresFallBackToDefaults(t *testing.T) {
	family := fakeFamily{
		name:     "doomed",
		defaults: strategy.Parameters{"fallback": 1},
		grid:     []strategy.Parameters{{"fallback": 0}, {"fallback": 0.5}},
		build: func(params strategy.Parameters) (strategy.Strategy, error) {
			return nil, errors.New("always broken")
		},
	}

	cfg := DefaultConfig()
	cfg.InSampleBars = 60
	cfg.OutOfSampleBars = 60

	result, err := NewValidator(cfg, backtest.DefaultConfig()).Evaluate(family, risingBars(120))
	require.NoError(t, err)

	require.Len(t, result.Windows, 1)
	wr := result.Windows[0]
	assert.Equal(t, 2, wr.Failures)
	assert.Equal(t, 1.0, wr.Params["fallback"], "defaults stand in when the whole lattice fails")
	require.NotNil(t, wr.InSample)
	require.NotNil(t, wr.OutOfSample)
	assert.Zero(t, wr.InSample.SharpeRatio)
	assert.False(t, wr.Valid)
	assert.Zero(t, result.ValidWindows)
}

func TestEvaluate_InputValidation(t *testing.T) {
	data := risingBars(150)

	_, err := NewValidator(canonicalConfig(), backtest.DefaultConfig()).Evaluate(nil, data)
	assert.ErrorContains(t, err, "strategy family")

	badWF := canonicalConfig()
	badWF.InSampleBars = 0
	_, err = NewValidator(badWF, backtest.DefaultConfig()).Evaluate(biasFamily(), data)
	var cfgErr *backtest.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "in_sample_bars", cfgErr.Field)

	badEng := backtest.DefaultConfig()
	badEng.InitialCapital = 0
	_, err = NewValidator(canonicalConfig(), badEng).Evaluate(biasFamily(), data)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "initial_capital", cfgErr.Field)
}

func TestEvaluate_ShortSeriesYieldsNoWindows(t *testing.T) {
	v := NewValidator(DefaultConfig(), backtest.DefaultConfig())

	result, err := v.Evaluate(biasFamily(), risingBars(100))
	require.NoError(t, err)

	assert.Equal(t, "bias", result.Strategy)
	assert.Empty(t, result.Windows)
	assert.Zero(t, result.ValidWindows)
	require.Len(t, result.Recommendations, 1)
	assert.True(t, hasNote(result.Recommendations, "series too short"))
}

func TestEvaluate_ReportsProgress(t *testing.T) {
	type tick struct{ done, total int }
	var ticks []tick

	v := NewValidator(canonicalConfig(), backtest.DefaultConfig())
	v.OnProgress(func(done, total int) { ticks = append(ticks, tick{done, total}) })

	_, err := v.Evaluate(biasFamily(), risingBars(150))
	require.NoError(t, err)

	require.Len(t, ticks, 6)
	assert.Equal(t, tick{0, 5}, ticks[0])
	assert.Equal(t, tick{5, 5}, ticks[5])
	for i := 1; i < len(ticks); i++ {
		assert.Equal(t, ticks[i-1].done+1, ticks[i].done)
	}
}

func TestWindowResult_JSONRendersInfinity(t *testing.T) {
	decode := func(wr WindowResult) map[string]any {
		raw, err := json.Marshal(wr)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	}

	m := decode(WindowResult{Window: 2, Degradation: math.Inf(1)})
	assert.Equal(t, "+inf", m["degradation"])
	assert.Equal(t, float64(2), m["window"])

	m = decode(WindowResult{Degradation: math.Inf(-1)})
	assert.Equal(t, "-inf", m["degradation"])

	m = decode(WindowResult{Degradation: 0.5})
	assert.Equal(t, 0.5, m["degradation"])
}

func TestRecommend_AdvisoryNotes(t *testing.T) {
	v := NewValidator(DefaultConfig(), backtest.DefaultConfig())
	fiveWindows := make([]WindowResult, 5)

	none := &Result{Windows: fiveWindows}
	recs := v.recommend(none)
	require.Len(t, recs, 1)
	assert.True(t, hasNote(recs, "do not trade"))

	overfit := &Result{Windows: fiveWindows, ValidWindows: 2, AvgDegradation: 0.6}
	recs = v.recommend(overfit)
	assert.True(t, hasNote(recs, "only 2 of 5"))
	assert.True(t, hasNote(recs, "overfit"))

	solid := &Result{Windows: fiveWindows, ValidWindows: 5, AvgDegradation: 0.05, AvgRobustness: 0.8, AvgOutOfSampleDrawdown: 0.05}
	recs = v.recommend(solid)
	assert.True(t, hasNote(recs, "holds up out of sample"))
	assert.True(t, hasNote(recs, "robustness scores are high"))
	assert.False(t, hasNote(recs, "overfit"))

	nearLimit := &Result{Windows: fiveWindows, ValidWindows: 5, AvgDegradation: 0.3, AvgOutOfSampleDrawdown: 0.21}
	recs = v.recommend(nearLimit)
	assert.True(t, hasNote(recs, "moderate performance degradation"))
	assert.True(t, hasNote(recs, "close to the configured limit"))
}

func TestEvaluate_WindowMathStaysFinite(t *testing.T) {
	cfg := canonicalConfig()
	cfg.Metric = MetricWinRate

	result, err := NewValidator(cfg, backtest.DefaultConfig()).Evaluate(biasFamily(), risingBars(150))
	require.NoError(t, err)

	for _, wr := range result.Windows {
		assert.False(t, math.IsNaN(wr.Degradation), "window %d", wr.Window)
		assert.False(t, math.IsNaN(wr.Robustness))
		assert.GreaterOrEqual(t, wr.Robustness, 0.0)
		assert.LessOrEqual(t, wr.Robustness, 1.0)
	}
	for _, v := range []float64{result.AvgDegradation, result.AvgRobustness, result.AvgInSampleSharpe} {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}
