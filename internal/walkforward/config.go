// Package walkforward re-fits strategy parameters on trailing in-sample
// windows and scores them on the following unseen bars, window after window,
// to expose overfitting before anyone trusts a backtest.
package walkforward

import (
	"fmt"
	"math"

	"github.com/quantloop/stratlab/internal/backtest"
)

// Minimum viable window sizes. Shorter windows are skipped rather than
// evaluated on noise.
const (
	MinInSampleBars    = 50
	MinOutOfSampleBars = 20
)

// Metric selects what the in-sample grid search maximizes.
type Metric string

const (
	MetricTotalReturn Metric = "total_return"
	MetricSharpe      Metric = "sharpe_ratio"
	MetricWinRate     Metric = "win_rate"
	MetricMaxDrawdown Metric = "max_drawdown" // minimized: candidates score by negated drawdown
)

// score converts a performance report into the value grid search maximizes.
func (m Metric) score(perf *backtest.Performance) float64 {
	switch m {
	case MetricTotalReturn:
		return perf.TotalReturn
	case MetricSharpe:
		return perf.SharpeRatio
	case MetricWinRate:
		return perf.WinRate
	case MetricMaxDrawdown:
		return -perf.MaxDrawdown
	default:
		return math.NaN()
	}
}

func (m Metric) known() bool {
	switch m {
	case MetricTotalReturn, MetricSharpe, MetricWinRate, MetricMaxDrawdown:
		return true
	}
	return false
}

// Thresholds gate out-of-sample validity. A window is valid only when every
// threshold passes at once.
type Thresholds struct {
	MinSharpe   float64 `json:"min_sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
	MinReturn   float64 `json:"min_return"`
	MinWinRate  float64 `json:"min_win_rate"`
}

// DefaultThresholds returns the gate used when a CLI does not override it.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSharpe:   0.5,
		MaxDrawdown: 0.25,
		MinReturn:   0.0,
		MinWinRate:  0.4,
	}
}

// pass reports whether an out-of-sample run clears every threshold.
func (t Thresholds) pass(out *backtest.Performance) bool {
	return out.SharpeRatio >= t.MinSharpe &&
		out.MaxDrawdown <= t.MaxDrawdown &&
		out.TotalReturn >= t.MinReturn &&
		out.WinRate >= t.MinWinRate
}

// robustness averages four sub-scores, each the out-of-sample metric scaled
// against its threshold and clamped to [0, 1].
func (t Thresholds) robustness(out *backtest.Performance) float64 {
	scores := [4]float64{
		clamp01(out.SharpeRatio / t.MinSharpe),
		clamp01((t.MaxDrawdown - out.MaxDrawdown) / t.MaxDrawdown),
		clamp01(out.TotalReturn / t.MinReturn),
		clamp01(out.WinRate / t.MinWinRate),
	}
	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

// Config drives one walk-forward evaluation.
type Config struct {
	InSampleBars    int        `json:"in_sample_bars"`
	OutOfSampleBars int        `json:"out_of_sample_bars"`
	Stride          int        `json:"stride"`
	Metric          Metric     `json:"metric"`
	Thresholds      Thresholds `json:"thresholds"`
}

// DefaultConfig returns a daily-bar evaluation: fit on 200 bars, test on the
// next 60, no gap between windows.
func DefaultConfig() Config {
	return Config{
		InSampleBars:    200,
		OutOfSampleBars: 60,
		Stride:          0,
		Metric:          MetricSharpe,
		Thresholds:      DefaultThresholds(),
	}
}

// Validate checks the settings and returns the first violation. Windows that
// are positive but below the viable minimums are not an error here; they
// simply produce no windows.
func (c Config) Validate() error {
	if c.InSampleBars <= 0 {
		return &backtest.ConfigError{Field: "in_sample_bars", Reason: fmt.Sprintf("must be positive, got: %v", c.InSampleBars)}
	}
	if c.OutOfSampleBars <= 0 {
		return &backtest.ConfigError{Field: "out_of_sample_bars", Reason: fmt.Sprintf("must be positive, got: %v", c.OutOfSampleBars)}
	}
	if c.Stride < 0 {
		return &backtest.ConfigError{Field: "stride", Reason: fmt.Sprintf("must be non-negative, got: %v", c.Stride)}
	}
	if !c.Metric.known() {
		return &backtest.ConfigError{Field: "metric", Reason: fmt.Sprintf("must be one of total_return, sharpe_ratio, win_rate, max_drawdown, got: %q", c.Metric)}
	}
	t := c.Thresholds
	if badThreshold(t.MinSharpe) || badThreshold(t.MinReturn) {
		return &backtest.ConfigError{Field: "thresholds", Reason: "min_sharpe and min_return must be finite"}
	}
	if badThreshold(t.MaxDrawdown) || t.MaxDrawdown <= 0 || t.MaxDrawdown > 1 {
		return &backtest.ConfigError{Field: "thresholds", Reason: fmt.Sprintf("max_drawdown must be in (0, 1], got: %v", t.MaxDrawdown)}
	}
	if badThreshold(t.MinWinRate) || t.MinWinRate < 0 || t.MinWinRate > 1 {
		return &backtest.ConfigError{Field: "thresholds", Reason: fmt.Sprintf("min_win_rate must be in [0, 1], got: %v", t.MinWinRate)}
	}
	return nil
}

func badThreshold(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
