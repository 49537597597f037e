package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/pkg/types"
)

// MLAlpha blends trend, reversion and volume sub-scores into a single alpha
// in [-1, 1] with fixed weights, the way a trained model would combine
// features. The weights are the tunables.
type MLAlpha struct {
	trendWeight     float64
	reversionWeight float64
	volumeWeight    float64
	threshold       float64

	// feature windows, fixed like a frozen feature pipeline
	fastPeriod int
	slowPeriod int
	rsiPeriod  int
	volPeriod  int
}

// NewMLAlpha builds an ML-alpha strategy from params on top of the defaults.
func NewMLAlpha(params Parameters) (*MLAlpha, error) {
	m := &MLAlpha{
		trendWeight:     0.4,
		reversionWeight: 0.3,
		volumeWeight:    0.3,
		threshold:       0.25,
		fastPeriod:      10,
		slowPeriod:      30,
		rsiPeriod:       14,
		volPeriod:       20,
	}
	if err := m.SetParameters(params); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MLAlpha) Name() string { return "mlalpha" }

func (m *MLAlpha) Initialize(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("empty price series")
	}
	return nil
}

func (m *MLAlpha) Parameters() Parameters {
	return Parameters{
		"trendWeight":     m.trendWeight,
		"reversionWeight": m.reversionWeight,
		"volumeWeight":    m.volumeWeight,
		"threshold":       m.threshold,
	}
}

func (m *MLAlpha) SetParameters(params Parameters) error {
	next := *m
	var err error
	if next.trendWeight, err = floatParam(params, "trendWeight", next.trendWeight); err != nil {
		return err
	}
	if next.reversionWeight, err = floatParam(params, "reversionWeight", next.reversionWeight); err != nil {
		return err
	}
	if next.volumeWeight, err = floatParam(params, "volumeWeight", next.volumeWeight); err != nil {
		return err
	}
	if next.threshold, err = floatParam(params, "threshold", next.threshold); err != nil {
		return err
	}
	if next.trendWeight < 0 || next.reversionWeight < 0 || next.volumeWeight < 0 {
		return errors.New("feature weights must be non-negative")
	}
	if next.trendWeight+next.reversionWeight+next.volumeWeight == 0 {
		return errors.New("at least one feature weight must be positive")
	}
	if next.threshold <= 0 || next.threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got: %v", next.threshold)
	}
	*m = next
	return nil
}

func (m *MLAlpha) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty price series")
	}
	closes := types.Closes(data)
	alpha := make([]float64, len(data))
	for i := range alpha {
		alpha[i] = math.NaN()
		if a, ok := m.alphaAt(data[:i+1]); ok {
			alpha[i] = a
		}
	}
	return map[string][]float64{
		"sma_fast": indicators.SMASeries(closes, m.fastPeriod),
		"sma_slow": indicators.SMASeries(closes, m.slowPeriod),
		"rsi":      indicators.RSISeries(closes, m.rsiPeriod),
		"alpha":    alpha,
	}, nil
}

// alphaAt scores the last bar of history, reporting ok=false while features
// are warming up.
func (m *MLAlpha) alphaAt(history []types.OHLCV) (float64, bool) {
	closes := types.Closes(history)
	fast := indicators.SMA(closes, m.fastPeriod)
	slow := indicators.SMA(closes, m.slowPeriod)
	rsi := indicators.RSI(closes, m.rsiPeriod)
	volSMA := indicators.SMA(types.Volumes(history), m.volPeriod)
	if anyNaN(fast, slow, rsi, volSMA) || slow == 0 || volSMA == 0 {
		return 0, false
	}

	trendScore := math.Tanh((fast - slow) / slow * 40)
	reversionScore := (50 - rsi) / 50
	volumeScore := math.Tanh(history[len(history)-1].Volume/volSMA - 1)

	total := m.trendWeight + m.reversionWeight + m.volumeWeight
	alpha := (m.trendWeight*trendScore + m.reversionWeight*reversionScore + m.volumeWeight*volumeScore) / total
	return alpha, true
}

func (m *MLAlpha) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error) {
	alpha, ok := m.alphaAt(history)
	if !ok {
		return Hold("features warming up", current.Timestamp), nil
	}

	switch {
	case alpha > m.threshold:
		return &Signal{
			Action:     ActionBuy,
			Strength:   clamp01(math.Abs(alpha)),
			Confidence: clamp01(0.4 + math.Abs(alpha)/2),
			Reason:     fmt.Sprintf("alpha %.2f above threshold", alpha),
			Timestamp:  current.Timestamp,
		}, nil
	case alpha < -m.threshold:
		return &Signal{
			Action:     ActionSell,
			Strength:   clamp01(math.Abs(alpha)),
			Confidence: clamp01(0.4 + math.Abs(alpha)/2),
			Reason:     fmt.Sprintf("alpha %.2f below threshold", alpha),
			Timestamp:  current.Timestamp,
		}, nil
	}
	return Hold("alpha inside threshold", current.Timestamp), nil
}

// MLAlphaFamily exposes ML-alpha construction and its optimization grid.
type MLAlphaFamily struct{}

func (MLAlphaFamily) Name() string { return "mlalpha" }

func (MLAlphaFamily) New(params Parameters) (Strategy, error) { return NewMLAlpha(params) }

func (MLAlphaFamily) Defaults() Parameters {
	return Parameters{"trendWeight": 0.4, "reversionWeight": 0.3, "volumeWeight": 0.3, "threshold": 0.25}
}

func (MLAlphaFamily) Grid() []Parameters {
	var grid []Parameters
	for _, trend := range []float64{0.3, 0.5, 0.7} {
		for _, threshold := range []float64{0.15, 0.25, 0.35} {
			rest := (1 - trend) / 2
			grid = append(grid, Parameters{
				"trendWeight":     trend,
				"reversionWeight": rest,
				"volumeWeight":    rest,
				"threshold":       threshold,
			})
		}
	}
	return grid
}
