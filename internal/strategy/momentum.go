package strategy

import (
	"errors"
	"fmt"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/pkg/types"
)

// Momentum trades trend continuation: it buys when the fast average pulls
// away above the slow average while recent rate of change confirms, and
// sells on the mirrored breakdown.
type Momentum struct {
	fastPeriod int
	slowPeriod int
	rocPeriod  int
	threshold  float64 // minimum fast/slow separation as a fraction
}

// NewMomentum builds a momentum strategy from params on top of the
// defaults.
func NewMomentum(params Parameters) (*Momentum, error) {
	m := &Momentum{
		fastPeriod: 10,
		slowPeriod: 30,
		rocPeriod:  10,
		threshold:  0.001,
	}
	if err := m.SetParameters(params); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Initialize(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("empty price series")
	}
	return nil
}

func (m *Momentum) Parameters() Parameters {
	return Parameters{
		"fastPeriod": float64(m.fastPeriod),
		"slowPeriod": float64(m.slowPeriod),
		"rocPeriod":  float64(m.rocPeriod),
		"threshold":  m.threshold,
	}
}

func (m *Momentum) SetParameters(params Parameters) error {
	next := *m
	var err error
	if next.fastPeriod, err = intParam(params, "fastPeriod", next.fastPeriod); err != nil {
		return err
	}
	if next.slowPeriod, err = intParam(params, "slowPeriod", next.slowPeriod); err != nil {
		return err
	}
	if next.rocPeriod, err = intParam(params, "rocPeriod", next.rocPeriod); err != nil {
		return err
	}
	if next.threshold, err = floatParam(params, "threshold", next.threshold); err != nil {
		return err
	}
	if next.fastPeriod >= next.slowPeriod {
		return fmt.Errorf("fastPeriod must be below slowPeriod, got: %d >= %d", next.fastPeriod, next.slowPeriod)
	}
	if next.threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got: %v", next.threshold)
	}
	*m = next
	return nil
}

func (m *Momentum) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty price series")
	}
	closes := types.Closes(data)
	return map[string][]float64{
		"sma_fast": indicators.SMASeries(closes, m.fastPeriod),
		"sma_slow": indicators.SMASeries(closes, m.slowPeriod),
		"roc":      indicators.ROCSeries(closes, m.rocPeriod),
	}, nil
}

func (m *Momentum) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error) {
	closes := types.Closes(history)
	fast := indicators.SMA(closes, m.fastPeriod)
	slow := indicators.SMA(closes, m.slowPeriod)
	roc := indicators.ROC(closes, m.rocPeriod)
	if anyNaN(fast, slow, roc) || slow == 0 {
		return Hold("indicators warming up", current.Timestamp), nil
	}

	separation := (fast - slow) / slow
	switch {
	case separation > m.threshold && roc > 0:
		return &Signal{
			Action:     ActionBuy,
			Strength:   clamp01(separation * 20),
			Confidence: clamp01(0.5 + roc*10),
			Reason:     fmt.Sprintf("fast above slow by %.2f%%", separation*100),
			Timestamp:  current.Timestamp,
		}, nil
	case separation < -m.threshold && roc < 0:
		return &Signal{
			Action:     ActionSell,
			Strength:   clamp01(-separation * 20),
			Confidence: clamp01(0.5 - roc*10),
			Reason:     fmt.Sprintf("fast below slow by %.2f%%", -separation*100),
			Timestamp:  current.Timestamp,
		}, nil
	}
	return Hold("no trend separation", current.Timestamp), nil
}

// MomentumFamily exposes momentum construction and its optimization grid.
type MomentumFamily struct{}

func (MomentumFamily) Name() string { return "momentum" }

func (MomentumFamily) New(params Parameters) (Strategy, error) { return NewMomentum(params) }

func (MomentumFamily) Defaults() Parameters { return Parameters{"fastPeriod": 10, "slowPeriod": 30, "rocPeriod": 10, "threshold": 0.001} }

func (MomentumFamily) Grid() []Parameters {
	var grid []Parameters
	for _, fast := range []float64{5, 10, 15} {
		for _, slow := range []float64{20, 30, 50} {
			if fast >= slow {
				continue
			}
			for _, threshold := range []float64{0.0005, 0.002} {
				grid = append(grid, Parameters{
					"fastPeriod": fast,
					"slowPeriod": slow,
					"rocPeriod":  10,
					"threshold":  threshold,
				})
			}
		}
	}
	return grid
}
