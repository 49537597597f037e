package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/pkg/types"
)

// StatArb trades the z-score of price against its own rolling mean: deep
// negative readings buy the dislocation, readings past the exit level on the
// other side sell it.
type StatArb struct {
	lookback int
	entryZ   float64
	exitZ    float64
}

// NewStatArb builds a statistical-arbitrage strategy from params on top of
// the defaults.
func NewStatArb(params Parameters) (*StatArb, error) {
	s := &StatArb{
		lookback: 30,
		entryZ:   2.0,
		exitZ:    0.5,
	}
	if err := s.SetParameters(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StatArb) Name() string { return "statarb" }

func (s *StatArb) Initialize(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("empty price series")
	}
	return nil
}

func (s *StatArb) Parameters() Parameters {
	return Parameters{
		"lookback": float64(s.lookback),
		"entryZ":   s.entryZ,
		"exitZ":    s.exitZ,
	}
}

func (s *StatArb) SetParameters(params Parameters) error {
	next := *s
	var err error
	if next.lookback, err = intParam(params, "lookback", next.lookback); err != nil {
		return err
	}
	if next.entryZ, err = floatParam(params, "entryZ", next.entryZ); err != nil {
		return err
	}
	if next.exitZ, err = floatParam(params, "exitZ", next.exitZ); err != nil {
		return err
	}
	if next.lookback < 2 {
		return fmt.Errorf("lookback must be at least 2, got: %d", next.lookback)
	}
	if next.entryZ <= next.exitZ {
		return fmt.Errorf("entryZ must be above exitZ, got: %v <= %v", next.entryZ, next.exitZ)
	}
	if next.exitZ < 0 {
		return fmt.Errorf("exitZ must be non-negative, got: %v", next.exitZ)
	}
	*s = next
	return nil
}

func (s *StatArb) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty price series")
	}
	closes := types.Closes(data)
	return map[string][]float64{
		"zscore": indicators.ZScoreSeries(closes, s.lookback),
	}, nil
}

func (s *StatArb) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error) {
	closes := types.Closes(history)
	z := indicators.ZScore(closes, s.lookback)
	if anyNaN(z) {
		return Hold("indicators warming up", current.Timestamp), nil
	}

	switch {
	case z <= -s.entryZ:
		return &Signal{
			Action:     ActionBuy,
			Strength:   clamp01(math.Abs(z) / s.entryZ * 0.6),
			Confidence: clamp01(math.Abs(z) / 3),
			Reason:     fmt.Sprintf("z-score %.2f below entry", z),
			Timestamp:  current.Timestamp,
		}, nil
	case z >= s.exitZ:
		return &Signal{
			Action:     ActionSell,
			Strength:   clamp01(z / s.entryZ * 0.6),
			Confidence: clamp01(z / 3),
			Reason:     fmt.Sprintf("z-score %.2f past exit", z),
			Timestamp:  current.Timestamp,
		}, nil
	}
	return Hold("inside z bounds", current.Timestamp), nil
}

// StatArbFamily exposes stat-arb construction and its optimization grid.
type StatArbFamily struct{}

func (StatArbFamily) Name() string { return "statarb" }

func (StatArbFamily) New(params Parameters) (Strategy, error) { return NewStatArb(params) }

func (StatArbFamily) Defaults() Parameters {
	return Parameters{"lookback": 30, "entryZ": 2.0, "exitZ": 0.5}
}

func (StatArbFamily) Grid() []Parameters {
	var grid []Parameters
	for _, lookback := range []float64{20, 30, 50} {
		for _, entry := range []float64{1.5, 2.0, 2.5} {
			grid = append(grid, Parameters{
				"lookback": lookback,
				"entryZ":   entry,
				"exitZ":    0.5,
			})
		}
	}
	return grid
}
