package strategy

import (
	"errors"
	"fmt"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/pkg/types"
)

// Breakout trades channel breaks: a close above the prior highest high with
// an expanding true range buys, a close below the prior lowest low sells.
type Breakout struct {
	channelPeriod int
	atrPeriod     int
	expansion     float64 // current true range vs ATR required to confirm
}

// NewBreakout builds a breakout strategy from params on top of the defaults.
func NewBreakout(params Parameters) (*Breakout, error) {
	b := &Breakout{
		channelPeriod: 20,
		atrPeriod:     14,
		expansion:     1.0,
	}
	if err := b.SetParameters(params); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Breakout) Name() string { return "breakout" }

func (b *Breakout) Initialize(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("empty price series")
	}
	return nil
}

func (b *Breakout) Parameters() Parameters {
	return Parameters{
		"channelPeriod": float64(b.channelPeriod),
		"atrPeriod":     float64(b.atrPeriod),
		"expansion":     b.expansion,
	}
}

func (b *Breakout) SetParameters(params Parameters) error {
	next := *b
	var err error
	if next.channelPeriod, err = intParam(params, "channelPeriod", next.channelPeriod); err != nil {
		return err
	}
	if next.atrPeriod, err = intParam(params, "atrPeriod", next.atrPeriod); err != nil {
		return err
	}
	if next.expansion, err = floatParam(params, "expansion", next.expansion); err != nil {
		return err
	}
	if next.expansion < 0 {
		return fmt.Errorf("expansion must be non-negative, got: %v", next.expansion)
	}
	*b = next
	return nil
}

func (b *Breakout) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty price series")
	}
	return map[string][]float64{
		"channel_high": indicators.HighestHighSeries(data, b.channelPeriod),
		"channel_low":  indicators.LowestLowSeries(data, b.channelPeriod),
		"atr":          indicators.ATRSeries(data, b.atrPeriod),
	}, nil
}

func (b *Breakout) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error) {
	if len(history) < 2 {
		return Hold("indicators warming up", current.Timestamp), nil
	}
	// The channel is built from bars before the current one so the break is
	// measured against levels that existed when the bar opened.
	prior := history[:len(history)-1]
	channelHigh := indicators.HighestHigh(prior, b.channelPeriod)
	channelLow := indicators.LowestLow(prior, b.channelPeriod)
	atr := indicators.ATR(prior, b.atrPeriod)
	if anyNaN(channelHigh, channelLow, atr) || atr == 0 {
		return Hold("indicators warming up", current.Timestamp), nil
	}

	currentRange := current.High - current.Low
	expanding := currentRange >= b.expansion*atr
	switch {
	case current.Close > channelHigh && expanding:
		margin := (current.Close - channelHigh) / atr
		return &Signal{
			Action:     ActionBuy,
			Strength:   clamp01(0.4 + margin/2),
			Confidence: clamp01(0.4 + currentRange/atr/4),
			Reason:     fmt.Sprintf("close above %d-bar high", b.channelPeriod),
			Timestamp:  current.Timestamp,
		}, nil
	case current.Close < channelLow && expanding:
		margin := (channelLow - current.Close) / atr
		return &Signal{
			Action:     ActionSell,
			Strength:   clamp01(0.4 + margin/2),
			Confidence: clamp01(0.4 + currentRange/atr/4),
			Reason:     fmt.Sprintf("close below %d-bar low", b.channelPeriod),
			Timestamp:  current.Timestamp,
		}, nil
	}
	return Hold("inside channel", current.Timestamp), nil
}

// BreakoutFamily exposes breakout construction and its optimization grid.
type BreakoutFamily struct{}

func (BreakoutFamily) Name() string { return "breakout" }

func (BreakoutFamily) New(params Parameters) (Strategy, error) { return NewBreakout(params) }

func (BreakoutFamily) Defaults() Parameters {
	return Parameters{"channelPeriod": 20, "atrPeriod": 14, "expansion": 1.0}
}

func (BreakoutFamily) Grid() []Parameters {
	var grid []Parameters
	for _, channel := range []float64{10, 20, 40} {
		for _, expansion := range []float64{0.8, 1.0, 1.3} {
			grid = append(grid, Parameters{
				"channelPeriod": channel,
				"atrPeriod":     14,
				"expansion":     expansion,
			})
		}
	}
	return grid
}
