package strategy

import (
	"errors"
	"fmt"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/pkg/types"
)

// MarketMaking approximates a passive quoting book inside a backtest: in a
// ranging tape it buys when price drops through the lower quote band and
// sells when it pushes through the upper one. Trending tape (high ADX) is
// avoided entirely.
type MarketMaking struct {
	smaPeriod int
	atrPeriod int
	bandATR   float64 // half spread in ATR multiples
	adxPeriod int
	adxMax    float64
}

// NewMarketMaking builds a market-making strategy from params on top of the
// defaults.
func NewMarketMaking(params Parameters) (*MarketMaking, error) {
	m := &MarketMaking{
		smaPeriod: 20,
		atrPeriod: 14,
		bandATR:   1.0,
		adxPeriod: 14,
		adxMax:    25,
	}
	if err := m.SetParameters(params); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MarketMaking) Name() string { return "marketmaking" }

func (m *MarketMaking) Initialize(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("empty price series")
	}
	return nil
}

func (m *MarketMaking) Parameters() Parameters {
	return Parameters{
		"smaPeriod": float64(m.smaPeriod),
		"atrPeriod": float64(m.atrPeriod),
		"bandATR":   m.bandATR,
		"adxPeriod": float64(m.adxPeriod),
		"adxMax":    m.adxMax,
	}
}

func (m *MarketMaking) SetParameters(params Parameters) error {
	next := *m
	var err error
	if next.smaPeriod, err = intParam(params, "smaPeriod", next.smaPeriod); err != nil {
		return err
	}
	if next.atrPeriod, err = intParam(params, "atrPeriod", next.atrPeriod); err != nil {
		return err
	}
	if next.bandATR, err = floatParam(params, "bandATR", next.bandATR); err != nil {
		return err
	}
	if next.adxPeriod, err = intParam(params, "adxPeriod", next.adxPeriod); err != nil {
		return err
	}
	if next.adxMax, err = floatParam(params, "adxMax", next.adxMax); err != nil {
		return err
	}
	if next.bandATR <= 0 {
		return fmt.Errorf("bandATR must be positive, got: %v", next.bandATR)
	}
	if next.adxMax <= 0 || next.adxMax > 100 {
		return fmt.Errorf("adxMax must be in (0, 100], got: %v", next.adxMax)
	}
	*m = next
	return nil
}

func (m *MarketMaking) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty price series")
	}
	closes := types.Closes(data)
	return map[string][]float64{
		"sma": indicators.SMASeries(closes, m.smaPeriod),
		"atr": indicators.ATRSeries(data, m.atrPeriod),
		"adx": indicators.ADXSeries(data, m.adxPeriod),
	}, nil
}

func (m *MarketMaking) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error) {
	closes := types.Closes(history)
	sma := indicators.SMA(closes, m.smaPeriod)
	atr := indicators.ATR(history, m.atrPeriod)
	adx := indicators.ADX(history, m.adxPeriod)
	if anyNaN(sma, atr, adx) || atr == 0 {
		return Hold("indicators warming up", current.Timestamp), nil
	}
	if adx > m.adxMax {
		return Hold("trending tape, quotes pulled", current.Timestamp), nil
	}

	lowerQuote := sma - m.bandATR*atr
	upperQuote := sma + m.bandATR*atr
	calm := clamp01((m.adxMax - adx) / m.adxMax)
	switch {
	case current.Close <= lowerQuote:
		depth := (lowerQuote - current.Close) / atr
		return &Signal{
			Action:     ActionBuy,
			Strength:   clamp01(0.4 + depth/2),
			Confidence: clamp01(0.3 + calm/2),
			Reason:     "filled at lower quote band",
			Timestamp:  current.Timestamp,
		}, nil
	case current.Close >= upperQuote:
		depth := (current.Close - upperQuote) / atr
		return &Signal{
			Action:     ActionSell,
			Strength:   clamp01(0.4 + depth/2),
			Confidence: clamp01(0.3 + calm/2),
			Reason:     "filled at upper quote band",
			Timestamp:  current.Timestamp,
		}, nil
	}
	return Hold("inside quote bands", current.Timestamp), nil
}

// MarketMakingFamily exposes market-making construction and its optimization
// grid.
type MarketMakingFamily struct{}

func (MarketMakingFamily) Name() string { return "marketmaking" }

func (MarketMakingFamily) New(params Parameters) (Strategy, error) { return NewMarketMaking(params) }

func (MarketMakingFamily) Defaults() Parameters {
	return Parameters{"smaPeriod": 20, "atrPeriod": 14, "bandATR": 1.0, "adxPeriod": 14, "adxMax": 25}
}

func (MarketMakingFamily) Grid() []Parameters {
	var grid []Parameters
	for _, band := range []float64{0.8, 1.0, 1.5} {
		for _, adxMax := range []float64{20, 25, 30} {
			grid = append(grid, Parameters{
				"smaPeriod": 20,
				"atrPeriod": 14,
				"bandATR":   band,
				"adxPeriod": 14,
				"adxMax":    adxMax,
			})
		}
	}
	return grid
}
