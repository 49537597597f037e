package strategy

import (
	"errors"
	"fmt"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/pkg/types"
)

// MeanReversion fades extremes: it buys near the lower Bollinger band with
// the RSI oversold, and sells near the upper band with the RSI overbought.
type MeanReversion struct {
	bbPeriod   int
	bbWidth    float64
	rsiPeriod  int
	oversold   float64
	overbought float64
	entryBand  float64 // %B distance from a band that arms an entry
}

// NewMeanReversion builds a mean-reversion strategy from params on top of
// the defaults.
func NewMeanReversion(params Parameters) (*MeanReversion, error) {
	m := &MeanReversion{
		bbPeriod:   20,
		bbWidth:    2.0,
		rsiPeriod:  14,
		oversold:   30,
		overbought: 70,
		entryBand:  0.1,
	}
	if err := m.SetParameters(params); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MeanReversion) Name() string { return "meanreversion" }

func (m *MeanReversion) Initialize(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("empty price series")
	}
	return nil
}

func (m *MeanReversion) Parameters() Parameters {
	return Parameters{
		"bbPeriod":   float64(m.bbPeriod),
		"bbWidth":    m.bbWidth,
		"rsiPeriod":  float64(m.rsiPeriod),
		"oversold":   m.oversold,
		"overbought": m.overbought,
		"entryBand":  m.entryBand,
	}
}

func (m *MeanReversion) SetParameters(params Parameters) error {
	next := *m
	var err error
	if next.bbPeriod, err = intParam(params, "bbPeriod", next.bbPeriod); err != nil {
		return err
	}
	if next.bbWidth, err = floatParam(params, "bbWidth", next.bbWidth); err != nil {
		return err
	}
	if next.rsiPeriod, err = intParam(params, "rsiPeriod", next.rsiPeriod); err != nil {
		return err
	}
	if next.oversold, err = floatParam(params, "oversold", next.oversold); err != nil {
		return err
	}
	if next.overbought, err = floatParam(params, "overbought", next.overbought); err != nil {
		return err
	}
	if next.entryBand, err = floatParam(params, "entryBand", next.entryBand); err != nil {
		return err
	}
	if next.bbWidth <= 0 {
		return fmt.Errorf("bbWidth must be positive, got: %v", next.bbWidth)
	}
	if next.oversold >= next.overbought {
		return fmt.Errorf("oversold must be below overbought, got: %v >= %v", next.oversold, next.overbought)
	}
	*m = next
	return nil
}

func (m *MeanReversion) CalculateIndicators(data []types.OHLCV) (map[string][]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty price series")
	}
	closes := types.Closes(data)
	upper, middle, lower := indicators.BollingerSeries(closes, m.bbPeriod, m.bbWidth)
	return map[string][]float64{
		"bb_upper":  upper,
		"bb_middle": middle,
		"bb_lower":  lower,
		"rsi":       indicators.RSISeries(closes, m.rsiPeriod),
	}, nil
}

func (m *MeanReversion) GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error) {
	closes := types.Closes(history)
	pctB := indicators.PercentB(closes, m.bbPeriod, m.bbWidth)
	rsi := indicators.RSI(closes, m.rsiPeriod)
	if anyNaN(pctB, rsi) {
		return Hold("indicators warming up", current.Timestamp), nil
	}

	switch {
	case pctB <= m.entryBand && rsi <= m.oversold:
		return &Signal{
			Action:     ActionBuy,
			Strength:   clamp01(0.5 + (m.entryBand - pctB)),
			Confidence: clamp01(0.4 + (m.oversold-rsi)/m.oversold),
			Reason:     fmt.Sprintf("oversold at lower band, RSI %.1f", rsi),
			Timestamp:  current.Timestamp,
		}, nil
	case pctB >= 1-m.entryBand && rsi >= m.overbought:
		return &Signal{
			Action:     ActionSell,
			Strength:   clamp01(0.5 + (pctB - (1 - m.entryBand))),
			Confidence: clamp01(0.4 + (rsi-m.overbought)/(100-m.overbought)),
			Reason:     fmt.Sprintf("overbought at upper band, RSI %.1f", rsi),
			Timestamp:  current.Timestamp,
		}, nil
	}
	return Hold("inside bands", current.Timestamp), nil
}

// MeanReversionFamily exposes mean-reversion construction and its
// optimization grid.
type MeanReversionFamily struct{}

func (MeanReversionFamily) Name() string { return "meanreversion" }

func (MeanReversionFamily) New(params Parameters) (Strategy, error) { return NewMeanReversion(params) }

func (MeanReversionFamily) Defaults() Parameters {
	return Parameters{"bbPeriod": 20, "bbWidth": 2.0, "rsiPeriod": 14, "oversold": 30, "overbought": 70, "entryBand": 0.1}
}

func (MeanReversionFamily) Grid() []Parameters {
	var grid []Parameters
	for _, period := range []float64{14, 20} {
		for _, width := range []float64{1.5, 2.0, 2.5} {
			for _, oversold := range []float64{25, 30} {
				grid = append(grid, Parameters{
					"bbPeriod":   period,
					"bbWidth":    width,
					"rsiPeriod":  14,
					"oversold":   oversold,
					"overbought": 100 - oversold,
					"entryBand":  0.1,
				})
			}
		}
	}
	return grid
}
