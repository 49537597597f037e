package backtest

import (
	"math"
	"time"

	"github.com/quantloop/stratlab/internal/indicators"
	"github.com/quantloop/stratlab/internal/monitoring"
	"github.com/quantloop/stratlab/pkg/types"
)

// BarsPerYear annualizes bar-level statistics. Daily bars are assumed.
const BarsPerYear = 252

// EquityPoint is the account value at the end of one processed bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Trade is one completed round trip.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	Commission float64   `json:"commission"`
	Reason     string    `json:"reason"`
}

// Win reports whether the trade closed profitably.
func (t Trade) Win() bool {
	return t.PnL > 0
}

// Period describes the span of bars a report covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Bars  int       `json:"bars"`
}

// Performance is the immutable result of one backtest run. Ratios are
// annualized assuming BarsPerYear; every ratio is finite, degenerate inputs
// collapse to 0 rather than NaN or Inf.
type Performance struct {
	Strategy         string        `json:"strategy"`
	Period           Period        `json:"period"`
	InitialCapital   float64       `json:"initial_capital"`
	FinalCapital     float64       `json:"final_capital"`
	TotalReturn      float64       `json:"total_return"`
	AnnualizedReturn float64       `json:"annualized_return"`
	Volatility       float64       `json:"volatility"`
	SharpeRatio      float64       `json:"sharpe_ratio"`
	SortinoRatio     float64       `json:"sortino_ratio"`
	CalmarRatio      float64       `json:"calmar_ratio"`
	MaxDrawdown      float64       `json:"max_drawdown"`
	WinRate          float64       `json:"win_rate"`
	ProfitFactor     float64       `json:"profit_factor"`
	TotalTrades      int           `json:"total_trades"`
	WinningTrades    int           `json:"winning_trades"`
	LosingTrades     int           `json:"losing_trades"`
	Trades           []Trade       `json:"trades"`
	EquityCurve      []EquityPoint `json:"equity_curve"`
}

func newPerformance(strategyName string, initialCapital float64, data []types.OHLCV) *Performance {
	p := &Performance{
		Strategy:       strategyName,
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		Trades:         make([]Trade, 0),
		EquityCurve:    make([]EquityPoint, 0, len(data)),
	}
	if len(data) > 0 {
		p.Period = Period{
			Start: data[0].Timestamp,
			End:   data[len(data)-1].Timestamp,
			Bars:  len(data),
		}
	}
	return p
}

// finalize derives every metric from the equity curve and trade list.
func (p *Performance) finalize(cfg Config) {
	p.TotalReturn = (p.FinalCapital - p.InitialCapital) / p.InitialCapital
	p.MaxDrawdown = p.computeMaxDrawdown()

	if returns := p.BarReturns(); len(returns) > 0 {
		p.AnnualizedReturn = indicators.Mean(returns) * BarsPerYear
		p.Volatility = indicators.StdDev(returns) * math.Sqrt(BarsPerYear)
		if p.Volatility > 0 {
			p.SharpeRatio = (p.AnnualizedReturn - cfg.RiskFreeRate) / p.Volatility
		}
		if downside := downsideDeviation(returns) * math.Sqrt(BarsPerYear); downside > 0 {
			p.SortinoRatio = (p.AnnualizedReturn - cfg.RiskFreeRate) / downside
		}
		if p.MaxDrawdown > 0 {
			p.CalmarRatio = p.AnnualizedReturn / p.MaxDrawdown
		}
	}

	p.tallyTrades()
	p.sanitize()
}

// BarReturns converts the equity curve into per-bar simple returns. Portfolio
// composition correlates these across strategies.
func (p *Performance) BarReturns() []float64 {
	if len(p.EquityCurve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(p.EquityCurve)-1)
	for i := 1; i < len(p.EquityCurve); i++ {
		prev := p.EquityCurve[i-1].Equity
		if prev > 0 {
			returns = append(returns, p.EquityCurve[i].Equity/prev-1)
		}
	}
	return returns
}

func (p *Performance) computeMaxDrawdown() float64 {
	if len(p.EquityCurve) == 0 {
		return 0
	}
	maxDD := 0.0
	peak := p.EquityCurve[0].Equity
	for _, point := range p.EquityCurve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			if dd := (peak - point.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// downsideDeviation is the root mean square of sub-zero returns only.
func downsideDeviation(returns []float64) float64 {
	sum := 0.0
	count := 0
	for _, r := range returns {
		if r < 0 {
			sum += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

func (p *Performance) tallyTrades() {
	grossProfit, grossLoss := 0.0, 0.0
	for _, trade := range p.Trades {
		if trade.Win() {
			p.WinningTrades++
			grossProfit += trade.PnL
		} else {
			p.LosingTrades++
			grossLoss += -trade.PnL
		}
	}
	p.TotalTrades = len(p.Trades)
	if p.TotalTrades > 0 {
		p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades)
	}
	if grossLoss > 0 {
		p.ProfitFactor = grossProfit / grossLoss
	}
}

// sanitize clamps any metric that degenerated to NaN or Inf back to neutral
// so downstream comparisons and aggregations stay total.
func (p *Performance) sanitize() {
	fields := []*float64{
		&p.TotalReturn, &p.AnnualizedReturn, &p.Volatility,
		&p.SharpeRatio, &p.SortinoRatio, &p.CalmarRatio,
		&p.MaxDrawdown, &p.WinRate, &p.ProfitFactor,
	}
	for _, field := range fields {
		if badNumber(*field) {
			monitoring.RecordNumericAnomaly("metrics")
			*field = 0
		}
	}
}
