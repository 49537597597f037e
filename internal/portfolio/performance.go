package portfolio

import (
	"math"

	"github.com/quantloop/stratlab/internal/analytics"
	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/monitoring"
)

// Performance aggregates independent per-strategy backtests under fixed
// weights. Returns combine linearly; volatility combines through the full
// correlation matrix; max drawdown is conservatively the worst single
// strategy's, not a blended-curve recomputation.
type Performance struct {
	Name             string                          `json:"name"`
	Weights          map[string]float64              `json:"weights"`
	TotalReturn      float64                         `json:"total_return"`
	AnnualizedReturn float64                         `json:"annualized_return"`
	Volatility       float64                         `json:"volatility"`
	SharpeRatio      float64                         `json:"sharpe_ratio"`
	MaxDrawdown      float64                         `json:"max_drawdown"`
	WorstStrategy    string                          `json:"worst_strategy"`
	Correlations     analytics.Matrix                `json:"correlations"`
	PerStrategy      map[string]*backtest.Performance `json:"per_strategy"`
}

func (p *Performance) sanitize() {
	fields := []*float64{
		&p.TotalReturn, &p.AnnualizedReturn, &p.Volatility,
		&p.SharpeRatio, &p.MaxDrawdown,
	}
	for _, field := range fields {
		if math.IsNaN(*field) || math.IsInf(*field, 0) {
			monitoring.RecordNumericAnomaly("composer")
			*field = 0
		}
	}
}

// WeightSearchResult is the outcome of one random-search pass over the
// weight simplex.
type WeightSearchResult struct {
	Weights   map[string]float64 `json:"weights"`
	Sharpe    float64            `json:"sharpe"`
	Baseline  float64            `json:"baseline"`
	Improved  bool               `json:"improved"`
	Evaluated int                `json:"evaluated"`
	Accepted  int                `json:"accepted"`
}

// RebalanceReport compares the book before and after a weight search was
// applied.
type RebalanceReport struct {
	Before      *Performance        `json:"before"`
	After       *Performance        `json:"after"`
	Search      *WeightSearchResult `json:"search"`
	SharpeDelta float64             `json:"sharpe_delta"`
	Changed     bool                `json:"changed"`
}
