package portfolio

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/internal/analytics"
	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/monitoring"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/types"
)

// activationFloor is the minimum weighted vote a composite BUY or SELL needs;
// anything weaker stays flat.
const activationFloor = 0.3

// weightFloor is the allocation below which a strategy is too small to bind
// the pairwise correlation constraint.
const weightFloor = 0.05

// defaultDraws bounds the random weight search.
const defaultDraws = 1000

// Composer runs every portfolio-level computation: composite signals,
// combined backtests, and the weight search. The random source is seedable
// so tests can pin draws; by default each Composer draws differently.
type Composer struct {
	cfg     backtest.Config
	logger  zerolog.Logger
	rng     *rand.Rand
	draws   int
	workers int
}

// NewComposer builds a composer that backtests members under cfg.
func NewComposer(cfg backtest.Config) *Composer {
	return &Composer{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		draws:   defaultDraws,
		workers: runtime.NumCPU(),
	}
}

// SetLogger attaches a logger; the default discards everything.
func (c *Composer) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetSeed pins the weight-search random source for reproducible runs.
func (c *Composer) SetSeed(seed int64) {
	c.rng = rand.New(rand.NewSource(seed))
}

// SetDraws overrides the weight-search iteration budget.
func (c *Composer) SetDraws(n int) {
	if n > 0 {
		c.draws = n
	}
}

// SetWorkers caps concurrent per-strategy backtests.
func (c *Composer) SetWorkers(n int) {
	if n > 0 {
		c.workers = n
	}
}

// CompositeSignal merges the enabled members' signals for one bar by
// weighted voting: each vote is weight times strength times confidence,
// accumulated per side. The stronger side wins only if it clears the
// activation floor, otherwise the portfolio holds.
func (c *Composer) CompositeSignal(p *Portfolio, bar types.OHLCV, history []types.OHLCV) *strategy.Signal {
	buyScore, sellScore := 0.0, 0.0
	for _, m := range p.Enabled() {
		if m.Weight <= 0 {
			continue
		}
		sig, err := m.Strategy.GenerateSignal(bar, history)
		if err != nil || sig == nil {
			c.logger.Debug().Err(err).Str("strategy", m.Strategy.Name()).Msg("member signal skipped")
			continue
		}
		vote := m.Weight * sig.Strength * sig.Confidence
		if !finite(vote) {
			monitoring.RecordNumericAnomaly("composer")
			continue
		}
		switch sig.Action {
		case strategy.ActionBuy:
			buyScore += vote
		case strategy.ActionSell:
			sellScore += vote
		}
	}

	reason := fmt.Sprintf("weighted votes buy=%.3f sell=%.3f", buyScore, sellScore)
	switch {
	case buyScore > sellScore && buyScore > activationFloor:
		return &strategy.Signal{
			Action:     strategy.ActionBuy,
			Strength:   math.Min(1, buyScore),
			Confidence: math.Min(1, buyScore),
			Reason:     reason,
			Timestamp:  bar.Timestamp,
		}
	case sellScore > buyScore && sellScore > activationFloor:
		return &strategy.Signal{
			Action:     strategy.ActionSell,
			Strength:   math.Min(1, sellScore),
			Confidence: math.Min(1, sellScore),
			Reason:     reason,
			Timestamp:  bar.Timestamp,
		}
	default:
		return strategy.Hold(reason, bar.Timestamp)
	}
}

// BacktestPortfolio backtests every enabled member independently and
// combines the reports under the current weights.
func (c *Composer) BacktestPortfolio(p *Portfolio, data []types.OHLCV) (*Performance, error) {
	s, err := c.study(p, data)
	if err != nil {
		return nil, err
	}
	return c.combine(p, s, s.weights), nil
}

// OptimizeWeights searches the weight simplex for the best Sharpe ratio
// whose meaningfully-weighted members stay under the portfolio's pairwise
// correlation threshold. The search is stochastic: a bounded number of
// random draws, not an exact solver.
func (c *Composer) OptimizeWeights(p *Portfolio, data []types.OHLCV) (*WeightSearchResult, error) {
	s, err := c.study(p, data)
	if err != nil {
		return nil, err
	}
	return c.searchWeights(p, s), nil
}

// Rebalance runs a weight search, applies the winning weights, and reports
// the Sharpe delta against the prior weighting. Member backtests run once;
// both sides of the comparison reuse them.
func (c *Composer) Rebalance(p *Portfolio, data []types.OHLCV) (*RebalanceReport, error) {
	s, err := c.study(p, data)
	if err != nil {
		return nil, err
	}
	before := c.combine(p, s, s.weights)
	search := c.searchWeights(p, s)
	if err := p.SetWeights(search.Weights); err != nil {
		return nil, err
	}

	applied := make([]float64, len(s.names))
	changed := false
	for i, name := range s.names {
		applied[i] = search.Weights[name]
		if math.Abs(applied[i]-s.weights[i]) > 1e-9 {
			changed = true
		}
	}
	after := c.combine(p, s, applied)

	report := &RebalanceReport{
		Before:      before,
		After:       after,
		Search:      search,
		SharpeDelta: after.SharpeRatio - before.SharpeRatio,
		Changed:     changed,
	}
	c.logger.Info().
		Str("portfolio", p.Name()).
		Float64("sharpe_before", before.SharpeRatio).
		Float64("sharpe_after", after.SharpeRatio).
		Bool("changed", changed).
		Msg("rebalance finished")
	return report, nil
}

// study is the shared per-strategy groundwork: one backtest per enabled
// member plus the correlation matrix of their return streams.
type study struct {
	names   []string
	weights []float64
	perfs   []*backtest.Performance
	matrix  analytics.Matrix
}

func (c *Composer) study(p *Portfolio, data []types.OHLCV) (*study, error) {
	members := p.Enabled()
	if len(members) == 0 {
		return nil, errors.New("portfolio has no enabled strategies")
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	s := &study{
		names:   make([]string, len(members)),
		weights: make([]float64, len(members)),
		perfs:   make([]*backtest.Performance, len(members)),
	}
	errs := make([]error, len(members))

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, m := range members {
		s.names[i] = m.Strategy.Name()
		s.weights[i] = m.Weight

		wg.Add(1)
		go func(i int, strat strategy.Strategy) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s.perfs[i], errs[i] = backtest.NewEngine(c.cfg).Run(strat, data)
		}(i, m.Strategy)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("backtest %s: %w", s.names[i], err)
		}
	}

	series := make([]analytics.Series, len(members))
	for i, perf := range s.perfs {
		series[i] = analytics.Series{Name: s.names[i], Values: perf.BarReturns()}
	}
	s.matrix = analytics.CorrelationMatrix(series)
	return s, nil
}

// combine folds the per-strategy reports into one portfolio report under the
// given weights (same order as s.names, summing to 1).
func (c *Composer) combine(p *Portfolio, s *study, weights []float64) *Performance {
	perf := &Performance{
		Name:         p.Name(),
		Weights:      make(map[string]float64, len(s.names)),
		Correlations: s.matrix,
		PerStrategy:  make(map[string]*backtest.Performance, len(s.names)),
	}

	variance := 0.0
	for i, name := range s.names {
		w := weights[i]
		perf.Weights[name] = w
		perf.PerStrategy[name] = s.perfs[i]
		perf.TotalReturn += w * s.perfs[i].TotalReturn
		perf.AnnualizedReturn += w * s.perfs[i].AnnualizedReturn

		for j := range s.names {
			variance += w * weights[j] * s.perfs[i].Volatility * s.perfs[j].Volatility * s.matrix.At(i, j)
		}

		if s.perfs[i].MaxDrawdown > perf.MaxDrawdown {
			perf.MaxDrawdown = s.perfs[i].MaxDrawdown
			perf.WorstStrategy = name
		}
	}

	if variance > 0 {
		perf.Volatility = math.Sqrt(variance)
	}
	if perf.Volatility > 0 {
		perf.SharpeRatio = (perf.AnnualizedReturn - c.cfg.RiskFreeRate) / perf.Volatility
	}
	perf.sanitize()
	return perf
}

// searchWeights draws random weight vectors and keeps the best accepted
// candidate. A candidate is accepted only if the pairwise correlation among
// members weighted above the floor stays under the portfolio threshold. The
// incumbent weighting competes too when it satisfies the constraint itself;
// when nothing at all is accepted the current weights stand.
func (c *Composer) searchWeights(p *Portfolio, s *study) *WeightSearchResult {
	baseline := c.combine(p, s, s.weights).SharpeRatio
	n := len(s.names)

	best := append([]float64(nil), s.weights...)
	bestSharpe := baseline
	found := s.matrix.MaxPairwise(aboveFloor(s.weights)) <= p.CorrelationThreshold()

	result := &WeightSearchResult{Baseline: baseline, Evaluated: c.draws}
	for d := 0; d < c.draws; d++ {
		monitoring.RecordCandidate("weights")
		candidate := c.randomWeights(n)

		sharpe, ok := c.scoreCandidate(p, s, candidate)
		if !ok {
			monitoring.RecordCandidateFailure("weights")
			continue
		}

		if s.matrix.MaxPairwise(aboveFloor(candidate)) > p.CorrelationThreshold() {
			continue
		}

		result.Accepted++
		if !found || sharpe > bestSharpe {
			found = true
			bestSharpe = sharpe
			copy(best, candidate)
		}
	}

	result.Sharpe = bestSharpe
	result.Improved = found && bestSharpe > baseline
	result.Weights = make(map[string]float64, n)
	for i, name := range s.names {
		result.Weights[name] = best[i]
	}
	c.logger.Debug().
		Int("accepted", result.Accepted).
		Int("evaluated", result.Evaluated).
		Float64("baseline", baseline).
		Float64("best", bestSharpe).
		Msg("weight search finished")
	return result
}

// scoreCandidate combines under a candidate weighting, converting any panic
// into a discarded candidate so one bad draw cannot abort the search.
func (c *Composer) scoreCandidate(p *Portfolio, s *study, weights []float64) (sharpe float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug().Interface("panic", r).Msg("weight candidate discarded")
			sharpe, ok = 0, false
		}
	}()
	perf := c.combine(p, s, weights)
	return perf.SharpeRatio, true
}

// aboveFloor marks the weights large enough to bind the correlation
// constraint.
func aboveFloor(weights []float64) []bool {
	include := make([]bool, len(weights))
	for i, w := range weights {
		include[i] = w >= weightFloor
	}
	return include
}

// randomWeights draws one point from the weight simplex.
func (c *Composer) randomWeights(n int) []float64 {
	w := make([]float64, n)
	total := 0.0
	for i := range w {
		w[i] = c.rng.Float64()
		total += w[i]
	}
	if total <= 0 {
		for i := range w {
			w[i] = 1 / float64(n)
		}
		return w
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
