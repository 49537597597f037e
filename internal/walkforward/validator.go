package walkforward

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/monitoring"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/types"
)

// WindowResult is one window's verdict: the fitted parameters, both
// performance reports, and how much of the edge survived out of sample.
type WindowResult struct {
	Window      int                   `json:"window"`
	Params      strategy.Parameters   `json:"params"`
	InSample    *backtest.Performance `json:"in_sample"`
	OutOfSample *backtest.Performance `json:"out_of_sample"`
	Degradation float64               `json:"degradation"`
	Robustness  float64               `json:"robustness"`
	Valid       bool                  `json:"valid"`
	Candidates  int                   `json:"candidates"`
	Failures    int                   `json:"failures"`
}

// MarshalJSON renders an infinite degradation as a string since JSON has no
// Inf literal.
func (w WindowResult) MarshalJSON() ([]byte, error) {
	type alias WindowResult
	out := struct {
		alias
		Degradation any `json:"degradation"`
	}{alias: alias(w), Degradation: w.Degradation}
	switch {
	case math.IsInf(w.Degradation, 1):
		out.Degradation = "+inf"
	case math.IsInf(w.Degradation, -1):
		out.Degradation = "-inf"
	}
	return json.Marshal(out)
}

// Result aggregates every window. Averages cover the valid windows only and
// stay zero when none validated.
type Result struct {
	Strategy               string         `json:"strategy"`
	Config                 Config         `json:"config"`
	Windows                []WindowResult `json:"windows"`
	ValidWindows           int            `json:"valid_windows"`
	AvgInSampleSharpe      float64        `json:"avg_in_sample_sharpe"`
	AvgOutOfSampleSharpe   float64        `json:"avg_out_of_sample_sharpe"`
	AvgOutOfSampleReturn   float64        `json:"avg_out_of_sample_return"`
	AvgOutOfSampleDrawdown float64        `json:"avg_out_of_sample_drawdown"`
	AvgDegradation         float64        `json:"avg_degradation"`
	AvgRobustness          float64        `json:"avg_robustness"`
	Recommendations        []string       `json:"recommendations"`
}

// Validator fits a strategy family window by window. Grid-search candidates
// within a window run concurrently; windows advance in order.
type Validator struct {
	cfg        Config
	engCfg     backtest.Config
	logger     zerolog.Logger
	workers    int
	onProgress func(done, total int)
}

// NewValidator builds a validator that backtests candidates under engCfg.
func NewValidator(cfg Config, engCfg backtest.Config) *Validator {
	return &Validator{
		cfg:     cfg,
		engCfg:  engCfg,
		logger:  zerolog.Nop(),
		workers: runtime.NumCPU(),
	}
}

// SetLogger attaches a logger; the default discards everything.
func (v *Validator) SetLogger(logger zerolog.Logger) {
	v.logger = logger
}

// SetWorkers caps concurrent candidate backtests within a window.
func (v *Validator) SetWorkers(n int) {
	if n > 0 {
		v.workers = n
	}
}

// OnProgress registers a callback invoked after every finished window.
func (v *Validator) OnProgress(fn func(done, total int)) {
	v.onProgress = fn
}

// Evaluate walks the series. A series too short for a single viable window
// is not an error: the result simply contains no windows.
func (v *Validator) Evaluate(family strategy.Family, data []types.OHLCV) (*Result, error) {
	if family == nil {
		return nil, errors.New("strategy family must not be nil")
	}
	if err := v.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := v.engCfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Strategy: family.Name(), Config: v.cfg}
	windows := carveWindows(data, v.cfg)
	if len(windows) == 0 {
		v.logger.Warn().
			Str("strategy", family.Name()).
			Int("bars", len(data)).
			Msg("series yields no viable walk-forward window")
		result.Recommendations = []string{"series too short for a single walk-forward window; nothing was validated"}
		return result, nil
	}

	if v.onProgress != nil {
		v.onProgress(0, len(windows))
	}
	for _, win := range windows {
		wr := v.evaluateWindow(family, win)
		result.Windows = append(result.Windows, wr)
		monitoring.RecordWalkforwardWindow(wr.Valid)
		if v.onProgress != nil {
			v.onProgress(len(result.Windows), len(windows))
		}
	}

	v.aggregate(result)
	result.Recommendations = v.recommend(result)
	return result, nil
}

func (v *Validator) evaluateWindow(family strategy.Family, win Window) WindowResult {
	wr := WindowResult{Window: win.Index}
	wr.Params, wr.InSample, wr.Candidates, wr.Failures = v.searchWindow(family, win)
	wr.OutOfSample = v.runParams(family, wr.Params, win.OutOfSample)
	wr.Degradation = degradation(wr.InSample.SharpeRatio, wr.OutOfSample.SharpeRatio)
	wr.Robustness = v.cfg.Thresholds.robustness(wr.OutOfSample)
	wr.Valid = v.cfg.Thresholds.pass(wr.OutOfSample)

	v.logger.Debug().
		Int("window", win.Index).
		Str("params", wr.Params.String()).
		Float64("in_sharpe", wr.InSample.SharpeRatio).
		Float64("out_sharpe", wr.OutOfSample.SharpeRatio).
		Bool("valid", wr.Valid).
		Msg("window evaluated")
	return wr
}

// searchWindow grid-searches the family's lattice on the in-sample slice and
// returns the winner. Candidates that error or panic are discarded without
// aborting the search; ties keep the earliest lattice entry so the search is
// deterministic.
func (v *Validator) searchWindow(family strategy.Family, win Window) (strategy.Parameters, *backtest.Performance, int, int) {
	lattice := family.Grid()
	if len(lattice) == 0 {
		lattice = []strategy.Parameters{family.Defaults()}
	}

	perfs := make([]*backtest.Performance, len(lattice))
	sem := make(chan struct{}, v.workers)
	var wg sync.WaitGroup
	for i, params := range lattice {
		wg.Add(1)
		go func(i int, params strategy.Parameters) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			monitoring.RecordCandidate("walkforward")
			perf, err := v.tryRun(family, params, win.InSample)
			if err != nil {
				monitoring.RecordCandidateFailure("walkforward")
				v.logger.Debug().Err(err).Str("params", params.String()).Msg("candidate discarded")
				return
			}
			perfs[i] = perf
		}(i, params)
	}
	wg.Wait()

	bestIdx := -1
	bestScore := 0.0
	failures := 0
	for i := range lattice {
		if perfs[i] == nil {
			failures++
			continue
		}
		score := v.cfg.Metric.score(perfs[i])
		if math.IsNaN(score) {
			failures++
			continue
		}
		if bestIdx < 0 || score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		// Every candidate failed; fall back to the family defaults.
		params := family.Defaults()
		return params, v.runParams(family, params, win.InSample), len(lattice), failures
	}
	return lattice[bestIdx].Clone(), perfs[bestIdx], len(lattice), failures
}

// runParams backtests one parameter set, degrading to an empty report when
// the run cannot complete.
func (v *Validator) runParams(family strategy.Family, params strategy.Parameters, data []types.OHLCV) *backtest.Performance {
	perf, err := v.tryRun(family, params, data)
	if err != nil {
		v.logger.Debug().Err(err).Str("params", params.String()).Msg("run degraded to empty report")
		return &backtest.Performance{Strategy: family.Name()}
	}
	return perf
}

// tryRun builds and backtests one candidate, converting panics into errors
// so an isolated numerical failure never aborts the evaluation.
func (v *Validator) tryRun(family strategy.Family, params strategy.Parameters, data []types.OHLCV) (perf *backtest.Performance, err error) {
	defer func() {
		if r := recover(); r != nil {
			perf, err = nil, fmt.Errorf("candidate panicked: %v", r)
		}
	}()
	strat, err := family.New(params.Clone())
	if err != nil {
		return nil, err
	}
	return backtest.NewEngine(v.engCfg).Run(strat, data)
}

// degradation measures how much of the fitted edge survives out of sample.
// A zero in-sample Sharpe cannot be divided by: the window grades -1 when
// the strategy improved out of sample and +Inf otherwise, never NaN.
func degradation(inSharpe, outSharpe float64) float64 {
	if inSharpe == 0 {
		if outSharpe > 0 {
			return -1
		}
		return math.Inf(1)
	}
	return (inSharpe - outSharpe) / math.Abs(inSharpe)
}

// aggregate averages the valid windows into the result. Infinite degradation
// readings are excluded from their average; everything stays zero when no
// window validated.
func (v *Validator) aggregate(result *Result) {
	var inSharpe, outSharpe, outReturn, outDD, robustness float64
	degradationSum, degradationCount := 0.0, 0

	for _, wr := range result.Windows {
		if !wr.Valid {
			continue
		}
		result.ValidWindows++
		inSharpe += wr.InSample.SharpeRatio
		outSharpe += wr.OutOfSample.SharpeRatio
		outReturn += wr.OutOfSample.TotalReturn
		outDD += wr.OutOfSample.MaxDrawdown
		robustness += wr.Robustness
		if !math.IsInf(wr.Degradation, 0) {
			degradationSum += wr.Degradation
			degradationCount++
		}
	}

	if result.ValidWindows == 0 {
		return
	}
	n := float64(result.ValidWindows)
	result.AvgInSampleSharpe = inSharpe / n
	result.AvgOutOfSampleSharpe = outSharpe / n
	result.AvgOutOfSampleReturn = outReturn / n
	result.AvgOutOfSampleDrawdown = outDD / n
	result.AvgRobustness = robustness / n
	if degradationCount > 0 {
		result.AvgDegradation = degradationSum / float64(degradationCount)
	}
}

// recommend derives advisory notes from independent checks. Notes never gate
// anything; they ride along with the numbers.
func (v *Validator) recommend(result *Result) []string {
	var recs []string
	total := len(result.Windows)
	if total == 0 {
		return result.Recommendations
	}

	if result.ValidWindows == 0 {
		return []string{"no window cleared the out-of-sample thresholds; do not trade these parameters"}
	}

	share := float64(result.ValidWindows) / float64(total)
	if share < 0.5 {
		recs = append(recs, fmt.Sprintf("only %d of %d windows validated; results look regime-dependent", result.ValidWindows, total))
	}

	switch {
	case result.AvgDegradation > 0.5:
		recs = append(recs, "high in-sample to out-of-sample degradation; parameters are likely overfit")
	case result.AvgDegradation > 0.2:
		recs = append(recs, "moderate performance degradation out of sample; consider a longer in-sample window")
	case share >= 0.7:
		recs = append(recs, "performance holds up out of sample across most windows")
	}

	if result.AvgRobustness >= 0.75 {
		recs = append(recs, "robustness scores are high across valid windows")
	}
	if result.AvgOutOfSampleDrawdown > 0.8*v.cfg.Thresholds.MaxDrawdown {
		recs = append(recs, "out-of-sample drawdowns run close to the configured limit")
	}
	return recs
}
