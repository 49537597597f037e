package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/internal/monitoring"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/types"
)

// WarmupBars is the number of bars handed to strategies before the first
// tradable bar so indicators are primed when trading starts.
const WarmupBars = 50

// Engine replays a strategy over historical bars with a long-only,
// single-position book: one BUY opens, the next SELL (or a stop) closes.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine builds an engine around cfg. The config is validated on Run, not
// here, so callers can build engines from partially-assembled settings.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, logger: zerolog.Nop()}
}

// SetLogger attaches a logger; the default discards everything.
func (e *Engine) SetLogger(logger zerolog.Logger) {
	e.logger = logger
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// Position is the engine's open exposure. EntryPrice includes slippage.
type Position struct {
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	EntryFee   float64
}

// Run replays strat over data and returns the performance report. A series
// no longer than the warm-up offset yields an empty zero-trade report rather
// than an error; an invalid config fails before any bar is touched.
func (e *Engine) Run(strat strategy.Strategy, data []types.OHLCV) (*Performance, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, errors.New("strategy must not be nil")
	}
	started := time.Now()

	perf := newPerformance(strat.Name(), e.cfg.InitialCapital, data)
	if len(data) <= WarmupBars {
		e.logger.Warn().
			Str("strategy", strat.Name()).
			Int("bars", len(data)).
			Int("warmup", WarmupBars).
			Msg("series shorter than warm-up, returning empty report")
		perf.finalize(e.cfg)
		return perf, nil
	}
	if err := strat.Initialize(data); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", strat.Name(), err)
	}

	capital := e.cfg.InitialCapital
	var pos *Position

	for i := WarmupBars; i < len(data); i++ {
		bar := data[i]
		sig := e.safeSignal(strat, bar, data[:i+1])

		// Protective exits outrank the bar's own signal.
		exited := false
		if pos != nil {
			if reason, breached := e.exitBreached(pos, bar.Close); breached {
				capital += e.close(perf, pos, bar, bar.Close*(1-e.cfg.Slippage), reason)
				pos = nil
				exited = true
			}
		}
		if !exited {
			switch {
			case pos == nil && sig.Action == strategy.ActionBuy:
				if opened := e.open(bar, capital); opened != nil {
					capital -= opened.Quantity*opened.EntryPrice + opened.EntryFee
					pos = opened
				}
			case pos != nil && sig.Action == strategy.ActionSell:
				capital += e.close(perf, pos, bar, bar.Close*(1-e.cfg.Slippage), "sell signal")
				pos = nil
			}
		}

		equity := capital
		if pos != nil {
			equity += pos.Quantity * bar.Close
		}
		perf.EquityCurve = append(perf.EquityCurve, EquityPoint{Timestamp: bar.Timestamp, Equity: equity})
	}

	// An open position would hide unrealized risk from the report, so it is
	// marked out at the final close.
	if pos != nil {
		last := data[len(data)-1]
		capital += e.close(perf, pos, last, last.Close, "end of data")
		perf.EquityCurve[len(perf.EquityCurve)-1].Equity = capital
	}

	perf.FinalCapital = capital
	perf.finalize(e.cfg)

	monitoring.RecordBacktest(strat.Name(), time.Since(started).Seconds())
	e.logger.Debug().
		Str("strategy", strat.Name()).
		Int("bars", len(data)).
		Int("trades", perf.TotalTrades).
		Float64("total_return", perf.TotalReturn).
		Dur("took", time.Since(started)).
		Msg("backtest finished")
	return perf, nil
}

// safeSignal never lets a strategy error or a NaN reading reach the book: a
// bad signal becomes a hold for that bar.
func (e *Engine) safeSignal(strat strategy.Strategy, bar types.OHLCV, history []types.OHLCV) *strategy.Signal {
	sig, err := strat.GenerateSignal(bar, history)
	if err != nil || sig == nil {
		e.logger.Debug().Err(err).Time("bar", bar.Timestamp).Msg("signal error held")
		return strategy.Hold("signal error", bar.Timestamp)
	}
	if badNumber(sig.Strength) || badNumber(sig.Confidence) {
		monitoring.RecordNumericAnomaly("engine")
		e.logger.Debug().Time("bar", bar.Timestamp).Msg("non-finite signal held")
		return strategy.Hold("numeric anomaly", bar.Timestamp)
	}
	return sig
}

// open sizes a whole-unit position from available capital. Nil when even one
// unit does not fit.
func (e *Engine) open(bar types.OHLCV, capital float64) *Position {
	execPrice := bar.Close * (1 + e.cfg.Slippage)
	if execPrice <= 0 {
		return nil
	}
	quantity := math.Floor(capital * e.cfg.MaxPositionSize / execPrice)
	if quantity <= 0 {
		return nil
	}
	return &Position{
		Quantity:   quantity,
		EntryPrice: execPrice,
		EntryTime:  bar.Timestamp,
		EntryFee:   quantity * execPrice * e.cfg.Commission,
	}
}

// exitBreached checks the configured stop-loss and take-profit against the
// bar close relative to the entry price.
func (e *Engine) exitBreached(pos *Position, close float64) (string, bool) {
	if pos.EntryPrice <= 0 {
		return "", false
	}
	ret := (close - pos.EntryPrice) / pos.EntryPrice
	if e.cfg.StopLoss > 0 && ret <= -e.cfg.StopLoss {
		return "stop loss", true
	}
	if e.cfg.TakeProfit > 0 && ret >= e.cfg.TakeProfit {
		return "take profit", true
	}
	return "", false
}

// close realizes the position at execPrice, records the trade and returns
// the net proceeds credited to capital.
func (e *Engine) close(perf *Performance, pos *Position, bar types.OHLCV, execPrice float64, reason string) float64 {
	proceeds := pos.Quantity * execPrice
	fee := proceeds * e.cfg.Commission
	pnl := proceeds - fee - pos.Quantity*pos.EntryPrice - pos.EntryFee
	perf.Trades = append(perf.Trades, Trade{
		EntryTime:  pos.EntryTime,
		ExitTime:   bar.Timestamp,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  execPrice,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		Commission: pos.EntryFee + fee,
		Reason:     reason,
	})
	e.logger.Debug().
		Str("reason", reason).
		Float64("pnl", pnl).
		Time("exit", bar.Timestamp).
		Msg("position closed")
	return proceeds - fee
}

func badNumber(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
