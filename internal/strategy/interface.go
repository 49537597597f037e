package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/quantloop/stratlab/pkg/types"
)

// Strategy is a rule-based signal generator. Implementations are stateless
// with respect to position tracking; the backtest engine owns positions and
// capital. GenerateSignal must only look at history up to and including the
// current bar.
type Strategy interface {
	// Name returns the strategy identifier used in reports and registries.
	Name() string

	// Initialize validates the strategy against the series it is about to
	// process and resets any cached state.
	Initialize(data []types.OHLCV) error

	// CalculateIndicators returns the named indicator series backing the
	// strategy's decisions, each aligned one-to-one with data and NaN-padded
	// over the warm-up prefix.
	CalculateIndicators(data []types.OHLCV) (map[string][]float64, error)

	// GenerateSignal evaluates the current bar given the history ending at
	// that bar (history[len(history)-1] == current).
	GenerateSignal(current types.OHLCV, history []types.OHLCV) (*Signal, error)

	// Parameters returns the current tunables.
	Parameters() Parameters

	// SetParameters replaces all tunables at once. On validation failure the
	// previous values stay in effect.
	SetParameters(params Parameters) error
}

// Signal is a single-bar trading decision.
type Signal struct {
	Action     Action
	Strength   float64 // [0,1]
	Confidence float64 // [0,1]
	Reason     string
	Timestamp  time.Time
}

// Action is the direction of a signal.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Hold builds the neutral signal emitted while indicators are warming up or
// no rule fires.
func Hold(reason string, ts time.Time) *Signal {
	return &Signal{Action: ActionHold, Reason: reason, Timestamp: ts}
}

// Parameters maps tunable names to values. Integer tunables are carried as
// float64 and truncated by the strategy.
type Parameters map[string]float64

// Clone returns an independent copy so optimizer candidates never share a
// map.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in stable order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Parameters) String() string {
	s := ""
	for i, k := range p.Keys() {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%g", k, p[k])
	}
	return s
}

// Family builds strategies of one kind for optimization: defaults for plain
// runs and a fixed parameter lattice for grid search.
type Family interface {
	Name() string
	New(params Parameters) (Strategy, error)
	Defaults() Parameters
	Grid() []Parameters
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// intParam reads an integer tunable, falling back to the current value when
// the key is absent.
func intParam(params Parameters, key string, current int) (int, error) {
	v, ok := params[key]
	if !ok {
		return current, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 0, fmt.Errorf("parameter %s must be a positive number, got: %v", key, v)
	}
	return int(v), nil
}

// floatParam reads a float tunable, falling back to the current value when
// the key is absent.
func floatParam(params Parameters, key string, current float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return current, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parameter %s must be finite, got: %v", key, v)
	}
	return v, nil
}
