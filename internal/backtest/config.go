package backtest

import "fmt"

// Config holds the execution-simulation settings. Rates are fractions, not
// percentages: Commission 0.001 means 10 bps per fill.
type Config struct {
	InitialCapital  float64 `json:"initial_capital"`
	Commission      float64 `json:"commission"`
	Slippage        float64 `json:"slippage"`
	MaxPositionSize float64 `json:"max_position_size"`
	StopLoss        float64 `json:"stop_loss"`   // 0 disables
	TakeProfit      float64 `json:"take_profit"` // 0 disables
	RiskFreeRate    float64 `json:"risk_free_rate"`
}

// DefaultConfig returns the settings used when a CLI or test does not
// override them.
func DefaultConfig() Config {
	return Config{
		InitialCapital:  10000,
		Commission:      0.001,
		Slippage:        0.0005,
		MaxPositionSize: 0.95,
		StopLoss:        0,
		TakeProfit:      0,
		RiskFreeRate:    0.02,
	}
}

// ConfigError reports a setting that fails validation. Simulations refuse to
// start on one; they never begin processing bars first.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// Validate checks every setting and returns the first violation.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return &ConfigError{"initial_capital", fmt.Sprintf("must be positive, got: %v", c.InitialCapital)}
	}
	if c.Commission < 0 || c.Commission >= 1 {
		return &ConfigError{"commission", fmt.Sprintf("must be in [0, 1), got: %v", c.Commission)}
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return &ConfigError{"slippage", fmt.Sprintf("must be in [0, 1), got: %v", c.Slippage)}
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return &ConfigError{"max_position_size", fmt.Sprintf("must be in (0, 1], got: %v", c.MaxPositionSize)}
	}
	if c.StopLoss < 0 || c.StopLoss >= 1 {
		return &ConfigError{"stop_loss", fmt.Sprintf("must be in [0, 1), got: %v", c.StopLoss)}
	}
	if c.TakeProfit < 0 {
		return &ConfigError{"take_profit", fmt.Sprintf("must be non-negative, got: %v", c.TakeProfit)}
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate >= 1 {
		return &ConfigError{"risk_free_rate", fmt.Sprintf("must be in [0, 1), got: %v", c.RiskFreeRate)}
	}
	return nil
}
