package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/quantloop/stratlab/cmd/common"
	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/data"
)

// Flags holds the command line flags for the backtest command.
type Flags struct {
	// Configuration
	ConfigFile *string
	Strategy   *string
	Params     *string

	// Data selection
	DataFile *string
	DataRoot *string
	Exchange *string
	Symbol   *string
	Interval *string
	Period   *string

	// Engine settings
	Balance     *float64
	Commission  *float64
	Slippage    *float64
	MaxPosition *float64
	StopLoss    *float64
	TakeProfit  *float64
	RiskFree    *float64

	// Output
	OutputDir   *string
	ConsoleOnly *bool

	Common *common.CommonFlags
}

// NewFlags registers all backtest flags with the default flag set.
func NewFlags() *Flags {
	def := backtest.DefaultConfig()

	return &Flags{
		ConfigFile: flag.String("config", "", "Path to JSON configuration file"),
		Strategy:   flag.String("strategy", "momentum", "Strategy family ("+strings.Join(strategy.FamilyNames(), ", ")+")"),
		Params:     flag.String("params", "", "Parameter overrides (e.g. fastPeriod=10,slowPeriod=30)"),

		DataFile: flag.String("data", "", "Path to historical data file (overrides symbol/interval lookup)"),
		DataRoot: flag.String("data-root", "data", "Data root directory"),
		Exchange: flag.String("exchange", "bybit", "Exchange directory under the data root"),
		Symbol:   flag.String("symbol", "BTCUSDT", "Trading symbol"),
		Interval: flag.String("interval", "1h", "Data interval (5m, 15m, 1h, 4h, 1d)"),
		Period:   flag.String("period", "", "Limit data to a trailing period (7d, 30d, 8w)"),

		Balance:     flag.Float64("balance", def.InitialCapital, "Initial capital"),
		Commission:  flag.Float64("commission", def.Commission, "Commission per fill (0.001 = 10 bps)"),
		Slippage:    flag.Float64("slippage", def.Slippage, "Slippage per fill"),
		MaxPosition: flag.Float64("max-position", def.MaxPositionSize, "Maximum position size as a capital fraction"),
		StopLoss:    flag.Float64("stop-loss", def.StopLoss, "Stop loss fraction (0 disables)"),
		TakeProfit:  flag.Float64("take-profit", def.TakeProfit, "Take profit fraction (0 disables)"),
		RiskFree:    flag.Float64("risk-free", def.RiskFreeRate, "Annual risk-free rate for Sharpe"),

		OutputDir:   flag.String("output", "", "Report directory (default results/{SYMBOL}_{interval})"),
		ConsoleOnly: flag.Bool("console-only", false, "Console output only, no report files"),

		Common: common.RegisterCommonFlags(),
	}
}

// Validate rejects flag combinations before any work starts.
func (f *Flags) Validate() error {
	if *f.DataFile == "" && (*f.Symbol == "" || *f.Interval == "") {
		return fmt.Errorf("need either -data or -symbol with -interval")
	}
	if *f.Period != "" {
		if _, ok := data.ParseTrailingPeriod(*f.Period); !ok {
			return fmt.Errorf("invalid period %q (use forms like 7d, 12h, 8w)", *f.Period)
		}
	}
	return nil
}

// setFlags reports which flags were given explicitly, so they can override
// values from a config file.
func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}
