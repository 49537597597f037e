package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/quantloop/stratlab/cmd/common"
	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/internal/walkforward"
	"github.com/quantloop/stratlab/pkg/data"
)

// Flags holds the command line flags for the walk-forward command.
type Flags struct {
	// Configuration
	ConfigFile *string
	Strategy   *string

	// Data selection
	DataFile *string
	DataRoot *string
	Exchange *string
	Symbol   *string
	Interval *string
	Period   *string

	// Window layout
	InSampleBars    *int
	OutOfSampleBars *int
	Stride          *int
	Metric          *string

	// Validity thresholds
	MinSharpe   *float64
	MaxDrawdown *float64
	MinReturn   *float64
	MinWinRate  *float64

	// Engine settings
	Balance    *float64
	Commission *float64
	Slippage   *float64

	// Execution
	Workers *int

	// Output
	OutputDir   *string
	ConsoleOnly *bool

	Common *common.CommonFlags
}

// NewFlags registers all walk-forward flags with the default flag set.
func NewFlags() *Flags {
	wf := walkforward.DefaultConfig()
	eng := backtest.DefaultConfig()

	return &Flags{
		ConfigFile: flag.String("config", "", "Path to JSON configuration file"),
		Strategy:   flag.String("strategy", "momentum", "Strategy family ("+strings.Join(strategy.FamilyNames(), ", ")+")"),

		DataFile: flag.String("data", "", "Path to historical data file (overrides symbol/interval lookup)"),
		DataRoot: flag.String("data-root", "data", "Data root directory"),
		Exchange: flag.String("exchange", "bybit", "Exchange directory under the data root"),
		Symbol:   flag.String("symbol", "BTCUSDT", "Trading symbol"),
		Interval: flag.String("interval", "1h", "Data interval (5m, 15m, 1h, 4h, 1d)"),
		Period:   flag.String("period", "", "Limit data to a trailing period (7d, 30d, 8w)"),

		InSampleBars:    flag.Int("is-bars", wf.InSampleBars, "In-sample window length in bars"),
		OutOfSampleBars: flag.Int("oos-bars", wf.OutOfSampleBars, "Out-of-sample window length in bars"),
		Stride:          flag.Int("stride", wf.Stride, "Bars to advance between windows (0 = out-of-sample length)"),
		Metric:          flag.String("metric", string(wf.Metric), "In-sample selection metric (total_return, sharpe_ratio, win_rate, max_drawdown)"),

		MinSharpe:   flag.Float64("min-sharpe", wf.Thresholds.MinSharpe, "Minimum out-of-sample Sharpe for a valid window"),
		MaxDrawdown: flag.Float64("max-dd", wf.Thresholds.MaxDrawdown, "Maximum out-of-sample drawdown for a valid window"),
		MinReturn:   flag.Float64("min-return", wf.Thresholds.MinReturn, "Minimum out-of-sample return for a valid window"),
		MinWinRate:  flag.Float64("min-winrate", wf.Thresholds.MinWinRate, "Minimum out-of-sample win rate for a valid window"),

		Balance:    flag.Float64("balance", eng.InitialCapital, "Initial capital"),
		Commission: flag.Float64("commission", eng.Commission, "Commission per fill (0.001 = 10 bps)"),
		Slippage:   flag.Float64("slippage", eng.Slippage, "Slippage per fill"),

		Workers: flag.Int("workers", 0, "Parallel candidate backtests per window (0 = NumCPU)"),

		OutputDir:   flag.String("output", "", "Report directory (default results/{SYMBOL}_{interval})"),
		ConsoleOnly: flag.Bool("console-only", false, "Console output only, no report files"),

		Common: common.RegisterCommonFlags(),
	}
}

// Validate rejects flag combinations before any work starts. Window and
// threshold values go through walkforward.Config validation later.
func (f *Flags) Validate() error {
	if *f.DataFile == "" && (*f.Symbol == "" || *f.Interval == "") {
		return fmt.Errorf("need either -data or -symbol with -interval")
	}
	if *f.Period != "" {
		if _, ok := data.ParseTrailingPeriod(*f.Period); !ok {
			return fmt.Errorf("invalid period %q (use forms like 7d, 12h, 8w)", *f.Period)
		}
	}
	if *f.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got: %d", *f.Workers)
	}
	return nil
}

func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}
