package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantloop/stratlab/cmd/common"
	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/data"
)

// Flags holds the command line flags for the portfolio command.
type Flags struct {
	// Configuration
	ConfigFile *string
	Name       *string
	Strategies *string

	// Portfolio settings
	CorrelationThreshold *float64
	RebalanceBars        *int

	// Weight search
	Rebalance *bool
	Draws     *int
	Seed      *int64
	Workers   *int

	// Data selection
	DataFile *string
	DataRoot *string
	Exchange *string
	Symbol   *string
	Interval *string
	Period   *string

	// Engine settings
	Balance    *float64
	Commission *float64
	Slippage   *float64

	// Output
	OutputDir   *string
	ConsoleOnly *bool

	Common *common.CommonFlags
}

// NewFlags registers all portfolio flags with the default flag set.
func NewFlags() *Flags {
	eng := backtest.DefaultConfig()

	return &Flags{
		ConfigFile: flag.String("config", "", "Path to JSON configuration file"),
		Name:       flag.String("name", "portfolio", "Portfolio name used in reports"),
		Strategies: flag.String("strategies", "", "Members as name:weight pairs (e.g. momentum:0.6,meanreversion:0.4); weight defaults to an equal share"),

		CorrelationThreshold: flag.Float64("correlation-threshold", 0.7, "Pairwise correlation ceiling during weight search"),
		RebalanceBars:        flag.Int("rebalance-bars", 0, "Advisory rebalance cadence in bars (0 = none)"),

		Rebalance: flag.Bool("rebalance", false, "Run the random weight search and apply improvements"),
		Draws:     flag.Int("draws", 0, "Weight draws to sample (0 = composer default)"),
		Seed:      flag.Int64("seed", 0, "Random seed for the weight search (0 = time-seeded)"),
		Workers:   flag.Int("workers", 0, "Parallel member backtests (0 = NumCPU)"),

		DataFile: flag.String("data", "", "Path to historical data file (overrides symbol/interval lookup)"),
		DataRoot: flag.String("data-root", "data", "Data root directory"),
		Exchange: flag.String("exchange", "bybit", "Exchange directory under the data root"),
		Symbol:   flag.String("symbol", "BTCUSDT", "Trading symbol"),
		Interval: flag.String("interval", "1h", "Data interval (5m, 15m, 1h, 4h, 1d)"),
		Period:   flag.String("period", "", "Limit data to a trailing period (7d, 30d, 8w)"),

		Balance:    flag.Float64("balance", eng.InitialCapital, "Initial capital"),
		Commission: flag.Float64("commission", eng.Commission, "Commission per fill (0.001 = 10 bps)"),
		Slippage:   flag.Float64("slippage", eng.Slippage, "Slippage per fill"),

		OutputDir:   flag.String("output", "", "Report directory (default results/{SYMBOL}_{interval})"),
		ConsoleOnly: flag.Bool("console-only", false, "Console output only, no report files"),

		Common: common.RegisterCommonFlags(),
	}
}

// Validate rejects flag combinations before any work starts.
func (f *Flags) Validate() error {
	if *f.ConfigFile == "" && strings.TrimSpace(*f.Strategies) == "" {
		return fmt.Errorf("need -strategies or a -config file naming the members")
	}
	if *f.DataFile == "" && (*f.Symbol == "" || *f.Interval == "") {
		return fmt.Errorf("need either -data or -symbol with -interval")
	}
	if *f.Period != "" {
		if _, ok := data.ParseTrailingPeriod(*f.Period); !ok {
			return fmt.Errorf("invalid period %q (use forms like 7d, 12h, 8w)", *f.Period)
		}
	}
	if *f.Draws < 0 {
		return fmt.Errorf("draws must be non-negative, got: %d", *f.Draws)
	}
	if *f.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got: %d", *f.Workers)
	}
	return nil
}

// parseMembers reads the -strategies flag into member specs. A bare name
// gets weight 1; relative weights are normalized by the portfolio.
func parseMembers(s string) ([]memberConfig, error) {
	var members []memberConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, raw, hasWeight := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if _, err := strategy.FamilyByName(name); err != nil {
			return nil, err
		}
		weight := 1.0
		if hasWeight {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("weight for %s: %w", name, err)
			}
			weight = v
		}
		members = append(members, memberConfig{Strategy: name, Weight: weight})
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no members in %q", s)
	}
	return members, nil
}

func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}
