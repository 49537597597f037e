package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/cmd/common"
	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/portfolio"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/data"
	"github.com/quantloop/stratlab/pkg/reporting"
	"github.com/quantloop/stratlab/pkg/types"
)

const appName = "stratlab portfolio"

// memberConfig is one portfolio member in the config file. A zero or
// omitted weight counts as an equal share.
type memberConfig struct {
	Strategy string              `json:"strategy"`
	Weight   float64             `json:"weight,omitempty"`
	Params   strategy.Parameters `json:"params,omitempty"`
}

type portfolioConfig struct {
	Name                 string         `json:"name"`
	CorrelationThreshold float64        `json:"correlation_threshold,omitempty"`
	RebalanceBars        int            `json:"rebalance_bars,omitempty"`
	Members              []memberConfig `json:"members"`
}

// fileConfig is the JSON config file shape. Omitted engine fields keep their
// defaults; explicit flags override the file.
type fileConfig struct {
	Portfolio portfolioConfig `json:"portfolio"`
	Backtest  backtest.Config `json:"backtest"`
	Draws     int             `json:"draws,omitempty"`
	Seed      int64           `json:"seed,omitempty"`
}

func main() {
	flags := NewFlags()
	flag.Parse()

	if flags.Common.HandleVersion(appName) {
		return
	}

	logger := common.SetupLogger(*flags.Common.Debug)
	if err := flags.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid flags")
	}

	common.LoadEnv(*flags.Common.EnvFile, logger)
	common.ServeMonitoring(*flags.Common.MetricsAddr, nil, logger)

	cfg, err := resolveConfig(flags)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	p, err := buildPortfolio(cfg.Portfolio)
	if err != nil {
		logger.Fatal().Err(err).Msg("portfolio error")
	}

	bars, err := loadBars(flags, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("data error")
	}

	composer := portfolio.NewComposer(cfg.Backtest)
	composer.SetLogger(logger)
	if cfg.Draws > 0 {
		composer.SetDraws(cfg.Draws)
	}
	if cfg.Seed != 0 {
		composer.SetSeed(cfg.Seed)
	}
	if *flags.Workers > 0 {
		composer.SetWorkers(*flags.Workers)
	}

	perf, err := composer.BacktestPortfolio(p, bars)
	if err != nil {
		logger.Fatal().Err(err).Msg("portfolio backtest failed")
	}

	console := reporting.NewConsole()
	console.PrintPortfolio(perf)

	dir := *flags.OutputDir
	if dir == "" {
		dir = reporting.DefaultOutputDir(*flags.Symbol, *flags.Interval)
	}

	if !*flags.ConsoleOnly {
		if err := reporting.WriteJSON(perf, filepath.Join(dir, "portfolio.json")); err != nil {
			logger.Fatal().Err(err).Msg("report writing failed")
		}
	}

	if *flags.Rebalance {
		report, err := composer.Rebalance(p, bars)
		if err != nil {
			logger.Fatal().Err(err).Msg("rebalance failed")
		}
		console.PrintRebalance(report)
		if !*flags.ConsoleOnly {
			if err := reporting.WriteJSON(report, filepath.Join(dir, "rebalance.json")); err != nil {
				logger.Fatal().Err(err).Msg("report writing failed")
			}
		}
	}

	if !*flags.ConsoleOnly {
		logger.Info().Str("dir", dir).Msg("reports written")
	}
}

// resolveConfig merges defaults, the optional config file, and explicit
// flags, in that order. The -strategies flag replaces any file members.
func resolveConfig(flags *Flags) (fileConfig, error) {
	fc := fileConfig{
		Portfolio: portfolioConfig{
			Name:                 *flags.Name,
			CorrelationThreshold: *flags.CorrelationThreshold,
			RebalanceBars:        *flags.RebalanceBars,
		},
		Backtest: backtest.DefaultConfig(),
	}

	if *flags.ConfigFile != "" {
		raw, err := os.ReadFile(*flags.ConfigFile)
		if err != nil {
			return fc, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(raw, &fc); err != nil {
			return fc, fmt.Errorf("parse config file %s: %w", *flags.ConfigFile, err)
		}
	}

	set := setFlags()
	if set["name"] {
		fc.Portfolio.Name = *flags.Name
	}
	if set["correlation-threshold"] {
		fc.Portfolio.CorrelationThreshold = *flags.CorrelationThreshold
	}
	if set["rebalance-bars"] {
		fc.Portfolio.RebalanceBars = *flags.RebalanceBars
	}
	if set["balance"] {
		fc.Backtest.InitialCapital = *flags.Balance
	}
	if set["commission"] {
		fc.Backtest.Commission = *flags.Commission
	}
	if set["slippage"] {
		fc.Backtest.Slippage = *flags.Slippage
	}
	if set["draws"] {
		fc.Draws = *flags.Draws
	}
	if set["seed"] {
		fc.Seed = *flags.Seed
	}

	if *flags.Strategies != "" {
		members, err := parseMembers(*flags.Strategies)
		if err != nil {
			return fc, err
		}
		fc.Portfolio.Members = members
	}

	if len(fc.Portfolio.Members) == 0 {
		return fc, fmt.Errorf("config file %s names no portfolio members", *flags.ConfigFile)
	}

	return fc, nil
}

// buildPortfolio instantiates every member and registers it with its
// relative weight.
func buildPortfolio(cfg portfolioConfig) (*portfolio.Portfolio, error) {
	name := cfg.Name
	if name == "" {
		name = "portfolio"
	}
	p := portfolio.New(name)

	for _, m := range cfg.Members {
		family, err := strategy.FamilyByName(m.Strategy)
		if err != nil {
			return nil, err
		}
		params := family.Defaults()
		for k, v := range m.Params {
			params[k] = v
		}
		strat, err := family.New(params)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Strategy, err)
		}
		weight := m.Weight
		if weight == 0 {
			weight = 1
		}
		if err := p.Add(strat, weight); err != nil {
			return nil, err
		}
	}

	if err := p.SetCorrelationThreshold(cfg.CorrelationThreshold); err != nil {
		return nil, err
	}
	p.SetRebalanceBars(cfg.RebalanceBars)

	return p, nil
}

func loadBars(flags *Flags, logger zerolog.Logger) ([]types.OHLCV, error) {
	manager := data.NewManager()

	source := *flags.DataFile
	if source == "" {
		source = manager.Resolve(*flags.DataRoot, *flags.Exchange, *flags.Symbol, *flags.Interval)
		if source == "" {
			return nil, fmt.Errorf("no data for %s %s under %s/%s; run fetch-data first",
				*flags.Symbol, *flags.Interval, *flags.DataRoot, *flags.Exchange)
		}
	}

	bars, err := manager.Load(source)
	if err != nil {
		return nil, err
	}

	if *flags.Period != "" {
		d, _ := data.ParseTrailingPeriod(*flags.Period)
		bars = manager.Filter().LastPeriod(bars, d)
	}

	logger.Info().Str("source", source).Int("bars", len(bars)).Msg("data loaded")
	return bars, nil
}
