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
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/pkg/data"
	"github.com/quantloop/stratlab/pkg/reporting"
	"github.com/quantloop/stratlab/pkg/types"
)

const appName = "stratlab backtest"

// fileConfig is the JSON config file shape. Omitted engine fields keep their
// defaults; explicit flags override the file.
type fileConfig struct {
	Strategy string              `json:"strategy"`
	Params   strategy.Parameters `json:"params"`
	Backtest backtest.Config     `json:"backtest"`
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

	cfg, familyName, params, err := resolveConfig(flags)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	strat, err := buildStrategy(familyName, params)
	if err != nil {
		logger.Fatal().Err(err).Msg("strategy error")
	}

	bars, err := loadBars(flags, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("data error")
	}

	engine := backtest.NewEngine(cfg)
	engine.SetLogger(logger)

	perf, err := engine.Run(strat, bars)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest failed")
	}

	reporting.NewConsole().PrintPerformance(perf)

	if !*flags.ConsoleOnly {
		dir := *flags.OutputDir
		if dir == "" {
			dir = reporting.DefaultOutputDir(*flags.Symbol, *flags.Interval)
		}
		if err := writeReports(perf, dir, logger); err != nil {
			logger.Fatal().Err(err).Msg("report writing failed")
		}
	}
}

// resolveConfig merges defaults, the optional config file, and explicit
// flags, in that order.
func resolveConfig(flags *Flags) (backtest.Config, string, strategy.Parameters, error) {
	cfg := backtest.DefaultConfig()
	familyName := *flags.Strategy
	params := strategy.Parameters{}

	if *flags.ConfigFile != "" {
		fc := fileConfig{Backtest: cfg}
		raw, err := os.ReadFile(*flags.ConfigFile)
		if err != nil {
			return cfg, "", nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(raw, &fc); err != nil {
			return cfg, "", nil, fmt.Errorf("parse config file %s: %w", *flags.ConfigFile, err)
		}
		cfg = fc.Backtest
		if fc.Strategy != "" {
			familyName = fc.Strategy
		}
		for k, v := range fc.Params {
			params[k] = v
		}
	}

	set := setFlags()
	if set["strategy"] {
		familyName = *flags.Strategy
	}
	if set["balance"] {
		cfg.InitialCapital = *flags.Balance
	}
	if set["commission"] {
		cfg.Commission = *flags.Commission
	}
	if set["slippage"] {
		cfg.Slippage = *flags.Slippage
	}
	if set["max-position"] {
		cfg.MaxPositionSize = *flags.MaxPosition
	}
	if set["stop-loss"] {
		cfg.StopLoss = *flags.StopLoss
	}
	if set["take-profit"] {
		cfg.TakeProfit = *flags.TakeProfit
	}
	if set["risk-free"] {
		cfg.RiskFreeRate = *flags.RiskFree
	}

	overrides, err := common.ParseParams(*flags.Params)
	if err != nil {
		return cfg, "", nil, err
	}
	for k, v := range overrides {
		params[k] = v
	}

	return cfg, familyName, params, nil
}

// buildStrategy instantiates a family with its defaults overlaid by the
// requested parameters.
func buildStrategy(familyName string, params strategy.Parameters) (strategy.Strategy, error) {
	family, err := strategy.FamilyByName(familyName)
	if err != nil {
		return nil, err
	}
	merged := family.Defaults()
	for k, v := range params {
		merged[k] = v
	}
	return family.New(merged)
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

func writeReports(perf *backtest.Performance, dir string, logger zerolog.Logger) error {
	if err := reporting.WriteJSON(perf, filepath.Join(dir, "performance.json")); err != nil {
		return err
	}
	if err := reporting.WriteTradesCSV(perf, filepath.Join(dir, "trades.csv")); err != nil {
		return err
	}
	if err := reporting.WriteEquityCSV(perf, filepath.Join(dir, "equity.csv")); err != nil {
		return err
	}
	if err := reporting.WriteWorkbook(perf, filepath.Join(dir, "report.xlsx")); err != nil {
		return err
	}
	logger.Info().Str("dir", dir).Msg("reports written")
	return nil
}
