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
	"github.com/quantloop/stratlab/internal/monitoring"
	"github.com/quantloop/stratlab/internal/strategy"
	"github.com/quantloop/stratlab/internal/walkforward"
	"github.com/quantloop/stratlab/pkg/data"
	"github.com/quantloop/stratlab/pkg/reporting"
	"github.com/quantloop/stratlab/pkg/types"
)

const appName = "stratlab walkforward"

type fileConfig struct {
	Strategy    string             `json:"strategy"`
	Backtest    backtest.Config    `json:"backtest"`
	Walkforward walkforward.Config `json:"walkforward"`
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

	progress := monitoring.NewProgress()
	common.ServeMonitoring(*flags.Common.MetricsAddr, progress, logger)

	wfCfg, engCfg, familyName, err := resolveConfig(flags)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	family, err := strategy.FamilyByName(familyName)
	if err != nil {
		logger.Fatal().Err(err).Msg("strategy error")
	}

	bars, err := loadBars(flags, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("data error")
	}

	validator := walkforward.NewValidator(wfCfg, engCfg)
	validator.SetLogger(logger)
	if *flags.Workers > 0 {
		validator.SetWorkers(*flags.Workers)
	}

	progress.Begin("walkforward", 0)
	validator.OnProgress(func(done, total int) {
		progress.Step(done, total)
		if done > 0 {
			logger.Info().Int("done", done).Int("total", total).Msg("window evaluated")
		}
	})

	result, err := validator.Evaluate(family, bars)
	if err != nil {
		logger.Fatal().Err(err).Msg("walk-forward failed")
	}

	reporting.NewConsole().PrintWalkforward(result)

	if !*flags.ConsoleOnly {
		dir := *flags.OutputDir
		if dir == "" {
			dir = reporting.DefaultOutputDir(*flags.Symbol, *flags.Interval)
		}
		if err := writeReports(result, dir, logger); err != nil {
			logger.Fatal().Err(err).Msg("report writing failed")
		}
	}
}

func resolveConfig(flags *Flags) (walkforward.Config, backtest.Config, string, error) {
	wfCfg := walkforward.DefaultConfig()
	engCfg := backtest.DefaultConfig()
	familyName := *flags.Strategy

	if *flags.ConfigFile != "" {
		fc := fileConfig{Backtest: engCfg, Walkforward: wfCfg}
		raw, err := os.ReadFile(*flags.ConfigFile)
		if err != nil {
			return wfCfg, engCfg, "", fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(raw, &fc); err != nil {
			return wfCfg, engCfg, "", fmt.Errorf("parse config file %s: %w", *flags.ConfigFile, err)
		}
		wfCfg = fc.Walkforward
		engCfg = fc.Backtest
		if fc.Strategy != "" {
			familyName = fc.Strategy
		}
	}

	set := setFlags()
	if set["strategy"] {
		familyName = *flags.Strategy
	}
	if set["is-bars"] {
		wfCfg.InSampleBars = *flags.InSampleBars
	}
	if set["oos-bars"] {
		wfCfg.OutOfSampleBars = *flags.OutOfSampleBars
	}
	if set["stride"] {
		wfCfg.Stride = *flags.Stride
	}
	if set["metric"] {
		wfCfg.Metric = walkforward.Metric(*flags.Metric)
	}
	if set["min-sharpe"] {
		wfCfg.Thresholds.MinSharpe = *flags.MinSharpe
	}
	if set["max-dd"] {
		wfCfg.Thresholds.MaxDrawdown = *flags.MaxDrawdown
	}
	if set["min-return"] {
		wfCfg.Thresholds.MinReturn = *flags.MinReturn
	}
	if set["min-winrate"] {
		wfCfg.Thresholds.MinWinRate = *flags.MinWinRate
	}
	if set["balance"] {
		engCfg.InitialCapital = *flags.Balance
	}
	if set["commission"] {
		engCfg.Commission = *flags.Commission
	}
	if set["slippage"] {
		engCfg.Slippage = *flags.Slippage
	}

	return wfCfg, engCfg, familyName, nil
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

func writeReports(result *walkforward.Result, dir string, logger zerolog.Logger) error {
	if err := reporting.WriteJSON(result, filepath.Join(dir, "walkforward.json")); err != nil {
		return err
	}
	if err := reporting.WriteWalkforwardXLSX(result, filepath.Join(dir, "walkforward.xlsx")); err != nil {
		return err
	}
	logger.Info().Str("dir", dir).Msg("reports written")
	return nil
}
