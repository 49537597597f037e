package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/cmd/common"
	"github.com/quantloop/stratlab/internal/exchange/bybit"
	"github.com/quantloop/stratlab/pkg/data"
	"github.com/quantloop/stratlab/pkg/types"
)

const appName = "stratlab fetch-data"

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

	start, end, err := flags.Window(time.Now().UTC())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid flags")
	}

	common.LoadEnv(*flags.Common.EnvFile, logger)
	common.ServeMonitoring(*flags.Common.MetricsAddr, nil, logger)

	client := bybit.NewClient(bybit.Config{
		APIKey:    os.Getenv("BYBIT_API_KEY"),
		APISecret: os.Getenv("BYBIT_API_SECRET"),
		Testnet:   *flags.Testnet,
	})
	client.SetLogger(logger)

	symbols := splitList(*flags.Symbols, *flags.Symbol)
	intervals := splitList(*flags.Intervals, *flags.Interval)
	categories := splitList(*flags.Categories, *flags.Category)
	for i, s := range symbols {
		symbols[i] = strings.ToUpper(s)
	}
	for i, c := range categories {
		categories[i] = strings.ToLower(c)
	}

	logger.Info().
		Strs("categories", categories).
		Strs("symbols", symbols).
		Strs("intervals", intervals).
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Str("environment", client.Environment()).
		Msg("fetching bybit klines")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locator := data.NewFileLocator()

	var failed int
	for _, category := range categories {
		for _, symbol := range symbols {
			for _, interval := range intervals {
				if ctx.Err() != nil {
					logger.Fatal().Err(ctx.Err()).Msg("fetch interrupted")
				}

				path := *flags.Output
				if path == "" {
					path = locator.Path(*flags.OutDir, "bybit", category, symbol, interval)
				}

				if err := fetchOne(ctx, client, category, symbol, interval, start, end, path, logger); err != nil {
					logger.Error().Err(err).
						Str("category", category).
						Str("symbol", symbol).
						Str("interval", interval).
						Msg("series failed")
					failed++
				}
			}
		}
	}

	if failed > 0 {
		logger.Fatal().Int("failed", failed).Msg("fetch finished with failures")
	}
	logger.Info().Msg("fetch complete")
}

// fetchOne downloads one series and writes it in the layout the backtest
// binaries read.
func fetchOne(ctx context.Context, client *bybit.Client, category, symbol, interval string, start, end time.Time, path string, logger zerolog.Logger) error {
	wire, err := bybit.ParseInterval(interval)
	if err != nil {
		return err
	}

	bars, err := client.GetKlineHistory(ctx, bybit.KlineParams{
		Category: category,
		Symbol:   symbol,
		Interval: wire,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no klines for %s %s %s in window", category, symbol, interval)
	}

	if err := writeBars(path, bars); err != nil {
		return err
	}

	logger.Info().
		Str("category", category).
		Str("symbol", symbol).
		Str("interval", interval).
		Int("bars", len(bars)).
		Time("first", bars[0].Timestamp).
		Time("last", bars[len(bars)-1].Timestamp).
		Str("path", path).
		Msg("series saved")
	return nil
}

// writeBars writes the series in the default CSV format pkg/data reads.
// Floats use the shortest representation that round-trips.
func writeBars(path string, bars []types.OHLCV) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, bar := range bars {
		record := []string{
			bar.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			formatFloat(bar.Volume),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
