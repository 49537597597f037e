package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/quantloop/stratlab/cmd/common"
	"github.com/quantloop/stratlab/internal/exchange/bybit"
)

// Flags holds the command line flags for the fetch-data command.
type Flags struct {
	// Single-series selection
	Symbol   *string
	Interval *string
	Category *string

	// Batch selection, each overriding its single counterpart when set
	Symbols    *string
	Intervals  *string
	Categories *string

	// Time window
	Start *string
	End   *string

	// Output
	OutDir *string
	Output *string

	Testnet *bool

	Common *common.CommonFlags
}

// NewFlags registers all fetch-data flags with the default flag set.
func NewFlags() *Flags {
	return &Flags{
		Symbol:   flag.String("symbol", "BTCUSDT", "Trading symbol"),
		Interval: flag.String("interval", "1h", "Kline interval (1m, 5m, 15m, 1h, 4h, 1d, 1w)"),
		Category: flag.String("category", "spot", "Market category (spot, linear, inverse)"),

		Symbols:    flag.String("symbols", "", "Comma-separated symbols (overrides -symbol)"),
		Intervals:  flag.String("intervals", "", "Comma-separated intervals (overrides -interval)"),
		Categories: flag.String("categories", "", "Comma-separated categories (overrides -category)"),

		Start: flag.String("start", "", "Start date YYYY-MM-DD (default one year before -end)"),
		End:   flag.String("end", "", "End date YYYY-MM-DD, inclusive (default now)"),

		OutDir: flag.String("outdir", "data", "Data root directory for the canonical layout"),
		Output: flag.String("output", "", "Explicit output file (single series only)"),

		Testnet: flag.Bool("testnet", false, "Fetch from the Bybit testnet"),

		Common: common.RegisterCommonFlags(),
	}
}

// Validate rejects flag combinations before any work starts. Date parsing
// happens in Window.
func (f *Flags) Validate() error {
	symbols := splitList(*f.Symbols, *f.Symbol)
	intervals := splitList(*f.Intervals, *f.Interval)
	categories := splitList(*f.Categories, *f.Category)

	if len(symbols) == 0 || len(intervals) == 0 || len(categories) == 0 {
		return fmt.Errorf("need at least one symbol, interval and category")
	}
	for _, interval := range intervals {
		if _, err := bybit.ParseInterval(interval); err != nil {
			return err
		}
	}
	if *f.Output != "" && (len(symbols) > 1 || len(intervals) > 1 || len(categories) > 1) {
		return fmt.Errorf("-output needs a single symbol, interval and category")
	}
	return nil
}

// Window resolves the fetch window. Dates are whole days and the end date
// is inclusive.
func (f *Flags) Window(now time.Time) (time.Time, time.Time, error) {
	end := now
	if *f.End != "" {
		parsed, err := time.Parse("2006-01-02", *f.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q (use YYYY-MM-DD)", *f.End)
		}
		end = parsed.AddDate(0, 0, 1).Add(-time.Millisecond)
	}

	start := end.AddDate(-1, 0, 0)
	if *f.Start != "" {
		parsed, err := time.Parse("2006-01-02", *f.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q (use YYYY-MM-DD)", *f.Start)
		}
		start = parsed
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

// splitList splits a comma list, falling back to single when multi is
// empty. Blank items are dropped.
func splitList(multi, single string) []string {
	raw := multi
	if strings.TrimSpace(raw) == "" {
		raw = single
	}

	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
