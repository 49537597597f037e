package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/quantloop/stratlab/internal/backtest"
)

const timeLayout = "2006-01-02 15:04:05"

// WriteTradesCSV writes the trade log to path. An .xlsx path delegates to
// the workbook writer instead.
func WriteTradesCSV(perf *backtest.Performance, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return WriteWorkbook(perf, path)
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"Entry_Time", "Exit_Time", "Entry_Price", "Exit_Price", "Quantity", "PnL", "Commission", "Reason", "Win_Loss"}
	if err := w.Write(header); err != nil {
		return err
	}

	var totalPnL float64
	for _, t := range perf.Trades {
		totalPnL += t.PnL
		winLoss := "W"
		if !t.Win() {
			winLoss = "L"
		}
		row := []string{
			t.EntryTime.Format(timeLayout),
			t.ExitTime.Format(timeLayout),
			fmt.Sprintf("%.8f", t.EntryPrice),
			fmt.Sprintf("%.8f", t.ExitPrice),
			fmt.Sprintf("%.8f", t.Quantity),
			fmt.Sprintf("%.4f", t.PnL),
			fmt.Sprintf("%.4f", t.Commission),
			t.Reason,
			winLoss,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	summary := make([]string, len(header))
	summary[len(summary)-1] = fmt.Sprintf("SUMMARY: trades=%d; total_pnl=%.4f; win_rate=%.1f%%",
		perf.TotalTrades, totalPnL, perf.WinRate*100)
	return w.Write(summary)
}

// WriteEquityCSV writes the equity curve to path, one bar per row.
func WriteEquityCSV(perf *backtest.Performance, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Timestamp", "Equity"}); err != nil {
		return err
	}
	for _, p := range perf.EquityCurve {
		if err := w.Write([]string{p.Timestamp.Format(timeLayout), fmt.Sprintf("%.4f", p.Equity)}); err != nil {
			return err
		}
	}
	return nil
}
