package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/walkforward"
)

type workbookStyles struct {
	header   int
	currency int
	percent  int
	number   int
}

func newWorkbookStyles(fx *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error

	s.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, err
	}

	s.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, err
	}

	s.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, err
	}

	s.number, err = fx.NewStyle(&excelize.Style{
		NumFmt:    2,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	return s, err
}

func writeHeaderRow(fx *excelize.File, sheet string, style int, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, style)
	}
}

// WriteWorkbook writes one backtest report as an xlsx workbook with Summary,
// Trades and Equity sheets.
func WriteWorkbook(perf *backtest.Performance, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const tradesSheet = "Trades"
	const equitySheet = "Equity"
	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(tradesSheet)
	fx.NewSheet(equitySheet)

	styles, err := newWorkbookStyles(fx)
	if err != nil {
		return err
	}

	writeSummarySheet(fx, summarySheet, perf, styles)
	writeTradesSheet(fx, tradesSheet, perf, styles)
	writeEquitySheet(fx, equitySheet, perf, styles)

	return fx.SaveAs(path)
}

func writeSummarySheet(fx *excelize.File, sheet string, perf *backtest.Performance, styles workbookStyles) {
	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "B", "B", 26)
	writeHeaderRow(fx, sheet, styles.header, []string{"Metric", "Value"})

	rows := []struct {
		label string
		value any
		style int
	}{
		{"Strategy", perf.Strategy, 0},
		{"Period Start", perf.Period.Start.Format(timeLayout), 0},
		{"Period End", perf.Period.End.Format(timeLayout), 0},
		{"Bars", perf.Period.Bars, 0},
		{"Initial Capital", perf.InitialCapital, styles.currency},
		{"Final Capital", perf.FinalCapital, styles.currency},
		{"Total Return", perf.TotalReturn, styles.percent},
		{"Annualized Return", perf.AnnualizedReturn, styles.percent},
		{"Volatility", perf.Volatility, styles.percent},
		{"Sharpe Ratio", perf.SharpeRatio, styles.number},
		{"Sortino Ratio", perf.SortinoRatio, styles.number},
		{"Calmar Ratio", perf.CalmarRatio, styles.number},
		{"Max Drawdown", perf.MaxDrawdown, styles.percent},
		{"Win Rate", perf.WinRate, styles.percent},
		{"Profit Factor", perf.ProfitFactor, styles.number},
		{"Total Trades", perf.TotalTrades, 0},
		{"Winning Trades", perf.WinningTrades, 0},
		{"Losing Trades", perf.LosingTrades, 0},
	}
	for i, r := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+2)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+2)
		fx.SetCellValue(sheet, labelCell, r.label)
		fx.SetCellValue(sheet, valueCell, r.value)
		if r.style != 0 {
			fx.SetCellStyle(sheet, valueCell, valueCell, r.style)
		}
	}
}

func writeTradesSheet(fx *excelize.File, sheet string, perf *backtest.Performance, styles workbookStyles) {
	fx.SetColWidth(sheet, "A", "B", 20)
	fx.SetColWidth(sheet, "C", "G", 14)
	fx.SetColWidth(sheet, "H", "H", 16)
	writeHeaderRow(fx, sheet, styles.header, []string{
		"Entry Time", "Exit Time", "Entry Price", "Exit Price", "Quantity", "PnL", "Commission", "Reason",
	})

	for i, t := range perf.Trades {
		row := i + 2
		values := []any{
			t.EntryTime.Format(timeLayout),
			t.ExitTime.Format(timeLayout),
			t.EntryPrice,
			t.ExitPrice,
			t.Quantity,
			t.PnL,
			t.Commission,
			t.Reason,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		pnlCell, _ := excelize.CoordinatesToCellName(6, row)
		fx.SetCellStyle(sheet, pnlCell, pnlCell, styles.currency)
	}
}

func writeEquitySheet(fx *excelize.File, sheet string, perf *backtest.Performance, styles workbookStyles) {
	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "B", 16)
	writeHeaderRow(fx, sheet, styles.header, []string{"Timestamp", "Equity"})

	for i, p := range perf.EquityCurve {
		tsCell, _ := excelize.CoordinatesToCellName(1, i+2)
		eqCell, _ := excelize.CoordinatesToCellName(2, i+2)
		fx.SetCellValue(sheet, tsCell, p.Timestamp.Format(timeLayout))
		fx.SetCellValue(sheet, eqCell, p.Equity)
		fx.SetCellStyle(sheet, eqCell, eqCell, styles.currency)
	}
}

// WriteWalkforwardXLSX writes a walk-forward result as an xlsx workbook with
// Summary and Windows sheets.
func WriteWalkforwardXLSX(res *walkforward.Result, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const windowsSheet = "Windows"
	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(windowsSheet)

	styles, err := newWorkbookStyles(fx)
	if err != nil {
		return err
	}

	fx.SetColWidth(summarySheet, "A", "A", 24)
	fx.SetColWidth(summarySheet, "B", "B", 26)
	writeHeaderRow(fx, summarySheet, styles.header, []string{"Metric", "Value"})
	summary := []struct {
		label string
		value any
	}{
		{"Strategy", res.Strategy},
		{"In-Sample Bars", res.Config.InSampleBars},
		{"Out-of-Sample Bars", res.Config.OutOfSampleBars},
		{"Stride", res.Config.Stride},
		{"Metric", string(res.Config.Metric)},
		{"Windows", len(res.Windows)},
		{"Valid Windows", res.ValidWindows},
		{"Avg IS Sharpe", res.AvgInSampleSharpe},
		{"Avg OOS Sharpe", res.AvgOutOfSampleSharpe},
		{"Avg OOS Return", res.AvgOutOfSampleReturn},
		{"Avg OOS Drawdown", res.AvgOutOfSampleDrawdown},
		{"Avg Degradation", res.AvgDegradation},
		{"Avg Robustness", res.AvgRobustness},
	}
	for i, r := range summary {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+2)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+2)
		fx.SetCellValue(summarySheet, labelCell, r.label)
		fx.SetCellValue(summarySheet, valueCell, r.value)
	}
	recRow := len(summary) + 3
	for i, rec := range res.Recommendations {
		cell, _ := excelize.CoordinatesToCellName(1, recRow+i)
		fx.SetCellValue(summarySheet, cell, fmt.Sprintf("* %s", rec))
	}

	fx.SetColWidth(windowsSheet, "A", "A", 8)
	fx.SetColWidth(windowsSheet, "B", "B", 40)
	fx.SetColWidth(windowsSheet, "C", "L", 14)
	writeHeaderRow(fx, windowsSheet, styles.header, []string{
		"Window", "Params", "IS Sharpe", "OOS Sharpe", "IS Return", "OOS Return",
		"OOS Drawdown", "Degradation", "Robustness", "Valid", "Candidates", "Failures",
	})
	for i, wr := range res.Windows {
		values := []any{
			wr.Window,
			wr.Params.String(),
			wr.InSample.SharpeRatio,
			wr.OutOfSample.SharpeRatio,
			wr.InSample.TotalReturn,
			wr.OutOfSample.TotalReturn,
			wr.OutOfSample.MaxDrawdown,
			formatDegradation(wr.Degradation),
			wr.Robustness,
			wr.Valid,
			wr.Candidates,
			wr.Failures,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			fx.SetCellValue(windowsSheet, cell, v)
		}
	}

	return fx.SaveAs(path)
}
