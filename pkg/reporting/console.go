// Package reporting renders simulation results for people and for files:
// go-pretty tables on the console, JSON, CSV and xlsx workbooks on disk.
package reporting

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quantloop/stratlab/internal/backtest"
	"github.com/quantloop/stratlab/internal/portfolio"
	"github.com/quantloop/stratlab/internal/walkforward"
)

// Console renders result tables to a writer, stdout by default.
type Console struct {
	out io.Writer
}

// NewConsole returns a console reporter writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter returns a console reporter writing to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// PrintPerformance renders one backtest report.
func (c *Console) PrintPerformance(perf *backtest.Performance) {
	t := c.newTable("BACKTEST  " + perf.Strategy)

	t.AppendRows([]table.Row{
		{"Period", fmt.Sprintf("%s .. %s (%d bars)",
			perf.Period.Start.Format("2006-01-02"), perf.Period.End.Format("2006-01-02"), perf.Period.Bars)},
		{"Initial Capital", fmt.Sprintf("$%.2f", perf.InitialCapital)},
		{"Final Capital", fmt.Sprintf("$%.2f", perf.FinalCapital)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Total Return", fmt.Sprintf("%.2f%%", perf.TotalReturn*100)},
		{"Annualized Return", fmt.Sprintf("%.2f%%", perf.AnnualizedReturn*100)},
		{"Volatility", fmt.Sprintf("%.2f%%", perf.Volatility*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", perf.SharpeRatio)},
		{"Sortino Ratio", fmt.Sprintf("%.2f", perf.SortinoRatio)},
		{"Calmar Ratio", fmt.Sprintf("%.2f", perf.CalmarRatio)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", perf.MaxDrawdown*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Trades", fmt.Sprintf("%d (%d won / %d lost)", perf.TotalTrades, perf.WinningTrades, perf.LosingTrades)},
		{"Win Rate", fmt.Sprintf("%.1f%%", perf.WinRate*100)},
		{"Profit Factor", fmt.Sprintf("%.2f", perf.ProfitFactor)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 28, WidthMax: 44, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(c.out)
}

// PrintPortfolio renders a combined portfolio report with per-member weights
// and the correlation matrix behind the volatility figure.
func (c *Console) PrintPortfolio(perf *portfolio.Performance) {
	t := c.newTable("PORTFOLIO  " + perf.Name)

	t.AppendRows([]table.Row{
		{"Total Return", fmt.Sprintf("%.2f%%", perf.TotalReturn*100)},
		{"Annualized Return", fmt.Sprintf("%.2f%%", perf.AnnualizedReturn*100)},
		{"Volatility", fmt.Sprintf("%.2f%%", perf.Volatility*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", perf.SharpeRatio)},
		{"Max Drawdown", fmt.Sprintf("%.2f%% (worst: %s)", perf.MaxDrawdown*100, perf.WorstStrategy)},
	})
	t.AppendSeparator()
	for _, name := range perf.Correlations.Labels {
		t.AppendRow(table.Row{"Weight " + name, fmt.Sprintf("%.4f", perf.Weights[name])})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(c.out)

	c.printCorrelations(perf)
}

func (c *Console) printCorrelations(perf *portfolio.Performance) {
	labels := perf.Correlations.Labels
	if len(labels) < 2 {
		return
	}

	t := c.newTable("CORRELATIONS")
	header := table.Row{""}
	for _, name := range labels {
		header = append(header, name)
	}
	t.AppendHeader(header)
	for i, name := range labels {
		row := table.Row{name}
		for j := range labels {
			row = append(row, fmt.Sprintf("%.2f", perf.Correlations.At(i, j)))
		}
		t.AppendRow(row)
	}
	t.Render()
	fmt.Fprintln(c.out)
}

// PrintRebalance renders a weight search outcome next to the incumbent.
func (c *Console) PrintRebalance(rep *portfolio.RebalanceReport) {
	t := c.newTable("REBALANCE  " + rep.After.Name)

	t.AppendRows([]table.Row{
		{"Sharpe Before", fmt.Sprintf("%.3f", rep.Before.SharpeRatio)},
		{"Sharpe After", fmt.Sprintf("%.3f", rep.After.SharpeRatio)},
		{"Sharpe Delta", fmt.Sprintf("%+.3f", rep.SharpeDelta)},
		{"Weights Changed", fmt.Sprintf("%t", rep.Changed)},
		{"Draws Evaluated", fmt.Sprintf("%d (%d accepted)", rep.Search.Evaluated, rep.Search.Accepted)},
	})
	t.AppendSeparator()
	names := make([]string, 0, len(rep.Search.Weights))
	for name := range rep.Search.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{"Weight " + name, fmt.Sprintf("%.4f  (was %.4f)", rep.Search.Weights[name], rep.Before.Weights[name])})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(c.out)
}

// PrintWalkforward renders the per-window table and the aggregate verdict.
func (c *Console) PrintWalkforward(res *walkforward.Result) {
	t := c.newTable("WALK-FORWARD  " + res.Strategy)
	t.AppendHeader(table.Row{"Win", "Params", "IS Sharpe", "OOS Sharpe", "Degradation", "Robustness", "Valid"})
	for _, wr := range res.Windows {
		t.AppendRow(table.Row{
			wr.Window,
			wr.Params.String(),
			fmt.Sprintf("%.2f", wr.InSample.SharpeRatio),
			fmt.Sprintf("%.2f", wr.OutOfSample.SharpeRatio),
			formatDegradation(wr.Degradation),
			fmt.Sprintf("%.2f", wr.Robustness),
			wr.Valid,
		})
	}
	t.Render()
	fmt.Fprintln(c.out)

	s := c.newTable("SUMMARY")
	s.AppendRows([]table.Row{
		{"Valid Windows", fmt.Sprintf("%d of %d", res.ValidWindows, len(res.Windows))},
		{"Avg IS Sharpe", fmt.Sprintf("%.2f", res.AvgInSampleSharpe)},
		{"Avg OOS Sharpe", fmt.Sprintf("%.2f", res.AvgOutOfSampleSharpe)},
		{"Avg OOS Return", fmt.Sprintf("%.2f%%", res.AvgOutOfSampleReturn*100)},
		{"Avg OOS Drawdown", fmt.Sprintf("%.2f%%", res.AvgOutOfSampleDrawdown*100)},
		{"Avg Degradation", formatDegradation(res.AvgDegradation)},
		{"Avg Robustness", fmt.Sprintf("%.2f", res.AvgRobustness)},
	})
	s.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 30, Align: text.AlignLeft},
	})
	s.Render()
	fmt.Fprintln(c.out)

	for _, rec := range res.Recommendations {
		fmt.Fprintf(c.out, "  * %s\n", rec)
	}
	if len(res.Recommendations) > 0 {
		fmt.Fprintln(c.out)
	}
}

func formatDegradation(d float64) string {
	switch {
	case math.IsInf(d, 1):
		return "+inf"
	case math.IsInf(d, -1):
		return "-inf"
	default:
		return fmt.Sprintf("%.2f", d)
	}
}
