package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/stratlab/internal/models"
)

// GenerateConsoleReport formats a completed result for terminal output
func GenerateConsoleReport(result models.BacktestResult) string {
	var builder strings.Builder
	builder.WriteString("Walk-Forward Backtest Report\n")
	builder.WriteString("============================\n")
	builder.WriteString(fmt.Sprintf("Folds: %d\n", result.Metrics.FoldCount))
	builder.WriteString(fmt.Sprintf("Total Trades: %d\n", result.Metrics.TotalTrades))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f%%\n", result.Metrics.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("Annualized Return: %.2f%%\n", result.Metrics.AnnualizedReturn*100))
	builder.WriteString(fmt.Sprintf("Volatility: %.2f%%\n", result.Metrics.Volatility*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", result.Metrics.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", result.Metrics.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%%\n", result.Metrics.WinRate*100))
	builder.WriteString(fmt.Sprintf("Benchmark Relative: %.2f%%\n", result.Metrics.BenchmarkRelativeReturn*100))
	builder.WriteString(fmt.Sprintf("Consistency Score: %.2f\n", result.Metrics.ConsistencyScore))
	if result.MonteCarlo != nil {
		builder.WriteString(fmt.Sprintf("Monte Carlo VaR 95: %.2f%%\n", result.MonteCarlo.VaR95*100))
		builder.WriteString(fmt.Sprintf("Monte Carlo VaR 99: %.2f%%\n", result.MonteCarlo.VaR99*100))
	}
	if result.Partial {
		builder.WriteString("NOTE: result is partial, the job did not run to completion\n")
	}
	for _, warning := range result.Warnings {
		builder.WriteString("WARNING: " + warning + "\n")
	}
	return builder.String()
}

// WriteJSONReport writes the full result as indented JSON
func WriteJSONReport(result models.BacktestResult, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// WriteEquityCSV exports the combined equity curve for spreadsheets
func WriteEquityCSV(result models.BacktestResult, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	curve := EquityCurve(result.EquityCurve)
	return os.WriteFile(outputPath, []byte(curve.ToCSV()), 0o644)
}
