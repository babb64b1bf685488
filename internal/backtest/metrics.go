package backtest

import (
	"math"

	"github.com/yourusername/stratlab/internal/models"
)

// tradingDaysPerYear annualizes daily return statistics
const tradingDaysPerYear = 252

// Aggregate reduces fold results into the job's performance metrics. Folds
// are chronological, so their equity curves concatenate directly; each
// fold's curve is rebased so returns compound across folds even though
// every fold starts from a fresh portfolio.
func Aggregate(foldResults []FoldResult, benchmark []models.Bar, riskFreeRate float64) models.PerformanceMetrics {
	metrics := models.PerformanceMetrics{FoldCount: len(foldResults)}
	if len(foldResults) == 0 {
		return metrics
	}

	combined := CombineEquityCurves(foldResults)
	if len(combined) == 0 {
		return metrics
	}

	initial := combined[0].Equity
	final := combined[len(combined)-1].Equity
	if initial > 0 {
		metrics.TotalReturn = (final - initial) / initial
	}

	days := combined[len(combined)-1].Timestamp.Sub(combined[0].Timestamp).Hours() / 24
	metrics.AnnualizedReturn = annualize(initial, final, days)

	periodicVol := combined.GetVolatility()
	metrics.Volatility = periodicVol * math.Sqrt(tradingDaysPerYear)
	if metrics.Volatility > 0 {
		metrics.SharpeRatio = (metrics.AnnualizedReturn - riskFreeRate) / metrics.Volatility
	}

	metrics.MaxDrawdown = combined.MaxDrawdown()

	profitable := 0
	for _, result := range foldResults {
		metrics.TotalTrades += len(result.Trades)
		if result.Return() > 0 {
			profitable++
		}
	}
	metrics.ConsistencyScore = float64(profitable) / float64(len(foldResults))
	metrics.WinRate = winRate(foldResults)
	metrics.BenchmarkRelativeReturn = metrics.TotalReturn - benchmarkReturn(benchmark)

	return metrics
}

// CombineEquityCurves rebases each fold's curve onto the compounded equity
// at the fold boundary and concatenates them.
func CombineEquityCurves(foldResults []FoldResult) EquityCurve {
	var combined EquityCurve
	compound := 0.0

	for _, result := range foldResults {
		if len(result.EquityCurve) == 0 || result.InitialEquity == 0 {
			continue
		}
		if compound == 0 {
			compound = result.InitialEquity
		}
		scale := compound / result.InitialEquity
		for _, point := range result.EquityCurve {
			combined = append(combined, models.EquityPoint{
				Timestamp: point.Timestamp,
				Equity:    point.Equity * scale,
				Drawdown:  point.Drawdown,
			})
		}
		compound = result.FinalEquity * scale
	}
	return combined
}

func annualize(initial, final, days float64) float64 {
	if initial <= 0 || final <= 0 || days <= 0 {
		return 0
	}
	years := days / 365.25
	if years <= 0 {
		return 0
	}
	return math.Pow(final/initial, 1.0/years) - 1.0
}

// winRate is the fraction of closed trades with positive realized P/L
func winRate(foldResults []FoldResult) float64 {
	wins := 0
	closed := 0
	for _, result := range foldResults {
		for _, trade := range result.Trades {
			if trade.RealizedPnL == nil {
				continue
			}
			closed++
			if *trade.RealizedPnL > 0 {
				wins++
			}
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

func benchmarkReturn(bars []models.Bar) float64 {
	if len(bars) < 2 || bars[0].Close == 0 {
		return 0
	}
	return (bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close
}
