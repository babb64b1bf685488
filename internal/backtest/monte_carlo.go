package backtest

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

// MonteCarloConfig configures trade resampling
type MonteCarloConfig struct {
	Iterations     int
	Seed           int64
	InitialCapital float64
}

// RunMonteCarlo resamples the realized per-trade P/L distribution with
// replacement to estimate how sensitive the result is to trade ordering and
// selection. Returns nil when no trades closed, since there is nothing to
// resample.
func RunMonteCarlo(ctx context.Context, foldResults []FoldResult, cfg MonteCarloConfig) (*models.MonteCarloSummary, error) {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	pnls := realizedPnLs(foldResults)
	if len(pnls) == 0 {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(seed))
	finalEquities := make([]float64, 0, cfg.Iterations)

	for i := 0; i < cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		equity := cfg.InitialCapital
		for range pnls {
			equity += pnls[rng.Intn(len(pnls))]
			if equity <= 0 {
				equity = 0
				break
			}
		}
		finalEquities = append(finalEquities, equity)
	}

	returns := make([]float64, len(finalEquities))
	for i, equity := range finalEquities {
		if cfg.InitialCapital > 0 {
			returns[i] = (equity - cfg.InitialCapital) / cfg.InitialCapital
		}
	}
	sort.Float64s(returns)

	summary := &models.MonteCarloSummary{
		Iterations:      cfg.Iterations,
		MeanFinalEquity: average(finalEquities),
		MedianReturn:    percentile(returns, 0.50),
		VaR95:           percentile(returns, 0.05),
		VaR99:           percentile(returns, 0.01),
		WorstReturn:     returns[0],
		BestReturn:      returns[len(returns)-1],
	}
	return summary, nil
}

func realizedPnLs(foldResults []FoldResult) []float64 {
	var pnls []float64
	for _, result := range foldResults {
		for _, trade := range result.Trades {
			if trade.RealizedPnL != nil {
				pnls = append(pnls, *trade.RealizedPnL)
			}
		}
	}
	return pnls
}

// percentile reads the p-quantile from an already sorted slice
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
