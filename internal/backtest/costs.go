package backtest

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/yourusername/stratlab/internal/models"
)

// Commission prices a fill under the transaction cost model: flat per-trade
// cost plus percentage of notional, floored at the minimum commission.
func Commission(model models.TransactionCostModel, notional decimal.Decimal) decimal.Decimal {
	cost := decimal.NewFromFloat(model.PerTradeCost).
		Add(notional.Mul(decimal.NewFromFloat(model.PercentageCost)))
	minimum := decimal.NewFromFloat(model.MinCommission)
	if cost.LessThan(minimum) {
		return minimum
	}
	return cost
}

// slippageEngine derives realistic fill prices from bar mid prices. Market
// impact from an order lingers in later bars and decays exponentially:
//
//	residual(t+n) = impact(t) * exp(-decay * n)
type slippageEngine struct {
	model    models.SlippageModel
	spread   float64 // half-spread in bps from the transaction cost model
	residual map[string]float64
}

func newSlippageEngine(slippage models.SlippageModel, costs models.TransactionCostModel) *slippageEngine {
	return &slippageEngine{
		model:    slippage,
		spread:   costs.SpreadCostBps / 2,
		residual: make(map[string]float64),
	}
}

// FillPrice returns the simulated fill for an order of orderShares against
// a bar with mid price and trailing average volume avgVolume. Buys fill
// above mid, sells below.
func (s *slippageEngine) FillPrice(symbol string, side models.TradeSide, mid, orderShares, avgVolume decimal.Decimal) decimal.Decimal {
	totalBps := s.spread

	if s.model.ModelType == models.SlippageLinear {
		totalBps += s.model.SlippageBps + s.residual[symbol]

		impactBps := 0.0
		if avgVolume.IsPositive() {
			participation, _ := orderShares.Div(avgVolume).Float64()
			impactBps = s.model.MarketImpactCoeff * participation * 10000
		}
		totalBps += impactBps
		s.residual[symbol] += impactBps
	}

	adjustment := mid.Mul(decimal.NewFromFloat(totalBps / 10000.0))
	if side == models.TradeSideBuy {
		return mid.Add(adjustment)
	}
	price := mid.Sub(adjustment)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// AdvanceBar decays all residual impact by one bar
func (s *slippageEngine) AdvanceBar() {
	if s.model.TemporaryImpactDecay <= 0 {
		for symbol := range s.residual {
			delete(s.residual, symbol)
		}
		return
	}
	factor := math.Exp(-s.model.TemporaryImpactDecay)
	for symbol, bps := range s.residual {
		decayed := bps * factor
		if decayed < 0.01 {
			delete(s.residual, symbol)
			continue
		}
		s.residual[symbol] = decayed
	}
}
