package strategy

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/yourusername/stratlab/internal/models"
)

// Sizer converts current equity and price into an order size in shares.
// Implementations are pure; the engine applies risk caps afterwards.
type Sizer interface {
	Shares(equity, price decimal.Decimal, trailingCloses []float64) decimal.Decimal
}

// NewSizer builds the sizer for a validated position sizing config
func NewSizer(ps models.PositionSizing) Sizer {
	switch ps.Method {
	case models.SizingFixedShares:
		return fixedSharesSizer{shares: decimal.NewFromFloat(ps.Size)}
	case models.SizingVolatility:
		return volatilitySizer{
			sizePct:    ps.Size,
			lookback:   ps.LookbackPeriod,
			confidence: ps.ConfidenceLevel,
		}
	default:
		return percentEquitySizer{sizePct: ps.Size}
	}
}

// percentEquitySizer invests size% of current equity
type percentEquitySizer struct {
	sizePct float64
}

func (s percentEquitySizer) Shares(equity, price decimal.Decimal, _ []float64) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	budget := equity.Mul(decimal.NewFromFloat(s.sizePct / 100.0))
	return budget.Div(price).Round(4)
}

// fixedSharesSizer always orders the configured share count
type fixedSharesSizer struct {
	shares decimal.Decimal
}

func (s fixedSharesSizer) Shares(_, _ decimal.Decimal, _ []float64) decimal.Decimal {
	return s.shares
}

// volatilitySizer scales the order so the position's estimated loss at the
// configured confidence level equals size% of equity:
//
//	shares = (equity * size%) / (z(confidence) * sigma * price)
//
// where sigma is the standard deviation of close-to-close returns over the
// lookback window. When the window is not yet full it falls back to
// percent-equity sizing so early bars are not starved.
type volatilitySizer struct {
	sizePct    float64
	lookback   int
	confidence float64
}

func (s volatilitySizer) Shares(equity, price decimal.Decimal, trailingCloses []float64) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	sigma := returnStddev(trailingCloses, s.lookback)
	if sigma == 0 {
		return percentEquitySizer{sizePct: s.sizePct}.Shares(equity, price, nil)
	}
	z := normalQuantile(s.confidence)
	budget := equity.Mul(decimal.NewFromFloat(s.sizePct / 100.0))
	denom := decimal.NewFromFloat(z * sigma).Mul(price)
	if denom.IsZero() {
		return decimal.Zero
	}
	return budget.Div(denom).Round(4)
}

func returnStddev(closes []float64, lookback int) float64 {
	if lookback > 0 && len(closes) > lookback {
		closes = closes[len(closes)-lookback:]
	}
	if len(closes) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// normalQuantile maps common confidence levels to one-sided z scores
func normalQuantile(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.3263
	case confidence >= 0.975:
		return 1.9600
	case confidence >= 0.95:
		return 1.6449
	case confidence >= 0.90:
		return 1.2816
	default:
		return 1.0
	}
}
