package backtest

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/stratlab/internal/models"
)

// Portfolio is the per-fold accounting state. One portfolio is created at
// fold start, mutated bar by bar, and discarded once fold metrics are
// extracted; it is never shared across folds or jobs.
type Portfolio struct {
	cash        decimal.Decimal
	positions   map[string]models.Position
	trades      []models.Trade
	curve       EquityCurve
	peakEquity  decimal.Decimal
	tradesByDay map[string]int
}

// NewPortfolio creates a portfolio with the given starting cash
func NewPortfolio(initialCapital decimal.Decimal) *Portfolio {
	return &Portfolio{
		cash:        initialCapital,
		positions:   make(map[string]models.Position),
		tradesByDay: make(map[string]int),
		peakEquity:  initialCapital,
	}
}

// Cash returns available cash
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// Positions returns the open positions map. Callers must not mutate it.
func (p *Portfolio) Positions() map[string]models.Position {
	return p.positions
}

// Position returns the open position for a symbol, if any
func (p *Portfolio) Position(symbol string) (models.Position, bool) {
	position, ok := p.positions[symbol]
	return position, ok
}

// OpenPositionCount returns the number of open positions
func (p *Portfolio) OpenPositionCount() int {
	return len(p.positions)
}

// Trades returns the append-only trade log
func (p *Portfolio) Trades() []models.Trade {
	return p.trades
}

// Curve returns the recorded equity curve
func (p *Portfolio) Curve() EquityCurve {
	return p.curve
}

// TradesOn returns the trade count for a calendar day
func (p *Portfolio) TradesOn(day time.Time) int {
	return p.tradesByDay[dayKey(day)]
}

// Equity returns cash plus the market value of all positions at prices
func (p *Portfolio) Equity(prices map[string]decimal.Decimal) decimal.Decimal {
	equity := p.cash
	for symbol, position := range p.positions {
		if price, ok := prices[symbol]; ok {
			equity = equity.Add(position.MarketValue(price))
		} else {
			// No fresh price this bar; carry the position at cost.
			equity = equity.Add(position.MarketValue(position.AvgCost))
		}
	}
	return equity
}

// ApplyBuy debits cash by notional plus cost and opens or extends a position
func (p *Portfolio) ApplyBuy(trade models.Trade) error {
	total := trade.Notional().Add(trade.Cost)
	if total.GreaterThan(p.cash) {
		return &models.SimulationInvariantError{
			Symbol:  trade.Symbol,
			Message: "buy would drive cash negative",
		}
	}
	p.cash = p.cash.Sub(total)

	position, exists := p.positions[trade.Symbol]
	if !exists {
		p.positions[trade.Symbol] = models.Position{
			Symbol:   trade.Symbol,
			Shares:   trade.Quantity,
			AvgCost:  trade.FillPrice,
			OpenedAt: trade.Timestamp,
		}
	} else {
		newShares := position.Shares.Add(trade.Quantity)
		totalCost := position.Shares.Mul(position.AvgCost).Add(trade.Notional())
		position.Shares = newShares
		position.AvgCost = totalCost.Div(newShares)
		p.positions[trade.Symbol] = position
	}

	p.recordTrade(trade)
	return nil
}

// ApplySell credits cash by notional minus cost and shrinks or closes the
// position. It returns the realized P/L of the sold shares.
func (p *Portfolio) ApplySell(trade models.Trade) (decimal.Decimal, error) {
	position, exists := p.positions[trade.Symbol]
	if !exists || trade.Quantity.GreaterThan(position.Shares) {
		return decimal.Zero, &models.SimulationInvariantError{
			Symbol:  trade.Symbol,
			Message: "sell exceeds held shares",
		}
	}

	proceeds := trade.Notional().Sub(trade.Cost)
	p.cash = p.cash.Add(proceeds)

	realized := trade.FillPrice.Sub(position.AvgCost).Mul(trade.Quantity).Sub(trade.Cost)

	remaining := position.Shares.Sub(trade.Quantity)
	if remaining.IsZero() {
		delete(p.positions, trade.Symbol)
	} else {
		position.Shares = remaining
		p.positions[trade.Symbol] = position
	}

	p.recordTrade(trade)
	return realized, nil
}

// RecordEquity appends an equity curve point for the bar. It returns an
// invariant error when equity has gone negative; the caller marks the fold
// degenerate rather than clamping.
func (p *Portfolio) RecordEquity(ts time.Time, prices map[string]decimal.Decimal) error {
	equity := p.Equity(prices)
	if equity.GreaterThan(p.peakEquity) {
		p.peakEquity = equity
	}

	drawdown := 0.0
	if p.peakEquity.IsPositive() {
		dd, _ := p.peakEquity.Sub(equity).Div(p.peakEquity).Float64()
		if dd > 0 {
			drawdown = dd
		}
	}

	equityF, _ := equity.Float64()
	p.curve = append(p.curve, models.EquityPoint{Timestamp: ts, Equity: equityF, Drawdown: drawdown})

	if equity.IsNegative() {
		return &models.SimulationInvariantError{Message: "total equity is negative"}
	}
	return nil
}

// CurrentDrawdownPct returns the drawdown from the fold's equity peak as a
// whole-number percent, using the most recent curve point.
func (p *Portfolio) CurrentDrawdownPct() float64 {
	if len(p.curve) == 0 {
		return 0
	}
	return p.curve[len(p.curve)-1].Drawdown * 100
}

// DrawdownPctAt returns the drawdown from the equity peak at current prices,
// before the bar's equity point has been recorded.
func (p *Portfolio) DrawdownPctAt(prices map[string]decimal.Decimal) float64 {
	equity := p.Equity(prices)
	peak := p.peakEquity
	if equity.GreaterThanOrEqual(peak) || !peak.IsPositive() {
		return 0
	}
	dd, _ := peak.Sub(equity).Div(peak).Float64()
	return dd * 100
}

func (p *Portfolio) recordTrade(trade models.Trade) {
	p.trades = append(p.trades, trade)
	p.tradesByDay[dayKey(trade.Timestamp)]++
}

// AttachRealizedPnL annotates the most recent trade with realized P/L
func (p *Portfolio) AttachRealizedPnL(pnl decimal.Decimal) {
	if len(p.trades) == 0 {
		return
	}
	value, _ := pnl.Float64()
	p.trades[len(p.trades)-1].RealizedPnL = &value
}

func dayKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
