package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bar is one OHLCV bar from the historical bar source
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TradeSide is buy or sell
type TradeSide string

// Trade sides
const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is an append-only trade log entry. A trade is never mutated after
// creation; realized P/L lives on the closing trade.
type Trade struct {
	ID          uuid.UUID       `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        TradeSide       `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	FillPrice   decimal.Decimal `json:"fill_price"`
	Cost        decimal.Decimal `json:"cost"`
	Timestamp   time.Time       `json:"timestamp"`
	Reason      string          `json:"reason,omitempty"`
	RealizedPnL *float64        `json:"realized_pnl,omitempty"`
}

// Notional returns quantity x fill price, excluding costs
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.FillPrice)
}

// Position is an open holding inside a fold's portfolio
type Position struct {
	Symbol   string          `json:"symbol"`
	Shares   decimal.Decimal `json:"shares"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
	OpenedAt time.Time       `json:"opened_at"`
}

// MarketValue returns shares x price
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Shares.Mul(price)
}

// UnrealizedPnLPct returns the percent gain or loss against average cost,
// expressed as a whole number (5.0 == +5%).
func (p Position) UnrealizedPnLPct(price decimal.Decimal) float64 {
	if p.AvgCost.IsZero() {
		return 0
	}
	diff := price.Sub(p.AvgCost).Div(p.AvgCost)
	pct, _ := diff.Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// EquityPoint is one sample of total portfolio equity
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Drawdown  float64   `json:"drawdown"`
}
