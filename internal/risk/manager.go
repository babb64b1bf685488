// Package risk enforces per-strategy risk limits during simulation: drawdown
// and stop limits that force positions closed, and sizing caps that shrink
// candidate orders.
package risk

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stratlab/internal/metrics"
	"github.com/yourusername/stratlab/internal/models"
)

// Exit reasons recorded on forced trades
const (
	ReasonDrawdownLimit        = "drawdown_limit"
	ReasonStopLoss             = "stop_loss"
	ReasonTakeProfit           = "take_profit"
	ReasonMaxDailyTrades       = "max_daily_trades"
	ReasonMaxPositionsExceeded = "max_positions_exceeded"
	ReasonMaxPositionExceeded  = "max_position_exceeded"
	ReasonEntriesBlocked       = "entries_blocked"
	ReasonBelowMinimumSize     = "below_minimum_size"
)

// minTradableShares is the smallest order the simulator will place. Caps
// shrink orders down to this size; below it the order is rejected instead.
var minTradableShares = decimal.NewFromInt(1)

// State is the portfolio snapshot the manager evaluates against
type State struct {
	Equity         decimal.Decimal
	DrawdownPct    float64 // drawdown from the fold's equity peak, whole-number percent
	Positions      map[string]models.Position
	Prices         map[string]decimal.Decimal
	TradesToday    int
	OpenPositions  int
	MaxPositions   int
	EntriesBlocked bool // set after a drawdown trip earlier in the fold
}

// ForcedExit names a position the simulator must close this bar
type ForcedExit struct {
	Symbol string
	Reason string
}

// Decision is the outcome of an entry check. When Allow is true, Shares
// carries the possibly-shrunk order size.
type Decision struct {
	Allow  bool
	Shares decimal.Decimal
	Reason string
}

// Manager applies the risk rules in fixed precedence order
type Manager struct {
	logger *logrus.Logger
}

// NewManager creates a risk manager
func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{logger: logger}
}

// ForcedExits returns the positions that must be closed this bar, highest
// precedence first. blockEntries is true when the drawdown limit tripped;
// the caller must keep entries blocked for the remainder of the fold.
func (m *Manager) ForcedExits(state State, rm models.RiskManagement) (exits []ForcedExit, blockEntries bool) {
	// Precedence 1: drawdown limit closes everything and blocks re-entry.
	if rm.DrawdownLimit > 0 && state.DrawdownPct > rm.DrawdownLimit {
		for _, symbol := range sortedSymbols(state.Positions) {
			exits = append(exits, ForcedExit{Symbol: symbol, Reason: ReasonDrawdownLimit})
		}
		m.logger.WithFields(logrus.Fields{
			"drawdown_pct": state.DrawdownPct,
			"limit_pct":    rm.DrawdownLimit,
			"positions":    len(exits),
		}).Warn("Drawdown limit breached, force-closing all positions")
		return exits, true
	}

	// Precedence 2: per-position stop-loss / take-profit.
	for _, symbol := range sortedSymbols(state.Positions) {
		position := state.Positions[symbol]
		price, ok := state.Prices[symbol]
		if !ok {
			continue
		}
		pnlPct := position.UnrealizedPnLPct(price)
		if rm.StopLossPct > 0 && pnlPct <= -rm.StopLossPct {
			exits = append(exits, ForcedExit{Symbol: symbol, Reason: ReasonStopLoss})
			continue
		}
		if rm.TakeProfitPct > 0 && pnlPct >= rm.TakeProfitPct {
			exits = append(exits, ForcedExit{Symbol: symbol, Reason: ReasonTakeProfit})
		}
	}
	return exits, false
}

// CheckEntry validates a candidate buy of shares at price, shrinking the
// order where a partial fill stays within the caps.
func (m *Manager) CheckEntry(state State, symbol string, shares, price decimal.Decimal, rm models.RiskManagement) Decision {
	if state.EntriesBlocked {
		return reject(ReasonEntriesBlocked)
	}
	if state.MaxPositions > 0 && state.OpenPositions >= state.MaxPositions {
		return reject(ReasonMaxPositionsExceeded)
	}

	// Precedence 3: daily trade budget.
	if rm.MaxDailyTrades > 0 && state.TradesToday >= rm.MaxDailyTrades {
		return reject(ReasonMaxDailyTrades)
	}

	if shares.LessThan(minTradableShares) || price.IsZero() || state.Equity.IsZero() {
		return reject(ReasonBelowMinimumSize)
	}

	// Precedence 4: position size and portfolio risk caps. Shrink, don't
	// reject, while a partial fill is still meaningful.
	capped := shares
	if rm.MaxPositionSize > 0 {
		maxNotional := state.Equity.Mul(decimal.NewFromFloat(rm.MaxPositionSize / 100.0))
		capped = decimal.Min(capped, maxNotional.Div(price))
	}
	if rm.MaxPortfolioRisk > 0 {
		invested := decimal.Zero
		for sym, position := range state.Positions {
			if p, ok := state.Prices[sym]; ok {
				invested = invested.Add(position.MarketValue(p))
			}
		}
		riskBudget := state.Equity.Mul(decimal.NewFromFloat(rm.MaxPortfolioRisk / 100.0)).Sub(invested)
		if riskBudget.IsNegative() {
			riskBudget = decimal.Zero
		}
		capped = decimal.Min(capped, riskBudget.Div(price))
	}
	capped = capped.Round(4)

	if capped.LessThan(minTradableShares) {
		return reject(ReasonMaxPositionExceeded)
	}
	if capped.LessThan(shares) {
		m.logger.WithFields(logrus.Fields{
			"symbol":    symbol,
			"requested": shares.String(),
			"capped":    capped.String(),
		}).Debug("Order shrunk to satisfy position size cap")
	}
	return Decision{Allow: true, Shares: capped}
}

func reject(reason string) Decision {
	metrics.RecordEntryRejected(reason)
	return Decision{Reason: reason}
}

func sortedSymbols(positions map[string]models.Position) []string {
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
