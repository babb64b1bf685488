// Package backtest contains the simulation engine: walk-forward
// partitioning, per-fold trade simulation with portfolio accounting, and
// performance metrics aggregation.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/metrics"
	"github.com/yourusername/stratlab/internal/models"
	"github.com/yourusername/stratlab/internal/risk"
	"github.com/yourusername/stratlab/internal/strategy"
)

// avgVolumeWindow is the trailing bar count used for market impact scaling
const avgVolumeWindow = 20

// FoldResult holds everything one simulated fold produced
type FoldResult struct {
	Fold          models.Fold
	Trades        []models.Trade
	EquityCurve   EquityCurve
	InitialEquity float64
	FinalEquity   float64
	Degenerate    bool
	Warnings      []string
}

// Return is the fold's validation-window return as a fraction
func (r FoldResult) Return() float64 {
	if r.InitialEquity == 0 {
		return 0
	}
	return (r.FinalEquity - r.InitialEquity) / r.InitialEquity
}

// Engine simulates one fold at a time. Folds within a job run sequentially;
// independent jobs each get their own engine invocations, so the engine
// holds no per-fold state between calls.
type Engine struct {
	bars        marketdata.BarSource
	indicators  marketdata.IndicatorSource
	riskManager *risk.Manager
	logger      *logrus.Logger
}

// NewEngine creates a simulation engine
func NewEngine(bars marketdata.BarSource, indicators marketdata.IndicatorSource, riskManager *risk.Manager, logger *logrus.Logger) (*Engine, error) {
	if bars == nil {
		return nil, fmt.Errorf("bar source is required")
	}
	if indicators == nil {
		return nil, fmt.Errorf("indicator source is required")
	}
	if riskManager == nil {
		riskManager = risk.NewManager(logger)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{bars: bars, indicators: indicators, riskManager: riskManager, logger: logger}, nil
}

// foldRun is the mutable state of one fold simulation
type foldRun struct {
	cfg            models.BacktestConfiguration
	portfolio      *Portfolio
	slippage       *slippageEngine
	sizer          strategy.Sizer
	prices         map[string]decimal.Decimal
	trailingCloses map[string][]float64
	trailingVols   map[string][]float64
	prevValues     map[string]map[string]float64
	indicatorNames []string
	entriesBlocked bool
	degenerate     bool
	warnings       []string
}

// RunFold steps chronologically through the fold's validation window,
// consulting the evaluator and risk manager per bar. A fresh portfolio and a
// fold-local indicator cache keep folds isolated from each other. When the
// context is cancelled mid-fold the partial result is returned together
// with the context error.
func (e *Engine) RunFold(ctx context.Context, fold models.Fold, cfg models.BacktestConfiguration) (FoldResult, error) {
	run := &foldRun{
		cfg:            cfg,
		portfolio:      NewPortfolio(decimal.NewFromFloat(cfg.InitialCapital)),
		slippage:       newSlippageEngine(cfg.Slippage, cfg.TransactionCosts),
		sizer:          strategy.NewSizer(cfg.Strategy.PositionSizing),
		prices:         make(map[string]decimal.Decimal),
		trailingCloses: make(map[string][]float64),
		trailingVols:   make(map[string][]float64),
		prevValues:     make(map[string]map[string]float64),
		indicatorNames: indicatorNames(cfg.Strategy),
	}

	// Bars are loaded from the training start so lookbacks and trailing
	// volatility are warm when the validation window opens.
	barsBySymbol, timeline, err := e.loadBars(ctx, fold, cfg.Universe, run)
	if err != nil {
		return FoldResult{Fold: fold}, err
	}
	if len(timeline) == 0 {
		return FoldResult{Fold: fold}, models.NewDataError("no bars in validation window %s to %s",
			fold.ValidationStart.Format("2006-01-02"), fold.ValidationEnd.Format("2006-01-02"))
	}

	initial, _ := decimal.NewFromFloat(cfg.InitialCapital).Float64()
	lastPeriod := ""

	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			return e.finishFold(fold, run, initial), err
		}
		run.slippage.AdvanceBar()
		e.absorbBars(run, barsBySymbol, ts)

		snapshots := e.buildSnapshots(ctx, run, ts)

		// Forced exits first: sells within a bar take priority over new
		// buys to bound peak leverage.
		e.applyForcedExits(run, ts)
		e.applyStrategyExits(run, snapshots, ts)
		e.applyEntries(run, snapshots, ts)

		if period := periodKey(cfg.RebalancingFrequency, ts); period != "" {
			if lastPeriod != "" && period != lastPeriod {
				e.rebalance(run, ts)
			}
			lastPeriod = period
		}

		if err := run.portfolio.RecordEquity(ts, run.prices); err != nil {
			run.degenerate = true
			run.warnings = append(run.warnings, err.Error())
			e.logger.WithError(err).Warn("Fold marked degenerate")
			break
		}
		if run.degenerate {
			break
		}
	}

	return e.finishFold(fold, run, initial), nil
}

func (e *Engine) finishFold(fold models.Fold, run *foldRun, initial float64) FoldResult {
	final := initial
	if curve := run.portfolio.Curve(); len(curve) > 0 {
		final = curve[len(curve)-1].Equity
	}
	return FoldResult{
		Fold:          fold,
		Trades:        run.portfolio.Trades(),
		EquityCurve:   run.portfolio.Curve(),
		InitialEquity: initial,
		FinalEquity:   final,
		Degenerate:    run.degenerate,
		Warnings:      run.warnings,
	}
}

func (e *Engine) loadBars(ctx context.Context, fold models.Fold, universe []string, run *foldRun) (map[string]map[int64]models.Bar, []time.Time, error) {
	barsBySymbol := make(map[string]map[int64]models.Bar)
	timestamps := make(map[int64]time.Time)

	for _, symbol := range universe {
		bars, err := e.bars.GetBars(ctx, symbol, fold.TrainingStart, fold.ValidationEnd)
		if err != nil {
			return nil, nil, models.NewDataError("failed to load bars for %s: %v", symbol, err)
		}
		byTime := make(map[int64]models.Bar, len(bars))
		for _, bar := range bars {
			if bar.Timestamp.Before(fold.ValidationStart) {
				// Training-window bar: warm the trailing series only.
				run.trailingCloses[symbol] = appendBounded(run.trailingCloses[symbol], bar.Close, avgVolumeWindow*4)
				run.trailingVols[symbol] = appendBounded(run.trailingVols[symbol], bar.Volume, avgVolumeWindow)
				run.prices[symbol] = decimal.NewFromFloat(bar.Close)
				continue
			}
			key := bar.Timestamp.Unix()
			byTime[key] = bar
			timestamps[key] = bar.Timestamp
		}
		barsBySymbol[symbol] = byTime
	}

	timeline := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return barsBySymbol, timeline, nil
}

func (e *Engine) absorbBars(run *foldRun, barsBySymbol map[string]map[int64]models.Bar, ts time.Time) {
	for symbol, byTime := range barsBySymbol {
		bar, ok := byTime[ts.Unix()]
		if !ok {
			continue
		}
		run.prices[symbol] = decimal.NewFromFloat(bar.Close)
		run.trailingCloses[symbol] = appendBounded(run.trailingCloses[symbol], bar.Close, avgVolumeWindow*4)
		run.trailingVols[symbol] = appendBounded(run.trailingVols[symbol], bar.Volume, avgVolumeWindow)
	}
}

func (e *Engine) buildSnapshots(ctx context.Context, run *foldRun, ts time.Time) map[string]strategy.Snapshot {
	snapshots := make(map[string]strategy.Snapshot, len(run.cfg.Universe))
	lookback := run.cfg.Strategy.PositionSizing.LookbackPeriod

	for _, symbol := range run.cfg.Universe {
		values := make(map[string]float64, len(run.indicatorNames))
		for _, name := range run.indicatorNames {
			value, err := e.indicators.GetIndicator(ctx, symbol, name, ts, lookback)
			if err != nil {
				if errors.Is(err, marketdata.ErrIndicatorUnavailable) {
					continue
				}
				// Transient source failure: treat like an unavailable
				// value for this bar rather than aborting the fold.
				e.logger.WithError(err).WithFields(logrus.Fields{"symbol": symbol, "indicator": name}).Debug("Indicator lookup failed")
				continue
			}
			values[name] = value
		}
		snapshots[symbol] = strategy.Snapshot{
			Symbol:    symbol,
			Timestamp: ts,
			Values:    values,
			Previous:  run.prevValues[symbol],
		}
		run.prevValues[symbol] = values
	}
	return snapshots
}

func (e *Engine) riskState(run *foldRun, ts time.Time) risk.State {
	return risk.State{
		Equity:         run.portfolio.Equity(run.prices),
		DrawdownPct:    run.portfolio.DrawdownPctAt(run.prices),
		Positions:      run.portfolio.Positions(),
		Prices:         run.prices,
		TradesToday:    run.portfolio.TradesOn(ts),
		OpenPositions:  run.portfolio.OpenPositionCount(),
		MaxPositions:   run.cfg.MaxPositions,
		EntriesBlocked: run.entriesBlocked,
	}
}

func (e *Engine) applyForcedExits(run *foldRun, ts time.Time) {
	exits, blockEntries := e.riskManager.ForcedExits(e.riskState(run, ts), run.cfg.Strategy.RiskManagement)
	if blockEntries {
		run.entriesBlocked = true
	}
	for _, exit := range exits {
		if position, ok := run.portfolio.Position(exit.Symbol); ok {
			e.executeSell(run, exit.Symbol, position.Shares, ts, exit.Reason)
		}
	}
}

func (e *Engine) applyStrategyExits(run *foldRun, snapshots map[string]strategy.Snapshot, ts time.Time) {
	for _, symbol := range sortedPositionSymbols(run.portfolio.Positions()) {
		snapshot, ok := snapshots[symbol]
		if !ok {
			continue
		}
		signal := strategy.Evaluate(run.cfg.Strategy, snapshot)
		if signal.TriggeredExit {
			metrics.RecordSignal("exit")
			if position, held := run.portfolio.Position(symbol); held {
				e.executeSell(run, symbol, position.Shares, ts, "exit_signal")
			}
		}
	}
}

type entryCandidate struct {
	symbol   string
	strength float64
}

func (e *Engine) applyEntries(run *foldRun, snapshots map[string]strategy.Snapshot, ts time.Time) {
	if run.entriesBlocked {
		return
	}

	var candidates []entryCandidate
	for _, symbol := range run.cfg.Universe {
		if _, held := run.portfolio.Position(symbol); held {
			continue
		}
		price, hasPrice := run.prices[symbol]
		if !hasPrice || !price.IsPositive() {
			continue
		}
		snapshot, ok := snapshots[symbol]
		if !ok {
			continue
		}
		signal := strategy.Evaluate(run.cfg.Strategy, snapshot)
		if signal.TriggeredEntry {
			metrics.RecordSignal("entry")
			candidates = append(candidates, entryCandidate{symbol: symbol, strength: signal.Strength})
		}
	}
	// Strongest signals claim the limited position slots first.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].strength != candidates[j].strength {
			return candidates[i].strength > candidates[j].strength
		}
		return candidates[i].symbol < candidates[j].symbol
	})

	for _, candidate := range candidates {
		price := run.prices[candidate.symbol]
		equity := run.portfolio.Equity(run.prices)
		shares := run.sizer.Shares(equity, price, run.trailingCloses[candidate.symbol])

		decision := e.riskManager.CheckEntry(e.riskState(run, ts), candidate.symbol, shares, price, run.cfg.Strategy.RiskManagement)
		if !decision.Allow {
			e.logger.WithFields(logrus.Fields{"symbol": candidate.symbol, "reason": decision.Reason}).Debug("Entry rejected")
			continue
		}
		e.executeBuy(run, candidate.symbol, decision.Shares, ts, "entry_signal")
	}
}

func (e *Engine) executeBuy(run *foldRun, symbol string, shares decimal.Decimal, ts time.Time, reason string) {
	price, ok := run.prices[symbol]
	if !ok || !price.IsPositive() || !shares.IsPositive() {
		return
	}

	fill := run.slippage.FillPrice(symbol, models.TradeSideBuy, price, shares, avgVolume(run.trailingVols[symbol]))
	if !fill.IsPositive() {
		return
	}

	// Respect the cash buffer: shrink the order so notional plus commission
	// fits into spendable cash.
	equity := run.portfolio.Equity(run.prices)
	spendable := run.portfolio.Cash().Sub(equity.Mul(decimal.NewFromFloat(run.cfg.CashBuffer)))
	shares = capSharesToCash(shares, fill, run.cfg.TransactionCosts, spendable)
	if !shares.IsPositive() {
		return
	}

	notional := shares.Mul(fill)
	trade := models.Trade{
		ID:        uuid.New(),
		Symbol:    symbol,
		Side:      models.TradeSideBuy,
		Quantity:  shares,
		FillPrice: fill,
		Cost:      Commission(run.cfg.TransactionCosts, notional),
		Timestamp: ts,
		Reason:    reason,
	}
	if err := run.portfolio.ApplyBuy(trade); err != nil {
		run.warnings = append(run.warnings, err.Error())
		return
	}
}

func (e *Engine) executeSell(run *foldRun, symbol string, shares decimal.Decimal, ts time.Time, reason string) {
	price, ok := run.prices[symbol]
	if !ok || !price.IsPositive() || !shares.IsPositive() {
		return
	}

	fill := run.slippage.FillPrice(symbol, models.TradeSideSell, price, shares, avgVolume(run.trailingVols[symbol]))
	notional := shares.Mul(fill)
	trade := models.Trade{
		ID:        uuid.New(),
		Symbol:    symbol,
		Side:      models.TradeSideSell,
		Quantity:  shares,
		FillPrice: fill,
		Cost:      Commission(run.cfg.TransactionCosts, notional),
		Timestamp: ts,
		Reason:    reason,
	}
	realized, err := run.portfolio.ApplySell(trade)
	if err != nil {
		run.warnings = append(run.warnings, err.Error())
		return
	}
	run.portfolio.AttachRealizedPnL(realized)

	if run.portfolio.Cash().IsNegative() {
		// A forced exit that cannot cover its own costs leaves a shortfall;
		// the fold is reported degenerate rather than clamped.
		run.degenerate = true
		run.warnings = append(run.warnings, fmt.Sprintf("%s: sell proceeds did not cover costs, cash is negative", symbol))
	}
}

// rebalance trims overweight positions toward equal weight, then tops up
// underweight ones with remaining cash. Both legs go through the same
// cost/slippage pipeline as regular trades.
func (e *Engine) rebalance(run *foldRun, ts time.Time) {
	held := sortedPositionSymbols(run.portfolio.Positions())
	if len(held) < 2 {
		return
	}

	equity := run.portfolio.Equity(run.prices)
	investable := equity.Mul(decimal.NewFromFloat(1 - run.cfg.CashBuffer))
	target := investable.Div(decimal.NewFromInt(int64(len(held))))
	tolerance := target.Mul(decimal.NewFromFloat(0.01))

	// Sells first, so freed cash funds the buys.
	for _, symbol := range held {
		position, _ := run.portfolio.Position(symbol)
		price, ok := run.prices[symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		excess := position.MarketValue(price).Sub(target)
		if excess.GreaterThan(tolerance) {
			shares := excess.Div(price).Round(4)
			if shares.IsPositive() && shares.LessThan(position.Shares) {
				e.executeSell(run, symbol, shares, ts, "rebalance")
			}
		}
	}
	for _, symbol := range held {
		position, stillHeld := run.portfolio.Position(symbol)
		if !stillHeld {
			continue
		}
		price, ok := run.prices[symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		shortfall := target.Sub(position.MarketValue(price))
		if shortfall.GreaterThan(tolerance) {
			shares := shortfall.Div(price).Round(4)
			decision := e.riskManager.CheckEntry(e.riskState(run, ts), symbol, shares, price, run.cfg.Strategy.RiskManagement)
			if decision.Allow {
				e.executeBuy(run, symbol, decision.Shares, ts, "rebalance")
			}
		}
	}
}

func indicatorNames(strat models.TradingStrategy) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, rule := range strat.Rules {
		add(rule.Indicator)
	}
	for _, cond := range strat.EntryConditions {
		add(cond.Indicator)
	}
	for _, cond := range strat.ExitConditions {
		add(cond.Indicator)
	}
	return names
}

func periodKey(freq models.RebalancingFrequency, ts time.Time) string {
	switch freq {
	case models.RebalanceDaily:
		return ts.Format("2006-01-02")
	case models.RebalanceWeekly:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case models.RebalanceMonthly:
		return ts.Format("2006-01")
	}
	return ""
}

func capSharesToCash(shares, fill decimal.Decimal, costs models.TransactionCostModel, spendable decimal.Decimal) decimal.Decimal {
	if !spendable.IsPositive() {
		return decimal.Zero
	}
	fixed := decimal.NewFromFloat(costs.PerTradeCost)
	minimum := decimal.NewFromFloat(costs.MinCommission)
	if minimum.GreaterThan(fixed) {
		fixed = minimum
	}
	perShare := fill.Mul(decimal.NewFromFloat(1 + costs.PercentageCost))
	if !perShare.IsPositive() {
		return decimal.Zero
	}
	maxAffordable := spendable.Sub(fixed).Div(perShare).Round(4)
	if maxAffordable.LessThan(shares) {
		return maxAffordable
	}
	return shares
}

func avgVolume(volumes []float64) decimal.Decimal {
	if len(volumes) == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(average(volumes))
}

func appendBounded(series []float64, value float64, max int) []float64 {
	series = append(series, value)
	if len(series) > max {
		series = series[len(series)-max:]
	}
	return series
}

func sortedPositionSymbols(positions map[string]models.Position) []string {
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
