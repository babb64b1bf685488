package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/models"
	"github.com/yourusername/stratlab/internal/risk"
)

func testFold() models.Fold {
	return models.Fold{
		Index:           0,
		TrainingStart:   date(2023, 1, 2),
		TrainingEnd:     date(2023, 2, 1),
		ValidationStart: date(2023, 2, 1),
		ValidationEnd:   date(2023, 2, 15),
	}
}

// addDailyBars adds one bar per calendar day starting at start, one close per
// entry in closes.
func addDailyBars(source *marketdata.InMemorySource, symbol string, start time.Time, closes []float64) {
	bars := make([]models.Bar, 0, len(closes))
	for i, close := range closes {
		ts := start.AddDate(0, 0, i)
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      close,
			High:      close,
			Low:       close,
			Close:     close,
			Volume:    1e6,
		})
	}
	source.AddBars(symbol, bars)
}

func momentumStrategy(maxDailyTrades int, drawdownLimit float64) models.TradingStrategy {
	return models.TradingStrategy{
		Name: "momentum-follow",
		Rules: []models.Rule{
			{ID: "r1", Indicator: "momentum", Condition: models.OperatorAbove, Threshold: 0, Weight: 1.0},
		},
		EntryConditions: []models.Condition{
			{Indicator: "momentum", Operator: models.OperatorAbove, Value: 0},
		},
		ExitConditions: []models.Condition{
			{Indicator: "momentum", Operator: models.OperatorBelow, Value: 0},
		},
		RiskManagement: models.RiskManagement{
			MaxDailyTrades: maxDailyTrades,
			DrawdownLimit:  drawdownLimit,
		},
		PositionSizing: models.PositionSizing{
			Method: models.SizingPercentEquity,
			Size:   5,
		},
	}
}

func testConfig(universe []string, strat models.TradingStrategy, maxPositions int) models.BacktestConfiguration {
	return models.BacktestConfiguration{
		Strategy:       strat,
		Universe:       universe,
		StartDate:      date(2023, 1, 2),
		EndDate:        date(2023, 2, 15),
		InitialCapital: 100000,
		MaxPositions:   maxPositions,
		WalkForward: models.WalkForwardConfig{
			TrainingPeriodMonths:   1,
			ValidationPeriodMonths: 1,
			StepSizeMonths:         1,
		},
	}
}

func newTestEngine(t *testing.T, source *marketdata.InMemorySource) *Engine {
	t.Helper()
	engine, err := NewEngine(source, source, risk.NewManager(nil), nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestRunFoldSingleEntryAndExit(t *testing.T) {
	source := marketdata.NewInMemorySource()
	closes := []float64{100, 102, 104, 106, 108, 110, 112, 114, 116, 118}
	addDailyBars(source, "AAPL", date(2023, 2, 1), closes)
	source.SetIndicator("AAPL", "momentum", date(2023, 2, 1), 1.0)
	source.SetIndicator("AAPL", "momentum", date(2023, 2, 7), -1.0)

	engine := newTestEngine(t, source)
	result, err := engine.RunFold(context.Background(), testFold(), testConfig([]string{"AAPL"}, momentumStrategy(0, 0), 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected exactly one buy and one sell, got %d trades", len(result.Trades))
	}
	buy, sell := result.Trades[0], result.Trades[1]
	if buy.Side != models.TradeSideBuy {
		t.Errorf("first trade should be a buy, got %s", buy.Side)
	}
	if sell.Side != models.TradeSideSell {
		t.Errorf("second trade should be a sell, got %s", sell.Side)
	}
	if sell.Reason != "exit_signal" {
		t.Errorf("expected exit_signal reason, got %q", sell.Reason)
	}
	if sell.RealizedPnL == nil {
		t.Fatal("closing trade should carry realized P/L")
	}
	if *sell.RealizedPnL <= 0 {
		t.Errorf("uptrend close should realize a profit, got %f", *sell.RealizedPnL)
	}

	// With zero costs and no slippage, final equity is exactly the initial
	// capital plus the realized P/L.
	expected := result.InitialEquity + *sell.RealizedPnL
	if math.Abs(result.FinalEquity-expected) > 1e-6 {
		t.Errorf("equity identity broken: final %f, expected %f", result.FinalEquity, expected)
	}
}

func TestRunFoldNoSignalsMeansFlatEquity(t *testing.T) {
	source := marketdata.NewInMemorySource()
	addDailyBars(source, "AAPL", date(2023, 2, 1), []float64{100, 101, 102, 103, 104})

	strat := momentumStrategy(0, 0)
	strat.Rules[0].Weight = 0 // zero-weight strategy never enters

	engine := newTestEngine(t, source)
	result, err := engine.RunFold(context.Background(), testFold(), testConfig([]string{"AAPL"}, strat, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(result.Trades))
	}
	for _, point := range result.EquityCurve {
		if math.Abs(point.Equity-100000) > 1e-9 {
			t.Errorf("equity should stay at initial capital, got %f at %s", point.Equity, point.Timestamp)
		}
	}
}

func TestRunFoldDrawdownLimitForceClosesAndBlocksReentry(t *testing.T) {
	source := marketdata.NewInMemorySource()
	// Flat, then a 30% crash, then flat again while the signal stays long.
	addDailyBars(source, "AAPL", date(2023, 2, 1), []float64{100, 100, 70, 70, 70, 70})
	source.SetIndicator("AAPL", "momentum", date(2023, 2, 1), 1.0)

	strat := momentumStrategy(0, 15)
	strat.PositionSizing.Size = 90

	engine := newTestEngine(t, source)
	result, err := engine.RunFold(context.Background(), testFold(), testConfig([]string{"AAPL"}, strat, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buys, sells := 0, 0
	for _, trade := range result.Trades {
		switch trade.Side {
		case models.TradeSideBuy:
			buys++
		case models.TradeSideSell:
			sells++
			if trade.Reason != risk.ReasonDrawdownLimit {
				t.Errorf("forced exit should carry drawdown_limit reason, got %q", trade.Reason)
			}
		}
	}
	if buys != 1 {
		t.Errorf("entries must stay blocked after a drawdown trip, got %d buys", buys)
	}
	if sells != 1 {
		t.Errorf("expected one forced liquidation, got %d sells", sells)
	}
}

func TestRunFoldMaxPositionsCap(t *testing.T) {
	source := marketdata.NewInMemorySource()
	addDailyBars(source, "AAPL", date(2023, 2, 1), []float64{100, 101, 102, 103})
	addDailyBars(source, "MSFT", date(2023, 2, 1), []float64{200, 202, 204, 206})
	source.SetIndicator("AAPL", "momentum", date(2023, 2, 1), 1.0)
	source.SetIndicator("MSFT", "momentum", date(2023, 2, 1), 1.0)

	engine := newTestEngine(t, source)
	result, err := engine.RunFold(context.Background(), testFold(), testConfig([]string{"AAPL", "MSFT"}, momentumStrategy(0, 0), 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buys := 0
	for _, trade := range result.Trades {
		if trade.Side == models.TradeSideBuy {
			buys++
		}
	}
	if buys != 1 {
		t.Errorf("max_positions=1 should admit exactly one entry, got %d", buys)
	}
}

func TestRunFoldMaxDailyTradesCap(t *testing.T) {
	source := marketdata.NewInMemorySource()
	addDailyBars(source, "AAPL", date(2023, 2, 1), []float64{100, 101, 102})
	addDailyBars(source, "MSFT", date(2023, 2, 1), []float64{200, 201, 202})
	addDailyBars(source, "GOOG", date(2023, 2, 1), []float64{300, 301, 302})
	for _, symbol := range []string{"AAPL", "MSFT", "GOOG"} {
		source.SetIndicator(symbol, "momentum", date(2023, 2, 1), 1.0)
	}

	engine := newTestEngine(t, source)
	result, err := engine.RunFold(context.Background(), testFold(), testConfig([]string{"AAPL", "MSFT", "GOOG"}, momentumStrategy(2, 0), 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byDay := make(map[string]int)
	for _, trade := range result.Trades {
		byDay[trade.Timestamp.Format("2006-01-02")]++
	}
	for day, count := range byDay {
		if count > 2 {
			t.Errorf("day %s exceeded max_daily_trades: %d trades", day, count)
		}
	}
}

func TestRunFoldCancelledContextReturnsPartial(t *testing.T) {
	source := marketdata.NewInMemorySource()
	addDailyBars(source, "AAPL", date(2023, 2, 1), []float64{100, 101, 102})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(t, source)
	result, err := engine.RunFold(ctx, testFold(), testConfig([]string{"AAPL"}, momentumStrategy(0, 0), 5))
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("cancelled-before-start fold should have no trades, got %d", len(result.Trades))
	}
}

func TestRunFoldEmptyValidationWindow(t *testing.T) {
	source := marketdata.NewInMemorySource()

	engine := newTestEngine(t, source)
	_, err := engine.RunFold(context.Background(), testFold(), testConfig([]string{"AAPL"}, momentumStrategy(0, 0), 5))
	if err == nil {
		t.Fatal("expected a data error for an empty validation window")
	}
}
