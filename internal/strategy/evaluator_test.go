package strategy

import (
	"testing"

	"github.com/yourusername/stratlab/internal/models"
)

func snapshot(values, previous map[string]float64) Snapshot {
	return Snapshot{Symbol: "AAPL", Values: values, Previous: previous}
}

func TestEvaluateZeroWeightNeverEnters(t *testing.T) {
	strat := models.TradingStrategy{
		Rules: []models.Rule{
			{ID: "r1", Indicator: "rsi", Condition: models.OperatorBelow, Threshold: 30, Weight: 0},
		},
		EntryConditions: []models.Condition{
			{Indicator: "rsi", Operator: models.OperatorBelow, Value: 30},
		},
	}
	signal := Evaluate(strat, snapshot(map[string]float64{"rsi": 20}, nil))
	if signal.TriggeredEntry {
		t.Error("zero aggregate strength must not trigger an entry")
	}
	if signal.Direction != DirectionHold {
		t.Errorf("expected hold, got %s", signal.Direction)
	}
}

func TestEvaluateMissingIndicatorSkipsRule(t *testing.T) {
	strat := models.TradingStrategy{
		Rules: []models.Rule{
			{ID: "r1", Indicator: "rsi", Condition: models.OperatorBelow, Threshold: 30, Weight: 0.5},
			{ID: "r2", Indicator: "macd", Condition: models.OperatorAbove, Threshold: 0, Weight: 0.5},
		},
	}
	// macd is unavailable; only the rsi rule contributes.
	signal := Evaluate(strat, snapshot(map[string]float64{"rsi": 20}, nil))
	if signal.Strength != 0.5 {
		t.Errorf("expected strength 0.5, got %f", signal.Strength)
	}
}

func TestEvaluateMissingIndicatorFailsEntryCondition(t *testing.T) {
	strat := models.TradingStrategy{
		Rules: []models.Rule{
			{ID: "r1", Indicator: "rsi", Condition: models.OperatorBelow, Threshold: 30, Weight: 1},
		},
		EntryConditions: []models.Condition{
			{Indicator: "rsi", Operator: models.OperatorBelow, Value: 30},
			{Indicator: "volume_ratio", Operator: models.OperatorAbove, Value: 1.5},
		},
	}
	signal := Evaluate(strat, snapshot(map[string]float64{"rsi": 20}, nil))
	if signal.TriggeredEntry {
		t.Error("entry conditions are conjunctive; a missing indicator must fail the entry")
	}
}

func TestEvaluateExitIsDisjunctive(t *testing.T) {
	strat := models.TradingStrategy{
		ExitConditions: []models.Condition{
			{Indicator: "rsi", Operator: models.OperatorAbove, Value: 70},
			{Indicator: "macd", Operator: models.OperatorBelow, Value: 0},
		},
	}
	signal := Evaluate(strat, snapshot(map[string]float64{"rsi": 50, "macd": -1}, nil))
	if !signal.TriggeredExit {
		t.Error("any satisfied exit condition should trigger the exit")
	}
}

func TestEvaluateCrossesAbove(t *testing.T) {
	strat := models.TradingStrategy{
		Rules: []models.Rule{
			{ID: "r1", Indicator: "sma_cross", Condition: models.OperatorCrossesAbove, Threshold: 0, Weight: 1},
		},
	}

	// No previous value: a cross cannot be established.
	signal := Evaluate(strat, snapshot(map[string]float64{"sma_cross": 0.5}, nil))
	if signal.Strength != 0 {
		t.Errorf("cross without a prior bar must not fire, strength %f", signal.Strength)
	}

	// Previous at or below threshold, current above: cross fires.
	signal = Evaluate(strat, snapshot(map[string]float64{"sma_cross": 0.5}, map[string]float64{"sma_cross": -0.2}))
	if signal.Strength != 1 {
		t.Errorf("expected cross to fire, strength %f", signal.Strength)
	}

	// Already above on the previous bar: no new cross.
	signal = Evaluate(strat, snapshot(map[string]float64{"sma_cross": 0.5}, map[string]float64{"sma_cross": 0.4}))
	if signal.Strength != 0 {
		t.Errorf("no cross when previous value was already above, strength %f", signal.Strength)
	}
}

func TestEvaluateCrossesBelow(t *testing.T) {
	strat := models.TradingStrategy{
		Rules: []models.Rule{
			{ID: "r1", Indicator: "price_vs_sma", Condition: models.OperatorCrossesBelow, Threshold: 0, Weight: -1},
		},
	}
	signal := Evaluate(strat, snapshot(map[string]float64{"price_vs_sma": -0.1}, map[string]float64{"price_vs_sma": 0.3}))
	if signal.Strength != -1 {
		t.Errorf("expected strength -1, got %f", signal.Strength)
	}
	if signal.Direction != DirectionSell {
		t.Errorf("negative strength should point sell, got %s", signal.Direction)
	}
}

func TestEvaluateStrengthClipped(t *testing.T) {
	strat := models.TradingStrategy{
		Rules: []models.Rule{
			{ID: "r1", Indicator: "a", Condition: models.OperatorAbove, Threshold: 0, Weight: 0.9},
			{ID: "r2", Indicator: "b", Condition: models.OperatorAbove, Threshold: 0, Weight: 0.9},
		},
	}
	signal := Evaluate(strat, snapshot(map[string]float64{"a": 1, "b": 1}, nil))
	if signal.Strength != 1 {
		t.Errorf("strength must clip to [-1,1], got %f", signal.Strength)
	}
}
