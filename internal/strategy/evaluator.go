// Package strategy evaluates declarative rule-based strategies against
// per-bar indicator snapshots.
package strategy

import (
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

// Direction is the signal direction
type Direction string

// Signal directions
const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// Snapshot holds indicator values for one bar of one symbol. Previous holds
// the prior bar's values so crossing operators can be evaluated.
type Snapshot struct {
	Symbol    string
	Timestamp time.Time
	Values    map[string]float64
	Previous  map[string]float64
}

// Has reports whether the snapshot has a current value for an indicator
func (s Snapshot) Has(indicator string) bool {
	_, ok := s.Values[indicator]
	return ok
}

// Signal is the evaluation outcome for one bar
type Signal struct {
	Direction      Direction `json:"direction"`
	Strength       float64   `json:"strength"`
	TriggeredEntry bool      `json:"triggered_entry"`
	TriggeredExit  bool      `json:"triggered_exit"`
}

// Evaluate scores the strategy's weighted rules against a snapshot and
// derives entry/exit triggers. Rules whose indicator is missing from the
// snapshot contribute nothing instead of failing the bar; early-window data
// starvation must not abort a run.
func Evaluate(strat models.TradingStrategy, snap Snapshot) Signal {
	strength := 0.0
	for _, rule := range strat.Rules {
		value, ok := snap.Values[rule.Indicator]
		if !ok {
			continue
		}
		prev, hasPrev := snap.Previous[rule.Indicator]
		if satisfied(rule.Condition, value, prev, hasPrev, rule.Threshold) {
			strength += rule.Weight
		}
	}
	strength = clip(strength, -1, 1)

	signal := Signal{Direction: DirectionHold, Strength: strength}
	if strength > 0 {
		signal.Direction = DirectionBuy
	} else if strength < 0 {
		signal.Direction = DirectionSell
	}

	// Entry is conjunctive over entry conditions and requires positive
	// strength; a zero-weight strategy never opens a position.
	signal.TriggeredEntry = strength > 0 && allConditions(strat.EntryConditions, snap)
	// Exit is disjunctive: any exit condition fires it. Risk-forced exits
	// are decided separately by the risk manager.
	signal.TriggeredExit = anyCondition(strat.ExitConditions, snap)

	return signal
}

func allConditions(conditions []models.Condition, snap Snapshot) bool {
	for _, cond := range conditions {
		if !conditionMet(cond, snap) {
			return false
		}
	}
	return true
}

func anyCondition(conditions []models.Condition, snap Snapshot) bool {
	for _, cond := range conditions {
		if conditionMet(cond, snap) {
			return true
		}
	}
	return false
}

// conditionMet treats a missing indicator value as unsatisfied
func conditionMet(cond models.Condition, snap Snapshot) bool {
	value, ok := snap.Values[cond.Indicator]
	if !ok {
		return false
	}
	prev, hasPrev := snap.Previous[cond.Indicator]
	return satisfied(cond.Operator, value, prev, hasPrev, cond.Value)
}

func satisfied(op models.Operator, value, prev float64, hasPrev bool, threshold float64) bool {
	switch op {
	case models.OperatorAbove:
		return value > threshold
	case models.OperatorBelow:
		return value < threshold
	case models.OperatorCrossesAbove:
		return hasPrev && prev <= threshold && value > threshold
	case models.OperatorCrossesBelow:
		return hasPrev && prev >= threshold && value < threshold
	case models.OperatorEquals:
		return value == threshold
	}
	return false
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
