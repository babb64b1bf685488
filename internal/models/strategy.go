package models

import (
	"fmt"
	"strings"
)

// Operator is the closed set of comparison operators a rule or condition may
// use. Keeping this an enum means the evaluator can match exhaustively
// instead of dispatching on free-form strings.
type Operator string

// Supported operators
const (
	OperatorAbove        Operator = "above"
	OperatorBelow        Operator = "below"
	OperatorCrossesAbove Operator = "crosses_above"
	OperatorCrossesBelow Operator = "crosses_below"
	OperatorEquals       Operator = "equals"
)

// ParseOperator validates and normalizes an operator string
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OperatorAbove, OperatorBelow, OperatorCrossesAbove, OperatorCrossesBelow, OperatorEquals:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Rule contributes its weight to the aggregate signal strength when the
// indicator satisfies the condition. Negative weights pull toward sell.
type Rule struct {
	ID        string   `json:"id" validate:"required"`
	Indicator string   `json:"indicator" validate:"required"`
	Condition Operator `json:"condition" validate:"required"`
	Threshold float64  `json:"threshold"`
	Weight    float64  `json:"weight"`
}

// Condition gates entries and exits. Entry conditions are conjunctive, exit
// conditions are disjunctive.
type Condition struct {
	Indicator string   `json:"indicator" validate:"required"`
	Operator  Operator `json:"operator" validate:"required"`
	Value     float64  `json:"value"`
	Timeframe string   `json:"timeframe"`
}

// RiskManagement holds the per-strategy risk limits enforced by the risk
// manager. Percentages are expressed as whole numbers (15.0 == 15%).
type RiskManagement struct {
	StopLossPct      float64 `json:"stop_loss_pct" validate:"gte=0,lte=100"`
	TakeProfitPct    float64 `json:"take_profit_pct" validate:"gte=0"`
	MaxPositionSize  float64 `json:"max_position_size" validate:"gte=0,lte=100"`
	MaxPortfolioRisk float64 `json:"max_portfolio_risk" validate:"gte=0,lte=100"`
	MaxDailyTrades   int     `json:"max_daily_trades" validate:"gte=0"`
	DrawdownLimit    float64 `json:"drawdown_limit" validate:"gte=0,lte=100"`
}

// SizingMethod is the closed set of position sizing methods
type SizingMethod string

// Supported sizing methods
const (
	SizingPercentEquity SizingMethod = "percent_equity"
	SizingFixedShares   SizingMethod = "shares"
	SizingVolatility    SizingMethod = "volatility"
)

// PositionSizing configures how order sizes are derived from equity
type PositionSizing struct {
	Method          SizingMethod `json:"method" validate:"required"`
	Size            float64      `json:"size" validate:"gt=0"`
	LookbackPeriod  int          `json:"lookback_period" validate:"gte=0"`
	RiskFreeRate    float64      `json:"risk_free_rate" validate:"gte=0"`
	ConfidenceLevel float64      `json:"confidence_level" validate:"gte=0,lte=1"`
}

// TradingStrategy is the declarative strategy description. It is treated as
// immutable once a job has been submitted.
type TradingStrategy struct {
	Name            string         `json:"name" validate:"required,min=1,max=255"`
	Rules           []Rule         `json:"rules" validate:"dive"`
	EntryConditions []Condition    `json:"entry_conditions" validate:"dive"`
	ExitConditions  []Condition    `json:"exit_conditions" validate:"dive"`
	RiskManagement  RiskManagement `json:"risk_management"`
	PositionSizing  PositionSizing `json:"position_sizing"`
}

// Validate performs structural validation of the strategy
func (s *TradingStrategy) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewConfigurationError("strategy.name", "strategy name is required")
	}
	for i, rule := range s.Rules {
		if rule.ID == "" {
			return NewConfigurationError(fmt.Sprintf("strategy.rules[%d].id", i), "rule id is required")
		}
		if rule.Indicator == "" {
			return NewConfigurationError(fmt.Sprintf("strategy.rules[%d].indicator", i), "rule indicator is required")
		}
		if _, err := ParseOperator(string(rule.Condition)); err != nil {
			return NewConfigurationError(fmt.Sprintf("strategy.rules[%d].condition", i), err.Error())
		}
	}
	for i, cond := range s.EntryConditions {
		if err := validateCondition(cond); err != nil {
			return NewConfigurationError(fmt.Sprintf("strategy.entry_conditions[%d]", i), err.Error())
		}
	}
	for i, cond := range s.ExitConditions {
		if err := validateCondition(cond); err != nil {
			return NewConfigurationError(fmt.Sprintf("strategy.exit_conditions[%d]", i), err.Error())
		}
	}
	switch s.PositionSizing.Method {
	case SizingPercentEquity, SizingFixedShares:
	case SizingVolatility:
		if s.PositionSizing.LookbackPeriod <= 1 {
			return NewConfigurationError("strategy.position_sizing.lookback_period", "volatility sizing requires a lookback of at least 2 bars")
		}
		if s.PositionSizing.ConfidenceLevel <= 0 || s.PositionSizing.ConfidenceLevel >= 1 {
			return NewConfigurationError("strategy.position_sizing.confidence_level", "confidence level must be in (0,1)")
		}
	default:
		return NewConfigurationError("strategy.position_sizing.method", fmt.Sprintf("unknown sizing method %q", s.PositionSizing.Method))
	}
	if s.PositionSizing.Size <= 0 {
		return NewConfigurationError("strategy.position_sizing.size", "size must be positive")
	}
	return nil
}

func validateCondition(c Condition) error {
	if c.Indicator == "" {
		return fmt.Errorf("condition indicator is required")
	}
	if _, err := ParseOperator(string(c.Operator)); err != nil {
		return err
	}
	return nil
}
