package models

import (
	"fmt"
	"time"
)

// SlippageModelType is the closed set of supported slippage models
type SlippageModelType string

// Supported slippage models
const (
	SlippageLinear SlippageModelType = "linear"
	SlippageNone   SlippageModelType = "none"
)

// RebalancingFrequency controls how often held positions are re-weighted
type RebalancingFrequency string

// Supported rebalancing frequencies
const (
	RebalanceNever   RebalancingFrequency = "never"
	RebalanceDaily   RebalancingFrequency = "daily"
	RebalanceWeekly  RebalancingFrequency = "weekly"
	RebalanceMonthly RebalancingFrequency = "monthly"
)

// TransactionCostModel prices each simulated fill. The commission is
// per_trade_cost + percentage_cost x notional, floored at min_commission.
type TransactionCostModel struct {
	PerTradeCost   float64 `json:"per_trade_cost" validate:"gte=0"`
	PercentageCost float64 `json:"percentage_cost" validate:"gte=0,lte=0.1"`
	MinCommission  float64 `json:"min_commission" validate:"gte=0"`
	SpreadCostBps  float64 `json:"spread_cost_bps" validate:"gte=0"`
}

// SlippageModel shifts the fill price away from the bar mid price.
type SlippageModel struct {
	ModelType            SlippageModelType `json:"model_type"`
	SlippageBps          float64           `json:"slippage_bps" validate:"gte=0"`
	MarketImpactCoeff    float64           `json:"market_impact_coeff" validate:"gte=0"`
	TemporaryImpactDecay float64           `json:"temporary_impact_decay" validate:"gte=0"`
}

// WalkForwardConfig controls fold construction
type WalkForwardConfig struct {
	TrainingPeriodMonths   int `json:"training_period_months" validate:"gt=0"`
	ValidationPeriodMonths int `json:"validation_period_months" validate:"gt=0"`
	StepSizeMonths         int `json:"step_size_months" validate:"gt=0"`
	MinTrainingSamples     int `json:"min_training_samples" validate:"gte=0"`
}

// Fold is one training+validation window pair. Validation starts exactly
// where training ends so the sequence leaves no gaps.
type Fold struct {
	Index           int       `json:"index"`
	TrainingStart   time.Time `json:"training_start"`
	TrainingEnd     time.Time `json:"training_end"`
	ValidationStart time.Time `json:"validation_start"`
	ValidationEnd   time.Time `json:"validation_end"`
}

// BacktestConfiguration is the full request for one backtest job
type BacktestConfiguration struct {
	Strategy             TradingStrategy      `json:"strategy"`
	Universe             []string             `json:"universe" validate:"required,min=1"`
	StartDate            time.Time            `json:"start_date"`
	EndDate              time.Time            `json:"end_date"`
	InitialCapital       float64              `json:"initial_capital" validate:"gt=0"`
	TransactionCosts     TransactionCostModel `json:"transaction_costs"`
	Slippage             SlippageModel        `json:"slippage"`
	BenchmarkSymbols     []string             `json:"benchmark_symbols"`
	WalkForward          WalkForwardConfig    `json:"walk_forward"`
	RebalancingFrequency RebalancingFrequency `json:"rebalancing_frequency"`
	MaxPositions         int                  `json:"max_positions" validate:"gte=1"`
	CashBuffer           float64              `json:"cash_buffer" validate:"gte=0,lt=1"`
}

// Validate checks the configuration at submission time. Anything caught here
// is a ConfigurationError and the job is never created.
func (c *BacktestConfiguration) Validate() error {
	if len(c.Universe) == 0 {
		return NewConfigurationError("universe", "universe must contain at least one symbol")
	}
	for i, symbol := range c.Universe {
		if symbol == "" {
			return NewConfigurationError(fmt.Sprintf("universe[%d]", i), "symbol must not be empty")
		}
	}
	if !c.StartDate.Before(c.EndDate) {
		return NewConfigurationError("start_date", "start date must be before end date")
	}
	if c.InitialCapital <= 0 {
		return NewConfigurationError("initial_capital", "initial capital must be positive")
	}
	if c.MaxPositions < 1 {
		return NewConfigurationError("max_positions", "max positions must be at least 1")
	}
	if c.CashBuffer < 0 || c.CashBuffer >= 1 {
		return NewConfigurationError("cash_buffer", "cash buffer must be in [0,1)")
	}
	if c.TransactionCosts.PerTradeCost < 0 || c.TransactionCosts.PercentageCost < 0 || c.TransactionCosts.MinCommission < 0 {
		return NewConfigurationError("transaction_costs", "cost parameters cannot be negative")
	}
	switch c.Slippage.ModelType {
	case SlippageLinear, SlippageNone, "":
	default:
		return NewConfigurationError("slippage.model_type", fmt.Sprintf("unknown slippage model %q", c.Slippage.ModelType))
	}
	if c.Slippage.SlippageBps < 0 || c.Slippage.MarketImpactCoeff < 0 || c.Slippage.TemporaryImpactDecay < 0 {
		return NewConfigurationError("slippage", "slippage parameters cannot be negative")
	}
	wf := c.WalkForward
	if wf.TrainingPeriodMonths <= 0 || wf.ValidationPeriodMonths <= 0 || wf.StepSizeMonths <= 0 {
		return NewConfigurationError("walk_forward", "training, validation and step periods must be positive")
	}
	if wf.StepSizeMonths < wf.ValidationPeriodMonths {
		return NewConfigurationError("walk_forward.step_size_months", "step size must be at least the validation period so validation windows never overlap")
	}
	switch c.RebalancingFrequency {
	case RebalanceNever, RebalanceDaily, RebalanceWeekly, RebalanceMonthly, "":
	default:
		return NewConfigurationError("rebalancing_frequency", fmt.Sprintf("unknown rebalancing frequency %q", c.RebalancingFrequency))
	}
	return c.Strategy.Validate()
}
