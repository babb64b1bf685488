// Package universe validates that requested symbols have enough historical
// coverage for a backtest and flags survivorship-bias risk.
package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/stratlab/internal/marketdata"
)

// BiasRisk is the qualitative survivorship-bias flag
type BiasRisk string

// Survivorship-bias risk levels
const (
	BiasRiskNone   BiasRisk = "none"
	BiasRiskLow    BiasRisk = "low"
	BiasRiskMedium BiasRisk = "medium"
	BiasRiskHigh   BiasRisk = "high"
)

// Report is the outcome of a universe validation
type Report struct {
	ValidSymbols         []string           `json:"valid_symbols"`
	InvalidSymbols       []string           `json:"invalid_symbols"`
	DataCoverage         map[string]float64 `json:"data_coverage"`
	Warnings             []string           `json:"warnings"`
	SurvivorshipBiasRisk BiasRisk           `json:"survivorship_bias_risk"`
}

// Validator checks symbols against a coverage lookup. Validation is a pure
// function of its inputs; identical inputs produce identical reports.
type Validator struct {
	minCoverage float64
}

// DefaultMinCoverage is the coverage fraction below which a symbol is invalid
const DefaultMinCoverage = 0.80

// NewValidator creates a validator with the given minimum coverage fraction
func NewValidator(minCoverage float64) *Validator {
	if minCoverage <= 0 || minCoverage > 1 {
		minCoverage = DefaultMinCoverage
	}
	return &Validator{minCoverage: minCoverage}
}

// Validate checks every symbol's coverage over [start, end]
func (v *Validator) Validate(ctx context.Context, symbols []string, start, end time.Time, lookup marketdata.CoverageLookup) Report {
	report := Report{
		ValidSymbols:         []string{},
		InvalidSymbols:       []string{},
		DataCoverage:         make(map[string]float64),
		Warnings:             []string{},
		SurvivorshipBiasRisk: BiasRiskNone,
	}

	lateStarters := 0
	for _, symbol := range symbols {
		coverage, found := lookup.GetCoverage(ctx, symbol, start, end)
		if !found {
			report.InvalidSymbols = append(report.InvalidSymbols, symbol)
			report.DataCoverage[symbol] = 0
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: no historical data available", symbol))
			continue
		}

		report.DataCoverage[symbol] = coverage.Fraction
		if coverage.Fraction < v.minCoverage {
			report.InvalidSymbols = append(report.InvalidSymbols, symbol)
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: coverage %.0f%% below required %.0f%%",
				symbol, coverage.Fraction*100, v.minCoverage*100))
			continue
		}

		if coverage.FirstAvailable.After(start) {
			// First bar after the requested start implies the symbol joined
			// the universe mid-range.
			lateStarters++
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: first available date %s is after requested start",
				symbol, coverage.FirstAvailable.Format("2006-01-02")))
		}
		report.ValidSymbols = append(report.ValidSymbols, symbol)
	}

	report.SurvivorshipBiasRisk = classifyBiasRisk(len(symbols), len(report.InvalidSymbols), lateStarters)
	return report
}

func classifyBiasRisk(total, invalid, lateStarters int) BiasRisk {
	if total == 0 {
		return BiasRiskNone
	}
	invalidFraction := float64(invalid) / float64(total)
	switch {
	case invalidFraction > 0.5:
		return BiasRiskHigh
	case invalidFraction > 0.25 || lateStarters > total/2:
		return BiasRiskMedium
	case invalid > 0 || lateStarters > 0:
		return BiasRiskLow
	}
	return BiasRiskNone
}
