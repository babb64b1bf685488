package backtest

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

// EquityCurve is a chronological series of equity samples
type EquityCurve []models.EquityPoint

// GetReturns calculates periodic returns between consecutive points
func (e EquityCurve) GetReturns() []float64 {
	if len(e) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(e)-1)
	for i := 1; i < len(e); i++ {
		prev := e[i-1].Equity
		curr := e[i].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curr-prev)/prev)
	}
	return returns
}

// GetVolatility calculates standard deviation of periodic returns
func (e EquityCurve) GetVolatility() float64 {
	return stddev(e.GetReturns())
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	peak := 0.0
	for _, p := range e {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak == 0 {
			continue
		}
		drawdown := (peak - p.Equity) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}
	return maxDD
}

// ToCSV exports the curve as CSV
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("timestamp,equity,drawdown\n")
	for _, point := range e {
		buf.WriteString(point.Timestamp.Format(time.RFC3339))
		buf.WriteString(",")
		buf.WriteString(strconv.FormatFloat(point.Equity, 'f', 6, 64))
		buf.WriteString(",")
		buf.WriteString(strconv.FormatFloat(point.Drawdown, 'f', 6, 64))
		buf.WriteString("\n")
	}
	return buf.String()
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	return mean / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
