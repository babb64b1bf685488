package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/yourusername/stratlab/internal/models"
)

func TestPercentEquitySizer(t *testing.T) {
	sizer := NewSizer(models.PositionSizing{Method: models.SizingPercentEquity, Size: 5})
	shares := sizer.Shares(decimal.NewFromInt(100000), decimal.NewFromInt(50), nil)
	if !shares.Equal(decimal.NewFromInt(100)) {
		t.Errorf("5%% of 100000 at price 50 should be 100 shares, got %s", shares)
	}
}

func TestPercentEquitySizerZeroPrice(t *testing.T) {
	sizer := NewSizer(models.PositionSizing{Method: models.SizingPercentEquity, Size: 5})
	shares := sizer.Shares(decimal.NewFromInt(100000), decimal.Zero, nil)
	if !shares.IsZero() {
		t.Errorf("zero price should size to zero, got %s", shares)
	}
}

func TestFixedSharesSizer(t *testing.T) {
	sizer := NewSizer(models.PositionSizing{Method: models.SizingFixedShares, Size: 25})
	shares := sizer.Shares(decimal.NewFromInt(1000), decimal.NewFromInt(999), nil)
	if !shares.Equal(decimal.NewFromInt(25)) {
		t.Errorf("fixed sizer should always return 25 shares, got %s", shares)
	}
}

func TestVolatilitySizerFallsBackWhenWindowNotFull(t *testing.T) {
	sizer := NewSizer(models.PositionSizing{
		Method:          models.SizingVolatility,
		Size:            10,
		LookbackPeriod:  20,
		ConfidenceLevel: 0.95,
	})
	// Two closes cannot produce a return stddev; percent-equity fallback.
	shares := sizer.Shares(decimal.NewFromInt(100000), decimal.NewFromInt(100), []float64{100, 101})
	if !shares.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected percent-equity fallback of 100 shares, got %s", shares)
	}
}

func TestVolatilitySizerScalesInverselyWithVolatility(t *testing.T) {
	sizer := NewSizer(models.PositionSizing{
		Method:          models.SizingVolatility,
		Size:            10,
		LookbackPeriod:  10,
		ConfidenceLevel: 0.95,
	})
	calm := []float64{100, 100.1, 100.2, 100.1, 100.2, 100.3, 100.2, 100.3, 100.4, 100.3}
	wild := []float64{100, 110, 95, 108, 92, 111, 90, 112, 94, 109}

	equity := decimal.NewFromInt(100000)
	price := decimal.NewFromInt(100)
	calmShares := sizer.Shares(equity, price, calm)
	wildShares := sizer.Shares(equity, price, wild)

	if !calmShares.GreaterThan(wildShares) {
		t.Errorf("calmer series should size larger: calm=%s wild=%s", calmShares, wildShares)
	}
}
