package jobs

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/models"
)

func testDate(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// testSource returns a source with daily bars for AAPL over Jan-May 2023 and
// a permanently bullish momentum indicator.
func testSource() *marketdata.InMemorySource {
	source := marketdata.NewInMemorySource()
	start := testDate(2023, 1, 1)
	var bars []models.Bar
	for i := 0; i < 121; i++ {
		ts := start.AddDate(0, 0, i)
		price := 100.0 + float64(i)*0.1
		bars = append(bars, models.Bar{
			Symbol: "AAPL", Timestamp: ts,
			Open: price, High: price, Low: price, Close: price,
			Volume: 1e6,
		})
	}
	source.AddBars("AAPL", bars)
	source.SetIndicator("AAPL", "momentum", start, 1.0)
	return source
}

func validConfig() models.BacktestConfiguration {
	return models.BacktestConfiguration{
		Strategy: models.TradingStrategy{
			Name: "trend",
			Rules: []models.Rule{
				{ID: "r1", Indicator: "momentum", Condition: models.OperatorAbove, Threshold: 0, Weight: 1},
			},
			EntryConditions: []models.Condition{
				{Indicator: "momentum", Operator: models.OperatorAbove, Value: 0},
			},
			PositionSizing: models.PositionSizing{Method: models.SizingPercentEquity, Size: 10},
		},
		Universe:       []string{"AAPL"},
		StartDate:      testDate(2023, 1, 1),
		EndDate:        testDate(2023, 5, 1),
		InitialCapital: 100000,
		MaxPositions:   5,
		WalkForward: models.WalkForwardConfig{
			TrainingPeriodMonths:   2,
			ValidationPeriodMonths: 1,
			StepSizeMonths:         1,
		},
	}
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	source := testSource()
	manager, err := NewManager(NewInMemoryJobStore(), source, source, source, cfg, nil)
	require.NoError(t, err)
	return manager
}

func TestManagerSubmitRejectsInvalidConfig(t *testing.T) {
	manager := newTestManager(t, ManagerConfig{})

	cfg := validConfig()
	cfg.Universe = nil

	id, err := manager.Submit(context.Background(), cfg)
	assert.Equal(t, uuid.Nil, id)

	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "universe", cfgErr.Field)

	// No job record is created for a rejected submission.
	jobs, err := manager.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestManagerRunToCompletion(t *testing.T) {
	var progressCalls int64
	manager := newTestManager(t, ManagerConfig{
		Workers: 1,
		OnProgress: func(_ uuid.UUID, _, _ int) {
			atomic.AddInt64(&progressCalls, 1)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.Start(ctx)

	id, err := manager.Submit(ctx, validConfig())
	require.NoError(t, err)

	job, err := manager.WaitForCompletion(ctx, id, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status)

	// Jan-May with a 2+1 month walk-forward yields two folds.
	assert.Equal(t, 2, job.FoldsTotal)
	assert.Equal(t, 2, job.FoldsCompleted)
	assert.EqualValues(t, 2, atomic.LoadInt64(&progressCalls))

	result, err := manager.Result(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Metrics.FoldCount)
	assert.NotEmpty(t, result.EquityCurve)
	assert.NotEmpty(t, result.TradeLog)
	assert.False(t, result.Partial)

	// Cancelling a terminal job is a no-op.
	require.NoError(t, manager.Cancel(ctx, id))
	job, err = manager.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestManagerCancelPendingJob(t *testing.T) {
	// Never started, so the job stays queued.
	manager := newTestManager(t, ManagerConfig{})
	ctx := context.Background()

	id, err := manager.Submit(ctx, validConfig())
	require.NoError(t, err)

	require.NoError(t, manager.Cancel(ctx, id))

	job, err := manager.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	_, err = manager.Result(ctx, id)
	assert.Error(t, err, "a job cancelled before running has no result")
}

func TestManagerResultNotReady(t *testing.T) {
	manager := newTestManager(t, ManagerConfig{})
	ctx := context.Background()

	id, err := manager.Submit(ctx, validConfig())
	require.NoError(t, err)

	_, err = manager.Result(ctx, id)
	assert.ErrorIs(t, err, models.ErrResultNotReady)
}

func TestManagerUnknownJob(t *testing.T) {
	manager := newTestManager(t, ManagerConfig{})
	ctx := context.Background()

	_, err := manager.Status(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	err = manager.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestManagerDegenerateFoldMarksResultPartial(t *testing.T) {
	// Price holds at 100 through training and the first validation bars,
	// then collapses. The stop loss forces an exit whose proceeds cannot
	// cover the flat commission, so cash goes negative and the fold ends
	// degenerate.
	source := marketdata.NewInMemorySource()
	start := testDate(2023, 1, 1)
	var bars []models.Bar
	for i := 0; i < 90; i++ {
		ts := start.AddDate(0, 0, i)
		price := 100.0
		if ts.After(testDate(2023, 3, 5)) {
			price = 0.05
		}
		bars = append(bars, models.Bar{
			Symbol: "AAPL", Timestamp: ts,
			Open: price, High: price, Low: price, Close: price,
			Volume: 1e6,
		})
	}
	source.AddBars("AAPL", bars)
	source.SetIndicator("AAPL", "momentum", start, 1.0)

	manager, err := NewManager(NewInMemoryJobStore(), source, source, source, ManagerConfig{Workers: 1, MonteCarloIterations: 200}, nil)
	require.NoError(t, err)

	cfg := validConfig()
	cfg.EndDate = testDate(2023, 4, 1)
	cfg.Strategy.PositionSizing.Size = 95
	cfg.Strategy.RiskManagement.StopLossPct = 10
	cfg.TransactionCosts = models.TransactionCostModel{PerTradeCost: 6000}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.Start(ctx)

	id, err := manager.Submit(ctx, cfg)
	require.NoError(t, err)

	job, err := manager.WaitForCompletion(ctx, id, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status)

	result, err := manager.Result(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Partial, "a degenerate fold must flag the aggregate result partial")
	assert.Nil(t, result.MonteCarlo, "degenerate trade logs are not resampled")

	var degenerateWarned bool
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "degenerate") {
			degenerateWarned = true
		}
	}
	assert.True(t, degenerateWarned, "warnings should name the degenerate fold, got %v", result.Warnings)
}

func TestManagerFailsWithoutCoverage(t *testing.T) {
	// Empty source: no symbol has any data.
	source := marketdata.NewInMemorySource()
	manager, err := NewManager(NewInMemoryJobStore(), source, source, source, ManagerConfig{Workers: 1}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Start(ctx)

	id, err := manager.Submit(ctx, validConfig())
	require.NoError(t, err)

	job, err := manager.WaitForCompletion(ctx, id, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "coverage")

	_, err = manager.Result(ctx, id)
	assert.ErrorContains(t, err, "job failed")
}
