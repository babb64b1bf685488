package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPartitionBasic(t *testing.T) {
	p := NewPartitioner()
	folds, err := p.Partition(date(2020, 1, 1), date(2022, 1, 1), models.WalkForwardConfig{
		TrainingPeriodMonths:   12,
		ValidationPeriodMonths: 3,
		StepSizeMonths:         3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A fifth fold's validation window would run past the range end; four
	// fit, with the last validation window ending exactly at 2022-01-01.
	if len(folds) != 4 {
		t.Fatalf("expected 4 folds, got %d", len(folds))
	}
	if !folds[3].ValidationEnd.Equal(date(2022, 1, 1)) {
		t.Errorf("last fold should end at the range end, got %s", folds[3].ValidationEnd)
	}

	for i, fold := range folds {
		if fold.Index != i {
			t.Errorf("fold %d has index %d", i, fold.Index)
		}
		if !fold.ValidationStart.Equal(fold.TrainingEnd) {
			t.Errorf("fold %d validation does not start at training end", i)
		}
		if !fold.TrainingEnd.Equal(fold.TrainingStart.AddDate(0, 12, 0)) {
			t.Errorf("fold %d training window is not 12 months", i)
		}
		if !fold.ValidationEnd.Equal(fold.ValidationStart.AddDate(0, 3, 0)) {
			t.Errorf("fold %d validation window is not 3 months", i)
		}
	}

	// Validation windows must never overlap.
	for i := 1; i < len(folds); i++ {
		if folds[i].ValidationStart.Before(folds[i-1].ValidationEnd) {
			t.Errorf("fold %d validation overlaps fold %d", i, i-1)
		}
	}
}

func TestPartitionStepLargerThanValidationLeavesGaps(t *testing.T) {
	p := NewPartitioner()
	folds, err := p.Partition(date(2018, 1, 1), date(2021, 1, 1), models.WalkForwardConfig{
		TrainingPeriodMonths:   6,
		ValidationPeriodMonths: 1,
		StepSizeMonths:         6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(folds); i++ {
		if folds[i].ValidationStart.Before(folds[i-1].ValidationEnd) {
			t.Errorf("fold %d validation overlaps fold %d", i, i-1)
		}
	}
}

func TestPartitionInsufficientTrainingSamples(t *testing.T) {
	p := NewPartitioner()
	_, err := p.Partition(date(2020, 1, 1), date(2022, 1, 1), models.WalkForwardConfig{
		TrainingPeriodMonths:   3,
		ValidationPeriodMonths: 1,
		StepSizeMonths:         1,
		MinTrainingSamples:     500,
	})
	var insufficient *models.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Available != 3*DefaultTradingDaysPerMonth {
		t.Errorf("expected %d available samples, got %d", 3*DefaultTradingDaysPerMonth, insufficient.Available)
	}
	if insufficient.Required != 500 {
		t.Errorf("expected 500 required samples, got %d", insufficient.Required)
	}
}

func TestPartitionRangeTooShort(t *testing.T) {
	p := NewPartitioner()
	_, err := p.Partition(date(2023, 1, 1), date(2023, 6, 1), models.WalkForwardConfig{
		TrainingPeriodMonths:   12,
		ValidationPeriodMonths: 3,
		StepSizeMonths:         3,
	})
	var dataErr *models.DataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected DataError for too-short range, got %v", err)
	}
}

func TestPartitionLastFoldEndsExactlyAtRangeEnd(t *testing.T) {
	p := NewPartitioner()
	folds, err := p.Partition(date(2020, 1, 1), date(2021, 3, 1), models.WalkForwardConfig{
		TrainingPeriodMonths:   12,
		ValidationPeriodMonths: 2,
		StepSizeMonths:         2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(folds) != 1 {
		t.Fatalf("expected 1 fold, got %d", len(folds))
	}
	if !folds[0].ValidationEnd.Equal(date(2021, 3, 1)) {
		t.Errorf("fold should end exactly at range end, got %s", folds[0].ValidationEnd)
	}
}
