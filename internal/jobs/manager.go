package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stratlab/internal/backtest"
	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/metrics"
	"github.com/yourusername/stratlab/internal/models"
	"github.com/yourusername/stratlab/internal/risk"
	"github.com/yourusername/stratlab/internal/universe"
)

// ManagerConfig tunes the worker pool and simulation defaults
type ManagerConfig struct {
	Workers              int
	QueueSize            int
	MonteCarloIterations int
	RiskFreeRate         float64
	MinCoverage          float64
	IndicatorCacheTTL    time.Duration
	// OnProgress, when set, is called after every completed fold
	OnProgress func(id uuid.UUID, completed, total int)
}

// Manager runs backtest jobs through their lifecycle. Submission validates
// synchronously; execution happens on a bounded worker pool; status, result
// and cancellation are served from the job store.
type Manager struct {
	store       JobStore
	bars        marketdata.BarSource
	indicators  marketdata.IndicatorSource
	coverage    marketdata.CoverageLookup
	riskManager *risk.Manager
	partitioner *backtest.Partitioner
	validator   *universe.Validator
	logger      *logrus.Logger
	cfg         ManagerConfig

	queue chan uuid.UUID
	wg    sync.WaitGroup

	mu        sync.Mutex
	cancels   map[uuid.UUID]context.CancelFunc
	cancelled map[uuid.UUID]bool
	started   bool
}

// NewManager creates a job manager. Start must be called before submitted
// jobs make progress.
func NewManager(store JobStore, bars marketdata.BarSource, indicators marketdata.IndicatorSource, coverage marketdata.CoverageLookup, cfg ManagerConfig, logger *logrus.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if bars == nil || indicators == nil || coverage == nil {
		return nil, fmt.Errorf("market data sources are required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.IndicatorCacheTTL <= 0 {
		cfg.IndicatorCacheTTL = 10 * time.Minute
	}

	return &Manager{
		store:       store,
		bars:        bars,
		indicators:  indicators,
		coverage:    coverage,
		riskManager: risk.NewManager(logger),
		partitioner: backtest.NewPartitioner(),
		validator:   universe.NewValidator(cfg.MinCoverage),
		logger:      logger,
		cfg:         cfg,
		queue:       make(chan uuid.UUID, cfg.QueueSize),
		cancels:     make(map[uuid.UUID]context.CancelFunc),
		cancelled:   make(map[uuid.UUID]bool),
	}, nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled and
// after the queue drains of in-flight jobs.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.logger.WithField("workers", m.cfg.Workers).Info("Job manager started")
}

// Wait blocks until all workers have exited
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Submit validates the configuration and enqueues a new job. Validation
// failures are returned immediately and no job record is created.
func (m *Manager) Submit(ctx context.Context, cfg models.BacktestConfiguration) (uuid.UUID, error) {
	if err := cfg.Validate(); err != nil {
		metrics.RecordJobRejected()
		return uuid.Nil, err
	}

	job := &models.BacktestJob{
		ID:            uuid.New(),
		Status:        models.JobStatusPending,
		Configuration: cfg,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.Put(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist job: %w", err)
	}

	select {
	case m.queue <- job.ID:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}

	metrics.RecordJobSubmitted()
	metrics.UpdateQueueDepth(len(m.queue))
	m.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"universe": len(cfg.Universe),
	}).Info("Backtest job submitted")
	return job.ID, nil
}

// Status returns the current job record
func (m *Manager) Status(ctx context.Context, id uuid.UUID) (*models.BacktestJob, error) {
	return m.store.Get(ctx, id)
}

// Result returns the job's result once it is terminal. Non-terminal jobs
// return ErrResultNotReady; failed jobs return the stored error; cancelled
// jobs return whatever partial result was captured.
func (m *Manager) Result(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusCompleted:
		return job.Result, nil
	case models.JobStatusFailed:
		return nil, fmt.Errorf("job failed: %s", job.Error)
	case models.JobStatusCancelled:
		if job.Result != nil {
			return job.Result, nil
		}
		return nil, fmt.Errorf("job cancelled before producing results")
	default:
		return nil, models.ErrResultNotReady
	}
}

// Cancel requests cancellation. Pending jobs move to CANCELLED immediately;
// running jobs stop at the next fold boundary. Cancelling a terminal job is
// a no-op.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	m.mu.Lock()
	m.cancelled[id] = true
	cancel, running := m.cancels[id]
	m.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	// Still pending: the worker that eventually dequeues it will observe
	// the flag, but the caller should see CANCELLED immediately.
	if err := job.Transition(models.JobStatusCancelled); err != nil {
		return nil
	}
	metrics.RecordJobFinished(string(job.Status))
	m.logger.WithField("job_id", id).Info("Pending job cancelled")
	return m.store.Put(ctx, job)
}

// WaitForCompletion polls until the job reaches a terminal status or ctx
// expires.
func (m *Manager) WaitForCompletion(ctx context.Context, id uuid.UUID, poll time.Duration) (*models.BacktestJob, error) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			metrics.UpdateQueueDepth(len(m.queue))
			m.execute(ctx, id)
		}
	}
}

func (m *Manager) execute(ctx context.Context, id uuid.UUID) {
	m.mu.Lock()
	if m.cancelled[id] {
		delete(m.cancelled, id)
		m.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	m.cancels[id] = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, id)
		delete(m.cancelled, id)
		m.mu.Unlock()
	}()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.WithError(err).WithField("job_id", id).Error("Failed to load queued job")
		return
	}
	if job.Status != models.JobStatusPending {
		return
	}

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	defer func() {
		if r := recover(); r != nil {
			// The panic detail stays in the logs; the stored error is a
			// generic message so callers never see internal state.
			m.logger.WithFields(logrus.Fields{"job_id": id, "panic": r}).Error("Job panicked")
			m.finalize(job, models.JobStatusFailed, nil, "internal error: simulation aborted")
		}
	}()

	if err := job.Transition(models.JobStatusRunning); err != nil {
		return
	}
	if err := m.store.Put(ctx, job); err != nil {
		m.logger.WithError(err).WithField("job_id", id).Error("Failed to mark job running")
	}

	started := time.Now()
	m.run(jobCtx, job)
	metrics.RecordJobDuration(time.Since(started).Seconds())
}

// run executes the job body: universe validation, partitioning, per-fold
// simulation, aggregation. The job is in RUNNING state on entry and is
// always left terminal.
func (m *Manager) run(ctx context.Context, job *models.BacktestJob) {
	cfg := job.Configuration

	report := m.validator.Validate(ctx, cfg.Universe, cfg.StartDate, cfg.EndDate, m.coverage)
	if len(report.ValidSymbols) == 0 {
		m.finalize(job, models.JobStatusFailed, nil, "no universe symbols have sufficient data coverage")
		return
	}
	cfg.Universe = report.ValidSymbols

	folds, err := m.partitioner.Partition(cfg.StartDate, cfg.EndDate, cfg.WalkForward)
	if err != nil {
		m.finalize(job, models.JobStatusFailed, nil, err.Error())
		return
	}
	job.FoldsTotal = len(folds)
	if err := m.store.Put(ctx, job); err != nil {
		m.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to persist fold count")
	}

	var foldResults []backtest.FoldResult
	degenerate := false
	warnings := append([]string{}, report.Warnings...)
	if report.SurvivorshipBiasRisk != universe.BiasRiskNone {
		warnings = append(warnings, fmt.Sprintf("survivorship bias risk: %s", report.SurvivorshipBiasRisk))
	}

	for _, fold := range folds {
		// A fresh indicator cache per fold keeps later windows from serving
		// earlier ones.
		cached := marketdata.NewCachedIndicatorSource(m.indicators, m.cfg.IndicatorCacheTTL)
		engine, err := backtest.NewEngine(m.bars, cached, m.riskManager, m.logger)
		if err != nil {
			m.finalize(job, models.JobStatusFailed, nil, err.Error())
			return
		}

		foldStart := time.Now()
		result, err := engine.RunFold(ctx, fold, cfg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if len(result.Trades) > 0 || len(result.EquityCurve) > 0 {
					foldResults = append(foldResults, result)
				}
				partial := m.assembleResult(ctx, foldResults, folds, cfg, warnings, true)
				m.finalize(job, models.JobStatusCancelled, partial, "")
				return
			}
			m.finalize(job, models.JobStatusFailed, nil, err.Error())
			return
		}

		foldResults = append(foldResults, result)
		warnings = append(warnings, result.Warnings...)
		if result.Degenerate {
			degenerate = true
			warnings = append(warnings, fmt.Sprintf("fold %d ended degenerate", fold.Index))
		}

		job.FoldsCompleted = len(foldResults)
		if err := m.store.Put(ctx, job); err != nil {
			m.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to persist fold progress")
		}
		metrics.RecordFoldCompleted(time.Since(foldStart).Seconds())
		metrics.RecordTradesSimulated(len(result.Trades))
		if m.cfg.OnProgress != nil {
			m.cfg.OnProgress(job.ID, job.FoldsCompleted, job.FoldsTotal)
		}
	}

	// A degenerate fold completed but its accounting broke down, so the
	// aggregate is flagged partial and Monte Carlo is skipped.
	result := m.assembleResult(ctx, foldResults, folds, cfg, warnings, degenerate)
	m.finalize(job, models.JobStatusCompleted, result, "")
}

func (m *Manager) assembleResult(ctx context.Context, foldResults []backtest.FoldResult, folds []models.Fold, cfg models.BacktestConfiguration, warnings []string, partial bool) *models.BacktestResult {
	benchmark := m.loadBenchmark(ctx, cfg)
	result := &models.BacktestResult{
		Metrics:     backtest.Aggregate(foldResults, benchmark, m.cfg.RiskFreeRate),
		EquityCurve: backtest.CombineEquityCurves(foldResults),
		Folds:       folds,
		Partial:     partial,
		Warnings:    warnings,
	}
	for _, fr := range foldResults {
		result.TradeLog = append(result.TradeLog, fr.Trades...)
	}

	if !partial && m.cfg.MonteCarloIterations > 0 {
		summary, err := backtest.RunMonteCarlo(ctx, foldResults, backtest.MonteCarloConfig{
			Iterations:     m.cfg.MonteCarloIterations,
			InitialCapital: cfg.InitialCapital,
		})
		if err == nil {
			result.MonteCarlo = summary
		}
	}
	return result
}

func (m *Manager) loadBenchmark(ctx context.Context, cfg models.BacktestConfiguration) []models.Bar {
	if len(cfg.BenchmarkSymbols) == 0 {
		return nil
	}
	bars, err := m.bars.GetBars(ctx, cfg.BenchmarkSymbols[0], cfg.StartDate, cfg.EndDate)
	if err != nil {
		m.logger.WithError(err).WithField("symbol", cfg.BenchmarkSymbols[0]).Warn("Benchmark data unavailable")
		return nil
	}
	return bars
}

// finalize moves the job to a terminal status and persists it. The store
// write uses a background context so a cancelled job context cannot lose
// the terminal record.
func (m *Manager) finalize(job *models.BacktestJob, status models.JobStatus, result *models.BacktestResult, errMsg string) {
	if err := job.Transition(status); err != nil {
		m.logger.WithError(err).WithField("job_id", job.ID).Error("Invalid terminal transition")
		return
	}
	job.Result = result
	job.Error = errMsg

	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.Put(storeCtx, job); err != nil {
		m.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to persist terminal job")
	}

	metrics.RecordJobFinished(string(status))
	m.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"status": status,
		"folds":  job.FoldsCompleted,
	}).Info("Job finished")
}
