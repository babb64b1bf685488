// Package main provides the long-running backtesting service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/stratlab/internal/config"
	"github.com/yourusername/stratlab/internal/database"
	"github.com/yourusername/stratlab/internal/health"
	"github.com/yourusername/stratlab/internal/jobs"
	"github.com/yourusername/stratlab/internal/logger"
	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/metrics"
	"github.com/yourusername/stratlab/internal/models"
	"github.com/yourusername/stratlab/internal/scheduler"
	"github.com/yourusername/stratlab/internal/service"
	"github.com/yourusername/stratlab/internal/universe"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile string
	listenPort int
	appLog     *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	store      jobs.JobStore
	source     *marketdata.HTTPSource
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().IntVarP(&listenPort, "port", "p", 8080, "API listen port")
}

var rootCmd = &cobra.Command{
	Use:   "stratlab-server",
	Short: "Run the walk-forward backtesting job service",
	Long:  `Accepts backtest jobs over HTTP, executes them on a bounded worker pool and serves status, results, health and metrics.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}

	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	return config.Validate(cfg)
}

func setupDependencies() error {
	appLog = logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
		"commit":      GitCommit,
	}).Info("StratLab backtesting service starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Database.Enabled {
		var err error
		db, err = database.Initialize(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		store = jobs.NewPostgresJobStore(db)
		appLog.Info("PostgreSQL job store initialized")
	} else {
		store = jobs.NewInMemoryJobStore()
		appLog.Info("Using in-memory job store")
	}

	clientCfg := marketdata.DefaultHTTPClientConfig()
	clientCfg.Timeout = time.Duration(cfg.MarketData.TimeoutSeconds) * time.Second
	clientCfg.MaxRetries = cfg.MarketData.RetryAttempts
	clientCfg.RateLimit = cfg.MarketData.RequestsPerSecond
	clientCfg.CircuitBreakerMax = cfg.MarketData.BreakerFailureLimit

	vendorLog := log.New(os.Stdout, "market-data: ", log.LstdFlags)
	client := marketdata.NewRateLimitedHTTPClient(clientCfg, vendorLog)
	source = marketdata.NewHTTPSource(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, client, appLog)

	return nil
}

func runServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	metrics.InitRegistry()

	manager, err := jobs.NewManager(store, source, source, source, jobs.ManagerConfig{
		Workers:              cfg.Engine.Workers,
		QueueSize:            cfg.Engine.QueueSize,
		MonteCarloIterations: cfg.Engine.MonteCarloIterations,
		RiskFreeRate:         cfg.Engine.RiskFreeRate,
		MinCoverage:          cfg.Engine.MinUniverseCoverage,
		IndicatorCacheTTL:    cfg.IndicatorCacheTTL(),
	}, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create job manager")
	}
	manager.Start(ctx)

	backtestService := service.NewBacktestService(
		manager,
		universe.NewValidator(cfg.Engine.MinUniverseCoverage),
		source,
		appLog,
	)

	apiServer := startAPIServer(backtestService)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer()
	}

	healthServer := startHealthServer(ctx)

	var sched *scheduler.Scheduler
	if cfg.Retention.Enabled {
		sched = scheduler.NewScheduler(store, appLog)
		if err := sched.ScheduleRetentionSweep(cfg.Retention.Schedule, cfg.Retention.RetainDays); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule retention sweep")
		}
		if err := sched.Start(); err != nil {
			appLog.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	healthServer.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"workers":   cfg.Engine.Workers,
		"port":      listenPort,
		"retention": cfg.Retention.Enabled,
	}).Info("Service is running")

	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")
	healthServer.SetReady(false)

	cancel()
	manager.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("API server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("Metrics server shutdown failed")
		}
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			appLog.WithError(err).Error("Scheduler shutdown failed")
		}
	}
	if err := healthServer.Shutdown(); err != nil {
		appLog.WithError(err).Error("Health server shutdown failed")
	}
	if db != nil {
		db.Close()
	}

	appLog.Info("Service shut down successfully")
}

func startAPIServer(svc *service.BacktestService) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/backtests", handleSubmit(svc))
	mux.HandleFunc("GET /v1/backtests/{id}", handleStatus(svc))
	mux.HandleFunc("GET /v1/backtests/{id}/result", handleResult(svc))
	mux.HandleFunc("DELETE /v1/backtests/{id}", handleCancel(svc))
	mux.HandleFunc("POST /v1/strategies/validate", handleValidateStrategy(svc))
	mux.HandleFunc("POST /v1/universe/validate", handleValidateUniverse(svc))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", listenPort),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		appLog.WithField("port", listenPort).Info("API server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("API server failed")
		}
	}()

	return server
}

func startMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		appLog.WithField("port", cfg.Metrics.Port).Info("Metrics server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Error("Metrics server failed")
		}
	}()

	return server
}

func startHealthServer(ctx context.Context) *health.Server {
	var pinger health.StorePinger
	if db != nil {
		pinger = db
	}
	server := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Port:        fmt.Sprintf("%d", cfg.Retention.HealthPort),
		Logger:      appLog,
		Store:       pinger,
	})
	if err := server.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	return server
}

func handleSubmit(svc *service.BacktestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request models.BacktestConfiguration
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.SubmitBacktest(r.Context(), request)
		if err != nil {
			var cfgErr *models.ConfigurationError
			if errors.As(err, &cfgErr) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func handleStatus(svc *service.BacktestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}
		resp, err := svc.GetStatus(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleResult(svc *service.BacktestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}
		result, err := svc.GetResult(r.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrResultNotReady) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleCancel(svc *service.BacktestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}
		if err := svc.CancelJob(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleValidateStrategy(svc *service.BacktestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Strategy     models.TradingStrategy `json:"strategy"`
			UniverseSize int                    `json:"universe_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, svc.ValidateStrategy(request.Strategy, request.UniverseSize))
	}
}

func handleValidateUniverse(svc *service.BacktestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Symbols   []string  `json:"symbols"`
			StartDate time.Time `json:"start_date"`
			EndDate   time.Time `json:"end_date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(request.Symbols) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "symbols must contain at least one entry")
			return
		}
		if !request.StartDate.Before(request.EndDate) {
			writeError(w, http.StatusUnprocessableEntity, "start_date must be before end_date")
			return
		}
		report := svc.ValidateUniverse(r.Context(), request.Symbols, request.StartDate, request.EndDate)
		writeJSON(w, http.StatusOK, report)
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
