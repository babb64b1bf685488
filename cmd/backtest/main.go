// Package main provides the entry point for the backtesting CLI tool.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stratlab/internal/backtest"
	"github.com/yourusername/stratlab/internal/config"
	"github.com/yourusername/stratlab/internal/jobs"
	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/models"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to config file")
		requestPath = flag.String("request", "", "Path to the backtest request JSON")
		fixturePath = flag.String("fixture", "", "Path to a market data fixture JSON (skips the data service)")
		startDate   = flag.String("start-date", "", "Override start date (YYYY-MM-DD)")
		endDate     = flag.String("end-date", "", "Override end date (YYYY-MM-DD)")
		output      = flag.String("output", "", "Output path for the JSON report")
		equityCSV   = flag.String("equity-csv", "", "Output path for the equity curve CSV")
		timeout     = flag.Duration("timeout", 30*time.Minute, "Maximum wall-clock time for the run")
	)
	flag.Parse()

	logger := newLogger()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := loadConfigWithSecrets(*configPath, logger)
	request := loadRequest(*requestPath, *startDate, *endDate, logger)
	source := buildSource(cfg, *fixturePath, logger)

	logger.WithFields(logrus.Fields{
		"universe": len(request.Universe),
		"start":    request.StartDate.Format("2006-01-02"),
		"end":      request.EndDate.Format("2006-01-02"),
	}).Info("Starting backtest")

	result := runJob(ctx, cfg, source, request, logger)

	fmt.Print(backtest.GenerateConsoleReport(*result))
	writeReports(*result, cfg, *output, *equityCSV, logger)
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func loadConfigWithSecrets(path string, logger *logrus.Logger) *config.Config {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			logger.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			logger.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func loadRequest(path, startOverride, endOverride string, logger *logrus.Logger) models.BacktestConfiguration {
	if path == "" {
		logger.Fatal("A backtest request is required, pass -request <file.json>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatalf("Failed to read request: %v", err)
	}
	var request models.BacktestConfiguration
	if err := json.Unmarshal(data, &request); err != nil {
		logger.Fatalf("Failed to parse request: %v", err)
	}
	if startOverride != "" {
		parsed, err := time.Parse("2006-01-02", startOverride)
		if err != nil {
			logger.Fatalf("Invalid start date: %v", err)
		}
		request.StartDate = parsed
	}
	if endOverride != "" {
		parsed, err := time.Parse("2006-01-02", endOverride)
		if err != nil {
			logger.Fatalf("Invalid end date: %v", err)
		}
		request.EndDate = parsed
	}
	return request
}

// dataSource is the combined surface the job manager needs. The in-memory
// fixture source and the HTTP source both satisfy it.
type dataSource interface {
	marketdata.BarSource
	marketdata.IndicatorSource
	marketdata.CoverageLookup
}

func buildSource(cfg *config.Config, fixturePath string, logger *logrus.Logger) dataSource {
	if fixturePath != "" {
		source, err := loadFixture(fixturePath)
		if err != nil {
			logger.Fatalf("Failed to load fixture: %v", err)
		}
		logger.WithField("fixture", fixturePath).Info("Using fixture market data")
		return source
	}

	clientCfg := marketdata.DefaultHTTPClientConfig()
	clientCfg.Timeout = time.Duration(cfg.MarketData.TimeoutSeconds) * time.Second
	clientCfg.MaxRetries = cfg.MarketData.RetryAttempts
	clientCfg.RateLimit = cfg.MarketData.RequestsPerSecond
	clientCfg.CircuitBreakerMax = cfg.MarketData.BreakerFailureLimit

	client := marketdata.NewRateLimitedHTTPClient(clientCfg, nil)
	return marketdata.NewHTTPSource(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, client, logger)
}

// fixtureFile holds scripted market data for offline runs
type fixtureFile struct {
	Bars       map[string][]models.Bar `json:"bars"`
	Indicators map[string]map[string][]struct {
		Timestamp time.Time `json:"timestamp"`
		Value     float64   `json:"value"`
	} `json:"indicators"`
}

func loadFixture(path string) (*marketdata.InMemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixture fixtureFile
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	source := marketdata.NewInMemorySource()
	for symbol, bars := range fixture.Bars {
		for i := range bars {
			bars[i].Symbol = symbol
		}
		source.AddBars(symbol, bars)
	}
	for symbol, series := range fixture.Indicators {
		for name, points := range series {
			for _, point := range points {
				source.SetIndicator(symbol, name, point.Timestamp, point.Value)
			}
		}
	}
	return source, nil
}

func runJob(ctx context.Context, cfg *config.Config, source dataSource, request models.BacktestConfiguration, logger *logrus.Logger) *models.BacktestResult {
	manager, err := jobs.NewManager(jobs.NewInMemoryJobStore(), source, source, source, jobs.ManagerConfig{
		Workers:              1,
		MonteCarloIterations: cfg.Engine.MonteCarloIterations,
		RiskFreeRate:         cfg.Engine.RiskFreeRate,
		MinCoverage:          cfg.Engine.MinUniverseCoverage,
		IndicatorCacheTTL:    cfg.IndicatorCacheTTL(),
		OnProgress: func(id uuid.UUID, completed, total int) {
			logger.WithFields(logrus.Fields{"completed": completed, "total": total}).Info("Fold completed")
		},
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create job manager: %v", err)
	}
	manager.Start(ctx)

	jobID, err := manager.Submit(ctx, request)
	if err != nil {
		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Fatalf("Invalid request (%s): %v", cfgErr.Field, err)
		}
		logger.Fatalf("Failed to submit job: %v", err)
	}

	job, err := manager.WaitForCompletion(ctx, jobID, 250*time.Millisecond)
	if err != nil {
		logger.Fatalf("Backtest did not finish: %v", err)
	}
	if job.Status == models.JobStatusFailed {
		logger.Fatalf("Backtest failed: %s", job.Error)
	}

	result, err := manager.Result(ctx, jobID)
	if err != nil {
		logger.Fatalf("Failed to fetch result: %v", err)
	}
	return result
}

func writeReports(result models.BacktestResult, cfg *config.Config, output, equityCSV string, logger *logrus.Logger) {
	if output == "" && cfg.Engine.OutputPath != "" {
		output = cfg.Engine.OutputPath + "/backtest_results.json"
	}
	if output != "" {
		if err := backtest.WriteJSONReport(result, output); err != nil {
			logger.Fatalf("Failed to write JSON report: %v", err)
		}
		logger.WithField("path", output).Info("Wrote JSON report")
	}
	if equityCSV != "" {
		if err := backtest.WriteEquityCSV(result, equityCSV); err != nil {
			logger.Fatalf("Failed to write equity CSV: %v", err)
		}
		logger.WithField("path", equityCSV).Info("Wrote equity CSV")
	}
}
