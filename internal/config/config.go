// Package config provides configuration management for the StratLab
// backtesting service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	MarketData MarketDataConfig `mapstructure:"market_data" validate:"required"`
	Engine     EngineConfig     `mapstructure:"engine" validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics" validate:"required"`
	Retention  RetentionConfig  `mapstructure:"retention" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
	// Enabled gates PostgreSQL persistence; disabled deployments fall back
	// to the in-memory job store.
	Enabled bool `mapstructure:"enabled"`
}

// MarketDataConfig represents the historical data vendor configuration
type MarketDataConfig struct {
	BaseURL              string  `mapstructure:"base_url" validate:"required,url"`
	APIKey               string  `mapstructure:"api_key"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second" validate:"required,gt=0"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts        int     `mapstructure:"retry_attempts" validate:"gte=0"`
	BreakerFailureLimit  int     `mapstructure:"breaker_failure_limit" validate:"required,gt=0"`
	BreakerCooldownSecs  int     `mapstructure:"breaker_cooldown_seconds" validate:"required,gt=0"`
	IndicatorCacheTTLMin int     `mapstructure:"indicator_cache_ttl_minutes" validate:"required,gt=0"`
}

// EngineConfig represents simulation engine configuration
type EngineConfig struct {
	Workers              int     `mapstructure:"workers" validate:"required,gt=0"`
	QueueSize            int     `mapstructure:"queue_size" validate:"required,gt=0"`
	MonteCarloIterations int     `mapstructure:"monte_carlo_iterations" validate:"gte=0"`
	RiskFreeRate         float64 `mapstructure:"risk_free_rate" validate:"gte=0,lte=1"`
	MinUniverseCoverage  float64 `mapstructure:"min_universe_coverage" validate:"required,gt=0,lte=1"`
	OutputPath           string  `mapstructure:"output_path" validate:"required"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// RetentionConfig controls pruning of finished job records
type RetentionConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Schedule      string `mapstructure:"schedule" validate:"required"`
	RetainDays    int    `mapstructure:"retain_days" validate:"required,gt=0"`
	HealthPort    int    `mapstructure:"health_port" validate:"required,min=1,max=65535"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// IndicatorCacheTTL returns the indicator cache TTL as a duration
func (c *Config) IndicatorCacheTTL() time.Duration {
	return time.Duration(c.MarketData.IndicatorCacheTTLMin) * time.Minute
}

// RetentionCutoff returns the timestamp before which terminal jobs are pruned
func (c *Config) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.Retention.RetainDays)
}
