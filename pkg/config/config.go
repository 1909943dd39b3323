package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Redis      RedisConfig      `json:"redis"`
	Logging    LoggingConfig    `json:"logging"`
	MarketData MarketDataConfig `json:"market_data"`
	Resilience ResilienceConfig `json:"resilience"`
	Monitoring MonitoringConfig `json:"monitoring"`
}

// ServerConfig contains HTTP server configuration for the status endpoint
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// MarketDataConfig contains market data provider configuration
type MarketDataConfig struct {
	BaseURL            string        `json:"base_url"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	QuoteCacheTTL      time.Duration `json:"quote_cache_ttl"`
	RecommendationsTTL time.Duration `json:"recommendations_ttl"`
	NewsCacheTTL       time.Duration `json:"news_cache_ttl"`
}

// ResilienceConfig contains defaults for the guarded call chain
type ResilienceConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	SuccessThreshold int           `json:"success_threshold"`
	MaxAttempts      int           `json:"max_attempts"`
	InitialDelay     time.Duration `json:"initial_delay"`
	BackoffFactor    float64       `json:"backoff_factor"`
	MaxDelay         time.Duration `json:"max_delay"`
	Jitter           bool          `json:"jitter"`
	FallbackEnabled  bool          `json:"fallback_enabled"`
	FallbackCacheTTL time.Duration `json:"fallback_cache_ttl"`
}

// MonitoringConfig contains monitoring policy thresholds
type MonitoringConfig struct {
	HealthySuccessRate float64       `json:"healthy_success_rate"`
	AlertSuccessRate   float64       `json:"alert_success_rate"`
	MinRequestsToAlert int64         `json:"min_requests_to_alert"`
	CheckInterval      time.Duration `json:"check_interval"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		MarketData: MarketDataConfig{
			BaseURL:            getEnvString("MARKET_DATA_BASE_URL", "https://query1.finance.example.com"),
			RequestTimeout:     getEnvDuration("MARKET_DATA_REQUEST_TIMEOUT", 10*time.Second),
			QuoteCacheTTL:      getEnvDuration("MARKET_DATA_QUOTE_CACHE_TTL", 15*time.Minute),
			RecommendationsTTL: getEnvDuration("MARKET_DATA_RECOMMENDATIONS_TTL", 60*time.Minute),
			NewsCacheTTL:       getEnvDuration("MARKET_DATA_NEWS_CACHE_TTL", 30*time.Minute),
		},
		Resilience: ResilienceConfig{
			FailureThreshold: getEnvInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:  getEnvDuration("RESILIENCE_RECOVERY_TIMEOUT", 60*time.Second),
			SuccessThreshold: getEnvInt("RESILIENCE_SUCCESS_THRESHOLD", 3),
			MaxAttempts:      getEnvInt("RESILIENCE_MAX_ATTEMPTS", 3),
			InitialDelay:     getEnvDuration("RESILIENCE_INITIAL_DELAY", time.Second),
			BackoffFactor:    getEnvFloat("RESILIENCE_BACKOFF_FACTOR", 2.0),
			MaxDelay:         getEnvDuration("RESILIENCE_MAX_DELAY", 60*time.Second),
			Jitter:           getEnvBool("RESILIENCE_JITTER", true),
			FallbackEnabled:  getEnvBool("RESILIENCE_FALLBACK_ENABLED", true),
			FallbackCacheTTL: getEnvDuration("RESILIENCE_FALLBACK_CACHE_TTL", 5*time.Minute),
		},
		Monitoring: MonitoringConfig{
			HealthySuccessRate: getEnvFloat("MONITORING_HEALTHY_SUCCESS_RATE", 0.80),
			AlertSuccessRate:   getEnvFloat("MONITORING_ALERT_SUCCESS_RATE", 0.90),
			MinRequestsToAlert: int64(getEnvInt("MONITORING_MIN_REQUESTS_TO_ALERT", 10)),
			CheckInterval:      getEnvDuration("MONITORING_CHECK_INTERVAL", 30*time.Second),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive, got %d", c.Resilience.FailureThreshold)
	}
	if c.Resilience.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be positive, got %d", c.Resilience.SuccessThreshold)
	}
	if c.Resilience.RecoveryTimeout < 0 {
		return fmt.Errorf("recovery timeout must not be negative, got %s", c.Resilience.RecoveryTimeout)
	}
	if c.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.Resilience.MaxAttempts)
	}
	if c.Resilience.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be at least 1, got %f", c.Resilience.BackoffFactor)
	}
	if c.Resilience.MaxDelay < c.Resilience.InitialDelay {
		return fmt.Errorf("max delay %s must not be below initial delay %s", c.Resilience.MaxDelay, c.Resilience.InitialDelay)
	}
	if c.Monitoring.HealthySuccessRate <= 0 || c.Monitoring.HealthySuccessRate > 1 {
		return fmt.Errorf("healthy success rate must be in (0, 1], got %f", c.Monitoring.HealthySuccessRate)
	}
	if c.Monitoring.AlertSuccessRate <= 0 || c.Monitoring.AlertSuccessRate > 1 {
		return fmt.Errorf("alert success rate must be in (0, 1], got %f", c.Monitoring.AlertSuccessRate)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
